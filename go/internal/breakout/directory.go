package breakout

import "sync"

// Directory caches join URLs per breakout room.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string // breakoutID -> userID -> URL
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]map[string]string)}
}

// SetJoinURL records one URL, creating the room if needed.
func (d *Directory) SetJoinURL(breakoutID, userID, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users, ok := d.rooms[breakoutID]
	if !ok {
		users = make(map[string]string)
		d.rooms[breakoutID] = users
	}
	users[userID] = url
}

// Remove forgets a room.
func (d *Directory) Remove(breakoutID string) {
	d.mu.Lock()
	delete(d.rooms, breakoutID)
	d.mu.Unlock()
}

// Lookup returns the cached URL. roomKnown is false when the breakout room is
// not in the directory at all.
func (d *Directory) Lookup(breakoutID, userID string) (url string, roomKnown bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users, ok := d.rooms[breakoutID]
	if !ok {
		return "", false
	}
	return users[userID], true
}
