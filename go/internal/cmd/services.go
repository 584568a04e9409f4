package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomclock/go/internal/breakout"
	"github.com/mcdev12/roomclock/go/internal/chatexport"
	"github.com/mcdev12/roomclock/go/internal/config"
	"github.com/mcdev12/roomclock/go/internal/countdown"
	"github.com/mcdev12/roomclock/go/internal/gateway"
	"github.com/mcdev12/roomclock/go/internal/monitor"
	"github.com/mcdev12/roomclock/go/internal/notify"
	"github.com/mcdev12/roomclock/go/internal/session"
	"github.com/mcdev12/roomclock/go/internal/timesync"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Services struct {
	cfg *config.Config
	nc  *nats.Conn

	Tracker         *timesync.Tracker
	Store           *session.Store
	Consumer        *session.Consumer
	Engine          *countdown.Engine
	Monitor         *monitor.Monitor
	Gateway         *gateway.Service
	Breakout        *breakout.Requester
	BreakoutHandler *breakout.Handler
	ChatExport      *chatexport.Handler

	subs []*nats.Subscription
	wg   sync.WaitGroup
}

func connectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("roomclock"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency chain
	// NATS → clock sync / session feed → countdown engine → monitor → gateway
	nc, err := connectNATS(cfg.NATS)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	clock := clockwork.NewRealClock()
	meetingID := cfg.Meeting.ID
	catalog := notify.DefaultCatalog()

	s := &Services{cfg: cfg, nc: nc}

	// Clock sync
	s.Tracker = timesync.NewTracker(clock)
	pushSub, err := s.Tracker.Subscribe(nc, cfg.NATS.TimePushSubject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.subs = append(s.subs, pushSub)

	// Session feed
	s.Store = session.NewStore(meetingID, cfg.App.BreakoutDuration)
	consumerCfg := session.DefaultConsumerConfig()
	consumerCfg.StreamName = cfg.NATS.Stream
	consumerCfg.ConsumerName = cfg.NATS.Consumer
	consumerCfg.SubjectPrefix = cfg.NATS.EventsSubjectPrefix
	s.Consumer, err = session.NewConsumer(ctx, js, s.Store, consumerCfg)
	if err != nil {
		s.closeNATS()
		return nil, fmt.Errorf("failed to create session consumer: %w", err)
	}

	// Countdown
	s.Engine = countdown.NewEngine(
		countdown.WithClock(clock),
		countdown.WithLogger(log.With().Str("meeting_id", meetingID).Logger()),
		countdown.WithDriftTolerance(cfg.Countdown.DriftToleranceSeconds),
	)

	// Gateway; the monitor is its state provider, so bind it after creation.
	gwConfig := gateway.DefaultConfig()
	gwConfig.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gwConfig.Hub.WriteTimeout = cfg.Gateway.WriteTimeout
	gwConfig.Hub.ReadTimeout = cfg.Gateway.ReadTimeout
	gwConfig.Hub.PingInterval = cfg.Gateway.PingInterval

	var provider lateProvider
	s.Gateway = gateway.NewService(gwConfig, &provider)

	s.Monitor = monitor.New(monitor.Config{
		ThresholdsMinutes: cfg.App.RemainingTimeAlertThresholds,
		DisplayAlerts:     cfg.App.DisplayAlerts,
	}, monitor.Deps{
		Store:       s.Store,
		Engine:      s.Engine,
		Offsets:     s.Tracker,
		Notifier:    notify.NewNATSNotifier(nc, cfg.NATS.NotifySubjectPrefix, meetingID, clock),
		Capture:     notify.NewCaptureTrigger(nc, cfg.NATS.CaptureSubject, meetingID, clock),
		Broadcaster: s.Gateway,
		Catalog:     catalog,
	})
	provider.set(s.Monitor)
	s.Gateway.SetHealthChecker(&healthChecker{nc: nc, tracker: s.Tracker, engine: s.Engine})

	// Breakout join URLs
	s.Breakout = breakout.NewRequester(breakout.NewDirectory(), nc, cfg.NATS.ToAkkaAppsSubject, clock)
	breakoutSub, err := s.Breakout.Subscribe(nc, cfg.NATS.FromAkkaAppsSubject)
	if err != nil {
		s.closeNATS()
		return nil, err
	}
	s.subs = append(s.subs, breakoutSub)
	s.BreakoutHandler = breakout.NewHandler(s.Breakout)

	// Chat export
	s.ChatExport = chatexport.NewHandler(catalog, clock)

	return s, nil
}

// Start launches the background loops. They stop when ctx is cancelled.
func (s *Services) Start(ctx context.Context) {
	s.goRun("clock sync", func() {
		s.Tracker.Run(ctx, s.nc, s.cfg.NATS.TimeRequestSubject, s.cfg.NATS.TimeSyncInterval)
	})
	s.goRun("session consumer", func() {
		if err := s.Consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("session consumer failed")
		}
	})
	s.goRun("gateway", func() { s.Gateway.Start(ctx) })
	s.goRun("countdown monitor", func() {
		if err := s.Monitor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("countdown monitor failed")
		}
	})
}

// Close waits for the background loops, then drains NATS.
func (s *Services) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for background loops")
	}
	s.closeNATS()
}

func (s *Services) goRun(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Debug().Str("loop", name).Msg("background loop started")
		fn()
	}()
}

func (s *Services) closeNATS() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", sub.Subject).Msg("failed to unsubscribe")
		}
	}
	if err := s.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed, closing")
		s.nc.Close()
	}
}

// lateProvider lets the gateway be built before the monitor that backs its
// state endpoint.
type lateProvider struct {
	mu sync.RWMutex
	p  gateway.StateProvider
}

func (l *lateProvider) set(p gateway.StateProvider) {
	l.mu.Lock()
	l.p = p
	l.mu.Unlock()
}

func (l *lateProvider) CountdownState(ctx context.Context, meetingID string) (*gateway.CountdownStateResponse, error) {
	l.mu.RLock()
	p := l.p
	l.mu.RUnlock()
	if p == nil {
		return nil, gateway.ErrUnknownMeeting
	}
	return p.CountdownState(ctx, meetingID)
}
