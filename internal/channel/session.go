package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"aiwatch/internal/events"
	"aiwatch/internal/logging"
)

// ErrNotConnected is returned by Send when no socket is open.
var ErrNotConnected = errors.New("sync channel not connected")

// Sink receives decoded events. Deliver must not block past ctx.
type Sink interface {
	Deliver(ctx context.Context, ev events.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev events.Event)

func (f SinkFunc) Deliver(ctx context.Context, ev events.Event) { f(ctx, ev) }

// Observer is notified of connectivity changes. Metrics and the engine view
// both hang off it.
type Observer interface {
	ChannelStatus(Status)
	ChannelReconnect()
	HeartbeatLatency(time.Duration)
}

// Status is a point-in-time view of the session.
type Status struct {
	Connected         bool          `json:"connected"`
	Authenticated     bool          `json:"authenticated"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	Latency           time.Duration `json:"latency"`
	LastMessage       time.Time     `json:"last_message_received,omitzero"`
	SessionID         string        `json:"session_id,omitempty"`
}

// Options configures a Session.
type Options struct {
	URL       string
	OwnerID   string
	Token     string
	Dialer    Dialer
	Observers []Observer
	Logger    *slog.Logger

	HeartbeatInterval time.Duration
	MaxMissedPongs    int
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ReconnectJitter   float64

	// Now and Wait default to the wall clock and a ctx-aware timer.
	Now  func() time.Time
	Wait func(ctx context.Context, d time.Duration) error
}

// Session is the sync channel for one owner.
type Session struct {
	opts      Options
	logger    *slog.Logger
	heartbeat *Heartbeat
	backoff   *backoff.ExponentialBackOff

	mu     sync.Mutex
	conn   Conn
	status Status
}

// NewSession validates opts and returns an idle session.
func NewSession(opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errors.New("channel url is required")
	}
	if opts.OwnerID == "" {
		return nil, errors.New("channel owner id is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{HandshakeTimeout: 15 * time.Second}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 3 * time.Second
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = opts.ReconnectInitial
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Wait == nil {
		opts.Wait = sleepContext
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.ReconnectInitial
	bo.MaxInterval = opts.ReconnectMax
	bo.RandomizationFactor = opts.ReconnectJitter
	bo.Multiplier = 2
	bo.Reset()

	return &Session{
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "channel"),
		heartbeat: NewHeartbeat(opts.MaxMissedPongs),
		backoff:   bo,
	}, nil
}

// Status returns a copy of the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Latency = s.heartbeat.Latency()
	return st
}

// Send writes a client message on the open socket.
func (s *Session) Send(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Run keeps the channel connected until ctx is cancelled. It returns nil on
// cancellation. Nothing is delivered to sink after ctx is done.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	for {
		err := s.connectOnce(ctx, sink)
		if ctx.Err() != nil {
			s.markDisconnected(false)
			return nil
		}
		attempts := s.markDisconnected(true)
		delay := s.backoff.NextBackOff()
		logging.WarnWithContext(s.logger, "sync channel closed; reconnecting", "channel_reconnect",
			logging.Error(err),
			logging.Int("attempt", attempts),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldImpact, "live updates paused; periodic refresh keeps state current"),
			logging.String(logging.FieldErrorHint, "check backend.ws_url and network reachability"),
		)
		for _, obs := range s.opts.Observers {
			obs.ChannelReconnect()
		}
		if err := s.opts.Wait(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *Session) connectOnce(ctx context.Context, sink Sink) error {
	target, err := s.dialURL()
	if err != nil {
		return err
	}
	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	// A new attempt replaces any socket still held.
	s.closeCurrent()

	conn, err := s.opts.Dialer.Dial(ctx, target, header)
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	connCtx = logging.WithSessionID(connCtx, sessionID)
	logger := logging.WithContext(connCtx, s.logger)

	s.mu.Lock()
	s.conn = conn
	s.status.Connected = true
	s.status.Authenticated = false
	s.status.SessionID = sessionID
	s.mu.Unlock()
	s.heartbeat.Reset()
	s.notify()
	defer s.closeCurrent()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	logger.Info("sync channel connected", logging.String("url", redact(target)))
	if err := conn.WriteJSON(events.NewAuthenticate(s.opts.OwnerID)); err != nil {
		return fmt.Errorf("send authenticate: %w", err)
	}

	go s.runHeartbeat(connCtx, conn, logger)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		now := s.opts.Now()
		s.mu.Lock()
		s.status.LastMessage = now
		s.mu.Unlock()

		ev, err := events.Decode(data)
		switch {
		case errors.Is(err, events.ErrUnknownType):
			logger.Debug("ignoring unknown event", logging.Error(err))
			continue
		case err != nil:
			logging.WarnWithContext(logger, "dropping malformed event", "event_invalid",
				logging.Error(err),
				logging.String(logging.FieldImpact, "one live update skipped"),
				logging.String(logging.FieldErrorHint, "the next refresh reconciles state"),
			)
			continue
		}

		if pong, ok := ev.(events.Pong); ok {
			if latency, matched := s.heartbeat.Pong(pong.At(), now); matched {
				logger.Debug("heartbeat pong", logging.Duration("latency", latency))
				for _, obs := range s.opts.Observers {
					obs.HeartbeatLatency(latency)
				}
				s.notify()
			}
			continue
		}

		s.markAuthenticated(logger)
		if _, ok := ev.(events.Authenticated); ok {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sink.Deliver(ctx, ev)
	}
}

func (s *Session) runHeartbeat(ctx context.Context, conn Conn, logger *slog.Logger) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping, expired := s.heartbeat.Tick(s.opts.Now())
			if expired {
				logging.WarnWithContext(logger, "heartbeat pongs missed; closing socket", "heartbeat_expired",
					logging.Int("max_missed_pongs", s.heartbeat.maxMissed),
					logging.String(logging.FieldImpact, "connection treated as half-dead and redialed"),
				)
				conn.Close()
				return
			}
			if err := conn.WriteJSON(ping); err != nil {
				logger.Debug("ping write failed", logging.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func (s *Session) markAuthenticated(logger *slog.Logger) {
	s.mu.Lock()
	if s.status.Authenticated {
		s.mu.Unlock()
		return
	}
	s.status.Authenticated = true
	s.status.ReconnectAttempts = 0
	s.mu.Unlock()
	s.backoff.Reset()
	logger.Info("sync channel authenticated")
	s.notify()
}

// markDisconnected clears connection flags and, when countAttempt is set,
// counts a reconnect attempt. It returns the attempt total.
func (s *Session) markDisconnected(countAttempt bool) int {
	s.mu.Lock()
	s.status.Connected = false
	s.status.Authenticated = false
	if countAttempt {
		s.status.ReconnectAttempts++
	}
	attempts := s.status.ReconnectAttempts
	s.mu.Unlock()
	s.notify()
	return attempts
}

func (s *Session) closeCurrent() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) notify() {
	if len(s.opts.Observers) == 0 {
		return
	}
	st := s.Status()
	for _, obs := range s.opts.Observers {
		obs.ChannelStatus(st)
	}
}

func (s *Session) dialURL() (string, error) {
	parsed, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	q := parsed.Query()
	q.Set("userId", s.opts.OwnerID)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func redact(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	return parsed.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
