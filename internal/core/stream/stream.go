// Package stream consumes server-pushed timeline events over WebSocket or
// Server-Sent Events and reconnects with exponential backoff.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/observability"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultBaseDelay            = time.Second
	DefaultMaxDelay             = 30 * time.Second
	DefaultHeartbeat            = 30 * time.Second
)

// ErrNoToken is returned by Connect when no access token is available.
// It is not retried.
var ErrNoToken = errors.New("stream: access token required")

// State is the connection state of a Stream.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Type names a server stream.
type Type string

const (
	TypeUser        Type = "user"
	TypePublic      Type = "public"
	TypePublicLocal Type = "public:local"
	TypeHashtag     Type = "hashtag"
	TypeList        Type = "list"
)

// ParseType validates a stream name.
func ParseType(value string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case TypeUser, TypePublic, TypePublicLocal, TypeHashtag, TypeList:
		return t, nil
	default:
		return "", errors.New("unknown stream type: " + value)
	}
}

// Subscription selects what to stream. Tag applies to hashtag streams and
// List to list streams.
type Subscription struct {
	Type Type
	Tag  string
	List string
}

func (s Subscription) params() map[string]string {
	params := map[string]string{}
	switch s.Type {
	case TypeHashtag:
		params["tag"] = strings.TrimPrefix(s.Tag, "#")
	case TypeList:
		params["list"] = s.List
	}
	return params
}

// Target is one connection attempt.
type Target struct {
	URL          string
	Token        string
	Subscription Subscription
}

// Transport opens connections of one kind.
type Transport interface {
	Name() string
	Open(ctx context.Context, target Target) (Conn, error)
}

// Conn is an open connection. Run delivers events until the connection
// ends or ctx is cancelled, and always returns a non-nil error.
type Conn interface {
	Run(ctx context.Context, emit func(core.StreamEvent)) error
	Close() error
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// TokenFunc returns the access token used to authenticate the stream.
type TokenFunc func(ctx context.Context) (string, error)

// Options configure a Stream. Zero values select the defaults.
type Options struct {
	Subscription         Subscription
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration

	OnOpen func()
	// OnMessage must not call Disconnect; cancel the Connect context instead.
	OnMessage func(core.StreamEvent)
	OnError   func(error)
	// OnClose runs when the stream stops for good: after Disconnect or once
	// reconnect attempts are exhausted.
	OnClose func()

	Logger  *logging.Logger
	Metrics *observability.Metrics

	// AfterFunc schedules reconnects; defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
}

// Stream is one subscription with automatic reconnection.
type Stream struct {
	transport Transport
	token     TokenFunc
	opts      Options

	mu          sync.Mutex
	state       State
	attempts    int
	delay       time.Duration
	manualClose bool
	url         string
	gen         int
	timer       Timer
	cancel      context.CancelFunc
	base        context.Context

	deliverMu sync.Mutex
}

// New returns a disconnected stream.
func New(transport Transport, token TokenFunc, opts Options) *Stream {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Stream{transport: transport, token: token, opts: opts, delay: opts.BaseDelay}
}

// Connect starts streaming from url. It returns once the first connection
// attempt is under way; open, message and error events arrive through the
// callbacks. A missing token fails immediately.
func (s *Stream) Connect(ctx context.Context, url string) error {
	if s == nil || s.transport == nil {
		return errors.New("stream is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var token string
	if s.token != nil {
		t, err := s.token(ctx)
		if err != nil {
			return err
		}
		token = t
	}
	if strings.TrimSpace(token) == "" {
		return ErrNoToken
	}

	s.mu.Lock()
	s.stopLocked()
	s.manualClose = false
	s.url = url
	s.base = ctx
	s.attempts = 0
	s.delay = s.opts.BaseDelay
	gen := s.startLocked(token)
	s.mu.Unlock()

	s.debug("stream connecting",
		zap.String("transport", s.transport.Name()),
		zap.String("stream", string(s.opts.Subscription.Type)),
		zap.Int("generation", gen))
	return nil
}

// Disconnect closes the stream for good and cancels any pending reconnect.
func (s *Stream) Disconnect() {
	if s == nil {
		return
	}
	s.mu.Lock()
	wasActive := s.state != StateDisconnected
	s.manualClose = true
	s.stopLocked()
	s.state = StateDisconnected
	s.mu.Unlock()

	// wait for an in-flight delivery to finish
	s.deliverMu.Lock()
	s.deliverMu.Unlock() //nolint:staticcheck // barrier

	if wasActive && s.opts.OnClose != nil {
		s.opts.OnClose()
	}
}

// State returns the current connection state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the number of reconnects since the last successful open.
func (s *Stream) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// ReconnectDelay returns the delay applied to the most recent reconnect, or
// the base delay after a successful open.
func (s *Stream) ReconnectDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// stopLocked cancels the current session and pending timer.
func (s *Stream) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Stream) startLocked(token string) int {
	s.gen++
	gen := s.gen
	s.state = StateConnecting

	base := s.base
	if base == nil {
		base = context.Background()
	}
	sessCtx, cancel := context.WithCancel(base)
	s.cancel = cancel

	target := Target{URL: s.url, Token: token, Subscription: s.opts.Subscription}
	go s.session(sessCtx, gen, target)
	return gen
}

func (s *Stream) session(ctx context.Context, gen int, target Target) {
	conn, err := s.transport.Open(ctx, target)
	if err != nil {
		s.fail(gen, err)
		return
	}
	defer conn.Close() // nolint:errcheck // best-effort cleanup on stream connection

	if !s.opened(gen) {
		return
	}
	err = conn.Run(ctx, func(ev core.StreamEvent) { s.deliver(gen, ev) })
	s.fail(gen, err)
}

func (s *Stream) opened(gen int) bool {
	s.mu.Lock()
	if gen != s.gen || s.manualClose {
		s.mu.Unlock()
		return false
	}
	s.state = StateConnected
	s.attempts = 0
	s.delay = s.opts.BaseDelay
	s.mu.Unlock()

	s.debug("stream connected", zap.String("transport", s.transport.Name()))
	if s.opts.OnOpen != nil {
		s.opts.OnOpen()
	}
	return true
}

func (s *Stream) deliver(gen int, ev core.StreamEvent) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	live := gen == s.gen && !s.manualClose
	s.mu.Unlock()
	if !live {
		return
	}

	s.opts.Metrics.StreamEvent(ev.Event)
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(ev)
	}
}

// fail handles the end of a session: it schedules a reconnect, or stops
// for good once attempts are exhausted. Stale sessions are ignored.
func (s *Stream) fail(gen int, err error) {
	s.mu.Lock()
	if gen != s.gen || s.manualClose {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.base != nil && s.base.Err() != nil {
		s.state = StateDisconnected
		s.gen++
		s.mu.Unlock()

		s.debug("stream context done", zap.Error(s.base.Err()))
		if s.opts.OnClose != nil {
			s.opts.OnClose()
		}
		return
	}

	if s.attempts >= s.opts.MaxReconnectAttempts {
		s.state = StateDisconnected
		s.gen++
		attempts := s.attempts
		s.mu.Unlock()

		s.warn("stream reconnect attempts exhausted", zap.Int("attempts", attempts), zap.Error(err))
		s.notifyError(err)
		if s.opts.OnClose != nil {
			s.opts.OnClose()
		}
		return
	}

	delay := backoffDelay(s.opts.BaseDelay, s.opts.MaxDelay, s.attempts)
	s.attempts++
	s.delay = delay
	s.state = StateReconnecting
	s.timer = s.opts.AfterFunc(delay, func() { s.reconnect(gen) })
	attempts := s.attempts
	s.mu.Unlock()

	s.opts.Metrics.StreamReconnect(s.transport.Name())
	s.debug("stream reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", attempts),
		zap.Error(err))
	s.notifyError(err)
}

func (s *Stream) reconnect(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.manualClose {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	base := s.base
	s.mu.Unlock()

	if base == nil {
		base = context.Background()
	}
	token := ""
	if s.token != nil {
		t, err := s.token(base)
		if err != nil {
			s.fail(gen, err)
			return
		}
		token = t
	}
	if strings.TrimSpace(token) == "" {
		s.mu.Lock()
		if gen == s.gen {
			s.state = StateDisconnected
			s.gen++
		}
		s.mu.Unlock()
		s.notifyError(ErrNoToken)
		if s.opts.OnClose != nil {
			s.opts.OnClose()
		}
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.manualClose {
		s.mu.Unlock()
		return
	}
	s.startLocked(token)
	s.mu.Unlock()
}

func (s *Stream) notifyError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// backoffDelay is min(base * 2^attempts, max).
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (s *Stream) debug(msg string, fields ...zap.Field) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, fields...)
	}
}

func (s *Stream) warn(msg string, fields ...zap.Field) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, fields...)
	}
}
