package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greater-social/greater/internal/core"
)

type fakeConn struct {
	end chan error
}

func (c *fakeConn) Run(ctx context.Context, emit func(core.StreamEvent)) error {
	select {
	case err := <-c.end:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

type fakeTransport struct {
	mu      sync.Mutex
	opens   int
	openErr error
	conns   chan *fakeConn
	ctxs    []context.Context
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Open(ctx context.Context, target Target) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	t.ctxs = append(t.ctxs, ctx)
	if t.openErr != nil {
		return nil, t.openErr
	}
	conn := &fakeConn{end: make(chan error, 1)}
	t.conns <- conn
	return conn, nil
}

func (t *fakeTransport) setErr(err error) {
	t.mu.Lock()
	t.openErr = err
	t.mu.Unlock()
}

func (t *fakeTransport) sessionCtx(i int) context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctxs[i]
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

type fakeTimer struct{ stopped atomic.Bool }

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
	timers []*fakeTimer
}

func (f *fakeTimers) after(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{}
	f.delays = append(f.delays, d)
	f.funcs = append(f.funcs, fn)
	f.timers = append(f.timers, timer)
	return timer
}

func (f *fakeTimers) stopped(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[i].stopped.Load()
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delays)
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.funcs[i]
	f.mu.Unlock()
	fn()
}

func staticToken(token string) TokenFunc {
	return func(context.Context) (string, error) { return token, nil }
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestReconnectSchedulesExponentialDelay(t *testing.T) {
	transport := newFakeTransport()
	timers := &fakeTimers{}
	opened := make(chan struct{}, 4)

	s := New(transport, staticToken("tok"), Options{
		Subscription: Subscription{Type: TypeUser},
		AfterFunc:    timers.after,
		OnOpen:       func() { opened <- struct{}{} },
	})
	require.NoError(t, s.Connect(context.Background(), "https://example.social"))

	conn := <-transport.conns
	<-opened
	require.Equal(t, StateConnected, s.State())

	conn.end <- errors.New("socket closed")
	waitFor(t, func() bool { return timers.count() == 1 })
	require.Equal(t, time.Second, timers.delays[0])
	require.Equal(t, StateReconnecting, s.State())
	require.Equal(t, 1, s.Attempts())

	transport.setErr(errors.New("dial failed"))
	timers.fire(0)
	waitFor(t, func() bool { return timers.count() == 2 })
	require.Equal(t, 2*time.Second, timers.delays[1])

	timers.fire(1)
	waitFor(t, func() bool { return timers.count() == 3 })
	require.Equal(t, 4*time.Second, timers.delays[2])
	require.Equal(t, 3, s.Attempts())

	transport.setErr(nil)
	timers.fire(2)
	<-transport.conns
	<-opened
	require.Equal(t, 0, s.Attempts())
	require.Equal(t, time.Second, s.ReconnectDelay())

	s.Disconnect()
	require.Equal(t, StateDisconnected, s.State())

	opens := transport.openCount()
	timers.fire(0)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, timers.count())
	require.Equal(t, opens, transport.openCount())
}

func TestCloseAfterDisconnectSchedulesNothing(t *testing.T) {
	transport := newFakeTransport()
	timers := &fakeTimers{}
	closed := make(chan struct{}, 2)

	s := New(transport, staticToken("tok"), Options{
		AfterFunc: timers.after,
		OnClose:   func() { closed <- struct{}{} },
	})
	require.NoError(t, s.Connect(context.Background(), "https://example.social"))
	conn := <-transport.conns
	waitFor(t, func() bool { return s.State() == StateConnected })

	s.Disconnect()
	conn.end <- errors.New("socket closed")
	<-closed

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, timers.count())
	require.Len(t, closed, 0)

	s.Disconnect()
	require.Len(t, closed, 0)
}

func TestDisconnectWhileReconnectingStopsTimer(t *testing.T) {
	transport := newFakeTransport()
	timers := &fakeTimers{}

	s := New(transport, staticToken("tok"), Options{AfterFunc: timers.after})
	require.NoError(t, s.Connect(context.Background(), "https://example.social"))
	conn := <-transport.conns
	waitFor(t, func() bool { return s.State() == StateConnected })

	conn.end <- errors.New("socket closed")
	waitFor(t, func() bool { return timers.count() == 1 })
	require.Equal(t, StateReconnecting, s.State())
	require.False(t, timers.stopped(0))

	s.Disconnect()
	require.True(t, timers.stopped(0))
	require.Equal(t, StateDisconnected, s.State())

	timers.fire(0)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, transport.openCount())
}

func TestEndedSessionContextIsCancelled(t *testing.T) {
	transport := newFakeTransport()
	timers := &fakeTimers{}

	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(transport, staticToken("tok"), Options{AfterFunc: timers.after})
	require.NoError(t, s.Connect(base, "https://example.social"))
	conn := <-transport.conns
	waitFor(t, func() bool { return s.State() == StateConnected })

	conn.end <- errors.New("socket closed")
	waitFor(t, func() bool { return timers.count() == 1 })
	require.Error(t, transport.sessionCtx(0).Err())
	require.NoError(t, base.Err())

	s.Disconnect()
}

func TestReconnectAttemptsExhausted(t *testing.T) {
	transport := newFakeTransport()
	transport.setErr(errors.New("dial failed"))
	timers := &fakeTimers{}
	closed := make(chan struct{})
	var errs []error
	var mu sync.Mutex

	s := New(transport, staticToken("tok"), Options{
		MaxReconnectAttempts: 2,
		AfterFunc:            timers.after,
		OnError: func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
		OnClose: func() { close(closed) },
	})
	require.NoError(t, s.Connect(context.Background(), "https://example.social"))

	waitFor(t, func() bool { return timers.count() == 1 })
	timers.fire(0)
	waitFor(t, func() bool { return timers.count() == 2 })
	timers.fire(1)
	<-closed

	require.Equal(t, StateDisconnected, s.State())
	require.Equal(t, 2, timers.count())
	require.Equal(t, 3, transport.openCount())
	mu.Lock()
	require.Len(t, errs, 3)
	mu.Unlock()
}

func TestConnectRequiresToken(t *testing.T) {
	transport := newFakeTransport()
	s := New(transport, staticToken(""), Options{})

	err := s.Connect(context.Background(), "https://example.social")
	require.ErrorIs(t, err, ErrNoToken)
	require.Zero(t, transport.openCount())
	require.Equal(t, StateDisconnected, s.State())
}

func TestBackoffDelay(t *testing.T) {
	require.Equal(t, time.Second, backoffDelay(time.Second, 30*time.Second, 0))
	require.Equal(t, 2*time.Second, backoffDelay(time.Second, 30*time.Second, 1))
	require.Equal(t, 16*time.Second, backoffDelay(time.Second, 30*time.Second, 4))
	require.Equal(t, 30*time.Second, backoffDelay(time.Second, 30*time.Second, 5))
	require.Equal(t, 30*time.Second, backoffDelay(time.Second, 30*time.Second, 50))
}

func TestParseType(t *testing.T) {
	kind, err := ParseType("Public:Local")
	require.NoError(t, err)
	require.Equal(t, TypePublicLocal, kind)

	_, err = ParseType("direct")
	require.Error(t, err)
}

func TestNewTransportSelection(t *testing.T) {
	tr, target, err := NewTransport("wss://streaming.example.social", "https://example.social", time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, "websocket", tr.Name())
	require.Equal(t, "wss://streaming.example.social", target)

	tr, target, err = NewTransport("", "https://example.social", time.Second, nil)
	require.NoError(t, err)
	require.Equal(t, "sse", tr.Name())
	require.Equal(t, "https://example.social", target)

	_, _, err = NewTransport("", "", time.Second, nil)
	require.Error(t, err)
}
