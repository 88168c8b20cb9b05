package stream

import (
	"context"
	"sync"

	"github.com/greater-social/greater/internal/core"
)

// Listen connects s and returns its events as a channel. The channel is
// closed once the stream stops for good; cancelling ctx disconnects.
// Callbacks already set on s are replaced.
func Listen(ctx context.Context, transport Transport, token TokenFunc, url string, opts Options) (<-chan core.StreamEvent, *Stream, error) {
	events := make(chan core.StreamEvent, 64)
	closed := make(chan struct{})
	var once sync.Once

	onClose := opts.OnClose
	opts.OnMessage = func(ev core.StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	opts.OnClose = func() {
		once.Do(func() {
			close(closed)
			close(events)
			if onClose != nil {
				onClose()
			}
		})
	}

	s := New(transport, token, opts)
	if err := s.Connect(ctx, url); err != nil {
		return nil, nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Disconnect()
		case <-closed:
		}
	}()
	return events, s, nil
}
