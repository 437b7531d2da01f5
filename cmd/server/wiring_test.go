package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppStart_StopWaitsForSweepBeforeClosing(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	started := make(chan struct{})
	a := &app{
		sweep: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			// a check still in flight when shutdown begins
			time.Sleep(20 * time.Millisecond)
			record("sweep returned")
			return ctx.Err()
		},
		closers: []func() error{
			func() error { record("store closed"); return nil },
		},
	}

	stop := a.start(context.Background())
	<-started
	stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"sweep returned", "store closed"}, events)
}

func TestAppStart_WithoutSweep(t *testing.T) {
	closed := false
	a := &app{closers: []func() error{func() error { closed = true; return nil }}}

	stop := a.start(context.Background())
	stop()
	assert.True(t, closed)
}
