package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "Aegis/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func hook(r *recorder, name string, startErr error) Hook {
	return Hook{
		OnStart: func() error {
			r.add("start " + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			r.add("stop " + name)
			return nil
		},
	}
}

func TestRunContextStartsInOrderAndStopsInReverse(t *testing.T) {
	rec := &recorder{}
	app := New(applogger.Nop(), time.Second).
		Add("queue", hook(rec, "queue", nil)).
		Add("http", hook(rec, "http", nil)).
		OnShutdown("db", func() error { rec.add("close db"); return nil }).
		OnShutdown("redis", func() error { rec.add("close redis"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	require.Eventually(t, func() bool { return len(rec.list()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{
		"start queue", "start http",
		"stop http", "stop queue",
		"close redis", "close db",
	}, rec.list())
}

func TestRunContextUnwindsOnStartFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	app := New(applogger.Nop(), time.Second).
		Add("queue", hook(rec, "queue", nil)).
		Add("consumer", hook(rec, "consumer", boom)).
		Add("http", hook(rec, "http", nil))

	err := app.RunContext(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start queue", "start consumer", "stop queue"}, rec.list())
}
