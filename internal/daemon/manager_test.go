// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{APIHandler: okHandler()})
	require.ErrorContains(t, err, "listen address")

	_, err = NewManager(Options{ListenAddr: ":0"})
	require.ErrorContains(t, err, "API handler")

	m, err := NewManager(Options{ListenAddr: ":0", APIHandler: okHandler()})
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestStartRunsHooksInReverseOrderOnShutdown(t *testing.T) {
	m, err := NewManager(Options{ListenAddr: "127.0.0.1:0", APIHandler: okHandler()})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	hook := func(name string) ShutdownHook {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	m.RegisterShutdownHook("first", hook("first"))
	m.RegisterShutdownHook("second", hook("second"))
	m.RegisterShutdownHook("third", hook("third"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	// Give the listeners a moment to come up, then signal shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStartTwiceFails(t *testing.T) {
	m, err := NewManager(Options{ListenAddr: "127.0.0.1:0", APIHandler: okHandler()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.ErrorContains(t, m.Start(ctx), "already started")

	cancel()
	require.NoError(t, <-done)
}

func TestShutdownBeforeStartFails(t *testing.T) {
	m, err := NewManager(Options{ListenAddr: "127.0.0.1:0", APIHandler: okHandler()})
	require.NoError(t, err)
	require.ErrorContains(t, m.Shutdown(context.Background()), "not started")
}
