// SPDX-License-Identifier: MIT

package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveFirstMessageIsPing(t *testing.T) {
	m := NewManager(4)
	q := m.Subscribe()
	defer m.Unsubscribe(q)

	msg, err := q.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, PingAction, msg.Action)

	event, ok := msg.Event.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, event, "cpu_usage_percent")
	assert.Contains(t, event, "memory_usage_percent")
}

func TestReceiveTimeoutReturnsPing(t *testing.T) {
	m := NewManager(4)
	q := m.Subscribe()
	defer m.Unsubscribe(q)

	// Drain the connect ping first.
	_, err := q.Receive(context.Background(), time.Second)
	require.NoError(t, err)

	msg, err := q.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, PingAction, msg.Action)
}

func TestReceiveJSONShape(t *testing.T) {
	m := NewManager(4)
	q := m.Subscribe()
	defer m.Unsubscribe(q)

	_, err := q.ReceiveJSON(context.Background(), time.Second)
	require.NoError(t, err)

	m.Emit("project.created", map[string]any{"project_id": "p1"})
	data, err := q.ReceiveJSON(context.Background(), time.Second)
	require.NoError(t, err)

	var decoded struct {
		Action string         `json:"action"`
		Event  map[string]any `json:"event"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "project.created", decoded.Action)
	assert.Equal(t, "p1", decoded.Event["project_id"])
}

func TestEmitProjectScoping(t *testing.T) {
	m := NewManager(4)
	global := m.Subscribe()
	p1 := m.SubscribeProject("p1")
	p2 := m.SubscribeProject("p2")
	defer m.Unsubscribe(global)
	defer m.Unsubscribe(p1)
	defer m.Unsubscribe(p2)

	for _, q := range []*Queue{global, p1, p2} {
		_, err := q.Receive(context.Background(), time.Second)
		require.NoError(t, err)
	}

	m.EmitProject("p1", "node.created", "n1")

	msg, err := global.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "node.created", msg.Action)

	msg, err = p1.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "node.created", msg.Action)

	// The other project's subscriber only sees a keepalive.
	msg, err = p2.Receive(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, PingAction, msg.Action)
}

func TestQueueOverflow(t *testing.T) {
	q := newQueue(1)
	assert.True(t, q.push(Message{Action: "node.updated", Event: 1}))
	assert.False(t, q.push(Message{Action: "node.updated", Event: 2}))
	assert.False(t, q.push(Message{Action: "node.updated", Event: 3}))

	_, err := q.Receive(context.Background(), time.Second) // connect ping
	require.NoError(t, err)
	<-q.ch // drain the message delivered before the overflow
	_, err = q.Receive(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestConcurrentOverflowClosesQueueOnce(t *testing.T) {
	q := newQueue(1)
	require.True(t, q.push(Message{Action: "node.updated", Event: 1}))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.False(t, q.push(Message{Action: "node.updated", Event: 2}))
		}()
	}
	close(start)
	wg.Wait()

	_, err := q.Receive(context.Background(), time.Second) // connect ping
	require.NoError(t, err)
	<-q.ch // drain the message delivered before the overflow
	_, err = q.Receive(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestConcurrentEmitToFullSubscriber(t *testing.T) {
	m := NewManager(1)
	m.SubscribeProject("p1")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				m.EmitProject("p1", "link.updated", map[string]any{"n": j})
			}
		}()
	}
	close(start)
	wg.Wait()

	// The subscriber overflowed and was dropped; emitters never blocked
	// or crashed.
	assert.False(t, m.HasProjectSubscribers("p1"))
}

func TestConcurrentUnsubscribeIsIdempotent(t *testing.T) {
	m := NewManager(1)
	q := m.Subscribe()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			m.Unsubscribe(q)
		}()
	}
	close(start)
	wg.Wait()

	_, err := q.Receive(context.Background(), time.Second) // connect ping
	require.NoError(t, err)
	_, err = q.Receive(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	m := NewManager(1)
	m.SubscribeProject("p1")

	m.EmitProject("p1", "node.updated", 1)
	m.EmitProject("p1", "node.updated", 2) // overflows the size-1 queue

	assert.False(t, m.HasProjectSubscribers("p1"))
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	m := NewManager(4)
	q := m.Subscribe()
	_, err := q.Receive(context.Background(), time.Second)
	require.NoError(t, err)

	m.Unsubscribe(q)
	_, err = q.Receive(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrClosed)

	// Unsubscribing twice is harmless.
	m.Unsubscribe(q)
}

func TestHasProjectSubscribers(t *testing.T) {
	m := NewManager(4)
	assert.False(t, m.HasProjectSubscribers("p1"))

	q := m.SubscribeProject("p1")
	assert.True(t, m.HasProjectSubscribers("p1"))
	assert.False(t, m.HasProjectSubscribers("p2"))

	m.Unsubscribe(q)
	assert.False(t, m.HasProjectSubscribers("p1"))
}

func TestReceiveHonorsContext(t *testing.T) {
	m := NewManager(4)
	q := m.Subscribe()
	defer m.Unsubscribe(q)
	_, err := q.Receive(context.Background(), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Receive(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
