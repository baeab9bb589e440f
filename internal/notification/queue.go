// SPDX-License-Identifier: MIT

// Package notification implements the controller event stream: fan-out of
// entity lifecycle events to subscribers with keepalive pings.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ErrOverflow is returned by Receive once a subscriber fell too far behind
// and its queue was closed by the emitter.
var ErrOverflow = errors.New("notification queue overflow")

// ErrClosed is returned by Receive after Unsubscribe.
var ErrClosed = errors.New("notification queue closed")

// PingAction is the action name of keepalive messages.
const PingAction = "ping"

// Message is one notification: an action like "node.created" and the
// JSON-renderable event payload.
type Message struct {
	Action string
	Event  any
}

// Queue is a bounded subscriber queue handed out by the Manager. Emitters
// never block on it: when the buffer is full the queue is closed and the
// subscriber must reconnect.
type Queue struct {
	ch       chan Message
	done     chan struct{}
	overflow chan struct{}
	first    bool

	// Emitters race on overflow and Unsubscribe races close; both
	// channels must only ever be closed once.
	overflowOnce sync.Once
	doneOnce     sync.Once
}

func newQueue(size int) *Queue {
	return &Queue{
		ch:       make(chan Message, size),
		done:     make(chan struct{}),
		overflow: make(chan struct{}),
		first:    true,
	}
}

// Receive returns the next notification. The very first call returns a
// ping immediately so clients get data as soon as they connect; afterwards
// a ping with server usage statistics is returned whenever timeout expires
// with no pending message.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	if q.first {
		q.first = false
		return pingMessage(), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.ch:
		return msg, nil
	case <-timer.C:
		return pingMessage(), nil
	case <-q.overflow:
		return Message{}, ErrOverflow
	case <-q.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// ReceiveJSON returns the next notification rendered as a JSON object of
// the form {"action": ..., "event": ...} with stable key order.
func (q *Queue) ReceiveJSON(ctx context.Context, timeout time.Duration) ([]byte, error) {
	msg, err := q.Receive(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"action": msg.Action,
		"event":  msg.Event,
	})
}

// push delivers msg without blocking. Returns false when the queue
// overflowed and was closed.
func (q *Queue) push(msg Message) bool {
	select {
	case <-q.done:
		return false
	case <-q.overflow:
		return false
	default:
	}
	select {
	case q.ch <- msg:
		return true
	default:
		q.overflowOnce.Do(func() { close(q.overflow) })
		return false
	}
}

func (q *Queue) close() {
	q.doneOnce.Do(func() { close(q.done) })
}

// pingMessage reports server load so idle clients can display health.
// The first cpu.Percent call returns 0, matching a non-blocking sample.
func pingMessage() Message {
	event := map[string]any{
		"cpu_usage_percent":    0.0,
		"memory_usage_percent": 0.0,
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		event["cpu_usage_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		event["memory_usage_percent"] = vm.UsedPercent
	}
	return Message{Action: PingAction, Event: event}
}
