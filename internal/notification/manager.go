// SPDX-License-Identifier: MIT

package notification

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	xlog "github.com/netlabio/netlabd/internal/log"
)

var (
	notificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netlabd_notifications_emitted_total",
		Help: "Number of notifications emitted, by action",
	}, []string{"action"})

	subscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netlabd_notification_subscribers_dropped_total",
		Help: "Number of subscribers dropped because their queue overflowed",
	})

	subscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netlabd_notification_subscribers",
		Help: "Current number of notification subscribers",
	})
)

// Manager fans notifications out to subscribers. Controller-scoped
// subscribers receive every event; project-scoped subscribers only events
// of their project.
type Manager struct {
	mu        sync.Mutex
	queueSize int
	global    map[*Queue]struct{}
	projects  map[string]map[*Queue]struct{}
}

// NewManager returns a Manager handing out queues of the given size.
func NewManager(queueSize int) *Manager {
	return &Manager{
		queueSize: queueSize,
		global:    make(map[*Queue]struct{}),
		projects:  make(map[string]map[*Queue]struct{}),
	}
}

// Subscribe registers a controller-scoped subscriber.
func (m *Manager) Subscribe() *Queue {
	q := newQueue(m.queueSize)
	m.mu.Lock()
	m.global[q] = struct{}{}
	m.mu.Unlock()
	subscribersActive.Inc()
	return q
}

// SubscribeProject registers a subscriber for a single project's events.
func (m *Manager) SubscribeProject(projectID string) *Queue {
	q := newQueue(m.queueSize)
	m.mu.Lock()
	subs, ok := m.projects[projectID]
	if !ok {
		subs = make(map[*Queue]struct{})
		m.projects[projectID] = subs
	}
	subs[q] = struct{}{}
	m.mu.Unlock()
	subscribersActive.Inc()
	return q
}

// Unsubscribe removes q from all scopes and closes it.
func (m *Manager) Unsubscribe(q *Queue) {
	m.mu.Lock()
	removed := false
	if _, ok := m.global[q]; ok {
		delete(m.global, q)
		removed = true
	}
	for id, subs := range m.projects {
		if _, ok := subs[q]; ok {
			delete(subs, q)
			removed = true
			if len(subs) == 0 {
				delete(m.projects, id)
			}
		}
	}
	m.mu.Unlock()
	if removed {
		subscribersActive.Dec()
	}
	q.close()
}

// HasProjectSubscribers reports whether anyone is listening to the
// project's stream. Projects with auto_close enabled shut down when their
// last listener disconnects.
func (m *Manager) HasProjectSubscribers(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.projects[projectID]) > 0
}

// Emit broadcasts a controller-scoped event to all global subscribers.
func (m *Manager) Emit(action string, event any) {
	notificationsEmitted.WithLabelValues(action).Inc()
	m.mu.Lock()
	targets := make([]*Queue, 0, len(m.global))
	for q := range m.global {
		targets = append(targets, q)
	}
	m.mu.Unlock()
	m.deliver(targets, Message{Action: action, Event: event})
}

// EmitProject delivers a project event to the project's subscribers and to
// all global subscribers.
func (m *Manager) EmitProject(projectID, action string, event any) {
	notificationsEmitted.WithLabelValues(action).Inc()
	m.mu.Lock()
	targets := make([]*Queue, 0, len(m.global)+len(m.projects[projectID]))
	for q := range m.global {
		targets = append(targets, q)
	}
	for q := range m.projects[projectID] {
		targets = append(targets, q)
	}
	m.mu.Unlock()
	m.deliver(targets, Message{Action: action, Event: event})
}

func (m *Manager) deliver(targets []*Queue, msg Message) {
	logger := xlog.WithComponent("notification")
	for _, q := range targets {
		if !q.push(msg) {
			subscribersDropped.Inc()
			logger.Warn().
				Str("action", msg.Action).
				Msg("dropping slow notification subscriber")
			m.Unsubscribe(q)
		}
	}
}
