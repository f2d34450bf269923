package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/notify"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// StatusChange is delivered to internal Subscribers whenever a node's
// derived connectivity changes. A change in the health summary alone
// (with connectivity unchanged) is not published.
type StatusChange struct {
	NodeName string
	Previous model.AgentConnectivityStatus
	Current  model.AgentConnectivityStatus
	Summary  model.NodeHealthSummary
}

// Subscriber receives StatusChange events; the dispatcher (C6) subscribes
// to detect a node going Offline/Unreachable mid-task (NodeOfflineDuringTask).
type Subscriber chan StatusChange

// Monitor is the NodeHealthMonitor (C3).
type Monitor struct {
	cfg    config.Config
	notify notify.Notifier
	log    zerolog.Logger

	mu    sync.Mutex
	nodes map[string]*model.CachedNodeState

	subsMu sync.RWMutex
	subs   map[Subscriber]bool

	stopCh chan struct{}
}

// NewMonitor constructs a Monitor. notifier may be nil.
func NewMonitor(cfg config.Config, notifier notify.Notifier) *Monitor {
	return &Monitor{
		cfg:    cfg,
		notify: notifier,
		log:    log.WithComponent("health"),
		nodes:  make(map[string]*model.CachedNodeState),
		subs:   make(map[Subscriber]bool),
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic sweep loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the sweep loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	interval := m.cfg.HeartbeatInterval()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", interval).Msg("health monitor started")

	for {
		select {
		case <-ticker.C:
			timer := metrics.NewTimer()
			m.sweep()
			timer.ObserveDuration(metrics.HealthSweepDuration)
		case <-m.stopCh:
			m.log.Info().Msg("health monitor stopped")
			return
		}
	}
}

// OnHeartbeat implements connection.HealthSink.
func (m *Monitor) OnHeartbeat(nodeName string, hb transport.Heartbeat) {
	m.mu.Lock()
	state, ok := m.nodes[nodeName]
	if !ok {
		state = &model.CachedNodeState{NodeName: nodeName}
		m.nodes[nodeName] = state
	}
	prev := state.ConnectivityStatus
	state.LastHeartbeatTime = hb.Timestamp
	state.CPUUsagePercent = hb.CPUUsagePercent
	state.RAMUsagePercent = hb.RAMUsagePercent
	state.LastStateUpdateTime = time.Now().UTC()
	state.ConnectivityStatus = model.ConnectivityOnline
	current := state.ConnectivityStatus
	summary := summaryFor(nodeName, state, hb)
	m.mu.Unlock()

	if prev != current {
		m.publish(nodeName, prev, current, summary)
	}
}

// sweep recomputes connectivity for every known node against the
// thresholds in §4.3.
func (m *Monitor) sweep() {
	online := m.cfg.HeartbeatInterval() * 3 / 2
	unreachable := m.cfg.HeartbeatInterval() * 3
	now := time.Now().UTC()

	type change struct {
		nodeName string
		prev     model.AgentConnectivityStatus
		current  model.AgentConnectivityStatus
		summary  model.NodeHealthSummary
	}
	var changes []change

	m.mu.Lock()
	for name, state := range m.nodes {
		prev := state.ConnectivityStatus
		var current model.AgentConnectivityStatus
		switch {
		case state.LastHeartbeatTime.IsZero():
			current = model.ConnectivityNeverConnected
		case now.Sub(state.LastHeartbeatTime) <= online:
			current = model.ConnectivityOnline
		case now.Sub(state.LastHeartbeatTime) <= unreachable:
			current = model.ConnectivityUnreachable
		default:
			current = model.ConnectivityOffline
		}
		state.ConnectivityStatus = current
		if current != prev {
			changes = append(changes, change{
				nodeName: name,
				prev:     prev,
				current:  current,
				summary: model.NodeHealthSummary{
					NodeName:           name,
					ConnectivityStatus: current,
					LastHeartbeatTime:  state.LastHeartbeatTime,
					CPUUsagePercent:    state.CPUUsagePercent,
					RAMUsagePercent:    state.RAMUsagePercent,
				},
			})
		}
	}
	m.mu.Unlock()

	byStatus := map[model.AgentConnectivityStatus]int{}
	m.mu.Lock()
	for _, state := range m.nodes {
		byStatus[state.ConnectivityStatus]++
	}
	m.mu.Unlock()
	for status, count := range byStatus {
		metrics.AgentsByConnectivity.WithLabelValues(string(status)).Set(float64(count))
	}

	for _, c := range changes {
		m.publish(c.nodeName, c.prev, c.current, c.summary)
	}
}

func summaryFor(nodeName string, state *model.CachedNodeState, hb transport.Heartbeat) model.NodeHealthSummary {
	return model.NodeHealthSummary{
		NodeName:           nodeName,
		ConnectivityStatus: state.ConnectivityStatus,
		LastHeartbeatTime:  state.LastHeartbeatTime,
		ActiveTasks:        hb.ActiveTasks,
		AvailableTaskSlots: hb.AvailableTaskSlots,
		CPUUsagePercent:    state.CPUUsagePercent,
		RAMUsagePercent:    state.RAMUsagePercent,
	}
}

func (m *Monitor) publish(nodeName string, prev, current model.AgentConnectivityStatus, summary model.NodeHealthSummary) {
	m.log.Info().
		Str("node_name", nodeName).
		Str("previous", string(prev)).
		Str("current", string(current)).
		Msg("node connectivity changed")

	sc := StatusChange{NodeName: nodeName, Previous: prev, Current: current, Summary: summary}

	m.subsMu.RLock()
	for sub := range m.subs {
		select {
		case sub <- sc:
		default:
		}
	}
	m.subsMu.RUnlock()

	if m.notify != nil {
		m.notify.Publish(&notify.Event{
			Type: notify.EventNodeStatusChanged,
			Payload: notify.NodeStatusChangedPayload{
				NodeName:           nodeName,
				ConnectivityStatus: current,
			},
		})
	}
}

// Subscribe registers a new internal subscriber for connectivity changes.
func (m *Monitor) Subscribe() Subscriber {
	sub := make(Subscriber, 32)
	m.subsMu.Lock()
	m.subs[sub] = true
	m.subsMu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber.
func (m *Monitor) Unsubscribe(sub Subscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[sub]; ok {
		delete(m.subs, sub)
		close(sub)
	}
}

// Status returns the last-known CachedNodeState for nodeName.
func (m *Monitor) Status(nodeName string) (model.CachedNodeState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.nodes[nodeName]
	if !ok {
		return model.CachedNodeState{}, false
	}
	return *state, true
}
