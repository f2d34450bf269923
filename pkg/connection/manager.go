package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/notify"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// ErrNotFound is returned when no agent is registered under the given
// node name.
var ErrNotFound = errors.New("connection: node not registered")

// HealthSink receives every heartbeat Manager processes, forwarding them
// to the NodeHealthMonitor (C3) per §4.2's "processHeartbeat forwards to
// C3". Implemented by pkg/health.Monitor.
type HealthSink interface {
	OnHeartbeat(nodeName string, hb transport.Heartbeat)
}

// FrameRouter receives every inbound frame that is not a
// SlaveRegistration or Heartbeat, for routing to the dispatcher via the
// ActionIdTranslator.
type FrameRouter interface {
	RouteFrame(nodeName string, f *transport.Frame)
}

type agentEntry struct {
	mu      sync.Mutex
	info    model.ConnectedAgentInfo
	channel *transport.Channel
	breaker *gobreaker.CircuitBreaker
}

// Manager is the AgentConnectionManager (C2).
type Manager struct {
	health HealthSink
	router FrameRouter
	notify notify.Notifier
	log    zerolog.Logger

	mu     sync.RWMutex
	agents map[string]*agentEntry // by nodeName
}

// NewManager constructs a Manager. health and router are consulted for
// every inbound frame; notifier may be nil.
func NewManager(health HealthSink, router FrameRouter, notifier notify.Notifier) *Manager {
	return &Manager{
		health: health,
		router: router,
		notify: notifier,
		log:    log.WithComponent("connection"),
		agents: make(map[string]*agentEntry),
	}
}

func newBreaker(nodeName string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        nodeName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// HandleFrame implements transport.Handler. SlaveRegistration completes
// onAgentConnected; Heartbeat updates liveness and forwards to C3;
// everything else is handed to the FrameRouter.
func (m *Manager) HandleFrame(ch *transport.Channel, f *transport.Frame) {
	switch f.Kind {
	case transport.KindSlaveRegistration:
		if f.SlaveRegistration == nil {
			return
		}
		if _, err := m.onAgentConnected(ch, *f.SlaveRegistration); err != nil {
			m.log.Error().Err(err).Str("channel_handle", ch.Handle).Msg("agent registration failed")
		}
	case transport.KindHeartbeat:
		if f.Heartbeat == nil {
			return
		}
		m.processHeartbeat(*f.Heartbeat)
	default:
		if ch.NodeName == "" {
			m.log.Warn().Str("kind", string(f.Kind)).Msg("frame from unregistered channel dropped")
			return
		}
		m.router.RouteFrame(ch.NodeName, f)
	}
}

// HandleDisconnect implements transport.Handler.
func (m *Manager) HandleDisconnect(ch *transport.Channel) {
	m.onAgentDisconnected(ch.Handle, ch.NodeName)
}

// onAgentConnected implements §4.2's onAgentConnected operation: a prior
// entry for the same nodeName is superseded, and its old channel is sent
// a best-effort empty CancelTaskRequest frame. The old channel is not
// closed here; it stays open until its own receive loop ends.
func (m *Manager) onAgentConnected(ch *transport.Channel, reg transport.SlaveRegistration) (model.ConnectedAgentInfo, error) {
	nodeName := reg.AgentName
	if nodeName == "" {
		return model.ConnectedAgentInfo{}, fmt.Errorf("connection: registration missing agentName")
	}
	ch.NodeName = nodeName

	now := time.Now().UTC()
	info := model.ConnectedAgentInfo{
		NodeName:           nodeName,
		ChannelHandle:      ch.Handle,
		AgentVersion:       reg.AgentVersion,
		LastHeartbeat:      now,
		LastKnownStatus:    model.ConnectivityOnline,
		ConnectedSince:     now,
		OSDescription:      reg.OSDescription,
		FrameworkVersion:   reg.FrameworkDescription,
		MaxConcurrentTasks: reg.MaxConcurrentTasks,
		Metadata:           map[string]string{"hostname": reg.Hostname},
	}

	m.mu.Lock()
	prior, existed := m.agents[nodeName]
	entry := &agentEntry{info: info, channel: ch, breaker: newBreaker(nodeName)}
	m.agents[nodeName] = entry
	m.mu.Unlock()

	if existed {
		prior.mu.Lock()
		staleChannel := prior.channel
		prior.mu.Unlock()
		if staleChannel != nil && staleChannel.Handle != ch.Handle {
			staleChannel.Send(&transport.Frame{Kind: transport.KindCancelTaskRequest}) // best-effort notice; ignored if already gone
		}
		m.log.Info().Str("node_name", nodeName).Msg("agent reconnected, superseding prior channel")
	}

	metrics.ConnectedAgents.Set(float64(m.count()))
	m.log.Info().Str("node_name", nodeName).Str("channel_handle", ch.Handle).Msg("agent connected")
	return info, nil
}

// onAgentDisconnected removes the entry only if channelHandle still
// matches, guarding against a replacing-entry race per §4.2.
func (m *Manager) onAgentDisconnected(channelHandle, nodeName string) {
	if nodeName == "" {
		return
	}

	m.mu.Lock()
	entry, ok := m.agents[nodeName]
	if !ok {
		m.mu.Unlock()
		return
	}
	entry.mu.Lock()
	matches := entry.channel != nil && entry.channel.Handle == channelHandle
	if matches {
		delete(m.agents, nodeName)
	}
	entry.mu.Unlock()
	m.mu.Unlock()

	if !matches {
		return
	}

	metrics.ConnectedAgents.Set(float64(m.count()))
	m.log.Info().Str("node_name", nodeName).Str("channel_handle", channelHandle).Msg("agent disconnected")
	if m.notify != nil {
		m.notify.Publish(&notify.Event{
			Type: notify.EventNodeStatusChanged,
			Payload: notify.NodeStatusChangedPayload{
				NodeName:           nodeName,
				ConnectivityStatus: model.ConnectivityOffline,
			},
		})
	}
}

func (m *Manager) processHeartbeat(hb transport.Heartbeat) {
	m.mu.RLock()
	entry, ok := m.agents[hb.NodeName]
	m.mu.RUnlock()
	if ok {
		entry.mu.Lock()
		entry.info.LastHeartbeat = hb.Timestamp
		entry.info.LastKnownStatus = model.ConnectivityOnline
		entry.mu.Unlock()
	}

	metrics.HeartbeatsReceivedTotal.Inc()
	if m.health != nil {
		m.health.OnHeartbeat(hb.NodeName, hb)
	}
}

// GetAllConnectedAgents returns a consistent snapshot of every
// currently-connected agent.
func (m *Manager) GetAllConnectedAgents() []model.ConnectedAgentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ConnectedAgentInfo, 0, len(m.agents))
	for _, e := range m.agents {
		e.mu.Lock()
		out = append(out, e.info)
		e.mu.Unlock()
	}
	return out
}

// GetAgent returns the connected agent's snapshot, if any.
func (m *Manager) GetAgent(nodeName string) (model.ConnectedAgentInfo, bool) {
	m.mu.RLock()
	entry, ok := m.agents[nodeName]
	m.mu.RUnlock()
	if !ok {
		return model.ConnectedAgentInfo{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.info, true
}

// SendToNode sends f to nodeName's current channel through its circuit
// breaker. Returns ErrNotFound if the node has no registered entry (it
// never connected, or it has disconnected since, which removes the
// entry), transport.ErrDisconnected if the registered entry's channel is
// missing or already closed, or the
// breaker's own error (gobreaker.ErrOpenState/ErrTooManyRequests) once
// the node has failed sends repeatedly.
func (m *Manager) SendToNode(nodeName string, f *transport.Frame) error {
	m.mu.RLock()
	entry, ok := m.agents[nodeName]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	entry.mu.Lock()
	ch := entry.channel
	breaker := entry.breaker
	entry.mu.Unlock()

	if ch == nil || ch.Closed() {
		return transport.ErrDisconnected
	}

	_, err := breaker.Execute(func() (any, error) {
		return nil, ch.Send(f)
	})
	if err != nil {
		metrics.TransportSendFailuresTotal.WithLabelValues(string(f.Kind)).Inc()
		return err
	}
	metrics.TransportMessagesTotal.WithLabelValues("outbound", string(f.Kind)).Inc()
	return nil
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}
