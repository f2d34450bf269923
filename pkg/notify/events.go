package notify

import (
	"sync"
	"time"

	"github.com/cuemby/sitekeeper/pkg/model"
)

// EventType identifies the kind of GUI-facing event in Event.
type EventType string

const (
	EventMasterActionStarted   EventType = "master_action.started"
	EventMasterActionProgress  EventType = "master_action.progress"
	EventMasterActionCompleted EventType = "master_action.completed"
	EventStageStarted          EventType = "stage.started"
	EventStageCompleted        EventType = "stage.completed"
	EventNodeActionProgress    EventType = "node_action.progress"
	EventNodeStatusChanged     EventType = "node_status.changed"
	EventSlaveTaskLog          EventType = "slave_task.log"
)

// Event is one GUI-facing notification, carrying the event's identifying
// scope (MasterActionId, NodeName where applicable) and a Payload
// specific to Type. Payload is one of the Master*Payload/Stage*Payload/
// NodeAction*Payload/NodeStatus*Payload/SlaveTaskLog*Payload types below.
type Event struct {
	Type           EventType
	Timestamp      time.Time
	MasterActionID string
	Payload        any
}

// MasterActionStartedPayload accompanies EventMasterActionStarted.
type MasterActionStartedPayload struct {
	Type        model.OperationType
	Name        string
	InitiatedBy string
}

// MasterActionProgressPayload accompanies EventMasterActionProgress.
type MasterActionProgressPayload struct {
	OverallProgressPercent int
	CurrentStageName       string
}

// MasterActionCompletedPayload accompanies EventMasterActionCompleted.
type MasterActionCompletedPayload struct {
	OverallStatus  model.OverallStatus
	FailureMessage string
}

// StageStartedPayload accompanies EventStageStarted.
type StageStartedPayload struct {
	StageIndex int
	StageName  string
}

// StageCompletedPayload accompanies EventStageCompleted.
type StageCompletedPayload struct {
	StageIndex int
	StageName  string
	IsSuccess  bool
}

// NodeActionProgressPayload accompanies EventNodeActionProgress.
type NodeActionProgressPayload struct {
	NodeActionID    string
	ProgressPercent int
	StatusMessage   string
}

// NodeStatusChangedPayload accompanies EventNodeStatusChanged. It carries
// no MasterActionId since connectivity is tracked independently of any
// in-flight action.
type NodeStatusChangedPayload struct {
	NodeName           string
	ConnectivityStatus model.AgentConnectivityStatus
}

// SlaveTaskLogPayload accompanies EventSlaveTaskLog, forwarding one
// TaskLogEntry verbatim to subscribers.
type SlaveTaskLogPayload struct {
	NodeName string
	TaskID   string
	Level    string
	Message  string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Notifier is the GUI-facing fan-out contract (C10): the core only ever
// publishes through this interface. Ordering of events sharing a
// MasterActionId is preserved by Broker's single dispatch goroutine; the
// interface itself makes no ordering promise across MasterActions.
type Notifier interface {
	Publish(event *Event)
}

// Broker is the in-process Notifier implementation: an in-memory,
// non-blocking pub/sub bus. It is not the GUI adapter itself — an
// external HTTP/WebSocket layer subscribes to it and forwards events to
// connected UI clients.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. A single dispatch
// goroutine (run) drains eventCh, so events sharing a MasterActionId are
// delivered to every subscriber in publish order.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; drop rather than block the broker.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
