package idtranslator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/transport"
)

// ContextRouter is the live, in-memory recipient for frames belonging to
// an active NodeAction. Implemented by pkg/dispatcher.
type ContextRouter interface {
	RouteToNodeAction(nodeActionID string, f *transport.Frame)
}

// JournalSink is the subset of pkg/journal.Journal the Translator uses to
// route messages that arrive after a mapping has entered its grace
// period — the owning MasterAction is finalized, but the slave hadn't
// caught up yet.
type JournalSink interface {
	AppendStageLog(masterActionID string, stageIndex int, stageName string, source string, entry model.LogEntry) error
	ResolveNodeAction(nodeActionID string) (masterActionID string, stageIndex int, stageName string, ok bool)
}

// Translator is the ActionIdTranslator (C5).
type Translator struct {
	router  ContextRouter
	journal JournalSink
	grace   time.Duration
	log     zerolog.Logger

	mu       sync.RWMutex
	mappings map[string]*model.ActionIdMapping

	stopCh chan struct{}
}

// New constructs a Translator. router may be set later via SetRouter if
// the dispatcher isn't constructed yet (the dispatcher is built on the
// connection.Manager, which already holds the Translator, so router is
// wired after both exist).
func New(journalSink JournalSink, grace time.Duration) *Translator {
	return &Translator{
		journal:  journalSink,
		grace:    grace,
		log:      log.WithComponent("idtranslator"),
		mappings: make(map[string]*model.ActionIdMapping),
		stopCh:   make(chan struct{}),
	}
}

// SetRouter wires the live dispatcher context router.
func (t *Translator) SetRouter(router ContextRouter) {
	t.mu.Lock()
	t.router = router
	t.mu.Unlock()
}

// RegisterMapping registers nodeActionID as belonging to masterActionID,
// called when a NodeAction is created.
func (t *Translator) RegisterMapping(nodeActionID, masterActionID string) {
	t.mu.Lock()
	t.mappings[nodeActionID] = &model.ActionIdMapping{
		NodeActionID:   nodeActionID,
		MasterActionID: masterActionID,
		RegisteredAt:   time.Now().UTC(),
	}
	t.mu.Unlock()
}

// UnregisterMapping marks nodeActionID as unregistered, starting its
// grace period rather than deleting it outright.
func (t *Translator) UnregisterMapping(nodeActionID string) {
	t.mu.Lock()
	if m, ok := t.mappings[nodeActionID]; ok {
		m.Unregistered = time.Now().UTC()
	}
	t.mu.Unlock()
}

// RouteFrame implements connection.FrameRouter.
func (t *Translator) RouteFrame(nodeName string, f *transport.Frame) {
	nodeActionID := extractNodeActionID(f)
	if nodeActionID == "" {
		t.log.Warn().Str("kind", string(f.Kind)).Str("node_name", nodeName).Msg("frame without nodeActionId dropped")
		return
	}

	t.mu.RLock()
	mapping, ok := t.mappings[nodeActionID]
	var router ContextRouter
	if ok {
		router = t.router
	}
	t.mu.RUnlock()

	if !ok {
		t.log.Warn().Str("node_action_id", nodeActionID).Str("kind", string(f.Kind)).Msg("no mapping for nodeActionId")
		return
	}

	if mapping.Unregistered.IsZero() {
		if router != nil {
			router.RouteToNodeAction(nodeActionID, f)
		}
		return
	}

	t.routeToJournal(nodeName, mapping, f)
}

// routeToJournal handles a late message for an already-finalized
// MasterAction by appending it straight to the archived stage log.
func (t *Translator) routeToJournal(nodeName string, mapping *model.ActionIdMapping, f *transport.Frame) {
	if t.journal == nil {
		return
	}
	masterActionID, stageIndex, stageName, ok := t.journal.ResolveNodeAction(mapping.NodeActionID)
	if !ok {
		masterActionID, stageIndex, stageName = mapping.MasterActionID, 0, ""
	}

	entry, source := lateFrameToLogEntry(nodeName, f)
	if entry == nil {
		return
	}
	if err := t.journal.AppendStageLog(masterActionID, stageIndex, stageName, source, *entry); err != nil {
		t.log.Error().Err(err).Str("master_action_id", masterActionID).Msg("failed to journal late slave message")
	}
}

func extractNodeActionID(f *transport.Frame) string {
	switch f.Kind {
	case transport.KindTaskReadinessReport:
		if f.TaskReadinessReport != nil {
			return f.TaskReadinessReport.NodeActionID
		}
	case transport.KindTaskProgressUpdate:
		if f.TaskProgressUpdate != nil {
			return f.TaskProgressUpdate.NodeActionID
		}
	case transport.KindTaskLogEntry:
		if f.TaskLogEntry != nil {
			return f.TaskLogEntry.NodeActionID
		}
	case transport.KindLogFlushConfirmation:
		if f.LogFlushConfirmation != nil {
			return f.LogFlushConfirmation.NodeActionID
		}
	}
	return ""
}

func lateFrameToLogEntry(nodeName string, f *transport.Frame) (*model.LogEntry, string) {
	switch f.Kind {
	case transport.KindTaskLogEntry:
		e := f.TaskLogEntry
		return &model.LogEntry{Time: e.TimestampUTC, Level: e.Level, Message: e.Message}, nodeName
	case transport.KindTaskProgressUpdate:
		e := f.TaskProgressUpdate
		return &model.LogEntry{
			Time:    e.TimestampUTC,
			Level:   "info",
			Message: "late progress update after finalize: status=" + e.Status + " message=" + e.Message,
		}, nodeName
	default:
		return nil, ""
	}
}

// Start begins the grace-period sweep loop.
func (t *Translator) Start() {
	go t.run()
}

// Stop stops the sweep loop.
func (t *Translator) Stop() {
	close(t.stopCh)
}

func (t *Translator) run() {
	interval := t.grace / 4
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Translator) sweep() {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, m := range t.mappings {
		if m.Unregistered.IsZero() {
			continue
		}
		if now.Sub(m.Unregistered) > t.grace {
			delete(t.mappings, id)
		}
	}
}
