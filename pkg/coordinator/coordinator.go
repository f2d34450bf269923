package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/workflow"
)

// ErrConflict is returned by SubmitAction when the conflict policy for
// the requested OperationType is already at capacity.
var ErrConflict = errors.New("coordinator: conflicting master action already active")

// ErrUnknownOperation is returned when no ActionHandler is registered
// for the requested OperationType.
var ErrUnknownOperation = errors.New("coordinator: no handler registered for operation type")

// CancellationResult is requestCancellation's outcome, per §4.8.
type CancellationResult string

const (
	CancellationPending     CancellationResult = "CancellationPending"
	AlreadyCompleted        CancellationResult = "AlreadyCompleted"
	CancellationNotFound    CancellationResult = "NotFound"
	CancellationUnsupported CancellationResult = "CancellationNotSupported"
)

type activeEntry struct {
	mctx    *workflow.MasterActionContext
	handler ActionHandler
	started time.Time
}

// Coordinator is the MasterActionCoordinator (C8).
type Coordinator struct {
	handlers map[model.OperationType]ActionHandler
	policies map[model.OperationType]ConflictPolicy
	deps     workflow.Dependencies
	cfg      config.Config
	log      zerolog.Logger

	sf singleflight.Group

	mu           sync.Mutex
	active       map[string]*activeEntry          // masterActionID -> entry
	activeByType map[model.OperationType][]string // opType -> masterActionIDs
}

// New constructs a Coordinator. handlers is the compile-time registry
// (C9) scanned at startup; policies may override the global
// cfg.MaxConcurrentMasterActions default per OperationType.
func New(handlers []ActionHandler, policies map[model.OperationType]ConflictPolicy, deps workflow.Dependencies, cfg config.Config) *Coordinator {
	byType := make(map[model.OperationType]ActionHandler, len(handlers))
	for _, h := range handlers {
		byType[h.OperationType()] = h
	}
	if policies == nil {
		policies = map[model.OperationType]ConflictPolicy{}
	}
	return &Coordinator{
		handlers:     byType,
		policies:     policies,
		deps:         deps,
		cfg:          cfg,
		log:          log.WithComponent("coordinator"),
		active:       make(map[string]*activeEntry),
		activeByType: make(map[model.OperationType][]string),
	}
}

func (c *Coordinator) maxConcurrent(opType model.OperationType) int {
	if p, ok := c.policies[opType]; ok && p.MaxConcurrent > 0 {
		return p.MaxConcurrent
	}
	if c.cfg.MaxConcurrentMasterActions > 0 {
		return c.cfg.MaxConcurrentMasterActions
	}
	return 1
}

// SubmitAction implements §4.8's submitAction. Concurrent submissions
// from the same initiator are serialized through a singleflight group
// keyed on initiatedBy and opType, so the active-count check and the map insert
// happen atomically with respect to races from that same initiator.
func (c *Coordinator) SubmitAction(opType model.OperationType, parameters map[string]any, initiatedBy string) (*model.MasterAction, error) {
	handler, ok := c.handlers[opType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, opType)
	}

	key := singleflightKey(initiatedBy, opType)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		return c.acceptAndLaunch(opType, parameters, initiatedBy, handler)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.MasterAction), nil
}

func singleflightKey(initiatedBy string, opType model.OperationType) string {
	if initiatedBy == "" {
		initiatedBy = "anonymous"
	}
	return initiatedBy + "|" + string(opType)
}

func (c *Coordinator) acceptAndLaunch(opType model.OperationType, parameters map[string]any, initiatedBy string, handler ActionHandler) (*model.MasterAction, error) {
	c.mu.Lock()
	if len(c.activeByType[opType]) >= c.maxConcurrent(opType) {
		c.mu.Unlock()
		metrics.MasterActionsRejected.WithLabelValues("conflict").Inc()
		return nil, fmt.Errorf("%w: operation %s", ErrConflict, opType)
	}

	action := &model.MasterAction{
		ID:            uuid.New().String(),
		Type:          opType,
		InitiatedBy:   initiatedBy,
		Parameters:    parameters,
		StartTime:     time.Now().UTC(),
		OverallStatus: model.OverallInitiated,
	}
	if name, ok := parameters["name"].(string); ok {
		action.Name = name
	}

	if _, err := c.deps.Journal.RegisterMasterAction(action.ID, action.StartTime); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator: register master action: %w", err)
	}

	mctx := workflow.New(action, c.deps)
	entry := &activeEntry{mctx: mctx, handler: handler, started: action.StartTime}
	c.active[action.ID] = entry
	c.activeByType[opType] = append(c.activeByType[opType], action.ID)
	c.mu.Unlock()

	metrics.MasterActionsActive.Inc()
	c.log.Info().Str("master_action_id", action.ID).Str("operation_type", string(opType)).Str("initiated_by", initiatedBy).Msg("master action accepted")

	go c.run(entry)
	return action, nil
}

// run executes the handler and guarantees finalization on every exit
// path, including panics.
func (c *Coordinator) run(entry *activeEntry) {
	action := entry.mctx.Action()
	defer c.remove(action.ID)
	defer func() {
		if r := recover(); r != nil {
			entry.mctx.FinalizeOpenStage("master action panicked")
			if !entry.mctx.IsFinalized() {
				entry.mctx.SetFailed(fmt.Sprintf("panic: %v", r))
			}
		}
	}()

	action.OverallStatus = model.OverallInProgress
	err := entry.handler.Execute(entry.mctx)

	entry.mctx.FinalizeOpenStage("master action returned with stage still open")
	if entry.mctx.IsFinalized() {
		return
	}
	if err != nil {
		entry.mctx.SetFailed(err.Error())
		return
	}
	entry.mctx.SetCompleted("")
}

func (c *Coordinator) remove(masterActionID string) {
	c.mu.Lock()
	entry, ok := c.active[masterActionID]
	delete(c.active, masterActionID)
	if ok {
		opType := entry.mctx.Action().Type
		ids := c.activeByType[opType]
		for i, id := range ids {
			if id == masterActionID {
				c.activeByType[opType] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	metrics.MasterActionsActive.Dec()
	action := entry.mctx.Action()
	metrics.MasterActionsTotal.WithLabelValues(string(action.Type), string(action.OverallStatus)).Inc()
	metrics.MasterActionDuration.WithLabelValues(string(action.Type)).Observe(time.Since(entry.started).Seconds())
}

// RequestCancellation implements §4.8's requestCancellation.
func (c *Coordinator) RequestCancellation(masterActionID string) CancellationResult {
	c.mu.Lock()
	entry, ok := c.active[masterActionID]
	c.mu.Unlock()

	if !ok {
		if _, err := c.deps.Journal.GetArchivedMasterAction(masterActionID); err == nil {
			return AlreadyCompleted
		}
		return CancellationNotFound
	}

	action := entry.mctx.Action()
	if action.OverallStatus.IsTerminal() {
		return AlreadyCompleted
	}

	action.OverallStatus = model.OverallCancelling
	entry.mctx.RequestCancellation()
	c.log.Info().Str("master_action_id", masterActionID).Msg("cancellation requested")
	return CancellationPending
}

// GetAction returns the live MasterAction for an active id, or false if
// it is not currently active (it may be archived; callers should then
// consult pkg/journal).
func (c *Coordinator) GetAction(masterActionID string) (*model.MasterAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.active[masterActionID]
	if !ok {
		return nil, false
	}
	return entry.mctx.Action(), true
}

// ListActive returns every currently-active MasterAction.
func (c *Coordinator) ListActive() []*model.MasterAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.MasterAction, 0, len(c.active))
	for _, entry := range c.active {
		out = append(out, entry.mctx.Action())
	}
	return out
}
