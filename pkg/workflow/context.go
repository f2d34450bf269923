package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/connection"
	"github.com/cuemby/sitekeeper/pkg/dispatcher"
	"github.com/cuemby/sitekeeper/pkg/idtranslator"
	"github.com/cuemby/sitekeeper/pkg/journal"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/notify"
)

// Dependencies bundles the core components a MasterActionContext drives.
// pkg/coordinator constructs one set of these at startup and passes it
// to New for every MasterAction it submits.
type Dependencies struct {
	Journal    *journal.Journal
	Dispatcher *dispatcher.Dispatcher
	Translator *idtranslator.Translator
	Conn       *connection.Manager
	Notifier   notify.Notifier
	Config     config.Config
}

// MasterActionContext is the MasterAction-scoped half of C7's DSL.
type MasterActionContext struct {
	action *model.MasterAction
	deps   Dependencies
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	openStage  *StageContext
	totalSteps int
	finalized  bool
}

// New constructs a MasterActionContext for action, which must already
// have been registered with the Journal via RegisterMasterAction.
func New(action *model.MasterAction, deps Dependencies) *MasterActionContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &MasterActionContext{
		action: action,
		deps:   deps,
		log:    log.WithMasterActionID(action.ID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the cancellation context for this MasterAction; it is
// cancelled the moment RequestCancellation is called.
func (m *MasterActionContext) Context() context.Context {
	return m.ctx
}

// Action returns the live MasterAction this context wraps. Callers must
// not mutate transient fields directly outside of StageContext/reporter
// callbacks, which already hold m.mu while doing so.
func (m *MasterActionContext) Action() *model.MasterAction {
	return m.action
}

// InitializeProgress records the number of stages the handler expects to
// run, used to weight ReportProgress's sub-step percent into
// MasterAction.OverallProgressPercent.
func (m *MasterActionContext) InitializeProgress(totalSteps int) {
	m.mu.Lock()
	m.totalSteps = totalSteps
	m.mu.Unlock()
}

// RequestCancellation asks every in-flight and future NodeAction under
// this MasterAction to cooperatively cancel. It does not itself set a
// terminal status — the handler (or the coordinator's backstop) still
// calls SetCancelled once the current stage unwinds.
func (m *MasterActionContext) RequestCancellation() {
	m.cancel()
}

// IsCancellationRequested reports whether RequestCancellation has been
// called.
func (m *MasterActionContext) IsCancellationRequested() bool {
	return m.ctx.Err() != nil
}

// BeginStageAsync opens the next Stage. Only one Stage may be open at a
// time; callers must call the returned StageContext's Finish before
// opening another.
func (m *MasterActionContext) BeginStageAsync(stageName string, subActionCount int) (*StageContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openStage != nil {
		return nil, fmt.Errorf("workflow: stage %q still open, cannot begin %q", m.openStage.name, stageName)
	}

	index := len(m.action.ExecutionHistory)
	sc := &StageContext{
		mctx:           m,
		index:          index,
		name:           stageName,
		subActionCount: subActionCount,
		startTime:      time.Now().UTC(),
		isSuccess:      true,
	}
	m.action.CurrentStageName = stageName
	m.action.CurrentStageIndex = index
	m.action.CurrentStageNodeActions = make(map[string]*model.NodeAction)
	m.openStage = sc

	m.log.Info().Int("stage_index", index).Str("stage_name", stageName).Msg("stage started")
	if m.deps.Notifier != nil {
		m.deps.Notifier.Publish(&notify.Event{
			Type:           notify.EventStageStarted,
			MasterActionID: m.action.ID,
			Payload:        notify.StageStartedPayload{StageIndex: index, StageName: stageName},
		})
	}
	return sc, nil
}

// openStageUnfinished reports whether a stage is still open, for the
// coordinator's finalization backstop.
func (m *MasterActionContext) openStageUnfinished() *StageContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openStage
}

// FinalizeOpenStage is the coordinator's backstop: if the handler
// returned or panicked with a stage still open, this force-closes it so
// the Journal never holds a half-written stage. A no-op if every stage
// the handler opened was already finished.
func (m *MasterActionContext) FinalizeOpenStage(reason string) {
	if sc := m.openStageUnfinished(); sc != nil {
		sc.Finish(false, reason)
	}
}

// finalize moves the MasterAction to a terminal OverallStatus exactly
// once and writes it to the Journal. Subsequent calls are no-ops, per
// §4.7's "idempotent after the first terminal call".
func (m *MasterActionContext) finalize(status model.OverallStatus, message string) {
	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return
	}
	m.finalized = true
	m.action.OverallStatus = status
	m.action.FailureMessage = message
	m.action.EndTime = time.Now().UTC()
	if status == model.OverallSucceeded || status == model.OverallFailed || status == model.OverallCancelled {
		m.action.OverallProgressPercent = 100
	}
	m.mu.Unlock()

	if err := m.deps.Journal.FinalizeMasterAction(m.action); err != nil {
		m.log.Error().Err(err).Msg("failed to finalize master action in journal")
	}
	m.log.Info().Str("overall_status", string(status)).Str("message", message).Msg("master action finalized")

	if m.deps.Notifier != nil {
		m.deps.Notifier.Publish(&notify.Event{
			Type:           notify.EventMasterActionCompleted,
			MasterActionID: m.action.ID,
			Payload:        notify.MasterActionCompletedPayload{OverallStatus: status, FailureMessage: message},
		})
	}
}

// SetCompleted marks the MasterAction Succeeded.
func (m *MasterActionContext) SetCompleted(message string) {
	m.finalize(model.OverallSucceeded, message)
}

// SetFailed marks the MasterAction Failed.
func (m *MasterActionContext) SetFailed(message string) {
	m.finalize(model.OverallFailed, message)
}

// SetCancelled marks the MasterAction Cancelled.
func (m *MasterActionContext) SetCancelled(message string) {
	m.finalize(model.OverallCancelled, message)
}

// SetFinalResult attaches payload as the MasterAction's
// FinalResultPayload. It may be called independently of the terminal
// Set* calls, e.g. to stash a partial result before a later stage fails.
func (m *MasterActionContext) SetFinalResult(payload any) {
	m.mu.Lock()
	m.action.FinalResultPayload = payload
	m.mu.Unlock()
}

// IsFinalized reports whether a terminal Set* call has already landed.
func (m *MasterActionContext) IsFinalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}
