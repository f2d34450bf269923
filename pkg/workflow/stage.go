package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/sitekeeper/pkg/dispatcher"
	"github.com/cuemby/sitekeeper/pkg/journal"
	"github.com/cuemby/sitekeeper/pkg/model"
	"github.com/cuemby/sitekeeper/pkg/notify"
)

// StageContext is the Stage-scoped half of C7's DSL, returned by
// MasterActionContext.BeginStageAsync.
type StageContext struct {
	mctx           *MasterActionContext
	index          int
	name           string
	subActionCount int
	startTime      time.Time

	mu           sync.Mutex
	nodeActions  []model.NodeAction
	isSuccess    bool
	customResult any
	finished     bool
}

// NodeActionInput is one element of a
// CreateAndExecuteNodeActionsInParallel call.
type NodeActionInput struct {
	ActionName string
	TaskType   string
	// TargetNodeNames, if non-empty, restricts the NodeAction to these
	// nodes; empty means every currently-connected node.
	TargetNodeNames []string
	// DefaultPayload is used for every target node without a more
	// specific entry in NodeSpecificPayloads.
	DefaultPayload       map[string]any
	NodeSpecificPayloads map[string]map[string]any // nodeName -> task payload, overrides DefaultPayload
	AuditContext         map[string]string
}

// CreateAndExecuteNodeAction builds a NodeAction targeting
// input.TargetNodeNames (or every connected node, if empty), runs it to
// completion through the Dispatcher, and folds its outcome into this
// Stage's aggregate success.
func (sc *StageContext) CreateAndExecuteNodeAction(input NodeActionInput) (*dispatcher.NodeActionResult, error) {
	m := sc.mctx

	targets := input.TargetNodeNames
	if len(targets) == 0 {
		for _, a := range m.deps.Conn.GetAllConnectedAgents() {
			targets = append(targets, a.NodeName)
		}
	}

	nodeAction := &model.NodeAction{
		ID:            uuid.New().String(),
		Name:          input.ActionName,
		OverallStatus: model.NodeActionPendingInitiation,
		CreationTime:  time.Now().UTC(),
		AuditContext:  input.AuditContext,
		InitiatedBy:   m.action.InitiatedBy,
	}

	for _, nodeName := range targets {
		if _, connected := m.deps.Conn.GetAgent(nodeName); !connected {
			m.log.Warn().Str("node_name", nodeName).Str("stage_name", sc.name).Msg("target node not connected, skipping")
			continue
		}
		payload := input.DefaultPayload
		if payload == nil {
			payload = map[string]any{}
		}
		if input.NodeSpecificPayloads != nil {
			if p, ok := input.NodeSpecificPayloads[nodeName]; ok {
				payload = p
			}
		}
		nodeAction.NodeTasks = append(nodeAction.NodeTasks, &model.NodeTask{
			TaskID:       uuid.New().String(),
			ActionID:     nodeAction.ID,
			NodeName:     nodeName,
			TaskType:     input.TaskType,
			Status:       model.TaskPending,
			Payload:      payload,
			CreationTime: nodeAction.CreationTime,
		})
	}

	if len(nodeAction.NodeTasks) == 0 {
		nodeAction.OverallStatus = model.NodeActionFailed
		nodeAction.FinalOutcome = "no target node was connected"
		nodeAction.StartTime = time.Now().UTC()
		nodeAction.EndTime = nodeAction.StartTime
		sc.recordNodeAction(*nodeAction, false)
		return &dispatcher.NodeActionResult{IsSuccess: false, FinalState: nodeAction}, nil
	}

	if err := m.deps.Journal.MapNodeActionToStage(m.action.ID, sc.index, sc.name, nodeAction.ID); err != nil {
		return nil, fmt.Errorf("workflow: map node action to stage: %w", err)
	}
	m.deps.Translator.RegisterMapping(nodeAction.ID, m.action.ID)
	defer m.deps.Translator.UnregisterMapping(nodeAction.ID)

	m.mu.Lock()
	m.action.CurrentStageNodeActions[nodeAction.ID] = nodeAction
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.action.CurrentStageNodeActions, nodeAction.ID)
		m.mu.Unlock()
	}()

	reporter := func(percent int, message string) {
		if m.deps.Notifier != nil {
			m.deps.Notifier.Publish(&notify.Event{
				Type:           notify.EventNodeActionProgress,
				MasterActionID: m.action.ID,
				Payload: notify.NodeActionProgressPayload{
					NodeActionID:    nodeAction.ID,
					ProgressPercent: percent,
					StatusMessage:   message,
				},
			})
		}
	}
	logAppender := func(nodeName string, entry model.LogEntry) {
		if err := m.deps.Journal.AppendStageLog(m.action.ID, sc.index, sc.name, nodeName, entry); err != nil {
			m.log.Error().Err(err).Str("node_name", nodeName).Msg("failed to append node log")
		}
		if m.deps.Notifier != nil {
			m.deps.Notifier.Publish(&notify.Event{
				Type:           notify.EventSlaveTaskLog,
				MasterActionID: m.action.ID,
				Payload: notify.SlaveTaskLogPayload{
					NodeName: nodeName,
					Level:    entry.Level,
					Message:  entry.Message,
				},
			})
		}
	}

	result, err := m.deps.Dispatcher.Execute(m.ctx, nodeAction, reporter, logAppender)
	if err != nil {
		return nil, err
	}

	sc.recordNodeAction(*result.FinalState, result.IsSuccess)
	return result, nil
}

func (sc *StageContext) recordNodeAction(na model.NodeAction, isSuccess bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.nodeActions = append(sc.nodeActions, na)
	if !isSuccess {
		sc.isSuccess = false
	}
}

// CreateAndExecuteNodeActionsInParallel runs every input concurrently,
// sharing this Stage's cancellation context, and returns their results
// in input order.
func (sc *StageContext) CreateAndExecuteNodeActionsInParallel(inputs []NodeActionInput) ([]*dispatcher.NodeActionResult, error) {
	results := make([]*dispatcher.NodeActionResult, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(i int, input NodeActionInput) {
			defer wg.Done()
			r, err := sc.CreateAndExecuteNodeAction(input)
			results[i] = r
			errs[i] = err
		}(i, input)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// SetCustomResult attaches an arbitrary handler-defined payload to this
// Stage's eventual StageResult.CustomResult.
func (sc *StageContext) SetCustomResult(value any) {
	sc.mu.Lock()
	sc.customResult = value
	sc.mu.Unlock()
}

// ReportProgress folds subStepPercent (0-100, this Stage's own
// completion) into MasterAction.OverallProgressPercent, weighted by the
// total stage count InitializeProgress declared.
func (sc *StageContext) ReportProgress(subStepPercent int, message string) {
	m := sc.mctx
	m.mu.Lock()
	total := m.totalSteps
	if total <= 0 {
		total = 1
	}
	if subStepPercent < 0 {
		subStepPercent = 0
	}
	if subStepPercent > 100 {
		subStepPercent = 100
	}
	overall := (sc.index*100 + subStepPercent) / total
	if overall > 99 {
		overall = 99 // reserve 100 for finalize
	}
	m.action.OverallProgressPercent = overall
	m.mu.Unlock()

	if m.deps.Notifier != nil {
		m.deps.Notifier.Publish(&notify.Event{
			Type:           notify.EventMasterActionProgress,
			MasterActionID: m.action.ID,
			Payload: notify.MasterActionProgressPayload{
				OverallProgressPercent: overall,
				CurrentStageName:       sc.name,
			},
		})
	}
	sc.logf("info", message)
}

// LogInfo, LogWarning and LogError append one line to the MasterAction's
// RecentLogs ring buffer and this Stage's _master.log in the Journal.
func (sc *StageContext) LogInfo(message string)    { sc.logf("info", message) }
func (sc *StageContext) LogWarning(message string) { sc.logf("warn", message) }
func (sc *StageContext) LogError(message string)   { sc.logf("error", message) }

func (sc *StageContext) logf(level, message string) {
	if message == "" {
		return
	}
	m := sc.mctx
	entry := model.LogEntry{Time: time.Now().UTC(), Level: level, Stage: sc.name, Message: message}

	m.mu.Lock()
	m.action.AppendLog(entry)
	m.mu.Unlock()

	if err := m.deps.Journal.AppendStageLog(m.action.ID, sc.index, sc.name, journal.MasterLogSource, entry); err != nil {
		m.log.Error().Err(err).Msg("failed to append master log")
	}
}

// Finish closes this Stage exactly once: it records the final
// isSuccess/customResult to the Journal as a StageResult, appends a
// StageRecord to MasterAction.ExecutionHistory, and clears the
// transient CurrentStage* fields. Calling Finish more than once is a
// no-op, so handlers and the coordinator's panic backstop can both call
// it safely.
func (sc *StageContext) Finish(isSuccess bool, message string) {
	sc.mu.Lock()
	if sc.finished {
		sc.mu.Unlock()
		return
	}
	sc.finished = true
	if !isSuccess {
		sc.isSuccess = false
	}
	nodeActions := sc.nodeActions
	customResult := sc.customResult
	sc.mu.Unlock()

	m := sc.mctx
	endTime := time.Now().UTC()

	err := m.deps.Journal.RecordStageCompleted(m.action.ID, sc.index, sc.name, journal.StageResult{
		NodeActionResults: nodeActions,
		CustomResult:      customResult,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("failed to record stage result")
	}

	m.mu.Lock()
	m.action.ExecutionHistory = append(m.action.ExecutionHistory, model.StageRecord{
		StageIndex:       sc.index,
		StageName:        sc.name,
		StartTime:        sc.startTime,
		EndTime:          endTime,
		IsSuccess:        sc.isSuccess,
		FinalNodeActions: nodeActions,
		CustomResult:     customResult,
	})
	m.action.CurrentStageName = ""
	m.action.CurrentStageNodeActions = nil
	if m.openStage == sc {
		m.openStage = nil
	}
	m.mu.Unlock()

	m.log.Info().Int("stage_index", sc.index).Str("stage_name", sc.name).Bool("is_success", sc.isSuccess).Msg("stage finished")
	if m.deps.Notifier != nil {
		m.deps.Notifier.Publish(&notify.Event{
			Type:           notify.EventStageCompleted,
			MasterActionID: m.action.ID,
			Payload:        notify.StageCompletedPayload{StageIndex: sc.index, StageName: sc.name, IsSuccess: sc.isSuccess},
		})
	}
}

// IsSuccess reports this Stage's aggregate outcome so far.
func (sc *StageContext) IsSuccess() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.isSuccess
}
