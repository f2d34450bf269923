package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sitekeeper/pkg/config"
	"github.com/cuemby/sitekeeper/pkg/log"
	"github.com/cuemby/sitekeeper/pkg/metrics"
	"github.com/cuemby/sitekeeper/pkg/model"
)

// ErrNotFound is returned by the read API when no archived record
// matches the requested id.
var ErrNotFound = errors.New("journal: not found")

// StageResult is the persisted contents of one stage_result.json.
type StageResult struct {
	NodeActionResults []model.NodeAction `json:"nodeActionResults"`
	CustomResult      any                `json:"customResult,omitempty"`
}

// archivedMasterAction is master_action_info.json's shape: MasterAction
// minus the transient, UI-only fields §4.4 says are never archived.
type archivedMasterAction struct {
	ID                     string            `json:"id"`
	Type                   model.OperationType `json:"type"`
	Name                   string            `json:"name"`
	InitiatedBy            string            `json:"initiatedBy"`
	Parameters             map[string]any    `json:"parameters,omitempty"`
	StartTime              time.Time         `json:"startTime"`
	EndTime                time.Time         `json:"endTime"`
	OverallStatus          model.OverallStatus `json:"overallStatus"`
	OverallProgressPercent int               `json:"overallProgressPercent"`
	FinalResultPayload     any               `json:"finalResultPayload,omitempty"`
	FailureMessage         string            `json:"failureMessage,omitempty"`
	ExecutionHistory       []model.StageRecord `json:"executionHistory"`
}

func toArchived(a *model.MasterAction) archivedMasterAction {
	return archivedMasterAction{
		ID:                     a.ID,
		Type:                   a.Type,
		Name:                   a.Name,
		InitiatedBy:            a.InitiatedBy,
		Parameters:             a.Parameters,
		StartTime:              a.StartTime,
		EndTime:                a.EndTime,
		OverallStatus:          a.OverallStatus,
		OverallProgressPercent: a.OverallProgressPercent,
		FinalResultPayload:     a.FinalResultPayload,
		FailureMessage:         a.FailureMessage,
		ExecutionHistory:       a.ExecutionHistory,
	}
}

func fromArchived(a archivedMasterAction) *model.MasterAction {
	return &model.MasterAction{
		ID:                     a.ID,
		Type:                   a.Type,
		Name:                   a.Name,
		InitiatedBy:            a.InitiatedBy,
		Parameters:             a.Parameters,
		StartTime:              a.StartTime,
		EndTime:                a.EndTime,
		OverallStatus:          a.OverallStatus,
		OverallProgressPercent: a.OverallProgressPercent,
		FinalResultPayload:     a.FinalResultPayload,
		FailureMessage:         a.FailureMessage,
		ExecutionHistory:       a.ExecutionHistory,
	}
}

// nodeActionRoute is what mapNodeActionToStage registers: where
// slave-originated logs for one NodeAction must be appended.
type nodeActionRoute struct {
	masterActionID string
	stageIndex     int
	stageName      string
}

// Journal is the Journal (C4).
type Journal struct {
	root            string
	environmentName string
	index           *index
	log             zerolog.Logger

	mu     sync.Mutex
	dirs   map[string]string          // masterActionID -> actionDir, for in-flight actions
	routes map[string]nodeActionRoute // nodeActionID -> route

	logs logWriter
}

// New opens (creating if necessary) the Journal rooted at cfg.JournalRoot
// for cfg.EnvironmentName.
func New(cfg config.Config) (*Journal, error) {
	envDir := filepath.Join(cfg.JournalRoot, cfg.EnvironmentName)
	if err := os.MkdirAll(filepath.Join(envDir, "ActionJournal"), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", envDir, err)
	}

	idx, err := openIndex(filepath.Join(envDir, "journal.db"))
	if err != nil {
		return nil, err
	}

	return &Journal{
		root:            cfg.JournalRoot,
		environmentName: cfg.EnvironmentName,
		index:           idx,
		log:             log.WithComponent("journal"),
		dirs:            make(map[string]string),
		routes:          make(map[string]nodeActionRoute),
		logs:            newLogWriter(),
	}, nil
}

// Close releases the index and any open log file handles.
func (j *Journal) Close() error {
	j.logs.closeAll()
	return j.index.close()
}

// RegisterMasterAction creates the on-disk action directory and an index
// entry for a newly-started MasterAction. Must be called before any
// MapNodeActionToStage/AppendStageLog for this action.
func (j *Journal) RegisterMasterAction(masterActionID string, startTime time.Time) (string, error) {
	dir := j.actionDir(startTime.UnixNano(), masterActionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("journal: mkdir %s: %w", dir, err)
	}

	j.mu.Lock()
	j.dirs[masterActionID] = dir
	j.mu.Unlock()

	if err := j.index.put(masterActionID, indexEntry{Dir: dir, OverallStatus: string(model.OverallInitiated), StartTime: startTime}); err != nil {
		return "", err
	}
	return dir, nil
}

func (j *Journal) resolveActionDir(masterActionID string) (string, error) {
	j.mu.Lock()
	dir, ok := j.dirs[masterActionID]
	j.mu.Unlock()
	if ok {
		return dir, nil
	}
	return j.findActionDir(masterActionID)
}

// MapNodeActionToStage registers where slave-originated messages for
// nodeActionID must be appended, and ensures the stage's directory tree
// exists.
func (j *Journal) MapNodeActionToStage(masterActionID string, stageIndex int, stageName string, nodeActionID string) error {
	actionDir, err := j.resolveActionDir(masterActionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stageLogsDir(actionDir, stageIndex, stageName), 0o755); err != nil {
		return fmt.Errorf("journal: mkdir stage logs: %w", err)
	}

	j.mu.Lock()
	j.routes[nodeActionID] = nodeActionRoute{masterActionID: masterActionID, stageIndex: stageIndex, stageName: stageName}
	j.mu.Unlock()
	return nil
}

// ResolveNodeAction looks up the (masterActionID, stageIndex, stageName)
// a nodeActionID was mapped to, for routing inbound slave log entries.
func (j *Journal) ResolveNodeAction(nodeActionID string) (masterActionID string, stageIndex int, stageName string, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, found := j.routes[nodeActionID]
	if !found {
		return "", 0, "", false
	}
	return r.masterActionID, r.stageIndex, r.stageName, true
}

// UnmapNodeAction drops the routing entry for nodeActionID. The
// ActionIdTranslator's grace-period sweep removes only its own mapping
// and does not call this.
func (j *Journal) UnmapNodeAction(nodeActionID string) {
	j.mu.Lock()
	delete(j.routes, nodeActionID)
	j.mu.Unlock()
}

// AppendStageLog appends one log line to the stage's _master.log or
// <nodeName>.log, creating the stage directory tree if this is the
// first entry for it.
func (j *Journal) AppendStageLog(masterActionID string, stageIndex int, stageName string, source string, entry model.LogEntry) error {
	actionDir, err := j.resolveActionDir(masterActionID)
	if err != nil {
		return err
	}
	logsDir := stageLogsDir(actionDir, stageIndex, stageName)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("journal: mkdir %s: %w", logsDir, err)
	}

	fileName := masterLogFile
	if source != "_master" {
		fileName = source + ".log"
	}
	path := filepath.Join(logsDir, fileName)
	return j.logs.appendLine(path, entry)
}

// RecordStageCompleted writes stage_result.json atomically.
func (j *Journal) RecordStageCompleted(masterActionID string, stageIndex int, stageName string, result StageResult) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.JournalWriteDuration, "stage_result")

	actionDir, err := j.resolveActionDir(masterActionID)
	if err != nil {
		return err
	}
	path := filepath.Join(stageDir(actionDir, stageIndex, stageName), stageResultFile)
	if err := writeThenRename(path, result); err != nil {
		return err
	}
	j.log.Debug().Str("master_action_id", masterActionID).Int("stage_index", stageIndex).Msg("stage result recorded")
	return nil
}

// FinalizeMasterAction writes master_action_info.json exactly once, at
// terminal state, and updates the index.
func (j *Journal) FinalizeMasterAction(action *model.MasterAction) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.JournalWriteDuration, "master_action_info")

	actionDir, err := j.resolveActionDir(action.ID)
	if err != nil {
		return err
	}
	path := filepath.Join(actionDir, masterActionInfoFile)
	if err := writeThenRename(path, toArchived(action)); err != nil {
		return err
	}

	if err := j.index.put(action.ID, indexEntry{
		Dir:           actionDir,
		OverallStatus: string(action.OverallStatus),
		StartTime:     action.StartTime,
		EndTime:       action.EndTime,
	}); err != nil {
		return err
	}

	j.mu.Lock()
	delete(j.dirs, action.ID)
	j.mu.Unlock()

	j.log.Info().Str("master_action_id", action.ID).Str("overall_status", string(action.OverallStatus)).Msg("master action finalized")
	return nil
}

// GetArchivedMasterAction implements the read API for a finalized
// MasterAction.
func (j *Journal) GetArchivedMasterAction(masterActionID string) (*model.MasterAction, error) {
	dir, err := j.findActionDir(masterActionID)
	if err != nil {
		return nil, err
	}
	var archived archivedMasterAction
	if err := readJSON(filepath.Join(dir, masterActionInfoFile), &archived); err != nil {
		return nil, err
	}
	return fromArchived(archived), nil
}

// GetArchivedStageResult implements the read API for one stage's
// stage_result.json.
func (j *Journal) GetArchivedStageResult(masterActionID string, stageIndex int) (*StageResult, error) {
	actionDir, err := j.findActionDir(masterActionID)
	if err != nil {
		return nil, err
	}
	sd, err := findStageDir(actionDir, stageIndex)
	if err != nil {
		return nil, err
	}
	var result StageResult
	if err := readJSON(filepath.Join(sd, stageResultFile), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetArchivedStageLogContent implements the read API for one stage's log
// file, identified by logFileName ("_master.log" or "<nodeName>.log").
func (j *Journal) GetArchivedStageLogContent(masterActionID string, stageIndex int, logFileName string) (string, error) {
	actionDir, err := j.findActionDir(masterActionID)
	if err != nil {
		return "", err
	}
	sd, err := findStageDir(actionDir, stageIndex)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(sd, "logs", logFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("journal: read log %s: %w", logFileName, err)
	}
	return string(data), nil
}
