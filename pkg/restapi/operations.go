package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/sitekeeper/pkg/coordinator"
	"github.com/cuemby/sitekeeper/pkg/model"
)

// submitRequest is POST /operations' body, per §6.
type submitRequest struct {
	OperationType string         `json:"operationType"`
	Description   string         `json:"description,omitempty"`
	Parameters    map[string]any `json:"parameters"`
	InitiatedBy   string         `json:"initiatedBy,omitempty"`
}

type submitResponse struct {
	OperationID string `json:"operationId"`
	Message     string `json:"message"`
}

type cancelResponse struct {
	OperationID string `json:"operationId"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

type logEntryDTO struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

type nodeTaskDTO struct {
	TaskID          string    `json:"taskId"`
	NodeName        string    `json:"nodeName"`
	TaskType        string    `json:"taskType"`
	Status          string    `json:"status"`
	ProgressPercent int       `json:"progressPercent"`
	StatusMessage   string    `json:"statusMessage,omitempty"`
	RetryCount      int       `json:"retryCount"`
	StartTime       time.Time `json:"startTime,omitempty"`
	EndTime         time.Time `json:"endTime,omitempty"`
}

type nodeActionDTO struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	OverallStatus   string        `json:"overallStatus"`
	ProgressPercent int           `json:"progressPercent"`
	StatusMessage   string        `json:"statusMessage,omitempty"`
	FinalOutcome    string        `json:"finalOutcome,omitempty"`
	NodeTasks       []nodeTaskDTO `json:"nodeTasks"`
}

type stageDTO struct {
	StageIndex       int             `json:"stageIndex"`
	StageName        string          `json:"stageName"`
	IsSuccess        bool            `json:"isSuccess"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime,omitempty"`
	FinalNodeActions []nodeActionDTO `json:"finalNodeActions"`
}

type operationSnapshot struct {
	ID                     string         `json:"id"`
	Type                   string         `json:"type"`
	Name                   string         `json:"name,omitempty"`
	InitiatedBy            string         `json:"initiatedBy,omitempty"`
	OverallStatus          string         `json:"overallStatus"`
	OverallProgressPercent int            `json:"overallProgressPercent"`
	StartTime              time.Time      `json:"startTime"`
	EndTime                time.Time      `json:"endTime,omitempty"`
	FailureMessage         string         `json:"failureMessage,omitempty"`
	FinalResultPayload     any            `json:"finalResultPayload,omitempty"`
	CurrentStageName       string         `json:"currentStageName,omitempty"`
	Stages                 []stageDTO     `json:"stages"`
	RecentLogs             []logEntryDTO  `json:"recentLogs"`
}

func toSnapshot(action *model.MasterAction) operationSnapshot {
	snap := operationSnapshot{
		ID:                     action.ID,
		Type:                   string(action.Type),
		Name:                   action.Name,
		InitiatedBy:            action.InitiatedBy,
		OverallStatus:          string(action.OverallStatus),
		OverallProgressPercent: action.OverallProgressPercent,
		StartTime:              action.StartTime,
		EndTime:                action.EndTime,
		FailureMessage:         action.FailureMessage,
		FinalResultPayload:     action.FinalResultPayload,
		CurrentStageName:       action.CurrentStageName,
		Stages:                 make([]stageDTO, 0, len(action.ExecutionHistory)),
		RecentLogs:             make([]logEntryDTO, 0, len(action.RecentLogs)),
	}
	for _, sr := range action.ExecutionHistory {
		snap.Stages = append(snap.Stages, toStageDTO(sr))
	}
	for _, le := range action.RecentLogs {
		snap.RecentLogs = append(snap.RecentLogs, logEntryDTO{Time: le.Time, Level: le.Level, Stage: le.Stage, Message: le.Message})
	}
	return snap
}

func toStageDTO(sr model.StageRecord) stageDTO {
	dto := stageDTO{
		StageIndex:       sr.StageIndex,
		StageName:        sr.StageName,
		IsSuccess:        sr.IsSuccess,
		StartTime:        sr.StartTime,
		EndTime:          sr.EndTime,
		FinalNodeActions: make([]nodeActionDTO, 0, len(sr.FinalNodeActions)),
	}
	for _, na := range sr.FinalNodeActions {
		dto.FinalNodeActions = append(dto.FinalNodeActions, toNodeActionDTO(na))
	}
	return dto
}

func toNodeActionDTO(na model.NodeAction) nodeActionDTO {
	dto := nodeActionDTO{
		ID:              na.ID,
		Name:            na.Name,
		OverallStatus:   string(na.OverallStatus),
		ProgressPercent: na.ProgressPercent,
		StatusMessage:   na.StatusMessage,
		FinalOutcome:    na.FinalOutcome,
		NodeTasks:       make([]nodeTaskDTO, 0, len(na.NodeTasks)),
	}
	for _, t := range na.NodeTasks {
		dto.NodeTasks = append(dto.NodeTasks, nodeTaskDTO{
			TaskID:          t.TaskID,
			NodeName:        t.NodeName,
			TaskType:        t.TaskType,
			Status:          string(t.Status),
			ProgressPercent: t.ProgressPercent,
			StatusMessage:   t.StatusMessage,
			RetryCount:      t.RetryCount,
			StartTime:       t.StartTime,
			EndTime:         t.EndTime,
		})
	}
	return dto
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OperationType == "" {
		writeError(w, http.StatusBadRequest, "operationType is required")
		return
	}

	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if req.Description != "" {
		params["description"] = req.Description
	}
	initiatedBy := req.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = r.Header.Get("X-Initiated-By")
	}

	action, err := s.coord.SubmitAction(model.OperationType(req.OperationType), params, initiatedBy)
	if err != nil {
		if errors.Is(err, coordinator.ErrConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, coordinator.ErrUnknownOperation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{OperationID: action.ID, Message: "accepted"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if action, ok := s.coord.GetAction(id); ok {
		writeJSON(w, http.StatusOK, toSnapshot(action))
		return
	}

	action, err := s.journal.GetArchivedMasterAction(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, toSnapshot(action))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result := s.coord.RequestCancellation(id)

	resp := cancelResponse{OperationID: id, Status: string(result)}
	status := http.StatusOK
	switch result {
	case coordinator.CancellationPending:
		resp.Message = "cancellation requested"
	case coordinator.AlreadyCompleted:
		resp.Message = "operation already reached a terminal state"
	case coordinator.CancellationNotFound:
		status = http.StatusNotFound
		resp.Message = "operation not found"
	case coordinator.CancellationUnsupported:
		status = http.StatusConflict
		resp.Message = "operation does not support cancellation"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().UTC()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "timestamp": time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
