package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

// SubmitExecutionRequest represents an execution submission request
type SubmitExecutionRequest struct {
	Project    *domain.Project `json:"project" binding:"required"`
	Context    map[string]any  `json:"context"`
	ResumeFrom string          `json:"resume_from"`
}

// SubmitExecutionResponse represents an execution submission response
type SubmitExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	ProjectID   string `json:"project_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"orchestrator": "ok",
			"running":      s.orchestrator.Running(),
		},
	})
}

// handleSubmitExecution validates the project and starts a run in the
// background.
func (s *Server) handleSubmitExecution(c *gin.Context) {
	var req SubmitExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	executionID, err := s.orchestrator.Submit(c.Request.Context(), req.Project, req.Context, req.ResumeFrom)
	if err != nil {
		s.logger.Error("failed to submit execution", zap.Error(err))
		c.JSON(submissionStatus(err), ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, SubmitExecutionResponse{
		ExecutionID: executionID,
		ProjectID:   req.Project.ID,
		Status:      "started",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// submissionStatus maps a submission error to an HTTP status.
func submissionStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrDependency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrExecution):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRecovery) || errors.Is(err, domain.ErrCheckpoint):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleListExecutions lists the state of all known executions.
func (s *Server) handleListExecutions(c *gin.Context) {
	states, err := s.storage.ListStates(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list executions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to list executions",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": states,
		"total":      len(states),
	})
}

// handleGetExecution returns the full state of an execution.
func (s *Server) handleGetExecution(c *gin.Context) {
	executionID := c.Param("id")

	state, err := s.storage.GetState(c.Request.Context(), executionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Execution not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, state)
}

// handleGetStatus returns a compact progress summary of an execution.
func (s *Server) handleGetStatus(c *gin.Context) {
	executionID := c.Param("id")

	state, err := s.storage.GetState(c.Request.Context(), executionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Execution not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"execution_id":     state.ExecutionID,
		"project_id":       state.ProjectID,
		"start_time":       state.StartTime,
		"current_phase":    state.CurrentPhase,
		"completed_phases": state.CompletedPhases,
		"failed_phases":    state.FailedPhases,
		"errors":           state.Errors,
	})
}

// handleGetActive returns the phases and tasks executing right now. Only the
// in-flight execution has live activity.
func (s *Server) handleGetActive(c *gin.Context) {
	executionID := c.Param("id")

	current := s.orchestrator.State()
	if current == nil || current.ExecutionID != executionID {
		c.JSON(http.StatusOK, gin.H{
			"execution_id":  executionID,
			"active_phases": []string{},
			"active_tasks":  []string{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"execution_id":  executionID,
		"active_phases": s.orchestrator.ActivePhases(),
		"active_tasks":  s.orchestrator.ActiveTasks(),
	})
}

// handleDeleteExecution removes the stored state of an execution.
func (s *Server) handleDeleteExecution(c *gin.Context) {
	executionID := c.Param("id")

	if err := s.storage.DeleteState(c.Request.Context(), executionID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"execution_id": executionID,
		"status":       "deleted",
	})
}

// handleListCheckpoints lists checkpoints, optionally filtered by project and
// scope tag.
func (s *Server) handleListCheckpoints(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CHECKPOINTS_NOT_AVAILABLE",
				Message: "Checkpoint manager is not configured",
			},
		})
		return
	}

	projectID := c.Query("project_id")
	tag := c.Query("tag")

	metas := s.checkpoints.ListCheckpoints(projectID, tag)
	c.JSON(http.StatusOK, gin.H{
		"checkpoints": metas,
		"total":       len(metas),
	})
}

// handleExportCheckpoint streams one checkpoint as a portable package.
func (s *Server) handleExportCheckpoint(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CHECKPOINTS_NOT_AVAILABLE",
				Message: "Checkpoint manager is not configured",
			},
		})
		return
	}

	id := c.Param("id")
	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", "attachment; filename="+id+".ckpt.gz")

	if err := s.checkpoints.Export(id, c.Writer); err != nil {
		s.logger.Error("checkpoint export failed", zap.String("checkpoint_id", id), zap.Error(err))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "EXPORT_FAILED",
				Message: err.Error(),
			},
		})
		return
	}
}

// handleImportCheckpoint registers an exported checkpoint package.
func (s *Server) handleImportCheckpoint(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CHECKPOINTS_NOT_AVAILABLE",
				Message: "Checkpoint manager is not configured",
			},
		})
		return
	}

	meta, err := s.checkpoints.Import(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "IMPORT_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, meta)
}

// handleDeleteCheckpoint removes a checkpoint and its index entry.
func (s *Server) handleDeleteCheckpoint(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CHECKPOINTS_NOT_AVAILABLE",
				Message: "Checkpoint manager is not configured",
			},
		})
		return
	}

	id := c.Param("id")
	if err := s.checkpoints.DeleteCheckpoint(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrCheckpoint) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "DELETE_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"checkpoint_id": id,
		"status":        "deleted",
	})
}
