package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/knowledge"
	"github.com/driftwoodlabs/triaged/internal/patch"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
	"github.com/driftwoodlabs/triaged/internal/tasks"
	"github.com/driftwoodlabs/triaged/internal/trends"
)

// errorResponse is the standard failure envelope.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AggregateRequest is the request body for POST /api/v1/patterns/aggregate.
type AggregateRequest struct {
	WindowHours int `json:"windowHours"`
}

// AggregateResponse is the response body for POST /api/v1/patterns/aggregate.
type AggregateResponse struct {
	Success bool `json:"success"`
	*patterns.Report
}

func (s *Server) handleAggregate(c echo.Context) error {
	var req AggregateRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, fault.New(fault.KindInvalidRequest, "invalid request body"))
	}

	report, err := s.services.Patterns.Aggregate(c.Request().Context(), req.WindowHours)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, AggregateResponse{Success: true, Report: report})
}

// TrendsResponse is the response body for POST /api/v1/trends/analyze.
type TrendsResponse struct {
	Success bool `json:"success"`
	*trends.Report
}

func (s *Server) handleTrends(c echo.Context) error {
	report, err := s.services.Trends.Analyze(c.Request().Context())
	if err != nil {
		// The report generator eats its own dog food: its failures land
		// in the error store it analyzes.
		s.selfLog(c, err)
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, TrendsResponse{Success: true, Report: report})
}

// selfLog records a report-generation failure as a new error record.
// Best effort; a store failure here must not mask the original error.
func (s *Server) selfLog(c echo.Context, cause error) {
	now := time.Now().UTC()
	rec := &store.ErrorRecord{
		ID:        uuid.NewString(),
		Message:   "trend report generation failed: " + cause.Error(),
		Severity:  store.SeverityError,
		Component: "triaged.trends",
		Status:    store.ErrorStatusNew,
		FirstSeen: now,
		LastSeen:  now,
		Created:   now,
		Updated:   now,
	}
	if err := s.store.CreateError(c.Request().Context(), rec); err != nil {
		s.logger.Warn("failed to self-log report failure", zap.Error(err))
	}
}

// DiagnoseRequest is the request body for POST /api/v1/errors/diagnose.
// The error id arrives either directly or inside an event envelope sent
// by store-level triggers.
type DiagnoseRequest struct {
	ErrorID string `json:"errorId"`
	Event   *struct {
		EntityID string `json:"entity_id"`
	} `json:"event"`
}

// DiagnoseResponse is the response body for POST /api/v1/errors/diagnose.
type DiagnoseResponse struct {
	Success bool `json:"success"`
	*diagnosis.Result
}

func (s *Server) handleDiagnose(c echo.Context) error {
	var req DiagnoseRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, fault.New(fault.KindInvalidRequest, "invalid request body"))
	}

	errorID := req.ErrorID
	if errorID == "" && req.Event != nil {
		errorID = req.Event.EntityID
	}

	result, err := s.services.Diagnosis.Diagnose(c.Request().Context(), errorID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, DiagnoseResponse{Success: true, Result: result})
}

// PatchRequest is the request body for POST /api/v1/patches/generate.
type PatchRequest struct {
	ErrorID    string              `json:"errorId"`
	TaskID     string              `json:"taskId"`
	AIAnalysis *diagnosis.Analysis `json:"aiAnalysis"`
}

// PatchResponse is the response body for POST /api/v1/patches/generate.
type PatchResponse struct {
	Success bool `json:"success"`
	*patch.Result
}

func (s *Server) handlePatch(c echo.Context) error {
	var req PatchRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, fault.New(fault.KindInvalidRequest, "invalid request body"))
	}

	result, err := s.services.Patches.Generate(c.Request().Context(), patch.Request{
		ErrorID:  req.ErrorID,
		TaskID:   req.TaskID,
		Analysis: req.AIAnalysis,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, PatchResponse{Success: true, Result: result})
}

// OrchestrateRequest is the request body for POST /api/v1/tasks/orchestrate.
type OrchestrateRequest struct {
	Report *tasks.Report `json:"report"`
}

// OrchestrateResponse is the response body for POST /api/v1/tasks/orchestrate.
type OrchestrateResponse struct {
	Success bool `json:"success"`
	*tasks.Result
}

func (s *Server) handleOrchestrate(c echo.Context) error {
	var req OrchestrateRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, fault.New(fault.KindInvalidRequest, "invalid request body"))
	}

	result, err := s.services.Tasks.Orchestrate(c.Request().Context(), req.Report)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, OrchestrateResponse{Success: true, Result: result})
}

// HarvestResponse is the response body for POST /api/v1/knowledge/harvest.
type HarvestResponse struct {
	Success bool `json:"success"`
	*knowledge.HarvestResult
}

func (s *Server) handleHarvest(c echo.Context) error {
	result, err := s.services.Knowledge.Harvest(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, HarvestResponse{Success: true, HarvestResult: result})
}

// ConsolidateResponse is the response body for POST /api/v1/knowledge/consolidate.
type ConsolidateResponse struct {
	Success bool `json:"success"`
	*knowledge.ConsolidateResult
}

func (s *Server) handleConsolidate(c echo.Context) error {
	result, err := s.services.Knowledge.Consolidate(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ConsolidateResponse{Success: true, ConsolidateResult: result})
}
