package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/RishiKendai/contestguard/internal/config"
	"github.com/RishiKendai/contestguard/internal/models"
	"github.com/RishiKendai/contestguard/internal/pipeline"
	"github.com/RishiKendai/contestguard/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ContestStore interface {
	ListContests(ctx context.Context) ([]models.Contest, error)
	GetContestByID(ctx context.Context, id string) (*models.Contest, error)
}

type RecordStore interface {
	FindByQuestion(ctx context.Context, questionID int, f repository.RecordFilter) ([]models.PlagiarismRecord, error)
}

type RunExecutor interface {
	Run(ctx context.Context, contestSlug string) (*pipeline.RunReport, error)
}

// Dependencies are the stores and services the handlers use.
type Dependencies struct {
	Contests ContestStore
	Records  RecordStore
	Runner   RunExecutor
	Status   pipeline.StatusTracker
}

// Handler holds dependencies for handlers
type Handler struct {
	baseCtx    context.Context
	deps       Dependencies
	runSem     chan struct{} // Semaphore for bounded concurrency
	runTimeout time.Duration
	runs       sync.WaitGroup
}

// NewHandler creates a new handler. Runs started by the handler are
// cancelled when ctx is done.
func NewHandler(ctx context.Context, cfg *config.Config, deps Dependencies) *Handler {
	if deps.Status == nil {
		deps.Status = pipeline.NoopStatusTracker{}
	}
	maxRuns := max(1, cfg.MaxConcurrentRuns)

	return &Handler{
		baseCtx:    ctx,
		deps:       deps,
		runSem:     make(chan struct{}, maxRuns),
		runTimeout: cfg.RunTimeout,
	}
}

// Wait blocks until every run started by the handler has returned.
func (h *Handler) Wait() {
	h.runs.Wait()
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (h *Handler) ListContests(c *gin.Context) {
	contests, err := h.deps.Contests.ListContests(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contests)
}

func (h *Handler) GetContest(c *gin.Context) {
	contest, err := h.deps.Contests.GetContestByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrContestNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Contest not found",
			Code:  "CONTEST_NOT_FOUND",
		})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, contest)
}

func (h *Handler) QuestionReport(c *gin.Context) {
	questionID, err := strconv.Atoi(c.Param("questionId"))
	if err != nil || questionID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "questionId must be a positive integer",
			Code:  "INVALID_QUESTION_ID",
		})
		return
	}

	filter := repository.RecordFilter{Search: c.Query("search")}
	if raw := c.Query("min_confidence"); raw != "" {
		minConfidence, err := strconv.ParseFloat(raw, 64)
		if err != nil || minConfidence < 0 || minConfidence > 100 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "min_confidence must be a number between 0 and 100",
				Code:  "INVALID_FILTER",
			})
			return
		}
		filter.MinConfidence = minConfidence
	}

	records, err := h.deps.Records.FindByQuestion(c.Request.Context(), questionID, filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questionId": questionID,
		"count":      len(records),
		"records":    records,
	})
}

func (h *Handler) RunStatus(c *gin.Context) {
	slug := c.Param("contestSlug")
	step, err := h.deps.Status.GetStatus(c.Request.Context(), slug)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.RunStatusResponse{ContestSlug: slug, Step: step})
}

func (h *Handler) TriggerRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := pipeline.ValidateContestSlug(req.ContestSlug); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: pipeline.ErrInvalidContestSlug.Error(),
			Code:  "INVALID_CONTEST_SLUG",
		})
		return
	}

	ctx := c.Request.Context()
	step, err := h.deps.Status.GetStatus(ctx, req.ContestSlug)
	if err != nil {
		log.Warn().Err(err).Str("contestSlug", req.ContestSlug).Msg("Failed to read run status")
	}
	if inProgress(step) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "A run for this contest is already in progress",
			Code:  "RUN_IN_PROGRESS",
		})
		return
	}

	// Acquire semaphore (bounded concurrency)
	select {
	case h.runSem <- struct{}{}:
	case <-ctx.Done():
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
		return
	}

	if err := h.deps.Status.UpdateStatus(ctx, req.ContestSlug, models.StepInitiated); err != nil {
		log.Warn().Err(err).Str("contestSlug", req.ContestSlug).Msg("Failed to update initiated status")
	}

	runID := uuid.NewString()
	c.JSON(http.StatusAccepted, models.RunResponse{
		RunID:       runID,
		Step:        models.StepInitiated,
		ContestSlug: req.ContestSlug,
	})

	h.runs.Add(1)
	go h.processRun(runID, req.ContestSlug)
}

func (h *Handler) processRun(runID, contestSlug string) {
	defer h.runs.Done()
	defer func() { <-h.runSem }()

	ctx := h.baseCtx
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	report, err := h.deps.Runner.Run(ctx, contestSlug)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Str("contestSlug", contestSlug).Msg("Run failed")
		return
	}

	log.Debug().
		Str("runId", runID).
		Str("contestSlug", contestSlug).
		Int("delivered", report.Delivery.Delivered).
		Msg("Run completed successfully")
}

func inProgress(step models.Step) bool {
	switch step {
	case models.StepInitiated, models.StepCrawling, models.StepGrouping,
		models.StepDetecting, models.StepAggregating, models.StepDelivering:
		return true
	}
	return false
}
