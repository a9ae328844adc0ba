package briefings

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/storage"
)

// View is the brief metadata returned to clients. Summaries and documents are
// only served by their dedicated endpoints.
type View struct {
	ID           uint       `json:"id"`
	WeekStart    time.Time  `json:"weekStart"`
	WeekEnd      time.Time  `json:"weekEnd"`
	LogsCount    int        `json:"logsCount"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	GeneratedAt  *time.Time `json:"generatedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// NewView builds the metadata view of brief
func NewView(brief *models.WeeklyBrief) View {
	return View{
		ID:           brief.ID,
		WeekStart:    brief.WeekStart,
		WeekEnd:      brief.WeekEnd,
		LogsCount:    brief.LogsCount,
		Status:       brief.Status,
		ErrorMessage: brief.ErrorMessage,
		GeneratedAt:  brief.GeneratedAt,
		CreatedAt:    brief.CreatedAt,
	}
}

// Handler serves the brief endpoints
type Handler struct {
	svc  *Service
	errs apierror.Responder
}

// NewHandler creates a Handler
func NewHandler(svc *Service, errs apierror.Responder) *Handler {
	return &Handler{svc: svc, errs: errs}
}

type generateRequest struct {
	WeekStartDate string `json:"weekStartDate"`
	WeekEndDate   string `json:"weekEndDate"`
}

// Generate creates the brief for the requested window. With ?async=true the
// response is 202 and the brief completes in the background.
func (h *Handler) Generate(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	window, err := ResolveWindow(req.WeekStartDate, req.WeekEndDate, h.svc.Now(), h.svc.Location())
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	brief, err := h.svc.Generate(c.Request.Context(), user, window, async)
	if err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}

	status := http.StatusCreated
	if brief.Status == models.BriefStatusGenerating {
		status = http.StatusAccepted
	}
	apierror.OK(c, status, NewView(brief))
}

// List returns the user's recent briefs
func (h *Handler) List(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	briefs, err := h.svc.List(c.Request.Context(), user.ID)
	if err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}

	views := make([]View, 0, len(briefs))
	for i := range briefs {
		views = append(views, NewView(&briefs[i]))
	}
	apierror.OK(c, http.StatusOK, views)
}

// Get returns the metadata of one brief
func (h *Handler) Get(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	brief, err := h.svc.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}
	apierror.OK(c, http.StatusOK, NewView(brief))
}

// Download streams the rendered document as an attachment
func (h *Handler) Download(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	brief, rc, err := h.svc.OpenArtifact(c.Request.Context(), user.ID, id)
	if err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}
	defer rc.Close()

	filename := fmt.Sprintf("weekly-brief-%s.pdf", brief.WeekEnd.In(h.svc.Location()).Format("2006-01-02"))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, filename),
	})
}

// Summary returns the decrypted summary of one brief
func (h *Handler) Summary(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), user.ID, id)
	if err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}
	apierror.OK(c, http.StatusOK, summary)
}

// Delete removes one brief and its document
func (h *Handler) Delete(c *gin.Context) {
	user, id, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.errs.Respond(c, mapError(err))
		return
	}
	apierror.OK(c, http.StatusOK, gin.H{})
}

func (h *Handler) target(c *gin.Context) (*models.User, uint, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return nil, 0, false
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.errs.Respond(c, apierror.NotFound("Brief not found"))
		return nil, 0, false
	}
	return user, uint(id), true
}

// mapError translates service failures into client errors
func mapError(err error) error {
	var dup *DuplicateError
	var apiErr *apierror.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &dup):
		return apierror.Precondition("Brief already exists for this week").
			WithCode("BRIEF_EXISTS").
			With("briefId", dup.BriefID)
	case errors.Is(err, ErrDuplicate):
		return apierror.Precondition("Brief already exists for this week").WithCode("BRIEF_EXISTS")
	case errors.Is(err, ErrNoData):
		return apierror.Precondition("No logs found for this week").WithCode("NO_LOGS")
	case errors.Is(err, ErrBusy):
		return apierror.Precondition("Brief generation already in progress for this week").WithCode("GENERATION_IN_PROGRESS")
	case errors.Is(err, ErrNotReady):
		return apierror.Precondition("Brief is not ready").WithCode("BRIEF_NOT_READY")
	case errors.Is(err, ErrNotFound):
		return apierror.NotFound("Brief not found")
	case errors.Is(err, storage.ErrNotFound):
		return apierror.NotFound("Brief file not found")
	default:
		return apierror.Internal(err)
	}
}
