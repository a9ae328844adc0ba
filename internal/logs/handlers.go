package logs

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/datatypes"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// View is the client representation of a log entry
type View struct {
	ID          uint           `json:"id"`
	Type        models.LogType `json:"type"`
	Text        string         `json:"text"`
	Tone        models.Tone    `json:"tone,omitempty"`
	Meta        models.LogMeta `json:"meta"`
	IsEncrypted bool           `json:"isEncrypted"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewView builds the client representation of entry
func NewView(entry *models.LogEntry) View {
	return View{
		ID:          entry.ID,
		Type:        entry.Type,
		Text:        entry.Text,
		Tone:        entry.Tone,
		Meta:        entry.Meta.Data(),
		IsEncrypted: entry.IsEncrypted,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

// Handler serves the log entry endpoints
type Handler struct {
	store *Store
	errs  apierror.Responder
}

// NewHandler creates a Handler
func NewHandler(store *Store, errs apierror.Responder) *Handler {
	return &Handler{store: store, errs: errs}
}

type createRequest struct {
	Type        models.LogType  `json:"type" binding:"required,oneof=symptom fitness food mood voice"`
	Text        string          `json:"text" binding:"required,max=10000"`
	Tone        models.Tone     `json:"tone" binding:"omitempty,oneof=positive negative neutral anxious calm urgent"`
	Meta        json.RawMessage `json:"meta"`
	IsEncrypted bool            `json:"isEncrypted"`
}

type updateRequest struct {
	Type *models.LogType `json:"type" binding:"omitempty,oneof=symptom fitness food mood voice"`
	Text *string         `json:"text" binding:"omitempty,max=10000"`
	Tone *models.Tone    `json:"tone" binding:"omitempty,oneof=positive negative neutral anxious calm urgent"`
	Meta json.RawMessage `json:"meta"`
}

// Create stores a new entry for the authenticated user
func (h *Handler) Create(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		h.errs.Respond(c, apierror.Validation("Validation failed", "text is required"))
		return
	}

	meta, err := ParseMeta(req.Meta)
	if err != nil {
		h.errs.Respond(c, metaError(err))
		return
	}

	entry := models.LogEntry{
		UserID:      user.ID,
		Type:        req.Type,
		Text:        text,
		Tone:        req.Tone,
		Meta:        datatypes.NewJSONType(meta),
		IsEncrypted: req.IsEncrypted,
	}
	if err := h.store.Create(c.Request.Context(), &entry); err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	apierror.OK(c, http.StatusCreated, NewView(&entry))
}

// List returns a filtered page of the authenticated user's entries
func (h *Handler) List(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	entries, total, err := h.store.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	views := make([]View, 0, len(entries))
	for i := range entries {
		views = append(views, NewView(&entries[i]))
	}

	apierror.OK(c, http.StatusOK, gin.H{
		"logs": views,
		"pagination": gin.H{
			"page":  filter.Page,
			"limit": filter.Limit,
			"total": total,
			"pages": int(math.Ceil(float64(total) / float64(filter.Limit))),
		},
	})
}

// Get returns one of the authenticated user's entries
func (h *Handler) Get(c *gin.Context) {
	entry, ok := h.loadOwned(c)
	if !ok {
		return
	}
	apierror.OK(c, http.StatusOK, NewView(entry))
}

// Update edits one of the authenticated user's entries
func (h *Handler) Update(c *gin.Context) {
	entry, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errs.Respond(c, apierror.FromBinding(err))
		return
	}

	if req.Type != nil {
		entry.Type = *req.Type
	}
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if text == "" {
			h.errs.Respond(c, apierror.Validation("Validation failed", "text is required"))
			return
		}
		entry.Text = text
	}
	if req.Tone != nil {
		entry.Tone = *req.Tone
	}
	if len(req.Meta) > 0 {
		meta, err := ParseMeta(req.Meta)
		if err != nil {
			h.errs.Respond(c, metaError(err))
			return
		}
		entry.Meta = datatypes.NewJSONType(meta)
	}

	if err := h.store.Save(c.Request.Context(), entry); err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	apierror.OK(c, http.StatusOK, NewView(entry))
}

// Delete removes one of the authenticated user's entries
func (h *Handler) Delete(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), user.ID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.errs.Respond(c, apierror.NotFound("Log not found"))
			return
		}
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	apierror.OK(c, http.StatusOK, gin.H{})
}

// Stats returns per-type counts and latest timestamps
func (h *Handler) Stats(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		h.errs.Respond(c, err)
		return
	}

	stats, err := h.store.Stats(c.Request.Context(), user.ID, filter.Start, filter.End)
	if err != nil {
		h.errs.Respond(c, apierror.Internal(err))
		return
	}

	apierror.OK(c, http.StatusOK, stats)
}

func (h *Handler) loadOwned(c *gin.Context) (*models.LogEntry, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		h.errs.Respond(c, apierror.Unauthenticated("Not authorized to access this route"))
		return nil, false
	}
	id, ok := h.parseID(c)
	if !ok {
		return nil, false
	}

	entry, err := h.store.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.errs.Respond(c, apierror.NotFound("Log not found"))
			return nil, false
		}
		h.errs.Respond(c, apierror.Internal(err))
		return nil, false
	}
	return entry, true
}

func (h *Handler) parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		h.errs.Respond(c, apierror.NotFound("Log not found"))
		return 0, false
	}
	return uint(id), true
}

func parseFilter(c *gin.Context) (Filter, error) {
	f := Filter{Page: 1, Limit: defaultPageSize}

	if v := c.Query("start"); v != "" {
		t, _, err := ParseTime(v, time.UTC)
		if err != nil {
			return f, apierror.Validation("Invalid start date", err.Error())
		}
		f.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, dateOnly, err := ParseTime(v, time.UTC)
		if err != nil {
			return f, apierror.Validation("Invalid end date", err.Error())
		}
		if dateOnly {
			t = EndOfDay(t)
		}
		f.End = &t
	}
	if v := c.Query("type"); v != "" {
		if !models.ValidLogType(models.LogType(v)) {
			return f, apierror.Validation("Invalid log type", "type must be one of: symptom fitness food mood voice")
		}
		f.Type = models.LogType(v)
	}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, apierror.Validation("Invalid page", "page must be a positive integer")
		}
		f.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, apierror.Validation("Invalid limit", "limit must be a positive integer")
		}
		f.Limit = min(n, maxPageSize)
	}
	return f, nil
}

func metaError(err error) error {
	var verr *MetaValidationError
	if errors.As(err, &verr) {
		return apierror.Validation("Validation failed", verr.Problems...)
	}
	return apierror.Internal(err)
}
