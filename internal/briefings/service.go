// Package briefings generates weekly health briefs from a user's log entries.
package briefings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jimdaga/mediecho/internal/crypto"
	"github.com/jimdaga/mediecho/internal/logs"
	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/storage"
	"github.com/jimdaga/mediecho/internal/streams"
	"gorm.io/gorm"
)

// Generation failures
var (
	ErrNotFound  = errors.New("brief not found")
	ErrDuplicate = errors.New("brief already exists for this window")
	ErrNoData    = errors.New("no log entries in window")
	ErrBusy      = errors.New("brief generation already in progress")
	ErrNotReady  = errors.New("brief is not ready")
	ErrFailed    = errors.New("brief generation failed")

	errWindowTaken = errors.New("window already has a brief")
)

// DuplicateError reports the brief that already covers the requested window
type DuplicateError struct {
	BriefID uint
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v (id %d)", ErrDuplicate, e.BriefID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Enqueuer schedules background completion of a generating brief
type Enqueuer interface {
	EnqueueGenerateBrief(ctx context.Context, briefID uint) error
}

// EventPublisher announces finished briefs
type EventPublisher interface {
	PublishBriefEvent(ctx context.Context, event streams.BriefEvent) (string, error)
}

const (
	lockTTL = 2 * time.Minute
	// Longer than every retry of a brief:generate task combined
	staleGeneratingAfter = time.Hour
)

// Options configures a Service. Enqueuer and Events are optional.
type Options struct {
	DB        *gorm.DB
	Artifacts storage.Store
	Encryptor *crypto.SummaryEncryptor
	Locker    Locker
	Enqueuer  Enqueuer
	Events    EventPublisher
	Location  *time.Location
	MinLogs   int
	Logger    *slog.Logger
}

// Service orchestrates brief generation and access
type Service struct {
	db        *gorm.DB
	logs      *logs.Store
	briefs    *Store
	artifacts storage.Store
	encryptor *crypto.SummaryEncryptor
	renderer  *Renderer
	locker    Locker
	enqueuer  Enqueuer
	events    EventPublisher
	loc       *time.Location
	minLogs   int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service
func NewService(opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	locker := opts.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	minLogs := opts.MinLogs
	if minLogs < 1 {
		minLogs = 1
	}

	return &Service{
		db:        opts.DB,
		logs:      logs.NewStore(opts.DB),
		briefs:    NewStore(opts.DB),
		artifacts: opts.Artifacts,
		encryptor: opts.Encryptor,
		renderer:  NewRenderer(loc),
		locker:    locker,
		enqueuer:  opts.Enqueuer,
		events:    opts.Events,
		loc:       loc,
		minLogs:   minLogs,
		logger:    logger,
		now:       time.Now,
	}
}

// Location returns the timezone used for default windows and rendered dates
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock
func (s *Service) Now() time.Time { return s.now() }

// Generate produces the brief for user over w. When async is set the record is
// created in the generating state and completed by a background task.
func (s *Service) Generate(ctx context.Context, user *models.User, w Window, async bool) (*models.WeeklyBrief, error) {
	w = w.normalize()

	if err := s.checkWindowFree(ctx, user.ID, w); err != nil {
		return nil, err
	}

	unlock, ok, err := s.locker.TryLock(ctx, windowLockKey(user.ID, w), lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	defer unlock()

	// A concurrent winner may have finished between the first check and the lock
	if err := s.checkWindowFree(ctx, user.ID, w); err != nil {
		return nil, err
	}

	if async && s.enqueuer != nil {
		count, err := s.logs.CountInWindow(ctx, user.ID, w.Start, w.End)
		if err != nil {
			return nil, err
		}
		if count < int64(s.minLogs) {
			return nil, ErrNoData
		}
		return s.startAsync(ctx, user, w, int(count))
	}

	entries, err := s.logs.InWindow(ctx, user.ID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	if len(entries) < s.minLogs {
		return nil, ErrNoData
	}
	return s.generateSync(ctx, user, w, entries)
}

// checkWindowFree fails with a DuplicateError when a live brief covers w.
// A failed brief, or one left generating past staleGeneratingAfter, is discarded
// so the window can be generated again.
func (s *Service) checkWindowFree(ctx context.Context, userID uint, w Window) error {
	existing, err := s.briefs.FindByWindow(ctx, userID, w)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case existing.Status == models.BriefStatusFailed:
		s.logger.Info("Replacing failed brief", "brief_id", existing.ID, "user_id", userID)
		return s.briefs.Delete(ctx, existing)
	case existing.Status == models.BriefStatusGenerating && s.now().Sub(existing.CreatedAt) > staleGeneratingAfter:
		s.logger.Warn("Replacing stale generating brief",
			"brief_id", existing.ID,
			"user_id", userID,
			"created_at", existing.CreatedAt,
		)
		return s.briefs.Delete(ctx, existing)
	}
	return &DuplicateError{BriefID: existing.ID}
}

func (s *Service) generateSync(ctx context.Context, user *models.User, w Window, entries []models.LogEntry) (*models.WeeklyBrief, error) {
	generatedAt := s.now()
	built, err := s.build(ctx, user, w, entries, generatedAt)
	if err != nil {
		return nil, err
	}

	brief := &models.WeeklyBrief{
		UserID:         user.ID,
		WeekStart:      w.Start,
		WeekEnd:        w.End,
		SummaryIV:      built.sealed.IV,
		SummaryContent: built.sealed.Content,
		ArtifactPath:   built.location,
		Status:         models.BriefStatusCompleted,
		LogsCount:      len(entries),
		GeneratedAt:    &generatedAt,
	}

	if err := s.briefs.Create(ctx, brief); err != nil {
		s.removeArtifact(ctx, built.location)
		if errors.Is(err, errWindowTaken) {
			return nil, s.duplicateOf(ctx, user.ID, w)
		}
		return nil, err
	}

	s.logger.Info("Brief generated",
		"brief_id", brief.ID,
		"user_id", user.ID,
		"logs_count", brief.LogsCount,
	)
	s.publish(ctx, brief, streams.EventBriefCompleted, "")
	return brief, nil
}

func (s *Service) startAsync(ctx context.Context, user *models.User, w Window, count int) (*models.WeeklyBrief, error) {
	brief := &models.WeeklyBrief{
		UserID:    user.ID,
		WeekStart: w.Start,
		WeekEnd:   w.End,
		Status:    models.BriefStatusGenerating,
		LogsCount: count,
	}
	if err := s.briefs.Create(ctx, brief); err != nil {
		if errors.Is(err, errWindowTaken) {
			return nil, s.duplicateOf(ctx, user.ID, w)
		}
		return nil, err
	}

	if err := s.enqueuer.EnqueueGenerateBrief(ctx, brief.ID); err != nil {
		s.markFailed(ctx, brief, "Failed to enqueue generation task")
		return nil, fmt.Errorf("failed to enqueue brief generation: %w", err)
	}

	s.logger.Info("Brief generation enqueued", "brief_id", brief.ID, "user_id", user.ID)
	return brief, nil
}

// Complete finishes a generating brief. It is run by the background worker.
// ErrNotFound, ErrNoData and ErrFailed leave the record in a final state; other
// errors leave it generating so the task can be retried.
func (s *Service) Complete(ctx context.Context, briefID uint) error {
	brief, err := s.briefs.GetByID(ctx, briefID)
	if err != nil {
		return err
	}
	if brief.Status != models.BriefStatusGenerating {
		s.logger.Info("Brief already finished, skipping", "brief_id", briefID, "status", brief.Status)
		return nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, brief.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.markFailed(ctx, brief, "User not found")
			return ErrNotFound
		}
		return fmt.Errorf("failed to load brief owner: %w", err)
	}

	w := Window{Start: brief.WeekStart, End: brief.WeekEnd}
	entries, err := s.logs.InWindow(ctx, user.ID, w.Start, w.End)
	if err != nil {
		return err
	}
	if len(entries) < s.minLogs {
		s.markFailed(ctx, brief, "No logs found for this week")
		return ErrNoData
	}

	generatedAt := s.now()
	built, err := s.build(ctx, &user, w, entries, generatedAt)
	if err != nil {
		s.markFailed(ctx, brief, err.Error())
		return fmt.Errorf("%w: %w", ErrFailed, err)
	}

	err = s.briefs.Update(ctx, brief, map[string]interface{}{
		"summary_iv":      built.sealed.IV,
		"summary_content": built.sealed.Content,
		"artifact_path":   built.location,
		"status":          models.BriefStatusCompleted,
		"logs_count":      len(entries),
		"generated_at":    generatedAt,
		"error_message":   "",
	})
	if errors.Is(err, ErrNotFound) {
		// Deleted while generating
		s.logger.Warn("Brief deleted during generation, discarding artifact", "brief_id", brief.ID, "location", built.location)
		s.removeArtifact(ctx, built.location)
		return ErrNotFound
	}
	if err != nil {
		s.removeArtifact(ctx, built.location)
		s.markFailed(ctx, brief, "Failed to save brief")
		return fmt.Errorf("%w: %w", ErrFailed, err)
	}
	brief.Status = models.BriefStatusCompleted
	brief.LogsCount = len(entries)
	brief.GeneratedAt = &generatedAt

	s.logger.Info("Brief generation completed", "brief_id", brief.ID, "user_id", user.ID)
	s.publish(ctx, brief, streams.EventBriefCompleted, "")
	return nil
}

// Fail moves a generating brief to failed with message. Briefs in any other
// state are left alone.
func (s *Service) Fail(ctx context.Context, briefID uint, message string) error {
	brief, err := s.briefs.GetByID(ctx, briefID)
	if err != nil {
		return err
	}
	if brief.Status != models.BriefStatusGenerating {
		return nil
	}
	s.markFailed(ctx, brief, message)
	return nil
}

// GenerateScheduled produces last week's brief for user. Windows that already have a
// brief or have no entries are skipped without error.
func (s *Service) GenerateScheduled(ctx context.Context, user *models.User) (*models.WeeklyBrief, error) {
	w := WeekOf(s.now().In(s.loc).AddDate(0, 0, -7), s.loc)

	brief, err := s.Generate(ctx, user, w, false)
	switch {
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrNoData), errors.Is(err, ErrBusy):
		s.logger.Debug("Skipping scheduled brief", "user_id", user.ID, "reason", err.Error())
		return nil, nil
	case err != nil:
		return nil, err
	}
	return brief, nil
}

// List returns the user's most recent briefs, newest window first
func (s *Service) List(ctx context.Context, userID uint) ([]models.WeeklyBrief, error) {
	return s.briefs.List(ctx, userID)
}

// Get returns one of the user's briefs
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.WeeklyBrief, error) {
	return s.briefs.Get(ctx, userID, id)
}

// OpenArtifact returns the brief and a reader over its rendered document
func (s *Service) OpenArtifact(ctx context.Context, userID, id uint) (*models.WeeklyBrief, io.ReadCloser, error) {
	brief, err := s.briefs.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	if brief.Status != models.BriefStatusCompleted || brief.ArtifactPath == "" {
		return nil, nil, ErrNotReady
	}

	rc, err := s.artifacts.Open(ctx, brief.ArtifactPath)
	if err != nil {
		return nil, nil, err
	}
	return brief, rc, nil
}

// Summary decrypts the stored summary of one of the user's briefs
func (s *Service) Summary(ctx context.Context, userID, id uint) (*Summary, error) {
	brief, err := s.briefs.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if brief.Status != models.BriefStatusCompleted || brief.SummaryContent == "" {
		return nil, ErrNotReady
	}

	plaintext, err := s.encryptor.Decrypt(crypto.Sealed{IV: brief.SummaryIV, Content: brief.SummaryContent})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(plaintext, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &summary, nil
}

// Delete removes one of the user's briefs and its rendered document
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	brief, err := s.briefs.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if brief.ArtifactPath != "" {
		err := s.artifacts.Delete(ctx, brief.ArtifactPath)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	return s.briefs.Delete(ctx, brief)
}

type builtBrief struct {
	location string
	sealed   crypto.Sealed
}

// build summarizes, renders, stores and encrypts. On failure nothing is left in the artifact store.
func (s *Service) build(ctx context.Context, user *models.User, w Window, entries []models.LogEntry, generatedAt time.Time) (*builtBrief, error) {
	summary := Summarize(entries)

	doc, err := s.renderer.Render(RenderInput{
		User:        user,
		Summary:     summary,
		Window:      w,
		GeneratedAt: generatedAt,
	})
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt summary: %w", err)
	}

	name := fmt.Sprintf("brief_%d_%d.pdf", user.ID, generatedAt.UnixNano())
	location, err := s.artifacts.Save(ctx, name, doc)
	if err != nil {
		return nil, err
	}

	return &builtBrief{location: location, sealed: sealed}, nil
}

func (s *Service) duplicateOf(ctx context.Context, userID uint, w Window) error {
	existing, err := s.briefs.FindByWindow(ctx, userID, w)
	if err != nil {
		return ErrDuplicate
	}
	return &DuplicateError{BriefID: existing.ID}
}

func (s *Service) removeArtifact(ctx context.Context, location string) {
	// The request context may already be canceled; cleanup must still run
	ctx = context.WithoutCancel(ctx)
	if err := s.artifacts.Delete(ctx, location); err != nil {
		s.logger.Error("Failed to remove orphaned artifact", "location", location, "error", err)
	}
}

func (s *Service) markFailed(ctx context.Context, brief *models.WeeklyBrief, message string) {
	ctx = context.WithoutCancel(ctx)
	err := s.briefs.Update(ctx, brief, map[string]interface{}{
		"status":        models.BriefStatusFailed,
		"error_message": message,
	})
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("Brief deleted before it could be marked failed", "brief_id", brief.ID)
		return
	}
	if err != nil {
		s.logger.Error("Failed to mark brief failed", "brief_id", brief.ID, "error", err)
	}
	s.publish(ctx, brief, streams.EventBriefFailed, message)
}

// publish announces a finished brief. Without a publisher the user record is updated directly.
func (s *Service) publish(ctx context.Context, brief *models.WeeklyBrief, status, message string) {
	event := streams.BriefEvent{
		BriefID:   brief.ID,
		UserID:    brief.UserID,
		Status:    status,
		WeekStart: brief.WeekStart,
		WeekEnd:   brief.WeekEnd,
		LogsCount: brief.LogsCount,
		Error:     message,
	}
	if brief.GeneratedAt != nil {
		event.GeneratedAt = *brief.GeneratedAt
	}

	if s.events == nil {
		if err := streams.RecordBriefEvent(ctx, s.db, event); err != nil {
			s.logger.Warn("Failed to record brief event", "brief_id", brief.ID, "error", err)
		}
		return
	}
	if _, err := s.events.PublishBriefEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish brief event", "brief_id", brief.ID, "error", err)
	}
}
