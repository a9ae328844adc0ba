package briefings

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/jimdaga/mediecho/internal/crypto"
	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/storage"
	"github.com/jimdaga/mediecho/internal/testutil"
	"gorm.io/gorm"
)

// Wednesday; the default window is Mon 2024-01-08 through Sun 2024-01-14
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	dir    string
	locker *LocalLocker
	user   *models.User
	window Window
}

type fakeEnqueuer struct {
	ids []uint
	err error
}

func (f *fakeEnqueuer) EnqueueGenerateBrief(_ context.Context, briefID uint) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, briefID)
	return nil
}

func newFixture(t *testing.T, enqueuer Enqueuer) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	dir := t.TempDir()
	artifacts, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	enc, err := crypto.NewSummaryEncryptor("test-secret")
	if err != nil {
		t.Fatalf("NewSummaryEncryptor: %v", err)
	}

	locker := NewLocalLocker()
	opts := Options{
		DB:        db,
		Artifacts: artifacts,
		Encryptor: enc,
		Locker:    locker,
	}
	if enqueuer != nil {
		opts.Enqueuer = enqueuer
	}
	svc := NewService(opts)
	svc.now = func() time.Time { return testNow }

	return &fixture{
		svc:    svc,
		db:     db,
		dir:    dir,
		locker: locker,
		user:   testutil.CreateUser(t, db, "pat@example.com", models.PlanPro, models.SubscriptionActive),
		window: WeekOf(testNow, time.UTC),
	}
}

func (f *fixture) seedWeek(t *testing.T) {
	t.Helper()
	monday := f.window.Start
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeSymptom, "Headache", monday.Add(9*time.Hour), testutil.WithIntensity(6), testutil.WithTone(models.ToneNegative))
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeSymptom, "Migraine", monday.Add(30*time.Hour), testutil.WithIntensity(9), testutil.WithTone(models.ToneNegative))
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeMood, "Better today", monday.Add(50*time.Hour), testutil.WithTone(models.TonePositive))
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeSymptom, "Dizzy", monday.Add(70*time.Hour), testutil.WithIntensity(3))
}

func (f *fixture) briefCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	f.db.Model(&models.WeeklyBrief{}).Count(&n)
	return n
}

func (f *fixture) artifactCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	// Outside the window
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeFood, "Last week", f.window.Start.Add(-time.Hour))

	brief, err := f.svc.Generate(context.Background(), f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if brief.Status != models.BriefStatusCompleted {
		t.Errorf("expected completed, got %s", brief.Status)
	}
	if brief.LogsCount != 4 {
		t.Errorf("expected 4 logs, got %d", brief.LogsCount)
	}
	if brief.GeneratedAt == nil || !brief.GeneratedAt.Equal(testNow) {
		t.Errorf("expected generatedAt %s, got %v", testNow, brief.GeneratedAt)
	}
	if brief.SummaryIV == "" || brief.SummaryContent == "" {
		t.Error("expected encrypted summary stored")
	}
	if f.artifactCount(t) != 1 {
		t.Errorf("expected one artifact, got %d", f.artifactCount(t))
	}

	var user models.User
	f.db.First(&user, f.user.ID)
	if user.LastBriefAt == nil || !user.LastBriefAt.Equal(testNow) {
		t.Errorf("expected last brief timestamp recorded, got %v", user.LastBriefAt)
	}
}

func TestGenerateNoData(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Generate(context.Background(), f.user, f.window, false)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if n := f.briefCount(t); n != 0 {
		t.Errorf("expected no record, got %d", n)
	}
	if n := f.artifactCount(t); n != 0 {
		t.Errorf("expected no artifact, got %d", n)
	}
}

func TestGenerateMinLogs(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.minLogs = 5
	f.seedWeek(t)

	if _, err := f.svc.Generate(context.Background(), f.user, f.window, false); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData below the minimum, got %v", err)
	}
}

func TestGenerateDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	_, err = f.svc.Generate(ctx, f.user, f.window, false)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) || dup.BriefID != first.ID {
		t.Errorf("expected duplicate of %d, got %v", first.ID, err)
	}

	if n := f.briefCount(t); n != 1 {
		t.Errorf("expected one record, got %d", n)
	}
	if n := f.artifactCount(t); n != 1 {
		t.Errorf("expected one artifact, got %d", n)
	}
}

func TestGenerateLockHeld(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)

	unlock, ok, _ := f.locker.TryLock(context.Background(), windowLockKey(f.user.ID, f.window), time.Minute)
	if !ok {
		t.Fatal("expected to take the window lock")
	}
	defer unlock()

	_, err := f.svc.Generate(context.Background(), f.user, f.window, false)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if n := f.briefCount(t); n != 0 {
		t.Errorf("expected no record, got %d", n)
	}
}

func TestGenerateInsertRaceRemovesArtifact(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	ctx := context.Background()

	entries, err := f.svc.logs.InWindow(ctx, f.user.ID, f.window.Start, f.window.End)
	if err != nil {
		t.Fatalf("InWindow: %v", err)
	}

	// A concurrent winner inserted between the pre-check and our insert
	winner := &models.WeeklyBrief{
		UserID:    f.user.ID,
		WeekStart: f.window.Start,
		WeekEnd:   f.window.End,
		Status:    models.BriefStatusCompleted,
	}
	if err := f.db.Create(winner).Error; err != nil {
		t.Fatalf("create winner: %v", err)
	}

	_, err = f.svc.generateSync(ctx, f.user, f.window, entries)
	var dup *DuplicateError
	if !errors.As(err, &dup) || dup.BriefID != winner.ID {
		t.Fatalf("expected duplicate of the winner, got %v", err)
	}
	if n := f.artifactCount(t); n != 0 {
		t.Errorf("expected orphaned artifact removed, got %d files", n)
	}
}

func TestGenerateReplacesFailedBrief(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)

	failed := &models.WeeklyBrief{
		UserID:       f.user.ID,
		WeekStart:    f.window.Start,
		WeekEnd:      f.window.End,
		Status:       models.BriefStatusFailed,
		ErrorMessage: "boom",
	}
	if err := f.db.Create(failed).Error; err != nil {
		t.Fatalf("create failed brief: %v", err)
	}

	brief, err := f.svc.Generate(context.Background(), f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if brief.ID == failed.ID {
		t.Error("expected a new record")
	}
	if n := f.briefCount(t); n != 1 {
		t.Errorf("expected one live record, got %d", n)
	}
}

func TestGenerateAsync(t *testing.T) {
	enq := &fakeEnqueuer{}
	f := newFixture(t, enq)
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if brief.Status != models.BriefStatusGenerating {
		t.Fatalf("expected generating, got %s", brief.Status)
	}
	if len(enq.ids) != 1 || enq.ids[0] != brief.ID {
		t.Fatalf("expected brief %d enqueued, got %v", brief.ID, enq.ids)
	}
	if f.artifactCount(t) != 0 {
		t.Error("expected no artifact before completion")
	}

	// A second request while generating is a duplicate
	if _, err := f.svc.Generate(ctx, f.user, f.window, true); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate while generating, got %v", err)
	}

	if err := f.svc.Complete(ctx, brief.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	done, err := f.svc.Get(ctx, f.user.ID, brief.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if done.Status != models.BriefStatusCompleted || done.ArtifactPath == "" || done.GeneratedAt == nil {
		t.Errorf("expected completed brief with artifact, got %+v", done)
	}

	// Completing twice is a no-op
	if err := f.svc.Complete(ctx, brief.ID); err != nil {
		t.Errorf("expected second Complete to be a no-op, got %v", err)
	}
	if n := f.artifactCount(t); n != 1 {
		t.Errorf("expected one artifact, got %d", n)
	}
}

func TestGenerateAsyncEnqueueFailure(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{err: errors.New("redis down")})
	f.seedWeek(t)

	if _, err := f.svc.Generate(context.Background(), f.user, f.window, true); err == nil {
		t.Fatal("expected enqueue failure")
	}

	var brief models.WeeklyBrief
	if err := f.db.First(&brief).Error; err != nil {
		t.Fatalf("expected a record: %v", err)
	}
	if brief.Status != models.BriefStatusFailed {
		t.Errorf("expected failed, got %s", brief.Status)
	}
}

func TestCompleteWithoutLogsFails(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{})
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f.db.Where("user_id = ?", f.user.ID).Delete(&models.LogEntry{})

	if err := f.svc.Complete(ctx, brief.ID); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	got, _ := f.svc.Get(ctx, f.user.ID, brief.ID)
	if got.Status != models.BriefStatusFailed || got.ErrorMessage == "" {
		t.Errorf("expected failed with message, got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	summary, err := f.svc.Summary(ctx, f.user.ID, brief.ID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalLogs != 4 || summary.ByType[models.LogTypeSymptom] != 3 || summary.ByType[models.LogTypeMood] != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.AvgIntensity != 6.0 {
		t.Errorf("expected avg 6.0, got %v", summary.AvgIntensity)
	}
	if len(summary.Highlights) != 1 || summary.Highlights[0].Text != "Migraine" {
		t.Errorf("unexpected highlights %+v", summary.Highlights)
	}
}

func TestOpenArtifact(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	_, rc, err := f.svc.OpenArtifact(ctx, f.user.ID, brief.ID)
	if err != nil {
		t.Fatalf("OpenArtifact: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		t.Error("expected a PDF document")
	}

	other := testutil.CreateUser(t, f.db, "other@example.com", models.PlanPro, models.SubscriptionActive)
	if _, _, err := f.svc.OpenArtifact(ctx, other.ID, brief.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
}

func TestDeleteRemovesArtifact(t *testing.T) {
	f := newFixture(t, nil)
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := f.svc.Delete(ctx, f.user.ID, brief.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := f.artifactCount(t); n != 0 {
		t.Errorf("expected artifact removed, got %d files", n)
	}
	if _, err := f.svc.Get(ctx, f.user.ID, brief.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// The window is free again
	if _, err := f.svc.Generate(ctx, f.user, f.window, false); err != nil {
		t.Errorf("expected regeneration after delete, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for week := 0; week < 3; week++ {
		w := WeekOf(testNow.AddDate(0, 0, -7*week), time.UTC)
		testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeMood, "ok", w.Start.Add(time.Hour))
		if _, err := f.svc.Generate(ctx, f.user, w, false); err != nil {
			t.Fatalf("Generate week %d: %v", week, err)
		}
	}

	briefs, err := f.svc.List(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(briefs) != 3 {
		t.Fatalf("expected 3 briefs, got %d", len(briefs))
	}
	for i := 1; i < len(briefs); i++ {
		if !briefs[i].WeekStart.Before(briefs[i-1].WeekStart) {
			t.Errorf("briefs not ordered newest first at %d", i)
		}
	}
}

func TestGenerateScheduled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lastWeek := WeekOf(testNow.AddDate(0, 0, -7), time.UTC)
	testutil.CreateLog(t, f.db, f.user.ID, models.LogTypeFitness, "Swim", lastWeek.Start.Add(10*time.Hour))

	brief, err := f.svc.GenerateScheduled(ctx, f.user)
	if err != nil || brief == nil {
		t.Fatalf("GenerateScheduled: brief=%v err=%v", brief, err)
	}
	if !brief.WeekStart.Equal(lastWeek.Start) {
		t.Errorf("expected last week's window, got %s", brief.WeekStart)
	}

	// Already generated: skipped without error
	again, err := f.svc.GenerateScheduled(ctx, f.user)
	if err != nil || again != nil {
		t.Errorf("expected skip, got brief=%v err=%v", again, err)
	}
}

// deletingStore soft-deletes a brief while its document is being saved
type deletingStore struct {
	storage.Store
	onSave func()
}

func (d *deletingStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	d.onSave()
	return d.Store.Save(ctx, name, data)
}

func TestCompleteDiscardsArtifactWhenDeleted(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{})
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f.svc.artifacts = &deletingStore{Store: f.svc.artifacts, onSave: func() {
		f.db.Delete(&models.WeeklyBrief{}, brief.ID)
	}}

	if err := f.svc.Complete(ctx, brief.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := f.artifactCount(t); n != 0 {
		t.Errorf("expected orphaned artifact removed, found %d", n)
	}

	var user models.User
	f.db.First(&user, f.user.ID)
	if user.LastBriefAt != nil {
		t.Errorf("expected no completion recorded, got %v", user.LastBriefAt)
	}
}

func TestFailMarksGeneratingBrief(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{})
	f.seedWeek(t)
	ctx := context.Background()

	brief, err := f.svc.Generate(ctx, f.user, f.window, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := f.svc.Fail(ctx, brief.ID, "retries exhausted"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := f.svc.Get(ctx, f.user.ID, brief.ID)
	if got.Status != models.BriefStatusFailed || got.ErrorMessage != "retries exhausted" {
		t.Fatalf("expected failed brief, got %s %q", got.Status, got.ErrorMessage)
	}

	// The window is free again
	if _, err := f.svc.Generate(ctx, f.user, f.window, false); err != nil {
		t.Fatalf("expected regeneration after failure, got %v", err)
	}

	// Finished briefs are left alone
	done, _ := f.svc.List(ctx, f.user.ID)
	if err := f.svc.Fail(ctx, done[0].ID, "late"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	again, _ := f.svc.Get(ctx, f.user.ID, done[0].ID)
	if again.Status != models.BriefStatusCompleted {
		t.Errorf("expected completed brief untouched, got %s", again.Status)
	}

	if err := f.svc.Fail(ctx, 9999, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown brief, got %v", err)
	}
}

func TestGenerateReplacesStaleGeneratingBrief(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{})
	f.seedWeek(t)
	ctx := context.Background()

	stuck, err := f.svc.Generate(ctx, f.user, f.window, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Still fresh: a duplicate
	f.svc.now = func() time.Time { return stuck.CreatedAt.Add(time.Minute) }
	if _, err := f.svc.Generate(ctx, f.user, f.window, false); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a fresh generating brief, got %v", err)
	}

	f.svc.now = func() time.Time { return stuck.CreatedAt.Add(staleGeneratingAfter + time.Minute) }
	brief, err := f.svc.Generate(ctx, f.user, f.window, false)
	if err != nil {
		t.Fatalf("expected stale brief replaced, got %v", err)
	}
	if brief.ID == stuck.ID || brief.Status != models.BriefStatusCompleted {
		t.Errorf("expected a new completed brief, got %+v", brief)
	}

	// The stale task finding its record gone is terminal
	if err := f.svc.Complete(ctx, stuck.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound completing the replaced brief, got %v", err)
	}
	if n := f.briefCount(t); n != 1 {
		t.Errorf("expected one live brief, got %d", n)
	}
}

func TestGenerateAsyncMinLogs(t *testing.T) {
	f := newFixture(t, &fakeEnqueuer{})
	f.seedWeek(t)
	f.svc.minLogs = 5

	if _, err := f.svc.Generate(context.Background(), f.user, f.window, true); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if n := f.briefCount(t); n != 0 {
		t.Errorf("expected no record, got %d", n)
	}
}
