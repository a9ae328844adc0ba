package logs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/testutil"
)

func TestInWindowInclusiveAndOrdered(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "win@example.com", models.PlanPro, models.SubscriptionActive)
	other := testutil.CreateUser(t, db, "other@example.com", models.PlanPro, models.SubscriptionActive)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)

	testutil.CreateLog(t, db, user.ID, models.LogTypeMood, "before", start.Add(-time.Second))
	testutil.CreateLog(t, db, user.ID, models.LogTypeMood, "third", start.Add(48*time.Hour))
	testutil.CreateLog(t, db, user.ID, models.LogTypeSymptom, "first", start)
	testutil.CreateLog(t, db, user.ID, models.LogTypeFood, "last", end)
	testutil.CreateLog(t, db, user.ID, models.LogTypeFood, "after", end.Add(time.Second))
	testutil.CreateLog(t, db, other.ID, models.LogTypeFood, "not mine", start.Add(time.Hour))

	entries, err := store.InWindow(ctx, user.ID, start, end)
	if err != nil {
		t.Fatalf("InWindow: %v", err)
	}

	want := []string{"first", "third", "last"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Text != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], e.Text)
		}
	}

	count, err := store.CountInWindow(ctx, user.ID, start, end)
	if err != nil {
		t.Fatalf("CountInWindow: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestListPaginationAndFilter(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "list@example.com", models.PlanFree, models.SubscriptionNone)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		testutil.CreateLog(t, db, user.ID, models.LogTypeSymptom, "symptom", base.Add(time.Duration(i)*time.Hour))
	}
	testutil.CreateLog(t, db, user.ID, models.LogTypeMood, "mood", base.Add(10*time.Hour))

	entries, total, err := store.List(ctx, user.ID, Filter{Page: 1, Limit: 4})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 6 || len(entries) != 4 {
		t.Fatalf("expected 4 of 6, got %d of %d", len(entries), total)
	}
	if entries[0].Type != models.LogTypeMood {
		t.Errorf("expected newest entry first, got %s", entries[0].Type)
	}

	entries, total, err = store.List(ctx, user.ID, Filter{Page: 2, Limit: 4, Type: models.LogTypeSymptom})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(entries) != 1 {
		t.Errorf("expected 1 of 5 symptoms on page 2, got %d of %d", len(entries), total)
	}
}

func TestGetAndDeleteScopedToOwner(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewStore(db)
	ctx := context.Background()

	owner := testutil.CreateUser(t, db, "owner@example.com", models.PlanFree, models.SubscriptionNone)
	intruder := testutil.CreateUser(t, db, "intruder@example.com", models.PlanFree, models.SubscriptionNone)
	entry := testutil.CreateLog(t, db, owner.ID, models.LogTypeFood, "oats", time.Now())

	if _, err := store.Get(ctx, intruder.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
	if err := store.Delete(ctx, intruder.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting another user's entry, got %v", err)
	}
	if err := store.Delete(ctx, owner.ID, entry.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, owner.ID, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted entry to be gone, got %v", err)
	}
}

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	store := NewStore(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "stats@example.com", models.PlanFree, models.SubscriptionNone)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	testutil.CreateLog(t, db, user.ID, models.LogTypeSymptom, "a", base)
	testutil.CreateLog(t, db, user.ID, models.LogTypeSymptom, "b", base.Add(2*time.Hour))
	testutil.CreateLog(t, db, user.ID, models.LogTypeFitness, "c", base.Add(time.Hour))

	stats, err := store.Stats(ctx, user.ID, nil, nil)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 types, got %d", len(stats))
	}
	if stats[0].Type != models.LogTypeSymptom || stats[0].Count != 2 {
		t.Errorf("unexpected symptom stat %+v", stats[0])
	}
	if !stats[0].Latest.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("expected latest symptom at %s, got %s", base.Add(2*time.Hour), stats[0].Latest)
	}
	if stats[1].Type != models.LogTypeFitness || stats[1].Count != 1 {
		t.Errorf("unexpected fitness stat %+v", stats[1])
	}
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	d, dateOnly, err := ParseTime("2024-03-04", loc)
	if err != nil || !dateOnly {
		t.Fatalf("expected date-only parse, got %v %v", dateOnly, err)
	}
	if !d.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, loc)) {
		t.Errorf("unexpected date %s", d)
	}
	if end := EndOfDay(d); end.Hour() != 23 || end.Nanosecond() != 999999000 {
		t.Errorf("unexpected end of day %s", end)
	}

	ts, dateOnly, err := ParseTime("2024-03-04T10:30:00Z", loc)
	if err != nil || dateOnly {
		t.Fatalf("expected timestamp parse, got %v %v", dateOnly, err)
	}
	if ts.Hour() != 10 {
		t.Errorf("unexpected hour %d", ts.Hour())
	}

	if _, _, err := ParseTime("last tuesday", loc); err == nil {
		t.Error("expected error for free-form date")
	}
}
