// Package logs stores and serves user-authored health log entries.
package logs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when an entry does not exist or belongs to another user
var ErrNotFound = errors.New("log entry not found")

// Filter narrows a listing
type Filter struct {
	Start *time.Time
	End   *time.Time
	Type  models.LogType
	Page  int
	Limit int
}

// TypeStat is the per-type aggregate returned by Stats
type TypeStat struct {
	Type   models.LogType `json:"type"`
	Count  int64          `json:"count"`
	Latest time.Time      `json:"latest"`
}

// Store persists log entries through GORM
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts entry
func (s *Store) Create(ctx context.Context, entry *models.LogEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create log entry: %w", err)
	}
	return nil
}

// Get returns the entry with id owned by userID
func (s *Store) Get(ctx context.Context, userID, id uint) (*models.LogEntry, error) {
	var entry models.LogEntry
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load log entry: %w", err)
	}
	return &entry, nil
}

// Save writes all fields of an existing entry
func (s *Store) Save(ctx context.Context, entry *models.LogEntry) error {
	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update log entry: %w", err)
	}
	return nil
}

// Delete soft-deletes the entry with id owned by userID
func (s *Store) Delete(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.LogEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete log entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of userID's entries, newest first, and the total match count
func (s *Store) List(ctx context.Context, userID uint, f Filter) ([]models.LogEntry, int64, error) {
	query := s.filtered(ctx, userID, f)

	var total int64
	if err := query.Model(&models.LogEntry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count log entries: %w", err)
	}

	var entries []models.LogEntry
	err := s.filtered(ctx, userID, f).
		Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, total, nil
}

// InWindow returns userID's entries created within [start, end], oldest first
func (s *Store) InWindow(ctx context.Context, userID uint, start, end time.Time) ([]models.LogEntry, error) {
	var entries []models.LogEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, start.UTC(), end.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch log entries: %w", err)
	}
	return entries, nil
}

// CountInWindow counts userID's entries created within [start, end]
func (s *Store) CountInWindow(ctx context.Context, userID uint, start, end time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LogEntry{}).
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, start.UTC(), end.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return count, nil
}

// Stats groups userID's entries by type with the count and latest timestamp of each
func (s *Store) Stats(ctx context.Context, userID uint, start, end *time.Time) ([]TypeStat, error) {
	f := Filter{Start: start, End: end}

	var counts []struct {
		Type  models.LogType
		Count int64
	}
	err := s.filtered(ctx, userID, f).Model(&models.LogEntry{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate log entries: %w", err)
	}

	byType := make(map[models.LogType]int64, len(counts))
	for _, c := range counts {
		byType[c.Type] = c.Count
	}

	// Latest timestamps are read per type; MAX() over timestamps does not scan portably
	stats := make([]TypeStat, 0, len(byType))
	for _, t := range models.LogTypes {
		count, ok := byType[t]
		if !ok {
			continue
		}
		tf := f
		tf.Type = t
		var latest models.LogEntry
		if err := s.filtered(ctx, userID, tf).Order("created_at DESC").First(&latest).Error; err != nil {
			return nil, fmt.Errorf("failed to load latest %s entry: %w", t, err)
		}
		stats = append(stats, TypeStat{Type: t, Count: count, Latest: latest.CreatedAt})
	}
	return stats, nil
}

func (s *Store) filtered(ctx context.Context, userID uint, f Filter) *gorm.DB {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Start != nil {
		query = query.Where("created_at >= ?", f.Start.UTC())
	}
	if f.End != nil {
		query = query.Where("created_at <= ?", f.End.UTC())
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	return query
}
