package briefings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

const listLimit = 20

// Store persists weekly brief records through GORM
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByWindow returns userID's live brief for exactly w
func (s *Store) FindByWindow(ctx context.Context, userID uint, w Window) (*models.WeeklyBrief, error) {
	var brief models.WeeklyBrief
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND week_start = ? AND week_end = ?", userID, w.Start, w.End).
		First(&brief).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up brief: %w", err)
	}
	return &brief, nil
}

// Create inserts brief. A unique index violation is reported as errWindowTaken.
func (s *Store) Create(ctx context.Context, brief *models.WeeklyBrief) error {
	err := s.db.WithContext(ctx).Create(brief).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errWindowTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create brief: %w", err)
	}
	return nil
}

// Get returns the brief with id owned by userID
func (s *Store) Get(ctx context.Context, userID, id uint) (*models.WeeklyBrief, error) {
	var brief models.WeeklyBrief
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&brief).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load brief: %w", err)
	}
	return &brief, nil
}

// GetByID returns the brief with id regardless of owner
func (s *Store) GetByID(ctx context.Context, id uint) (*models.WeeklyBrief, error) {
	var brief models.WeeklyBrief
	err := s.db.WithContext(ctx).First(&brief, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load brief: %w", err)
	}
	return &brief, nil
}

// List returns userID's most recent briefs, newest window first
func (s *Store) List(ctx context.Context, userID uint) ([]models.WeeklyBrief, error) {
	var briefs []models.WeeklyBrief
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("week_start DESC").
		Order("id DESC").
		Limit(listLimit).
		Find(&briefs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list briefs: %w", err)
	}
	return briefs, nil
}

// Update applies updates to brief. ErrNotFound means the record was deleted.
func (s *Store) Update(ctx context.Context, brief *models.WeeklyBrief, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(brief).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update brief: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes brief, freeing its window
func (s *Store) Delete(ctx context.Context, brief *models.WeeklyBrief) error {
	if err := s.db.WithContext(ctx).Delete(brief).Error; err != nil {
		return fmt.Errorf("failed to delete brief: %w", err)
	}
	return nil
}
