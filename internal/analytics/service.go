package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/notehub/internal/cache"
)

const (
	systemStatsCacheKey = "analytics:system:statistics"
	systemStatsCacheTTL = 30 * time.Second
)

// Service answers read queries over the aggregates and the raw event log.
type Service struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

func NewService(db *gorm.DB, c *cache.RedisCache) *Service {
	return &Service{db: db, cache: c}
}

// UserStatistics returns the aggregate for one user, or
// gorm.ErrRecordNotFound when no event has been processed for them yet.
func (s *Service) UserStatistics(ctx context.Context, userID uint) (*UserStatistics, error) {
	var stats UserStatistics
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// NoteEvents returns a user's note events, newest first.
func (s *Service) NoteEvents(ctx context.Context, userID uint, limit int) ([]NoteEvent, error) {
	var evts []NoteEvent
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&evts).Error; err != nil {
		return nil, errors.Wrap(err, "listing note events")
	}
	return evts, nil
}

// UserEvents returns a user's activity events, newest first.
func (s *Service) UserEvents(ctx context.Context, userID uint, limit int) ([]UserEvent, error) {
	var evts []UserEvent
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&evts).Error; err != nil {
		return nil, errors.Wrap(err, "listing user events")
	}
	return evts, nil
}

// SystemStatistics returns the cross-user rollup, served from Redis when a
// fresh copy exists. Cache failures fall through to the database.
func (s *Service) SystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	var cached SystemStatistics
	if err := s.cache.Get(ctx, systemStatsCacheKey, &cached); err == nil {
		return &cached, nil
	}

	stats, err := s.computeSystemStatistics(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, systemStatsCacheKey, stats, systemStatsCacheTTL); err != nil {
		log.Debug().Err(err).Msg("Failed to cache system statistics")
	}
	return stats, nil
}

func (s *Service) computeSystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	var stats SystemStatistics

	if err := s.db.WithContext(ctx).
		Model(&UserStatistics{}).
		Count(&stats.TotalUsers).Error; err != nil {
		return nil, errors.Wrap(err, "counting users")
	}

	var sums struct {
		Created int64
		Updated int64
		Deleted int64
		Logins  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&UserStatistics{}).
		Select(
			"COALESCE(SUM(total_notes_created), 0) AS created, " +
				"COALESCE(SUM(total_notes_updated), 0) AS updated, " +
				"COALESCE(SUM(total_notes_deleted), 0) AS deleted, " +
				"COALESCE(SUM(total_logins), 0) AS logins").
		Scan(&sums).Error; err != nil {
		return nil, errors.Wrap(err, "summing note statistics")
	}
	stats.TotalNotesCreated = sums.Created
	stats.TotalNotesUpdated = sums.Updated
	stats.TotalNotesDeleted = sums.Deleted
	stats.TotalLogins = sums.Logins

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	if err := s.db.WithContext(ctx).
		Model(&UserStatistics{}).
		Where("last_activity >= ?", startOfDay).
		Count(&stats.ActiveUsersToday).Error; err != nil {
		return nil, errors.Wrap(err, "counting active users")
	}

	return &stats, nil
}
