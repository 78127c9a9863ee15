package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/escalaapp/escala/internal/models"
)

// DatabaseStore keeps cache entries in the primary SQL database. It is the
// default Store when no Redis address is configured, which keeps single-node
// deployments down to one backing service.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps the supplied gorm handle in a Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

var errNilDatabaseStore = errors.New("cache: database store is nil")

// IncrementWithTTL bumps the counter at key inside a transaction. The row is
// locked for update so concurrent requests observe strictly increasing counts.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errNilDatabaseStore
	}
	if window <= 0 {
		window = time.Minute
	}

	now := time.Now()
	windowEnd := now.Add(window)

	var count int64
	err := s.db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		var rec models.CacheEntry
		lookErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&rec, "key = ?", key).Error
		switch {
		case errors.Is(lookErr, gorm.ErrRecordNotFound):
			count = 1
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     counterBytes(count),
				ExpiresAt: windowEnd,
			}).Error
		case lookErr != nil:
			return lookErr
		}

		if rec.ExpiresAt.Before(now) {
			count = 1
		} else {
			count = counterValue(rec.Value) + 1
		}
		rec.Value = counterBytes(count)
		rec.ExpiresAt = windowEnd
		return tx.Save(&rec).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("cache: increment %q: %w", key, err)
	}
	return count, window, nil
}

// Set upserts value under key, stamping an expiry when ttl is positive.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errNilDatabaseStore
	}

	entry := models.CacheEntry{Key: key, Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	return s.db.WithContext(ensureContext(ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&entry).Error
}

// Get reads the entry at key, treating lapsed entries as misses.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errNilDatabaseStore
	}
	ctx = ensureContext(ctx)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	if lapsedEntry(entry.ExpiresAt) {
		// Reap on read; the cleanup job sweeps whatever is never read again.
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Delete removes the given keys.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errNilDatabaseStore
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ensureContext(ctx)).
		Where("key IN ?", keys).
		Delete(&models.CacheEntry{}).Error
}

func lapsedEntry(expiry time.Time) bool {
	return !expiry.IsZero() && time.Now().After(expiry)
}

func counterValue(raw []byte) int64 {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func counterBytes(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}
