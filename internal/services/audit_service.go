package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
)

// AuditEntry is one audit event to persist.
type AuditEntry struct {
	UserID    *string
	Username  string
	Action    string
	Resource  string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

func (e AuditEntry) row() (models.AuditLog, error) {
	row := models.AuditLog{
		Action:    strings.TrimSpace(e.Action),
		Resource:  strings.TrimSpace(e.Resource),
		Result:    strings.TrimSpace(e.Result),
		Username:  strings.TrimSpace(e.Username),
		IPAddress: strings.TrimSpace(e.IPAddress),
		UserAgent: strings.TrimSpace(e.UserAgent),
	}

	if row.Action == "" {
		return row, errors.New("audit service: action is required")
	}
	if row.Result == "" {
		return row, errors.New("audit service: result is required")
	}

	if e.Metadata != nil {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return row, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		row.Metadata = string(encoded)
	}

	if e.UserID != nil {
		if id := strings.TrimSpace(*e.UserID); id != "" {
			row.UserID = &id
		}
	}
	return row, nil
}

// AuditFilters narrows audit queries. Zero values mean "no filter".
type AuditFilters struct {
	UserID   string
	Action   string
	Result   string
	Resource string
	Since    *time.Time
	Until    *time.Time
}

func (f AuditFilters) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}
	if f.Resource != "" {
		q = q.Where("resource = ?", f.Resource)
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at <= ?", *f.Until)
	}
	return q
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

func (o AuditListOptions) bounds() (page, perPage int) {
	page = o.Page
	if page <= 0 {
		page = 1
	}
	perPage = o.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	return page, perPage
}

// AuditService writes and reads the audit trail.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// recordAudit logs entry, tolerating a nil service and write failures so the
// calling operation never fails on audit problems.
func recordAudit(ctx context.Context, audit *AuditService, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}

// Log stores one audit entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	row, err := entry.row()
	if err != nil {
		return err
	}
	return s.db.WithContext(ensureContext(ctx)).Create(&row).Error
}

// List returns one page of audit logs, newest first, plus the total count
// across all pages.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := opts.bounds()

	query := opts.Filters.apply(s.db.WithContext(ctx).Model(&models.AuditLog{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var rows []models.AuditLog
	err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return rows, total, nil
}

// Export returns every audit log matching the filters, newest first.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := filters.apply(s.db.WithContext(ensureContext(ctx)).Model(&models.AuditLog{})).
		Preload("User").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: export logs: %w", err)
	}
	return rows, nil
}

// CleanupOlderThan deletes audit logs past the retention window in days and
// reports how many rows went away.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ensureContext(ctx)).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
