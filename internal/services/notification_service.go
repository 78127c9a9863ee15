package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/internal/realtime"
	apperrors "github.com/escalaapp/escala/pkg/errors"
)

// NotificationService persists in-app notifications and pushes change events
// to the realtime hub so open clients update without polling.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewNotificationService constructs a NotificationService. A nil hub is
// allowed; notifications are then persisted without being pushed.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub}, nil
}

// NotificationDTO is the API-facing shape of a notification.
type NotificationDTO struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	ActionURL string         `json:"action_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// CreateNotificationInput carries the attributes of a new notification.
type CreateNotificationInput struct {
	UserID    string
	Type      string
	Title     string
	Message   string
	Severity  string
	ActionURL string
	Metadata  map[string]any
	IsRead    bool
}

// ListNotificationsInput filters a notification listing.
type ListNotificationsInput struct {
	UserID string
	Limit  int
	Offset int
}

// NotificationEventPayload is the data portion of realtime notification events.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// Create persists a notification and pushes a created event to its owner.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	kind := strings.TrimSpace(input.Type)
	if kind == "" {
		return nil, errors.New("notification service: type is required")
	}

	row := models.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     strings.TrimSpace(input.Title),
		Message:   strings.TrimSpace(input.Message),
		Severity:  defaultIfEmpty(strings.TrimSpace(input.Severity), "info"),
		ActionURL: strings.TrimSpace(input.ActionURL),
		IsRead:    input.IsRead,
	}
	if input.IsRead {
		now := time.Now().UTC()
		row.ReadAt = &now
	}
	if input.Metadata != nil {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		row.Metadata = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	dto := notificationDTO(row)
	s.push(userID, "notification.created", &NotificationEventPayload{Notification: &dto})
	return &dto, nil
}

// ListForUser returns the user's notifications, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]NotificationDTO, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	var rows []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampPageSize(input.Limit)).
		Offset(max(0, input.Offset)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}

	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, notificationDTO(row))
	}
	return items, nil
}

// MarkRead flags a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	return s.setRead(ctx, userID, notificationID, true)
}

// MarkUnread clears the read flag.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID string) (*NotificationDTO, error) {
	return s.setRead(ctx, userID, notificationID, false)
}

func (s *NotificationService) setRead(ctx context.Context, userID, notificationID string, read bool) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var row models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperrors.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	updates := map[string]any{"is_read": read, "read_at": nil}
	row.IsRead = read
	row.ReadAt = nil
	if read {
		now := time.Now().UTC()
		updates["read_at"] = now
		row.ReadAt = &now
	}

	if err := s.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("notification service: update read state: %w", err)
	}

	event := "notification.updated"
	if read {
		event = "notification.read"
	}

	dto := notificationDTO(row)
	s.push(userID, event, &NotificationEventPayload{
		Notification:   &dto,
		NotificationID: row.ID,
	})
	return &dto, nil
}

// MarkAllRead flags every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("notification service: mark all read: %w", err)
	}

	s.push(userID, "notification.read_all", nil)
	return nil
}

// Delete removes a notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	s.push(userID, "notification.deleted", &NotificationEventPayload{NotificationID: notificationID})
	return nil
}

// Publish forwards a domain event to one user's realtime subscribers without
// persisting a notification row.
func (s *NotificationService) Publish(stream, userID, event string, data any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToUser(stream, userID, realtime.Message{
		Stream: stream,
		Event:  event,
		Data:   data,
	})
}

func (s *NotificationService) push(userID, event string, payload *NotificationEventPayload) {
	if payload == nil {
		s.Publish(realtime.StreamNotifications, userID, event, nil)
		return
	}
	s.Publish(realtime.StreamNotifications, userID, event, payload)
}

func notificationDTO(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		Severity:  defaultIfEmpty(row.Severity, "info"),
		ActionURL: row.ActionURL,
		Metadata:  decodeMetadata(row.Metadata),
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		ReadAt:    row.ReadAt,
	}
}

func decodeMetadata(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func clampPageSize(limit int) int {
	if limit <= 0 || limit > 100 {
		return 25
	}
	return limit
}
