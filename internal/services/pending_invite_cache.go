package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/escalaapp/escala/internal/cache"
)

const (
	pendingInviteKeyPrefix  = "invites:pending:"
	defaultPendingStaleness = time.Hour
)

// PendingInvite is the stash a visitor leaves behind when they open an invite
// link while signed out. It carries the raw token across the login redirect
// and nowhere else.
type PendingInvite struct {
	InviteID string    `json:"invite_id"`
	Token    string    `json:"token"`
	SavedAt  time.Time `json:"saved_at"`
}

// PendingInviteOption customises PendingInviteCache behaviour.
type PendingInviteOption func(*PendingInviteCache)

// WithPendingStaleness overrides how long a stashed invite stays usable.
func WithPendingStaleness(d time.Duration) PendingInviteOption {
	return func(c *PendingInviteCache) {
		if d > 0 {
			c.staleness = d
		}
	}
}

// WithPendingClock injects a custom clock primarily for testing.
func WithPendingClock(clock func() time.Time) PendingInviteOption {
	return func(c *PendingInviteCache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// PendingInviteCache remembers at most one invite per visitor between the
// moment they open an invite link and the moment they finish signing in.
type PendingInviteCache struct {
	store     cache.Store
	staleness time.Duration
	now       func() time.Time
}

// NewPendingInviteCache constructs a PendingInviteCache over the shared store.
func NewPendingInviteCache(store cache.Store, opts ...PendingInviteOption) (*PendingInviteCache, error) {
	if store == nil {
		return nil, errors.New("pending invite cache: store is required")
	}

	c := &PendingInviteCache{
		store:     store,
		staleness: defaultPendingStaleness,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Save overwrites the visitor's stash with the supplied invite reference.
func (c *PendingInviteCache) Save(ctx context.Context, visitorID, inviteID, token string) error {
	ctx = ensureContext(ctx)

	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return errors.New("pending invite cache: visitor id is required")
	}
	if strings.TrimSpace(inviteID) == "" || strings.TrimSpace(token) == "" {
		return errors.New("pending invite cache: invite id and token are required")
	}

	payload, err := json.Marshal(PendingInvite{
		InviteID: inviteID,
		Token:    token,
		SavedAt:  c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("pending invite cache: encode stash: %w", err)
	}

	if err := c.store.Set(ctx, pendingInviteKey(visitorID), payload, c.staleness); err != nil {
		return fmt.Errorf("pending invite cache: save stash: %w", err)
	}

	return nil
}

// Get returns the visitor's stash, or nil when absent. Entries older than the
// staleness window are dropped on read, independent of the invitation's own
// expiry.
func (c *PendingInviteCache) Get(ctx context.Context, visitorID string) (*PendingInvite, error) {
	ctx = ensureContext(ctx)

	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, nil
	}

	raw, ok, err := c.store.Get(ctx, pendingInviteKey(visitorID))
	if err != nil {
		return nil, fmt.Errorf("pending invite cache: read stash: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var pending PendingInvite
	if err := json.Unmarshal(raw, &pending); err != nil {
		_ = c.Clear(ctx, visitorID)
		return nil, nil
	}

	if c.now().UTC().Sub(pending.SavedAt) > c.staleness {
		_ = c.Clear(ctx, visitorID)
		return nil, nil
	}

	return &pending, nil
}

// Clear removes the visitor's stash.
func (c *PendingInviteCache) Clear(ctx context.Context, visitorID string) error {
	ctx = ensureContext(ctx)

	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil
	}

	return c.store.Delete(ctx, pendingInviteKey(visitorID))
}

func pendingInviteKey(visitorID string) string {
	return pendingInviteKeyPrefix + visitorID
}
