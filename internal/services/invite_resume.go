package services

import (
	"context"
	"errors"

	"github.com/escalaapp/escala/internal/auth"
)

// InviteResumeCoordinator finishes an invite acceptance that was interrupted
// by a sign-in redirect. It runs once per sign-in and consumes the stash no
// matter how the acceptance turns out, so a broken invite can never wedge the
// login flow.
type InviteResumeCoordinator struct {
	pending     *PendingInviteCache
	invitations *InvitationService
}

// NewInviteResumeCoordinator constructs an InviteResumeCoordinator.
func NewInviteResumeCoordinator(pending *PendingInviteCache, invitations *InvitationService) (*InviteResumeCoordinator, error) {
	if pending == nil {
		return nil, errors.New("invite resume: pending invite cache is required")
	}
	if invitations == nil {
		return nil, errors.New("invite resume: invitation service is required")
	}
	return &InviteResumeCoordinator{pending: pending, invitations: invitations}, nil
}

// Resume redeems the visitor's stashed invite, if any, for the freshly
// signed-in identity. Returns nil when there was nothing to resume.
func (c *InviteResumeCoordinator) Resume(ctx context.Context, identity auth.Identity, visitorID string) (*AcceptResult, error) {
	ctx = ensureContext(ctx)

	if identity.IsZero() {
		return nil, nil
	}

	stash, err := c.pending.Get(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if stash == nil {
		return nil, nil
	}

	defer func() {
		_ = c.pending.Clear(ctx, visitorID)
	}()

	return c.invitations.Accept(ctx, identity, stash.InviteID, stash.Token)
}
