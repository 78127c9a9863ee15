package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/auth"
	"github.com/escalaapp/escala/internal/database/testutil"
)

// testClock is a mutable clock handed to services via their clock options.
type testClock struct {
	current time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{current: at}
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func testIdentity(uid, email, name string) auth.Identity {
	return auth.Identity{UID: uid, Email: email, Name: name}
}

// newInviteFixture wires the services an invitation test needs against a
// fresh in-memory database.
type inviteFixture struct {
	db          *gorm.DB
	clock       *testClock
	teams       *TeamService
	invitations *InvitationService
}

func newInviteFixture(t *testing.T, opts ...InvitationOption) *inviteFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	auditSvc, err := NewAuditService(db)
	require.NoError(t, err)

	teamSvc, err := NewTeamService(db, auditSvc)
	require.NoError(t, err)

	clock := newTestClock(time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC))
	base := []InvitationOption{
		WithInviteClock(clock.Now),
		WithInviteBaseURL("https://escala.example.com"),
	}
	inviteSvc, err := NewInvitationService(db, teamSvc, auditSvc, nil, append(base, opts...)...)
	require.NoError(t, err)

	return &inviteFixture{
		db:          db,
		clock:       clock,
		teams:       teamSvc,
		invitations: inviteSvc,
	}
}
