package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/varsivault/vault-core/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from domain.SessionStatus
		to   domain.SessionStatus
		want bool
	}{
		{"student message hands floor to staff", domain.StatusActive, domain.StatusWaitingForStaff, true},
		{"staff reply hands floor back", domain.StatusWaitingForStaff, domain.StatusActive, true},
		{"staff reply reopens closed", domain.StatusClosed, domain.StatusActive, true},
		{"close active", domain.StatusActive, domain.StatusClosed, true},
		{"close waiting", domain.StatusWaitingForStaff, domain.StatusClosed, true},
		{"delete active", domain.StatusActive, domain.StatusDeleted, true},
		{"delete waiting", domain.StatusWaitingForStaff, domain.StatusDeleted, true},
		{"delete closed", domain.StatusClosed, domain.StatusDeleted, true},
		{"delete completed", domain.StatusCompleted, domain.StatusDeleted, true},
		{"deleted is terminal", domain.StatusDeleted, domain.StatusActive, false},
		{"no re-delete", domain.StatusDeleted, domain.StatusDeleted, false},
		{"no self transition", domain.StatusActive, domain.StatusActive, false},
		{"closed cannot wait for staff", domain.StatusClosed, domain.StatusWaitingForStaff, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusAfterMessage(t *testing.T) {
	assert.Equal(t, domain.StatusWaitingForStaff, domain.StatusAfterMessage(domain.RoleStudent, domain.StatusActive))
	assert.Equal(t, domain.StatusWaitingForStaff, domain.StatusAfterMessage(domain.RoleStudent, domain.StatusWaitingForStaff))
	assert.Equal(t, domain.StatusActive, domain.StatusAfterMessage(domain.RoleStaff, domain.StatusWaitingForStaff))
	assert.Equal(t, domain.StatusActive, domain.StatusAfterMessage(domain.RoleStaff, domain.StatusActive))

	// System messages leave the status alone.
	assert.Equal(t, domain.StatusActive, domain.StatusAfterMessage(domain.RoleSystem, domain.StatusActive))
	assert.Equal(t, domain.StatusWaitingForStaff, domain.StatusAfterMessage(domain.RoleSystem, domain.StatusWaitingForStaff))
}

func TestTerminal(t *testing.T) {
	assert.True(t, domain.StatusDeleted.Terminal())
	assert.True(t, domain.StatusCompleted.Terminal())
	assert.False(t, domain.StatusActive.Terminal())
	assert.False(t, domain.StatusClosed.Terminal())
}
