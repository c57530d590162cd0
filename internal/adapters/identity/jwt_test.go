package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsivault/vault-core/internal/adapters/identity"
	"github.com/varsivault/vault-core/internal/domain"
)

var secret = []byte("test-secret")

func TestActorRoundTrip(t *testing.T) {
	r := identity.NewResolver(secret)

	actor := domain.Actor{
		ID:       "user-1",
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Role:     domain.RoleStaff,
		Plan:     domain.PlanPremium,
		Verified: true,
	}

	token, err := r.IssueToken(actor, time.Hour)
	require.NoError(t, err)

	got, err := r.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestUnknownRoleDefaultsToStudent(t *testing.T) {
	r := identity.NewResolver(secret)

	token, err := r.IssueToken(domain.Actor{ID: "user-2", Role: "SUPERADMIN"}, time.Hour)
	require.NoError(t, err)

	got, err := r.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, got.Role, "staff access is an explicit grant")
	assert.Equal(t, domain.PlanFree, got.Plan)
}

func TestRejectsExpiredToken(t *testing.T) {
	r := identity.NewResolver(secret)

	token, err := r.IssueToken(domain.Actor{ID: "user-3"}, -time.Minute)
	require.NoError(t, err)

	_, err = r.ActorFromToken(token)
	assert.Error(t, err)
}

func TestRejectsWrongSecret(t *testing.T) {
	token, err := identity.NewResolver([]byte("other-secret")).IssueToken(domain.Actor{ID: "user-4"}, time.Hour)
	require.NoError(t, err)

	_, err = identity.NewResolver(secret).ActorFromToken(token)
	assert.Error(t, err)
}

func TestRejectsGarbage(t *testing.T) {
	_, err := identity.NewResolver(secret).ActorFromToken("not.a.token")
	assert.Error(t, err)
}
