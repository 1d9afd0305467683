package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeFinder struct {
	roles map[string]Role
	err   error
}

func (f fakeFinder) FindRole(_ context.Context, userID, orgID uuid.UUID) (Role, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	role, ok := f.roles[userID.String()+"/"+orgID.String()]
	return role, ok, nil
}

func TestCapabilitiesPerRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		isMember bool
		isAdmin  bool
		isOwner  bool
	}{
		{"owner", RoleOwner, true, true, true},
		{"admin", RoleAdmin, true, true, false},
		{"member", RoleMember, true, false, false},
		{"unknown role string", Role("superuser"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CapabilitiesForRole(tt.role)
			require.Equal(t, tt.isMember, c.IsMember())
			require.Equal(t, tt.isAdmin, c.IsAdmin())
			require.Equal(t, tt.isOwner, c.IsOwner())
		})
	}
}

func TestEvaluateNoMembership(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()

	caps, err := Evaluate(context.Background(), fakeFinder{roles: map[string]Role{}}, userID, orgID)
	require.NoError(t, err, "absent membership must not be an error")
	require.False(t, caps.IsMember())
	require.False(t, caps.IsAdmin())
	require.False(t, caps.IsOwner())
	require.Equal(t, Role(""), caps.Role())

	require.ErrorIs(t, RequireMember(caps), ErrNotMember)
	require.ErrorIs(t, RequireAdmin(caps), ErrNotAdmin)
}

func TestEvaluateWithMembership(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	finder := fakeFinder{roles: map[string]Role{
		userID.String() + "/" + orgID.String(): RoleAdmin,
	}}

	caps, err := Evaluate(context.Background(), finder, userID, orgID)
	require.NoError(t, err)
	require.True(t, caps.IsMember())
	require.True(t, caps.IsAdmin())
	require.False(t, caps.IsOwner())
	require.Equal(t, RoleAdmin, caps.Role())

	require.NoError(t, RequireMember(caps))
	require.NoError(t, RequireAdmin(caps))

	// Same user, different org: no capabilities carry over.
	other, err := Evaluate(context.Background(), finder, userID, uuid.New())
	require.NoError(t, err)
	require.False(t, other.IsMember())
}

func TestEvaluateMemberIsNotAdmin(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	finder := fakeFinder{roles: map[string]Role{
		userID.String() + "/" + orgID.String(): RoleMember,
	}}

	caps, err := Evaluate(context.Background(), finder, userID, orgID)
	require.NoError(t, err)
	require.NoError(t, RequireMember(caps))
	require.ErrorIs(t, RequireAdmin(caps), ErrNotAdmin)
}

func TestEvaluateZeroIDs(t *testing.T) {
	caps, err := Evaluate(context.Background(), fakeFinder{err: errors.New("should not be called")}, uuid.Nil, uuid.Nil)
	require.NoError(t, err)
	require.False(t, caps.IsMember())
}

func TestEvaluateStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	_, err := Evaluate(context.Background(), fakeFinder{err: storeErr}, uuid.New(), uuid.New())
	require.ErrorIs(t, err, storeErr)
}
