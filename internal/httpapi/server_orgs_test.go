package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"actionchat/internal/authz"
)

func TestDemotesLastOwner(t *testing.T) {
	cases := []struct {
		name          string
		newRole       authz.Role
		targetIsOwner bool
		otherOwners   int
		want          bool
	}{
		{"demoting the sole owner", authz.RoleMember, true, 0, true},
		{"demoting sole owner to admin", authz.RoleAdmin, true, 0, true},
		{"demoting an owner with another owner left", authz.RoleMember, true, 1, false},
		{"demoting a non-owner", authz.RoleMember, false, 0, false},
		{"granting owner never demotes", authz.RoleOwner, true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, demotesLastOwner(tc.newRole, tc.targetIsOwner, tc.otherOwners))
		})
	}
}
