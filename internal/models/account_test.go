package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" HOD ")
	assert.True(t, ok)
	assert.Equal(t, RoleHOD, role)
	assert.True(t, role.IsStaff())

	_, ok = ParseRole("admin")
	assert.False(t, ok)
	assert.False(t, RoleStudent.IsStaff())
}

func TestStatusCountsAdd(t *testing.T) {
	var counts StatusCounts
	counts.Add(RequestStatusPending, 2)
	counts.Add(RequestStatusApproved, 1)
	counts.Add(RequestStatus("archived"), 5)

	assert.Equal(t, StatusCounts{Total: 3, Pending: 2, Approved: 1}, counts)
	assert.True(t, RequestStatusRejected.Terminal())
	assert.False(t, RequestStatusApprovedByCoordinator.Terminal())
	assert.False(t, Decision("maybe").Valid())
}
