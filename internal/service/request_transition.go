package service

import (
	"fmt"

	"github.com/noah-isme/attendance-approval-api/internal/models"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
)

// nextStatus is the request lifecycle table. Anything not listed is refused without side effects.
//
//	pending                 + coordinator approved -> approved_by_coordinator
//	pending                 + coordinator rejected -> rejected
//	approved_by_coordinator + hod approved         -> approved
//	approved_by_coordinator + hod rejected         -> rejected
func nextStatus(current models.RequestStatus, role models.Role, decision models.Decision) (models.RequestStatus, error) {
	if !decision.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}

	switch {
	case current == models.RequestStatusPending && role == models.RoleCoordinator:
		if decision == models.DecisionApproved {
			return models.RequestStatusApprovedByCoordinator, nil
		}
		return models.RequestStatusRejected, nil
	case current == models.RequestStatusApprovedByCoordinator && role == models.RoleHOD:
		if decision == models.DecisionApproved {
			return models.RequestStatusApproved, nil
		}
		return models.RequestStatusRejected, nil
	}

	return "", appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s cannot decide a request that is %s", role, current))
}

// queueStatus is the status a staff role works on.
func queueStatus(role models.Role) (models.RequestStatus, bool) {
	switch role {
	case models.RoleCoordinator:
		return models.RequestStatusPending, true
	case models.RoleHOD:
		return models.RequestStatusApprovedByCoordinator, true
	}
	return "", false
}
