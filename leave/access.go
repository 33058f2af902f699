package leave

import "github.com/warp/leave-engine/domain"

// isOwner compares resolved employee identities, never raw user ids.
func isOwner(actor domain.Actor, r *domain.LeaveRequest) bool {
	return actor.EmployeeID != "" && actor.EmployeeID == r.EmployeeID
}

func isAssignedManager(actor domain.Actor, r *domain.LeaveRequest) bool {
	return actor.EmployeeID != "" && r.ReportingManagerID != nil && *r.ReportingManagerID == actor.EmployeeID
}

// authorizeDecision guards approve and reject:
//   - nobody decides their own request
//   - admins decide anything
//   - HR-fallback requests go to any HR-capable actor
//   - everything else goes to the exact assigned manager
func authorizeDecision(actor domain.Actor, r *domain.LeaveRequest) error {
	if isOwner(actor, r) {
		return domain.Forbidden("self_approval", "you cannot approve or reject your own leave request")
	}
	switch {
	case actor.Can(domain.CapApproveAny):
		return nil
	case r.IsHRFallback:
		if actor.Can(domain.CapApproveAsHR) {
			return nil
		}
		return domain.Forbidden("hr_approval_required", "this request is routed to HR")
	default:
		if actor.Can(domain.CapApproveAsManager) && isAssignedManager(actor, r) {
			return nil
		}
		return domain.Forbidden("not_assigned_approver", "only the assigned reporting manager can decide this request")
	}
}

// authorizeOwnerAction guards cancel, update and delete.
func authorizeOwnerAction(actor domain.Actor, r *domain.LeaveRequest) error {
	if isOwner(actor, r) || actor.Can(domain.CapBypassOwnership) {
		return nil
	}
	return domain.Forbidden("not_request_owner", "only the employee who filed the request, HR or an admin can do this")
}

// canView reports read access to a single request.
func canView(actor domain.Actor, r *domain.LeaveRequest) bool {
	switch {
	case isOwner(actor, r), actor.Can(domain.CapViewAll), isAssignedManager(actor, r):
		return true
	case r.IsHRFallback && actor.Can(domain.CapApproveAsHR):
		return true
	}
	return false
}

// scopeFilter narrows a list query to what the actor may see. Actors
// without CapViewAll see their own requests, or the queue routed to them.
// ok is false when nothing is visible.
func scopeFilter(actor domain.Actor, f domain.RequestFilter) (scoped domain.RequestFilter, ok bool) {
	f.CompanyID = actor.CompanyID
	if actor.Can(domain.CapViewAll) {
		return f, true
	}
	if f.ReportingManagerID != "" && f.ReportingManagerID == actor.EmployeeID && actor.Can(domain.CapApproveAsManager) {
		return f, true
	}
	if actor.EmployeeID == "" {
		return f, false
	}
	f.ReportingManagerID = ""
	f.HRFallbackOnly = false
	f.EmployeeID = actor.EmployeeID
	return f, true
}
