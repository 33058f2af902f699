package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventLeaveCreated   EventType = "leave.created"
	EventLeaveApproved  EventType = "leave.approved"
	EventLeaveRejected  EventType = "leave.rejected"
	EventLeaveCancelled EventType = "leave.cancelled"
	EventBalanceUpdated EventType = "balance.updated"
)

// Event is a fire-and-forget notification emitted after a commit.
type Event struct {
	Type       EventType         `json:"type"`
	CompanyID  CompanyID         `json:"companyId"`
	EmployeeID EmployeeID        `json:"employeeId"`
	RequestID  RequestID         `json:"requestId,omitempty"`
	LeaveType  LeaveTypeCode     `json:"leaveType,omitempty"`
	ActorID    string            `json:"actorId,omitempty"`
	Balance    *Amount           `json:"balance,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Notifier delivers events. Callers log failures and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// =============================================================================
// BATCH RESULTS
// =============================================================================

// BatchResult reports a whole-tenant run. One employee's failure never
// aborts the others.
type BatchResult[T any] struct {
	CompanyID CompanyID         `json:"companyId"`
	Succeeded []BatchSuccess[T] `json:"succeeded"`
	Failed    []BatchFailure    `json:"failed"`
}

type BatchSuccess[T any] struct {
	EmployeeID EmployeeID `json:"employeeId"`
	Result     T          `json:"result"`
}

type BatchFailure struct {
	EmployeeID EmployeeID `json:"employeeId"`
	Code       string     `json:"code,omitempty"`
	Error      string     `json:"error"`
}

// NewBatchFailure records err against the employee.
func NewBatchFailure(employeeID EmployeeID, err error) BatchFailure {
	return BatchFailure{EmployeeID: employeeID, Code: CodeOf(err), Error: err.Error()}
}
