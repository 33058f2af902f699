/*
Package leave implements the leave request state machine.

STATES:
  pending (initial) -> approved | rejected | cancelled
  approved          -> cancelled, only before the leave starts
  on-hold is reserved; no transition drives it.

ROUTING:
  Fixed at creation. A request with a resolvable reporting manager is
  decided by that manager; otherwise IsHRFallback is set and any HR actor
  decides it. Admins decide anything. Nobody decides their own request.

ATOMICITY:
  Approve and cancel run the status compare-and-swap and the ledger write
  in one store transaction. A ledger failure rolls the status back, so an
  approved request always has its 'used' entry.

NOTIFICATIONS:
  Sent after commit. Failures are logged and never returned.

SEE ALSO:
  - access.go: capability checks
  - duration.go: day counting
  - ledger: RecordUsage / RecordRestoration
*/
package leave

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/ledger"
)

// CreateInput files a new request. EmployeeID defaults to the actor.
type CreateInput struct {
	EmployeeID    domain.EmployeeID
	LeaveType     domain.LeaveTypeCode
	StartDate     domain.TimePoint
	EndDate       domain.TimePoint
	Session       domain.Session
	Reason        string
	AttachmentURL string
}

// UpdateInput edits a pending request. Nil fields are left as they are.
type UpdateInput struct {
	LeaveType     *domain.LeaveTypeCode
	StartDate     *domain.TimePoint
	EndDate       *domain.TimePoint
	Session       *domain.Session
	Reason        *string
	AttachmentURL *string
}

// Config holds state machine switches.
type Config struct {
	// AllowNegativeOnApproval lets approval drive a balance below zero
	// instead of failing with InsufficientBalance.
	AllowNegativeOnApproval bool
}

type Service struct {
	store     domain.Store
	ledger    *ledger.Engine
	directory domain.EmployeeDirectory
	catalog   domain.LeaveTypeCatalog
	notifier  domain.Notifier
	cfg       Config
	clock     domain.Clock
	newID     func() string
	logger    *zap.Logger
}

func NewService(store domain.Store, engine *ledger.Engine, directory domain.EmployeeDirectory, catalog domain.LeaveTypeCatalog, notifier domain.Notifier, cfg Config, logger ...*zap.Logger) *Service {
	l := zap.L().Named("leave.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.service")
	}
	if notifier == nil {
		notifier = domain.NopNotifier{}
	}
	return &Service{
		store:     store,
		ledger:    engine,
		directory: directory,
		catalog:   catalog,
		notifier:  notifier,
		cfg:       cfg,
		clock:     engine.Clock(),
		newID:     uuid.NewString,
		logger:    l,
	}
}

// ResolveActor binds the actor to the directory employee behind its
// external user id. A supplied EmployeeID that names someone else is
// rejected. Actors without an employee record (platform admins) keep the
// EmployeeID they came with, usually empty.
func (s *Service) ResolveActor(ctx context.Context, actor domain.Actor) (domain.Actor, error) {
	if actor.UserID == "" {
		return actor, nil
	}
	emp, err := s.directory.FindEmployee(ctx, actor.CompanyID, actor.UserID)
	if err != nil {
		if domain.IsNotFound(err) {
			return actor, nil
		}
		return actor, err
	}
	if actor.EmployeeID != "" && actor.EmployeeID != emp.ID {
		s.logger.Warn("actor identity mismatch",
			zap.String("company_id", string(actor.CompanyID)),
			zap.String("actor_id", actor.UserID),
			zap.String("claimed_employee_id", string(actor.EmployeeID)),
			zap.String("employee_id", string(emp.ID)),
		)
		return actor, domain.Forbidden("identity_mismatch", "employee id does not belong to the caller")
	}
	actor.EmployeeID = emp.ID
	return actor, nil
}

// =============================================================================
// CREATE
// =============================================================================

func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	employeeID := in.EmployeeID
	if employeeID == "" {
		employeeID = actor.EmployeeID
	}
	s.logger.Debug("create leave requested",
		zap.String("company_id", string(actor.CompanyID)),
		zap.String("actor_id", actor.UserID),
		zap.String("employee_id", string(employeeID)),
		zap.String("start_date", in.StartDate.String()),
		zap.String("end_date", in.EndDate.String()),
	)

	if employeeID == "" {
		return nil, domain.Validation("employee_required", "employeeId", "employee is required")
	}
	if employeeID != actor.EmployeeID && !actor.Can(domain.CapBypassOwnership) {
		return nil, domain.Forbidden("not_request_owner", "you can only file leave for yourself")
	}
	if in.Session == "" {
		in.Session = domain.SessionFullDay
	}
	if err := validateRequestFields(in.LeaveType, in.StartDate, in.EndDate, in.Session, in.Reason); err != nil {
		s.logger.Warn("create leave validation failed", zap.Error(err))
		return nil, err
	}
	if err := s.checkLeaveType(ctx, actor.CompanyID, in.LeaveType); err != nil {
		return nil, err
	}

	employee, err := s.directory.FindEmployee(ctx, actor.CompanyID, string(employeeID))
	if err != nil {
		return nil, err
	}
	managerID, err := s.resolveManager(ctx, employee)
	if err != nil {
		s.logger.Warn("create leave routing failed", zap.String("employee_id", string(employee.ID)), zap.Error(err))
		return nil, err
	}

	key := domain.BalanceKey{CompanyID: actor.CompanyID, EmployeeID: employee.ID, LeaveType: in.LeaveType}
	snapshot, err := s.ledger.CurrentBalance(ctx, key)
	if err != nil {
		s.logger.Error("create leave balance lookup failed", zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	r := domain.LeaveRequest{
		ID:                 domain.RequestID(s.newID()),
		CompanyID:          actor.CompanyID,
		EmployeeID:         employee.ID,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		Session:            in.Session,
		Duration:           ComputeDuration(in.StartDate, in.EndDate, in.Session),
		LeaveType:          in.LeaveType,
		Reason:             strings.TrimSpace(in.Reason),
		ReportingManagerID: managerID,
		IsHRFallback:       managerID == nil,
		Status:             domain.StatusPending,
		BalanceAtRequest:   snapshot,
		AttachmentURL:      in.AttachmentURL,
		CreatedBy:          actor.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		if !actor.Can(domain.CapSkipOverlapCheck) {
			if err := checkOverlap(ctx, tx, &r); err != nil {
				return err
			}
		}
		return tx.CreateRequest(ctx, r)
	})
	if err != nil {
		s.logFailure("create leave failed", &r, err)
		return nil, err
	}

	s.logger.Info("create leave success",
		zap.String("request_id", string(r.ID)),
		zap.String("company_id", string(r.CompanyID)),
		zap.String("employee_id", string(r.EmployeeID)),
		zap.Bool("hr_fallback", r.IsHRFallback),
	)
	s.publish(ctx, domain.EventLeaveCreated, &r, actor, nil)
	return &r, nil
}

// resolveManager returns nil for HR fallback.
func (s *Service) resolveManager(ctx context.Context, employee *domain.Employee) (*domain.EmployeeID, error) {
	if employee.ManagerID == nil || *employee.ManagerID == "" {
		return nil, nil
	}
	if *employee.ManagerID == employee.ID {
		return nil, domain.Validation("self_manager", "reportingManagerId", "employee cannot be their own reporting manager")
	}
	manager, err := s.directory.FindEmployee(ctx, employee.CompanyID, string(*employee.ManagerID))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.Validation("manager_not_found", "reportingManagerId", "reporting manager does not exist")
		}
		return nil, err
	}
	id := manager.ID
	return &id, nil
}

func (s *Service) checkLeaveType(ctx context.Context, companyID domain.CompanyID, code domain.LeaveTypeCode) error {
	lt, err := s.catalog.GetLeaveType(ctx, companyID, code)
	if err != nil {
		return err
	}
	if !lt.IsActive {
		return domain.Validation("leave_type_inactive", "leaveType", "leave type is not active: "+string(code))
	}
	return nil
}

func validateRequestFields(leaveType domain.LeaveTypeCode, start, end domain.TimePoint, session domain.Session, reason string) error {
	switch {
	case leaveType == "":
		return domain.Validation("leave_type_required", "leaveType", "leave type is required")
	case start.IsZero() || end.IsZero():
		return domain.Validation("dates_required", "startDate", "start and end dates are required")
	case end.Before(start):
		return domain.Validation("invalid_date_range", "endDate", "end date cannot be before start date")
	case !session.IsValid():
		return domain.Validation("invalid_session", "session", "session must be Full Day, First Half or Second Half")
	case strings.TrimSpace(reason) == "":
		return domain.Validation("reason_required", "reason", "reason is required")
	}
	return nil
}

// checkOverlap rejects r when another pending or approved request of the
// same employee shares a day with it.
func checkOverlap(ctx context.Context, tx domain.Store, r *domain.LeaveRequest) error {
	existing, err := tx.ListRequests(ctx, domain.RequestFilter{
		CompanyID:  r.CompanyID,
		EmployeeID: r.EmployeeID,
		Statuses:   []domain.RequestStatus{domain.StatusPending, domain.StatusApproved},
	})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != r.ID && other.Period().Overlaps(r.Period()) {
			return domain.Conflict("overlapping_request", "startDate",
				"leave overlaps request "+string(other.ID)+" "+other.Period().String())
		}
	}
	return nil
}

// =============================================================================
// READ
// =============================================================================

func (s *Service) Get(ctx context.Context, actor domain.Actor, id domain.RequestID) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetRequest(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, r) {
		return nil, domain.Forbidden("request_forbidden", "you cannot view this leave request")
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, actor domain.Actor, filter domain.RequestFilter) ([]domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	scoped, ok := scopeFilter(actor, filter)
	if !ok {
		return []domain.LeaveRequest{}, nil
	}
	return s.store.ListRequests(ctx, scoped)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve moves a pending request to approved and debits the ledger in the
// same transaction.
func (s *Service) Approve(ctx context.Context, actor domain.Actor, id domain.RequestID, comments string) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("approve leave requested",
		zap.String("company_id", string(actor.CompanyID)),
		zap.String("actor_id", actor.UserID),
		zap.String("request_id", string(id)),
	)

	var (
		approved *domain.LeaveRequest
		entry    *domain.LedgerEntry
	)
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		r, err := tx.GetRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := authorizeDecision(actor, r); err != nil {
			return err
		}
		if r.Status != domain.StatusPending {
			return notPending(r)
		}

		now := s.clock.Now()
		next := *r
		next.Status = domain.StatusApproved
		next.ApprovedBy = actor.UserID
		next.ApprovedAt = &now
		next.ApprovalComments = strings.TrimSpace(comments)
		next.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, next, domain.StatusPending); err != nil {
			return err
		}

		entry, err = s.ledger.In(tx).RecordUsage(ctx, ledger.UsageInput{
			Key:           next.BalanceKey(),
			Days:          next.Duration,
			RequestID:     next.ID,
			Period:        next.Period(),
			Reason:        next.Reason,
			Description:   "leave approved: " + next.Period().String(),
			Actor:         actor.UserID,
			AllowNegative: s.cfg.AllowNegativeOnApproval,
		})
		if err != nil {
			s.logger.Error("approve leave ledger debit failed",
				zap.String("request_id", string(id)),
				zap.Error(err),
			)
			return err
		}
		approved = &next
		return nil
	})
	if err != nil {
		s.logger.Warn("approve leave failed", zap.String("request_id", string(id)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("approve leave success",
		zap.String("request_id", string(id)),
		zap.String("approved_by", actor.UserID),
		zap.String("balance_after", entry.BalanceAfter.String()),
	)
	s.publish(ctx, domain.EventLeaveApproved, approved, actor, nil)
	s.publish(ctx, domain.EventBalanceUpdated, approved, actor, &entry.BalanceAfter)
	return approved, nil
}

// Reject moves a pending request to rejected. It has no ledger effect.
func (s *Service) Reject(ctx context.Context, actor domain.Actor, id domain.RequestID, reason string) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validation("reason_required", "reason", "rejection reason is required")
	}

	var rejected *domain.LeaveRequest
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		r, err := tx.GetRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := authorizeDecision(actor, r); err != nil {
			return err
		}
		if r.Status != domain.StatusPending {
			return notPending(r)
		}

		now := s.clock.Now()
		next := *r
		next.Status = domain.StatusRejected
		next.RejectedBy = actor.UserID
		next.RejectedAt = &now
		next.RejectionReason = reason
		next.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, next, domain.StatusPending); err != nil {
			return err
		}
		rejected = &next
		return nil
	})
	if err != nil {
		s.logger.Warn("reject leave failed", zap.String("request_id", string(id)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("reject leave success",
		zap.String("request_id", string(id)),
		zap.String("rejected_by", actor.UserID),
	)
	s.publish(ctx, domain.EventLeaveRejected, rejected, actor, nil)
	return rejected, nil
}

// Cancel withdraws a request. Cancelling an approved request restores its
// duration and is only allowed before the start date.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id domain.RequestID, reason string) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}

	var (
		cancelled *domain.LeaveRequest
		entry     *domain.LedgerEntry
	)
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		r, err := tx.GetRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := authorizeOwnerAction(actor, r); err != nil {
			return err
		}
		switch r.Status {
		case domain.StatusCancelled, domain.StatusRejected:
			return domain.Conflict("request_not_cancellable", "status", "leave request is already "+string(r.Status))
		case domain.StatusApproved:
			if !s.clock.Today().Before(r.StartDate) {
				return domain.Conflict("leave_already_started", "startDate",
					"approved leave that has started cannot be cancelled; contact HR")
			}
		}

		now := s.clock.Now()
		prior := r.Status
		next := *r
		next.Status = domain.StatusCancelled
		next.CancelledBy = actor.UserID
		next.CancelledAt = &now
		next.CancellationReason = strings.TrimSpace(reason)
		next.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, next, prior); err != nil {
			return err
		}

		if prior == domain.StatusApproved {
			entry, err = s.ledger.In(tx).RecordRestoration(ctx, ledger.RestorationInput{
				Key:         next.BalanceKey(),
				Days:        next.Duration,
				RequestID:   next.ID,
				Period:      next.Period(),
				Reason:      next.CancellationReason,
				Description: "leave cancelled: " + next.Period().String(),
				Actor:       actor.UserID,
			})
			if err != nil {
				s.logger.Error("cancel leave ledger restoration failed",
					zap.String("request_id", string(id)),
					zap.Error(err),
				)
				return err
			}
		}
		cancelled = &next
		return nil
	})
	if err != nil {
		s.logger.Warn("cancel leave failed", zap.String("request_id", string(id)), zap.Error(err))
		return nil, err
	}

	s.logger.Info("cancel leave success",
		zap.String("request_id", string(id)),
		zap.String("cancelled_by", actor.UserID),
		zap.Bool("restored", entry != nil),
	)
	s.publish(ctx, domain.EventLeaveCancelled, cancelled, actor, nil)
	if entry != nil {
		s.publish(ctx, domain.EventBalanceUpdated, cancelled, actor, &entry.BalanceAfter)
	}
	return cancelled, nil
}

// Update edits a pending request, re-running the overlap check when the
// dates move and the actor is subject to it.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id domain.RequestID, in UpdateInput) (*domain.LeaveRequest, error) {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if in.LeaveType != nil {
		if err := s.checkLeaveType(ctx, actor.CompanyID, *in.LeaveType); err != nil {
			return nil, err
		}
	}

	var updated *domain.LeaveRequest
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		r, err := tx.GetRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := authorizeOwnerAction(actor, r); err != nil {
			return err
		}
		if r.Status != domain.StatusPending {
			return domain.Conflict("request_not_editable", "status", "only pending requests can be edited; request is "+string(r.Status))
		}

		next := *r
		if in.LeaveType != nil {
			next.LeaveType = *in.LeaveType
		}
		if in.StartDate != nil {
			next.StartDate = *in.StartDate
		}
		if in.EndDate != nil {
			next.EndDate = *in.EndDate
		}
		if in.Session != nil {
			next.Session = *in.Session
		}
		if in.Reason != nil {
			next.Reason = strings.TrimSpace(*in.Reason)
		}
		if in.AttachmentURL != nil {
			next.AttachmentURL = *in.AttachmentURL
		}
		if err := validateRequestFields(next.LeaveType, next.StartDate, next.EndDate, next.Session, next.Reason); err != nil {
			return err
		}
		next.Duration = ComputeDuration(next.StartDate, next.EndDate, next.Session)
		next.UpdatedAt = s.clock.Now()

		datesChanged := !next.StartDate.Equal(r.StartDate) || !next.EndDate.Equal(r.EndDate)
		if datesChanged && !actor.Can(domain.CapSkipOverlapCheck) {
			if err := checkOverlap(ctx, tx, &next); err != nil {
				return err
			}
		}
		if err := tx.UpdateRequest(ctx, next, domain.StatusPending); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		s.logger.Warn("update leave failed", zap.String("request_id", string(id)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("update leave success", zap.String("request_id", string(id)))
	return updated, nil
}

// Delete soft-deletes a pending request.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id domain.RequestID) error {
	actor, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx domain.Store) error {
		r, err := tx.GetRequest(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		if err := authorizeOwnerAction(actor, r); err != nil {
			return err
		}
		if r.Status != domain.StatusPending {
			return domain.Conflict("request_not_deletable", "status", "only pending requests can be deleted; cancel it instead")
		}
		next := *r
		next.IsDeleted = true
		next.UpdatedAt = s.clock.Now()
		return tx.UpdateRequest(ctx, next, domain.StatusPending)
	})
	if err != nil {
		s.logger.Warn("delete leave failed", zap.String("request_id", string(id)), zap.Error(err))
		return err
	}
	s.logger.Info("delete leave success", zap.String("request_id", string(id)))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func notPending(r *domain.LeaveRequest) error {
	return domain.Conflict("request_not_pending", "status", "leave request is already "+string(r.Status))
}

func (s *Service) publish(ctx context.Context, t domain.EventType, r *domain.LeaveRequest, actor domain.Actor, balance *domain.Amount) {
	event := domain.Event{
		Type:       t,
		CompanyID:  r.CompanyID,
		EmployeeID: r.EmployeeID,
		RequestID:  r.ID,
		LeaveType:  r.LeaveType,
		ActorID:    actor.UserID,
		Balance:    balance,
		Attributes: map[string]string{"status": string(r.Status)},
		OccurredAt: s.clock.Now(),
	}
	if r.ReportingManagerID != nil {
		event.Attributes["reportingManagerId"] = string(*r.ReportingManagerID)
	}
	if r.IsHRFallback {
		event.Attributes["routing"] = "hr"
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification failed",
			zap.String("event", string(t)),
			zap.String("request_id", string(r.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) logFailure(msg string, r *domain.LeaveRequest, err error) {
	fields := []zap.Field{
		zap.String("company_id", string(r.CompanyID)),
		zap.String("employee_id", string(r.EmployeeID)),
		zap.Error(err),
	}
	if domain.IsClientError(err) {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}
