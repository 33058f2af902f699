package policy

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
	"github.com/warp/leave-engine/ledger"
)

// CreateInput describes a new custom policy.
type CreateInput struct {
	Name        string
	LeaveType   domain.LeaveTypeCode
	AnnualQuota domain.Amount
	EmployeeIDs []domain.EmployeeID
	Settings    domain.PolicySettings
	IsActive    *bool // defaults to true
}

// UpdateInput changes a policy. Nil fields are left as they are.
type UpdateInput struct {
	Name        *string
	LeaveType   *domain.LeaveTypeCode
	AnnualQuota *domain.Amount
	EmployeeIDs *[]domain.EmployeeID
	Settings    *domain.PolicySettings
	IsActive    *bool
}

// Service is custom policy CRUD. Every change that moves an employee's
// effective quota records the delta through the ledger in the same
// transaction as the policy write.
type Service struct {
	store     domain.Store
	resolver  *Resolver
	ledger    *ledger.Engine
	catalog   domain.LeaveTypeCatalog
	directory domain.EmployeeDirectory
	clock     domain.Clock
	logger    *zap.Logger
}

func NewService(store domain.Store, resolver *Resolver, engine *ledger.Engine, catalog domain.LeaveTypeCatalog, directory domain.EmployeeDirectory, logger ...*zap.Logger) *Service {
	l := zap.L().Named("policy.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("policy.service")
	}
	return &Service{
		store:     store,
		resolver:  resolver,
		ledger:    engine,
		catalog:   catalog,
		directory: directory,
		clock:     engine.Clock(),
		logger:    l,
	}
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id domain.PolicyID) (*domain.CustomPolicy, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	return s.store.GetPolicy(ctx, actor.CompanyID, id)
}

func (s *Service) List(ctx context.Context, actor domain.Actor, filter domain.PolicyFilter) ([]domain.CustomPolicy, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	filter.CompanyID = actor.CompanyID
	return s.store.ListPolicies(ctx, filter)
}

// Create stores a policy and adjusts every covered employee by
// (custom quota - previous effective quota).
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.CustomPolicy, error) {
	s.logger.Debug("create policy requested",
		zap.String("company_id", string(actor.CompanyID)),
		zap.String("leave_type", string(in.LeaveType)),
		zap.Int("employees", len(in.EmployeeIDs)),
	)
	if err := requireManager(actor); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := domain.CustomPolicy{
		ID:          domain.PolicyID(uuid.NewString()),
		CompanyID:   actor.CompanyID,
		Name:        strings.TrimSpace(in.Name),
		LeaveType:   in.LeaveType,
		AnnualQuota: in.AnnualQuota,
		EmployeeIDs: dedupe(in.EmployeeIDs),
		Settings:    in.Settings,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateFields(p); err != nil {
		s.logger.Warn("create policy validation failed", zap.Error(err))
		return nil, err
	}
	if err := s.validateRefs(ctx, p.CompanyID, p.LeaveType, p.EmployeeIDs); err != nil {
		s.logger.Warn("create policy validation failed", zap.Error(err))
		return nil, err
	}

	err := s.apply(ctx, s.store, actor, nil, &p, func(tx domain.Store) error {
		return tx.CreatePolicy(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("create policy success",
		zap.String("policy_id", string(p.ID)),
		zap.String("company_id", string(p.CompanyID)),
	)
	return &p, nil
}

// Update applies in and adjusts the employees whose effective quota moved,
// including employees removed from the policy.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id domain.PolicyID, in UpdateInput) (*domain.CustomPolicy, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if in.LeaveType != nil || in.EmployeeIDs != nil {
		var leaveType domain.LeaveTypeCode
		var ids []domain.EmployeeID
		if in.LeaveType != nil {
			leaveType = *in.LeaveType
		}
		if in.EmployeeIDs != nil {
			ids = *in.EmployeeIDs
		}
		if err := s.validateRefs(ctx, actor.CompanyID, leaveType, ids); err != nil {
			return nil, err
		}
	}

	var updated domain.CustomPolicy
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		current, err := tx.GetPolicy(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		next := *current
		next.EmployeeIDs = append([]domain.EmployeeID(nil), current.EmployeeIDs...)
		if in.Name != nil {
			next.Name = strings.TrimSpace(*in.Name)
		}
		if in.LeaveType != nil {
			next.LeaveType = *in.LeaveType
		}
		if in.AnnualQuota != nil {
			next.AnnualQuota = *in.AnnualQuota
		}
		if in.EmployeeIDs != nil {
			next.EmployeeIDs = dedupe(*in.EmployeeIDs)
		}
		if in.Settings != nil {
			next.Settings = *in.Settings
		}
		if in.IsActive != nil {
			next.IsActive = *in.IsActive
		}
		next.UpdatedAt = s.clock.Now()
		if err := validateFields(next); err != nil {
			return err
		}

		updated = next
		return s.apply(ctx, tx, actor, current, &next, func(tx domain.Store) error {
			return tx.UpdatePolicy(ctx, next)
		})
	})
	if err != nil {
		s.logger.Warn("update policy failed", zap.String("policy_id", string(id)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("update policy success", zap.String("policy_id", string(id)))
	return &updated, nil
}

// Delete soft-deletes the policy and reverses its adjustments.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id domain.PolicyID) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		current, err := tx.GetPolicy(ctx, actor.CompanyID, id)
		if err != nil {
			return err
		}
		next := *current
		next.IsDeleted = true
		next.IsActive = false
		next.UpdatedAt = s.clock.Now()
		return s.apply(ctx, tx, actor, current, &next, func(tx domain.Store) error {
			return tx.UpdatePolicy(ctx, next)
		})
	})
	if err != nil {
		s.logger.Warn("delete policy failed", zap.String("policy_id", string(id)), zap.Error(err))
		return err
	}
	s.logger.Info("delete policy success", zap.String("policy_id", string(id)))
	return nil
}

// apply runs write inside a transaction on st (joining one already open),
// bracketed by quota resolution for every key the old or new policy
// touches, and records the deltas.
func (s *Service) apply(ctx context.Context, st domain.Store, actor domain.Actor, before, after *domain.CustomPolicy, write func(domain.Store) error) error {
	keys := affectedKeys(before, after)
	return st.WithTx(ctx, func(tx domain.Store) error {
		lg := s.ledger.In(tx)

		previous := make(map[domain.BalanceKey]domain.Amount, len(keys))
		for _, key := range keys {
			if err := lg.Seed(ctx, key, actor.UserID); err != nil {
				return err
			}
			res, err := s.resolver.ResolveQuotaIn(ctx, tx, key)
			if err != nil {
				return err
			}
			previous[key] = res.Quota
		}

		if err := write(tx); err != nil {
			return err
		}

		ref := ledger.PolicyRef{ID: after.ID, Name: after.Name}
		for _, key := range keys {
			res, err := s.resolver.ResolveQuotaIn(ctx, tx, key)
			if err != nil {
				return err
			}
			delta := res.Quota.Sub(previous[key])
			if delta.IsZero() {
				continue
			}
			if after.LeaveType == key.LeaveType && after.Covers(key.EmployeeID) {
				_, err = lg.RecordCustomPolicyAdjustment(ctx, key, delta, ref, actor.UserID)
			} else {
				_, err = lg.RecordCustomPolicyReversal(ctx, key, delta, ref, actor.UserID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func validateFields(p domain.CustomPolicy) error {
	if p.Name == "" {
		return domain.Validation("name_required", "name", "policy name is required")
	}
	if p.LeaveType == "" {
		return domain.Validation("leave_type_required", "leaveType", "leave type is required")
	}
	if p.AnnualQuota.IsNegative() {
		return domain.Validation("invalid_quota", "annualQuota", "annual quota cannot be negative")
	}
	if len(p.EmployeeIDs) == 0 {
		return domain.Validation("employees_required", "employeeIds", "policy must list at least one employee")
	}
	return nil
}

// validateRefs checks catalog and directory references. It runs outside
// any transaction; empty arguments are skipped.
func (s *Service) validateRefs(ctx context.Context, companyID domain.CompanyID, leaveType domain.LeaveTypeCode, ids []domain.EmployeeID) error {
	if leaveType != "" {
		if _, err := s.catalog.GetLeaveType(ctx, companyID, leaveType); err != nil {
			return err
		}
	}
	if s.directory == nil {
		return nil
	}
	for _, id := range ids {
		if _, err := s.directory.FindEmployee(ctx, companyID, string(id)); err != nil {
			return err
		}
	}
	return nil
}

func affectedKeys(before, after *domain.CustomPolicy) []domain.BalanceKey {
	seen := make(map[domain.BalanceKey]bool)
	var keys []domain.BalanceKey
	for _, p := range []*domain.CustomPolicy{before, after} {
		if p == nil {
			continue
		}
		for _, id := range p.EmployeeIDs {
			k := domain.BalanceKey{CompanyID: p.CompanyID, EmployeeID: id, LeaveType: p.LeaveType}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func dedupe(ids []domain.EmployeeID) []domain.EmployeeID {
	seen := make(map[domain.EmployeeID]bool, len(ids))
	out := make([]domain.EmployeeID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func requireManager(actor domain.Actor) error {
	if !actor.Can(domain.CapManagePolicies) {
		return domain.Forbidden("policy_forbidden", "only HR or admin can manage custom policies")
	}
	return nil
}
