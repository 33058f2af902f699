/*
Package policy resolves effective leave quotas and manages custom policies.

PURPOSE:
  A leave type's default annual quota comes from the catalog. An active
  CustomPolicy listing the employee overrides it. Quota resolution is
  separate from balance tracking: changing a policy records only the
  quota delta as a custom_adjustment, never a ledger rewrite.

AMBIGUITY:
  When several active policies cover the same employee and leave type, the
  oldest one wins.

SEE ALSO:
  - custom.go: policy CRUD with ledger side effects
  - ledger.QuotaResolver: the interface Resolver satisfies
*/
package policy

import (
	"context"

	"github.com/warp/leave-engine/domain"
)

// Resolver merges default and custom quotas.
type Resolver struct {
	store   domain.Store
	catalog domain.LeaveTypeCatalog
}

func NewResolver(store domain.Store, catalog domain.LeaveTypeCatalog) *Resolver {
	return &Resolver{store: store, catalog: catalog}
}

// ResolveQuota returns the effective annual quota for key.
func (r *Resolver) ResolveQuota(ctx context.Context, key domain.BalanceKey) (domain.QuotaResolution, error) {
	return r.ResolveQuotaIn(ctx, r.store, key)
}

// ResolveQuotaIn is ResolveQuota reading policies from ps. When ps also
// implements domain.LeaveTypeCatalog it serves the default quota too.
func (r *Resolver) ResolveQuotaIn(ctx context.Context, ps domain.PolicyStore, key domain.BalanceKey) (domain.QuotaResolution, error) {
	policies, err := ps.ListPolicies(ctx, domain.PolicyFilter{
		CompanyID:  key.CompanyID,
		LeaveType:  key.LeaveType,
		EmployeeID: key.EmployeeID,
		ActiveOnly: true,
	})
	if err != nil {
		return domain.QuotaResolution{}, err
	}
	if len(policies) > 0 {
		p := policies[0]
		return domain.QuotaResolution{
			Quota:      p.AnnualQuota,
			Source:     domain.QuotaCustom,
			PolicyID:   p.ID,
			PolicyName: p.Name,
		}, nil
	}

	catalog := r.catalog
	if c, ok := ps.(domain.LeaveTypeCatalog); ok {
		catalog = c // transactional views that serve the catalog
	}
	lt, err := catalog.GetLeaveType(ctx, key.CompanyID, key.LeaveType)
	if err != nil {
		return domain.QuotaResolution{}, err
	}
	return domain.QuotaResolution{Quota: lt.AnnualQuota, Source: domain.QuotaDefault}, nil
}

// EmployeeBalance is the resolved view of one employee's leave type.
type EmployeeBalance struct {
	Key             domain.BalanceKey
	Total           domain.Amount
	Used            domain.Amount
	Balance         domain.Amount
	HasCustomPolicy bool
	Quota           domain.QuotaResolution
	FromLedger      bool
}

// ResolveEmployeeBalance combines the effective quota with the ledger's
// latest balance, preferring it over the projection whenever an entry exists.
func (r *Resolver) ResolveEmployeeBalance(ctx context.Context, key domain.BalanceKey) (EmployeeBalance, error) {
	quota, err := r.ResolveQuota(ctx, key)
	if err != nil {
		return EmployeeBalance{}, err
	}
	latest, err := r.store.LatestEntry(ctx, key)
	if err != nil {
		return EmployeeBalance{}, err
	}
	projection, err := r.store.GetProjection(ctx, key)
	if err != nil {
		return EmployeeBalance{}, err
	}

	b := EmployeeBalance{
		Key:             key,
		Total:           quota.Quota,
		Used:            domain.ZeroDays(),
		Balance:         quota.Quota,
		HasCustomPolicy: quota.Source == domain.QuotaCustom,
		Quota:           quota,
	}
	if projection != nil {
		b.Used = projection.Used
		b.Balance = projection.Balance
	}
	if latest != nil {
		b.Balance = latest.BalanceAfter
		b.FromLedger = true
	}
	return b, nil
}
