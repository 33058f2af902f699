// Package batch fans a per-employee operation out over a tenant.
package batch

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/domain"
)

// Run calls fn for every employee with at most limit calls in flight.
// Failures are collected per employee and never cancel the others. Both
// result lists are sorted by employee id.
func Run[T any](ctx context.Context, companyID domain.CompanyID, employees []domain.Employee, limit int, fn func(context.Context, domain.Employee) (T, error)) domain.BatchResult[T] {
	if limit < 1 {
		limit = 1
	}
	result := domain.BatchResult[T]{
		CompanyID: companyID,
		Succeeded: []domain.BatchSuccess[T]{},
		Failed:    []domain.BatchFailure{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(limit)
	for _, emp := range employees {
		emp := emp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, domain.NewBatchFailure(emp.ID, err))
				mu.Unlock()
				return nil
			}
			out, err := fn(ctx, emp)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, domain.NewBatchFailure(emp.ID, err))
				return nil
			}
			result.Succeeded = append(result.Succeeded, domain.BatchSuccess[T]{EmployeeID: emp.ID, Result: out})
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	sort.Slice(result.Succeeded, func(i, j int) bool { return result.Succeeded[i].EmployeeID < result.Succeeded[j].EmployeeID })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].EmployeeID < result.Failed[j].EmployeeID })
	return result
}
