package carryforward

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
)

// Scheduler runs the company carry-forward once the previous financial
// year has closed. Replays are harmless: the ledger rejects a second run
// of the same year per employee with duplicate_entry.
type Scheduler struct {
	engine    *Engine
	companies []domain.CompanyID
	interval  time.Duration
	logger    *zap.Logger

	mu   sync.Mutex
	done map[string]bool // company|fromYear already run by this process
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(engine *Engine, companies []domain.CompanyID, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		engine:    engine,
		companies: companies,
		interval:  interval,
		logger:    engine.logger.Named("scheduler"),
		done:      make(map[string]bool),
	}
}

// Start begins checking in the background. It checks once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.stop)
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("companies", len(s.companies)),
	)
}

// Stop waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunNow carries every configured company out of the financial year that
// precedes today's, skipping companies this process already handled.
func (s *Scheduler) RunNow(ctx context.Context) {
	fiscal := s.engine.ledger.Fiscal()
	fromYear := fiscal.StartYear(s.engine.ledger.Clock().Today()) - 1

	for _, companyID := range s.companies {
		key := string(companyID) + "|" + fiscal.Label(fromYear)
		s.mu.Lock()
		already := s.done[key]
		s.mu.Unlock()
		if already {
			continue
		}

		result, err := s.engine.ExecuteForCompany(ctx, domain.SystemActor(companyID), fromYear)
		if err != nil {
			s.logger.Error("scheduled carry-forward failed",
				zap.String("company_id", string(companyID)),
				zap.Error(err),
			)
			continue
		}
		s.mu.Lock()
		s.done[key] = true
		s.mu.Unlock()

		s.logger.Info("scheduled carry-forward completed",
			zap.String("company_id", string(companyID)),
			zap.String("from_year", fiscal.Label(fromYear)),
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)),
		)
	}
}
