package auditrunner

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"auditflow/internal/analysis"
	"auditflow/internal/ports"
)

// Processor performs the work of one audit job.
type Processor interface {
	Process(ctx context.Context, job ports.AuditJob) (ports.AuditResult, error)
}

// AnalysisProcessor steps the audit's progress on a fixed cadence, then evaluates the
// company's documents against the rule set.
type AnalysisProcessor struct {
	Repo  ports.JobRepository
	Docs  ports.AuditSource
	Rules []analysis.Rule
	Clock clockwork.Clock
	// Step is the delay between progress updates.
	Step time.Duration
}

func (p AnalysisProcessor) Process(ctx context.Context, job ports.AuditJob) (ports.AuditResult, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for pct := analysis.ProgressStep; pct < 100; pct += analysis.ProgressStep {
		select {
		case <-ctx.Done():
			return ports.AuditResult{}, ctx.Err()
		case <-clock.After(p.Step):
		}
		if err := p.Repo.UpdateAuditProgress(ctx, job.AuditID, pct, analysis.ProgressSummary(pct)); err != nil {
			return ports.AuditResult{}, err
		}
	}

	docs, err := p.Docs.ListDocuments(ctx, job.CompanyID)
	if err != nil {
		return ports.AuditResult{}, err
	}
	rules := p.Rules
	if rules == nil {
		rules = analysis.DefaultRules
	}
	res := analysis.Evaluate(rules, docs)
	return ports.AuditResult{Summary: res.Summary, Metrics: res.Metrics, Findings: res.Findings, Outcome: res.Outcome}, nil
}

// Run claims queued jobs every pollInterval and processes them on `concurrency` workers.
// It returns once ctx is done and in-flight jobs have been settled.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration, clock clockwork.Clock) {
	if concurrency < 1 {
		return
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	jobsCh := make(chan ports.AuditJob, concurrency)

	var g errgroup.Group
	// dispatcher loop
	g.Go(func() error {
		defer close(jobsCh)
		ticker := clock.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.Chan():
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						log.Printf("auditrunner: job claim error: %v", err)
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						settle(repo, job, "audit cancelled: worker shutting down")
						return nil
					}
				}
			}
		}
	})

	for i := 0; i < concurrency; i++ {
		i := i
		g.Go(func() error {
			for job := range jobsCh {
				if err := execute(ctx, repo, processor, job); err != nil {
					log.Printf("auditrunner: worker %d: job %s failed: %v", i, job.ID, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ProcessNext claims and processes one job synchronously. It reports whether a job was found.
func ProcessNext(ctx context.Context, repo ports.JobRepository, processor Processor) (bool, error) {
	job, found, err := repo.ClaimNext(ctx)
	if err != nil || !found {
		return false, err
	}
	return true, execute(ctx, repo, processor, job)
}

func execute(ctx context.Context, repo ports.JobRepository, processor Processor, job ports.AuditJob) error {
	result, err := processor.Process(ctx, job)
	if err != nil {
		settle(repo, job, err.Error())
		return err
	}
	if err := repo.MarkCompleted(context.WithoutCancel(ctx), job.ID, result); err != nil {
		log.Printf("auditrunner: complete %s: %v", job.ID, err)
		return err
	}
	return nil
}

// settle fails a job on a context that outlives shutdown, so the company is not left in
// AUDIT_IN_PROGRESS.
func settle(repo ports.JobRepository, job ports.AuditJob, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.MarkFailed(ctx, job.ID, reason); err != nil {
		log.Printf("auditrunner: fail %s: %v", job.ID, err)
	}
}
