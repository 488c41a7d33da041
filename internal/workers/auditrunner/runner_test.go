package auditrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/adapters/memory"
	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

func seed(t *testing.T, s *memory.Store, docs ...domain.Document) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InsertCompany(ctx, domain.Company{ID: "c1", Name: "Acme", State: domain.CompanyAuditInProgress}))
	for _, d := range docs {
		d.CompanyID = "c1"
		require.NoError(t, s.InsertDocument(ctx, d, "k/"+d.ID))
	}
	require.NoError(t, s.CreateAudit(ctx, domain.Audit{ID: "a1", CompanyID: "c1", Status: domain.AuditQueued}))
}

func TestProcessNext_CompletesAudit(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store,
		domain.Document{ID: "d1", Type: domain.TypeFinancialReport, Status: domain.DocumentReady},
		domain.Document{ID: "d2", Type: domain.TypePolicy, Status: domain.DocumentReady},
		domain.Document{ID: "d3", Type: domain.TypeInvoice, Status: domain.DocumentReady},
	)

	found, err := ProcessNext(ctx, store, AnalysisProcessor{Repo: store, Docs: store})
	require.NoError(t, err)
	require.True(t, found)

	a, _ := store.GetAudit(ctx, "a1")
	assert.Equal(t, domain.AuditCompleted, a.Status)
	assert.Equal(t, 100, a.Progress)
	assert.Len(t, a.Findings, 3)
	c, _ := store.GetCompany(ctx, "c1")
	assert.Equal(t, domain.CompanyCompliant, c.State)

	found, err = ProcessNext(ctx, store, AnalysisProcessor{Repo: store, Docs: store})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProcessNext_MissingEvidenceIsNonCompliant(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store, domain.Document{ID: "d1", Type: domain.TypePolicy, Status: domain.DocumentReady})

	_, err := ProcessNext(ctx, store, AnalysisProcessor{Repo: store, Docs: store})
	require.NoError(t, err)
	a, _ := store.GetAudit(ctx, "a1")
	assert.Equal(t, 1, a.Metrics.HardFailures)
	c, _ := store.GetCompany(ctx, "c1")
	assert.Equal(t, domain.CompanyNonCompliant, c.State)
}

func TestAnalysisProcessor_StepsProgressOnClock(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := memory.New(clock)
	seed(t, store)
	job, _, err := store.ClaimNext(ctx)
	require.NoError(t, err)

	p := AnalysisProcessor{Repo: store, Docs: store, Clock: clock, Step: time.Second}
	done := make(chan error, 1)
	go func() {
		_, err := p.Process(ctx, job)
		done <- err
	}()

	for want := 0; want < 95; want += 5 {
		clock.BlockUntil(1)
		a, _ := store.GetAudit(ctx, "a1")
		assert.Equal(t, want, a.Progress)
		clock.Advance(time.Second)
	}
	require.NoError(t, <-done)
	a, _ := store.GetAudit(ctx, "a1")
	assert.Equal(t, 95, a.Progress)
	assert.Equal(t, "Analyzing document batch 5...", a.Summary)
}

type failingProcessor struct{}

func (failingProcessor) Process(context.Context, ports.AuditJob) (ports.AuditResult, error) {
	return ports.AuditResult{}, errors.New("analysis backend unavailable")
}

func TestProcessNext_FailureReleasesCompany(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store)

	found, err := ProcessNext(ctx, store, failingProcessor{})
	assert.True(t, found)
	require.Error(t, err)

	a, _ := store.GetAudit(ctx, "a1")
	assert.Equal(t, domain.AuditFailed, a.Status)
	assert.Equal(t, "analysis backend unavailable", a.Summary)
	c, _ := store.GetCompany(ctx, "c1")
	assert.Equal(t, domain.CompanyReadyToAudit, c.State)
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	store := memory.New(nil)
	seed(t, store, domain.Document{ID: "d1", Type: domain.TypeFinancialReport, Status: domain.DocumentReady})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		Run(ctx, store, AnalysisProcessor{Repo: store, Docs: store}, 2, 10*time.Millisecond, nil)
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		a, _ := store.GetAudit(context.Background(), "a1")
		return a.Status == domain.AuditCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
