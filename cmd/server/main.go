package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"auditflow/internal/activeaudit"
	httpadapter "auditflow/internal/adapters/http"
	"auditflow/internal/adapters/memory"
	"auditflow/internal/adapters/objectstore"
	pg "auditflow/internal/adapters/postgres"
	"auditflow/internal/config"
	"auditflow/internal/ports"
	auditsvc "auditflow/internal/services/audits"
	"auditflow/internal/services/backend"
	compsvc "auditflow/internal/services/companies"
	docsvc "auditflow/internal/services/documents"
	"auditflow/internal/workers/auditrunner"
)

// repositories is everything the services and workers need from storage.
type repositories interface {
	ports.CompanyRepository
	ports.DocumentRepository
	ports.AuditRepository
	ports.JobRepository
}

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v; using in-memory storage", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewRealClock()

	var repos repositories
	var state ports.KeyValueStore
	if cfg.DatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		repos, state = db, db.KV()
	} else {
		repos, state = memory.New(clock), activeaudit.NewMemoryStore()
	}

	var objects ports.ObjectStore
	srvOpts := []httpadapter.Option{httpadapter.WithClientState(state), httpadapter.WithPollInterval(cfg.PollInterval)}
	if cfg.UseS3() {
		s3, err := objectstore.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.UploadsBucket)
		if err != nil {
			log.Fatalf("s3 client error: %v", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Fatalf("s3 bucket error: %v", err)
		}
		objects = s3
	} else {
		blobs := memory.NewBlobs(cfg.PublicBaseURL)
		objects = blobs
		srvOpts = append(srvOpts, httpadapter.WithBlobs(blobs))
		log.Printf("object storage: in-memory, uploads via %s/blobs/", cfg.PublicBaseURL)
	}

	b := backend.New(
		compsvc.New(repos, clock),
		docsvc.New(repos, repos, objects, cfg.UploadURLTTL, clock),
		auditsvc.New(repos, repos, clock),
	)
	srv := httpadapter.New(b, srvOpts...)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	processor := auditrunner.AnalysisProcessor{Repo: repos, Docs: repos, Clock: clock, Step: cfg.AuditStepInterval}
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		auditrunner.Run(ctx, repos, processor, cfg.AuditWorkers, 500*time.Millisecond, clock)
	}()
	if cfg.AuditWorkers > 0 {
		log.Printf("audit workers started: %d", cfg.AuditWorkers)
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(fmt.Errorf("server error: %w", err))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancel()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Printf("audit workers did not stop in time")
	}
}
