package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

var (
	_ ports.JobRepository = (*DB)(nil)
	_ ports.AuditSource   = (*DB)(nil)
)

// ClaimNext selects the next queued job using SKIP LOCKED and marks it and its audit running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.AuditJob, found bool, err error) {
	err = db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            SELECT id, audit_id, company_id FROM audit_jobs
            WHERE status = 'queued'
            ORDER BY queued_at
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        `).Scan(&job.ID, &job.AuditID, &job.CompanyID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if _, err := tx.Exec(ctx, `
            UPDATE audit_jobs SET status = 'running', started_at = now(), attempts = attempts + 1 WHERE id = $1
        `, job.ID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE audits SET status = $2 WHERE id = $1`, job.AuditID, domain.AuditRunning)
		return err
	})
	if err != nil {
		return ports.AuditJob{}, false, err
	}
	return job, found, nil
}

func (db *DB) UpdateAuditProgress(ctx context.Context, auditID string, progress int, summary string) error {
	progress = min(max(progress, 0), 100)
	tag, err := db.Pool.Exec(ctx, `
        UPDATE audits
        SET progress = GREATEST(progress, $2),
            summary = CASE WHEN $3 = '' THEN summary ELSE $3 END
        WHERE id = $1
    `, auditID, progress, summary)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkCompleted stores the result and moves the company to its outcome atomically.
func (db *DB) MarkCompleted(ctx context.Context, jobID string, result ports.AuditResult) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	findings, err := json.Marshal(nonNilFindings(result.Findings))
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx pgx.Tx) error {
		var auditID, companyID string
		if err := tx.QueryRow(ctx, `
            UPDATE audit_jobs SET status = 'completed', finished_at = now() WHERE id = $1
            RETURNING audit_id, company_id
        `, jobID).Scan(&auditID, &companyID); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, `
            UPDATE audits
            SET status = $2, progress = 100, summary = $3,
                hard_failures = $4, soft_failures = $5, confidence_score = $6, findings = $7
            WHERE id = $1
        `, auditID, domain.AuditCompleted, result.Summary,
			result.Metrics.HardFailures, result.Metrics.SoftFailures, result.Metrics.ConfidenceScore, findings); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
            UPDATE companies SET state = $2, last_audit_date = CURRENT_DATE WHERE id = $1
        `, companyID, result.Outcome)
		return err
	})
}

// MarkFailed fails the audit and releases the company back to READY_TO_AUDIT.
func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.withTx(ctx, func(tx pgx.Tx) error {
		var auditID, companyID string
		if err := tx.QueryRow(ctx, `
            UPDATE audit_jobs SET status = 'failed', finished_at = now(), last_error = $2 WHERE id = $1
            RETURNING audit_id, company_id
        `, jobID, reason).Scan(&auditID, &companyID); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, `UPDATE audits SET status = $2, summary = $3 WHERE id = $1`, auditID, domain.AuditFailed, reason); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
            UPDATE companies SET state = $2 WHERE id = $1 AND state = $3
        `, companyID, domain.CompanyReadyToAudit, domain.CompanyAuditInProgress)
		return err
	})
}
