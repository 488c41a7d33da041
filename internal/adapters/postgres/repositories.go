package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"auditflow/internal/domain"
	"auditflow/internal/ports"
)

var (
	_ ports.CompanyRepository  = (*DB)(nil)
	_ ports.DocumentRepository = (*DB)(nil)
	_ ports.AuditRepository    = (*DB)(nil)
)

const companyColumns = `id, name, industry, country, website, state, document_count, created_date, last_audit_date`

func scanCompany(row pgx.Row) (domain.Company, error) {
	var c domain.Company
	var created time.Time
	var lastAudit *time.Time
	if err := row.Scan(&c.ID, &c.Name, &c.Industry, &c.Country, &c.Website, &c.State, &c.DocumentCount, &created, &lastAudit); err != nil {
		return domain.Company{}, err
	}
	c.CreatedDate = domain.Date(created)
	if lastAudit != nil {
		c.LastAuditDate = domain.Ptr(domain.Date(*lastAudit))
	}
	return c, nil
}

// CompanyRepository
func (db *DB) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Company{}
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	if uuid.Validate(id) != nil {
		return domain.Company{}, domain.ErrNotFound
	}
	c, err := scanCompany(db.Pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	return c, notFound(err)
}

func (db *DB) InsertCompany(ctx context.Context, c domain.Company) error {
	created, err := parseDate(c.CreatedDate)
	if err != nil {
		return fmt.Errorf("bad created date %q: %w", c.CreatedDate, err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO companies (id, name, industry, country, website, state, document_count, created_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, c.ID, c.Name, c.Industry, c.Country, c.Website, c.State, c.DocumentCount, created)
	return err
}

func (db *DB) SetCompanyState(ctx context.Context, id string, from, to domain.CompanyState) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `UPDATE companies SET state = $3 WHERE id = $1 AND state = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := db.GetCompany(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

const documentColumns = `id, company_id, name, type, extension, status, summary, error_message, uploaded_date`

func scanDocument(row pgx.Row) (domain.Document, error) {
	var d domain.Document
	var uploaded time.Time
	if err := row.Scan(&d.ID, &d.CompanyID, &d.Name, &d.Type, &d.Extension, &d.Status, &d.Summary, &d.ErrorMessage, &uploaded); err != nil {
		return domain.Document{}, err
	}
	d.UploadedDate = domain.Date(uploaded)
	return d, nil
}

// DocumentRepository
func (db *DB) ListDocuments(ctx context.Context, companyID string) ([]domain.Document, error) {
	if uuid.Validate(companyID) != nil {
		return []domain.Document{}, nil
	}
	rows, err := db.Pool.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE company_id = $1 ORDER BY seq DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if uuid.Validate(id) != nil {
		return domain.Document{}, domain.ErrNotFound
	}
	d, err := scanDocument(db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	return d, notFound(err)
}

func (db *DB) InsertDocument(ctx context.Context, d domain.Document, objectKey string) error {
	uploaded, err := parseDate(d.UploadedDate)
	if err != nil {
		return fmt.Errorf("bad uploaded date %q: %w", d.UploadedDate, err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO documents (id, company_id, name, type, extension, status, summary, error_message, object_key, uploaded_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, d.ID, d.CompanyID, d.Name, d.Type, d.Extension, d.Status, d.Summary, d.ErrorMessage, objectKey, uploaded)
	return err
}

func (db *DB) ObjectKey(ctx context.Context, id string) (string, error) {
	if uuid.Validate(id) != nil {
		return "", domain.ErrNotFound
	}
	var key string
	err := db.Pool.QueryRow(ctx, `SELECT object_key FROM documents WHERE id = $1`, id).Scan(&key)
	return key, notFound(err)
}

func (db *DB) SetDocumentStatus(ctx context.Context, id string, status domain.DocumentState, summary, errMsg *string) (domain.Document, error) {
	if uuid.Validate(id) != nil {
		return domain.Document{}, domain.ErrNotFound
	}
	var d domain.Document
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		var prev domain.DocumentState
		if err := tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&prev); err != nil {
			return notFound(err)
		}
		var err error
		d, err = scanDocument(tx.QueryRow(ctx, `
            UPDATE documents
            SET status = $2,
                summary = COALESCE($3, summary),
                error_message = COALESCE($4, error_message)
            WHERE id = $1
            RETURNING `+documentColumns, id, status, summary, errMsg))
		if err != nil {
			return err
		}
		if status == domain.DocumentReady && prev != domain.DocumentReady {
			_, err = tx.Exec(ctx, `UPDATE companies SET document_count = document_count + 1 WHERE id = $1`, d.CompanyID)
		}
		return err
	})
	return d, err
}

func (db *DB) RetryDocument(ctx context.Context, d domain.Document, objectKey string) (bool, error) {
	if uuid.Validate(d.ID) != nil {
		return false, domain.ErrNotFound
	}
	uploaded, err := parseDate(d.UploadedDate)
	if err != nil {
		return false, fmt.Errorf("bad uploaded date %q: %w", d.UploadedDate, err)
	}
	tag, err := db.Pool.Exec(ctx, `
        UPDATE documents
        SET name = $2, type = $3, extension = $4, object_key = $5, uploaded_date = $6,
            status = $7, summary = NULL, error_message = NULL
        WHERE id = $1 AND status = $8
    `, d.ID, d.Name, d.Type, d.Extension, objectKey, uploaded, domain.DocumentUploading, domain.DocumentError)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := db.GetDocument(ctx, d.ID); err != nil {
		return false, err
	}
	return false, nil
}

// AuditRepository
func (db *DB) CreateAudit(ctx context.Context, a domain.Audit) error {
	date, err := parseDate(a.Date)
	if err != nil {
		return fmt.Errorf("bad audit date %q: %w", a.Date, err)
	}
	findings, err := json.Marshal(nonNilFindings(a.Findings))
	if err != nil {
		return err
	}
	return db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO audits (id, company_id, audit_date, status, summary, progress, hard_failures, soft_failures, confidence_score, findings)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `, a.ID, a.CompanyID, date, a.Status, a.Summary, a.Progress,
			a.Metrics.HardFailures, a.Metrics.SoftFailures, a.Metrics.ConfidenceScore, findings); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO audit_jobs (id, audit_id, company_id) VALUES ($1, $2, $3)`, uuid.NewString(), a.ID, a.CompanyID)
		return err
	})
}

func (db *DB) GetAudit(ctx context.Context, id string) (domain.Audit, error) {
	if uuid.Validate(id) != nil {
		return domain.Audit{}, domain.ErrNotFound
	}
	var a domain.Audit
	var date time.Time
	var findings []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT id, company_id, audit_date, status, summary, progress, hard_failures, soft_failures, confidence_score, findings
        FROM audits WHERE id = $1
    `, id).Scan(&a.ID, &a.CompanyID, &date, &a.Status, &a.Summary, &a.Progress,
		&a.Metrics.HardFailures, &a.Metrics.SoftFailures, &a.Metrics.ConfidenceScore, &findings)
	if err != nil {
		return domain.Audit{}, notFound(err)
	}
	a.Date = domain.Date(date)
	if err := json.Unmarshal(findings, &a.Findings); err != nil {
		return domain.Audit{}, fmt.Errorf("decode findings of audit %s: %w", id, err)
	}
	return a, nil
}

func nonNilFindings(f []domain.Finding) []domain.Finding {
	if f == nil {
		return []domain.Finding{}
	}
	return f
}
