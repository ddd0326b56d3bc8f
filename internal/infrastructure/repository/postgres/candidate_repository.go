package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type CandidateRepository struct {
	db *sql.DB
}

func NewCandidateRepository(db *sql.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CandidateRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS candidates (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	content_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	justification TEXT NOT NULL DEFAULT '',
	duplicate_of TEXT NOT NULL DEFAULT '',
	resume_key TEXT NOT NULL,
	image_keys JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_content_hash
	ON candidates(content_hash)
	WHERE content_hash <> '' AND status NOT IN ('duplicate', 'failed');
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_candidates_created_at ON candidates(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CandidateRepository) Create(ctx context.Context, c *domain.Candidate) error {
	fieldsJSON, imagesJSON, err := marshalCandidateJSON(c)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO candidates (
	id, filename, mime_type, raw_text, fields, content_hash, status, justification, duplicate_of, resume_key, image_keys, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		c.ID, c.Filename, c.MimeType, c.RawText, fieldsJSON, c.ContentHash, string(c.Status),
		c.Justification, c.DuplicateOf, c.ResumeKey, imagesJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrapCandidateWriteError("insert candidate", err)
	}
	return nil
}

// Upsert writes the full candidate row keyed by id, so a retried store stage
// lands on the same row. A content-hash collision with another row surfaces
// as a duplicate error.
func (r *CandidateRepository) Upsert(ctx context.Context, c *domain.Candidate) error {
	fieldsJSON, imagesJSON, err := marshalCandidateJSON(c)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO candidates (
	id, filename, mime_type, raw_text, fields, content_hash, status, justification, duplicate_of, resume_key, image_keys, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
	raw_text = EXCLUDED.raw_text,
	fields = EXCLUDED.fields,
	content_hash = EXCLUDED.content_hash,
	status = EXCLUDED.status,
	justification = EXCLUDED.justification,
	duplicate_of = EXCLUDED.duplicate_of,
	image_keys = EXCLUDED.image_keys,
	updated_at = EXCLUDED.updated_at
`,
		c.ID, c.Filename, c.MimeType, c.RawText, fieldsJSON, c.ContentHash, string(c.Status),
		c.Justification, c.DuplicateOf, c.ResumeKey, imagesJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrapCandidateWriteError("upsert candidate", err)
	}
	return nil
}

func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*domain.Candidate, error) {
	row := r.db.QueryRowContext(ctx, candidateSelect+` WHERE id = $1`, id)
	return scanCandidate(row)
}

func (r *CandidateRepository) FindByContentHash(ctx context.Context, hash string) (*domain.Candidate, error) {
	row := r.db.QueryRowContext(ctx,
		candidateSelect+` WHERE content_hash = $1 AND status NOT IN ('duplicate', 'failed') LIMIT 1`, hash)
	return scanCandidate(row)
}

func (r *CandidateRepository) UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus, justification string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE candidates
SET status = $2, justification = CASE WHEN $3 <> '' THEN $3 ELSE justification END, updated_at = $4
WHERE id = $1
`, id, string(status), justification, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update candidate status: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update candidate status", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *CandidateRepository) List(ctx context.Context, filter domain.SearchFilter, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 50
	}
	query := candidateSelect
	args := []any{}
	var where []string
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf(`status = $%d`, len(args)))
	}
	if filter.Skill != "" {
		args = append(args, filter.Skill)
		where = append(where, fmt.Sprintf(`fields->'skills' ? $%d`, len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CandidateRepository) Stats(ctx context.Context) (domain.CorpusStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM candidates GROUP BY status`)
	if err != nil {
		return domain.CorpusStats{}, fmt.Errorf("corpus stats: %w", err)
	}
	defer rows.Close()

	stats := domain.CorpusStats{ByStatus: make(map[string]int)}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.CorpusStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.CorpusStats{}, err
	}
	stats.UpdatedUTC = time.Now().UTC().Format(time.RFC3339)
	return stats, nil
}

const candidateSelect = `
SELECT id, filename, mime_type, raw_text, fields, content_hash, status, justification, duplicate_of, resume_key, image_keys, created_at, updated_at
FROM candidates`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*domain.Candidate, error) {
	var c domain.Candidate
	var fieldsRaw, imagesRaw []byte
	var status string

	err := row.Scan(
		&c.ID, &c.Filename, &c.MimeType, &c.RawText, &fieldsRaw, &c.ContentHash, &status,
		&c.Justification, &c.DuplicateOf, &c.ResumeKey, &imagesRaw, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get candidate", err)
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}

	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &c.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	if len(imagesRaw) > 0 {
		if err := json.Unmarshal(imagesRaw, &c.ImageKeys); err != nil {
			return nil, fmt.Errorf("unmarshal image keys: %w", err)
		}
	}
	c.Status = domain.CandidateStatus(status)
	return &c, nil
}

func marshalCandidateJSON(c *domain.Candidate) (fields, images []byte, err error) {
	fieldsMap := c.Fields
	if fieldsMap == nil {
		fieldsMap = map[string]domain.Value{}
	}
	fields, err = json.Marshal(fieldsMap)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	imageKeys := c.ImageKeys
	if imageKeys == nil {
		imageKeys = []string{}
	}
	images, err = json.Marshal(imageKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal image keys: %w", err)
	}
	return fields, images, nil
}

func wrapCandidateWriteError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.WrapError(domain.ErrDuplicate, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
