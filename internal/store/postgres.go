package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/seanblong/geoscore/pkg/models"
)

// Postgres stores documents in a pgvector-enabled database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ DocumentStore = (*Postgres)(nil)

// NewPostgres connects to the database at url.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: p}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *Postgres) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS geo_documents (
  id         TEXT PRIMARY KEY,
  tenant_id  TEXT NOT NULL,
  title      TEXT NOT NULL DEFAULT '',
  content    TEXT NOT NULL DEFAULT '',
  metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
  embedding  vector(%d),
  created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
  ts         tsvector GENERATED ALWAYS AS (
	setweight(to_tsvector('english', coalesce(title,'')), 'A') ||
	setweight(to_tsvector('english', coalesce(content,'')), 'C')
  ) STORED
);

CREATE INDEX IF NOT EXISTS geo_documents_tenant_idx
  ON geo_documents (tenant_id);
CREATE INDEX IF NOT EXISTS geo_documents_metadata_gin
  ON geo_documents USING GIN (metadata);
CREATE INDEX IF NOT EXISTS geo_documents_ts_gin
  ON geo_documents USING GIN (ts);
CREATE INDEX IF NOT EXISTS geo_documents_embedding_idx
  ON geo_documents USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Insert upserts docs in one transaction.
func (s *Postgres) Insert(ctx context.Context, docs []models.Document) error {
	if err := prepare(docs, time.Now()); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO geo_documents (id, tenant_id, title, content, metadata, embedding, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			title     = EXCLUDED.title,
			content   = EXCLUDED.content,
			metadata  = EXCLUDED.metadata,
			embedding = COALESCE(EXCLUDED.embedding, geo_documents.embedding)
		WHERE geo_documents.tenant_id = EXCLUDED.tenant_id`

	for _, d := range docs {
		if _, err := tx.Exec(ctx, q, d.ID, d.TenantID, d.Title, d.Content, d.Metadata, vectorArg(d.Embedding), d.CreatedAt); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const selectCols = `id, tenant_id, title, content, metadata, embedding, created_at`

func (s *Postgres) Get(ctx context.Context, tenantID, id string) (models.Document, error) {
	if tenantID == "" {
		return models.Document{}, ErrTenantRequired
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectCols+` FROM geo_documents WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrNotFound
	}
	return d, err
}

func (s *Postgres) GetMany(ctx context.Context, tenantID string, ids []string) ([]models.Document, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectCols+` FROM geo_documents WHERE tenant_id = $1 AND id = ANY($2::text[])
		 ORDER BY array_position($2::text[], id)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) Search(ctx context.Context, tenantID string, vec []float32, q Query) ([]models.RankedDocument, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	args := []any{tenantID, pgvector.NewVector(vec), q.Threshold}
	where, args := whereClause(q, args)

	sql := fmt.Sprintf(`
SELECT %s, 1 - (embedding <=> $2::vector) AS similarity
FROM geo_documents
WHERE tenant_id = $1
  AND embedding IS NOT NULL
  AND 1 - (embedding <=> $2::vector) >= $3%s
ORDER BY embedding <=> $2::vector, created_at
LIMIT %d`, selectCols, where, q.limit())

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RankedDocument
	for rows.Next() {
		var (
			d   models.Document
			emb *pgvector.Vector
			sim float64
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.Metadata, &emb, &d.CreatedAt, &sim); err != nil {
			return nil, err
		}
		if emb != nil {
			d.Embedding = emb.Slice()
		}
		out = append(out, models.RankedDocument{Document: d, Similarity: sim, Score: sim})
	}
	return out, rows.Err()
}

// HybridSearch ranks by semanticWeight*cosine + (1-semanticWeight)*ts_rank_cd,
// with the keyword rank normalised by the best match in the tenant.
func (s *Postgres) HybridSearch(ctx context.Context, tenantID string, vec []float32, text string, semanticWeight float64, q Query) ([]models.RankedDocument, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	// A nil vector binds NULL, which leaves every semantic score at 0.
	args := []any{tenantID, vectorArg(vec), strings.TrimSpace(text), semanticWeight}
	where, args := whereClause(q, args)

	sql := fmt.Sprintf(`
WITH parsed AS (
  SELECT lower(x) AS lx
  FROM ts_debug('english', $3) d, unnest(d.lexemes) AS x
  WHERE d.alias NOT IN ('StopWord','Space','Blank','Punct')
),
q AS (
  SELECT to_tsquery('english',
    (SELECT CASE WHEN count(*) > 0 THEN string_agg(DISTINCT lx, ' | ') ELSE NULL END FROM parsed)
  ) AS tq
),
cand AS (
  SELECT %s,
    CASE WHEN embedding IS NULL THEN 0
         ELSE LEAST(GREATEST(1 - (embedding <=> $2::vector), 0), 1) END AS sem,
    COALESCE(ts_rank_cd(ts, (SELECT tq FROM q)), 0) AS lex
  FROM geo_documents
  WHERE tenant_id = $1%s
),
ranked AS (
  SELECT *, MAX(lex) OVER () AS max_lex FROM cand
)
SELECT %s, sem, COALESCE(lex / NULLIF(max_lex, 0), 0) AS kw,
       $4 * sem + (1 - $4) * COALESCE(lex / NULLIF(max_lex, 0), 0) AS score
FROM ranked
ORDER BY score DESC, created_at
LIMIT %d`, selectCols, where, selectCols, q.limit())

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RankedDocument
	for rows.Next() {
		var (
			d   models.Document
			emb *pgvector.Vector
			r   models.RankedDocument
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.Metadata, &emb, &d.CreatedAt,
			&r.Similarity, &r.KeywordScore, &r.Score); err != nil {
			return nil, err
		}
		if emb != nil {
			d.Embedding = emb.Slice()
		}
		r.Document = d
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, tenantID string, filters models.Filters) (int, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	where, args := whereClause(Query{Filters: filters}, []any{tenantID})
	tag, err := s.pool.Exec(ctx, `DELETE FROM geo_documents WHERE tenant_id = $1`+where, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Postgres) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM geo_documents WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks the database connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// whereClause appends metadata filter and exclusion predicates. Filter keys
// are bound as parameters, never interpolated.
func whereClause(q Query, args []any) (string, []any) {
	var b strings.Builder
	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vals, list := models.Values(q.Filters[k])
		args = append(args, k)
		keyIdx := len(args)
		if list {
			args = append(args, vals)
			fmt.Fprintf(&b, " AND metadata->>$%d = ANY($%d::text[])", keyIdx, len(args))
		} else {
			args = append(args, vals[0])
			fmt.Fprintf(&b, " AND metadata->>$%d = $%d", keyIdx, len(args))
		}
	}
	if len(q.ExcludeIDs) > 0 {
		args = append(args, q.ExcludeIDs)
		fmt.Fprintf(&b, " AND id <> ALL($%d::text[])", len(args))
	}
	return b.String(), args
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return (*pgvector.Vector)(nil)
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func scanDocument(row pgx.Row) (models.Document, error) {
	var (
		d   models.Document
		emb *pgvector.Vector
	)
	if err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Content, &d.Metadata, &emb, &d.CreatedAt); err != nil {
		return models.Document{}, err
	}
	if emb != nil {
		d.Embedding = emb.Slice()
	}
	return d, nil
}
