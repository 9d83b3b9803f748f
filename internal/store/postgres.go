package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/BeyondDrewTV/stylescope/internal/db"
	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (or a pgxmock) in a store.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS books (
	id                BIGSERIAL PRIMARY KEY,
	title             TEXT NOT NULL,
	author            TEXT NOT NULL,
	isbn              TEXT,
	isbn13            TEXT,
	synopsis          TEXT,
	cover_url         TEXT,
	search_normalized TEXT,
	overall_score     INTEGER,
	readability       INTEGER,
	grammar           INTEGER,
	polish            INTEGER,
	prose             INTEGER,
	pacing            INTEGER,
	confidence_level  TEXT,
	vote_count        INTEGER DEFAULT 0,
	spice_level       INTEGER DEFAULT 0,
	official_warnings JSONB,
	scoring_status    TEXT,
	context_source    TEXT,
	first_scored_at   TIMESTAMPTZ,
	last_scored_at    TIMESTAMPTZ,
	times_requested   INTEGER DEFAULT 0,
	UNIQUE(title, author)
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title         TEXT NOT NULL,
	author        TEXT NOT NULL,
	isbn          TEXT,
	identity      TEXT,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        JSONB,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS usage_counters (
	identity TEXT NOT NULL,
	month    TEXT NOT NULL,
	count    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (identity, month)
);

CREATE INDEX IF NOT EXISTS idx_books_search ON books(search_normalized);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const postgresUpsertBook = `
INSERT INTO books (
	title, author, isbn, isbn13, synopsis, cover_url, search_normalized,
	overall_score, readability, grammar, polish, prose, pacing,
	confidence_level, vote_count, spice_level, official_warnings,
	scoring_status, context_source,
	first_scored_at, last_scored_at, times_requested
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
ON CONFLICT (title, author) DO UPDATE SET
	overall_score     = excluded.overall_score,
	readability       = excluded.readability,
	grammar           = excluded.grammar,
	polish            = excluded.polish,
	prose             = excluded.prose,
	pacing            = excluded.pacing,
	confidence_level  = excluded.confidence_level,
	vote_count        = excluded.vote_count,
	spice_level       = excluded.spice_level,
	official_warnings = excluded.official_warnings,
	scoring_status    = excluded.scoring_status,
	context_source    = excluded.context_source,
	last_scored_at    = excluded.last_scored_at,
	first_scored_at   = COALESCE(books.first_scored_at, excluded.first_scored_at),
	times_requested   = books.times_requested + excluded.times_requested,
	synopsis          = COALESCE(NULLIF(books.synopsis, ''), excluded.synopsis),
	cover_url         = COALESCE(books.cover_url, excluded.cover_url),
	isbn              = COALESCE(books.isbn, excluded.isbn),
	isbn13            = COALESCE(books.isbn13, excluded.isbn13),
	search_normalized = excluded.search_normalized
RETURNING id
`

func (s *PostgresStore) UpsertScoredBook(ctx context.Context, p UpsertParams) (int64, error) {
	now := time.Now().UTC()
	increment := 0
	if p.IncrementRequested {
		increment = 1
	}

	var isbn13, coverURL, contextSource string
	if p.Context != nil {
		isbn13 = p.Context.ISBN13
		coverURL = p.Context.CoverURL
		contextSource = string(p.Context.Source)
	}

	var id int64
	err := s.pool.QueryRow(ctx, postgresUpsertBook,
		p.Query.Title, p.Query.Author,
		nullable(p.Query.ISBN), nullable(isbn13),
		nullable(synopsisFor(p.Context)), nullable(coverURL),
		searchKey(p.Query.Title, p.Query.Author),
		p.Result.Overall,
		p.Result.Dimensions.Readability,
		p.Result.Dimensions.Grammar,
		p.Result.Dimensions.Polish,
		p.Result.Dimensions.Prose,
		p.Result.Dimensions.Pacing,
		p.Result.ConfidenceLabel(),
		voteCountProxy(p.Context),
		p.SpiceLevel,
		nullable(p.OfficialWarnings),
		persistedStatus(p.Result),
		contextSource,
		now, now,
		increment,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert book %q", p.Query.Title)
	}
	return id, nil
}

const postgresSelectBook = `
SELECT id, title, author, isbn, isbn13, synopsis, cover_url,
       overall_score, readability, grammar, polish, prose, pacing,
       confidence_level, vote_count, spice_level, official_warnings,
       scoring_status, context_source,
       first_scored_at, last_scored_at, times_requested
FROM books WHERE title = $1 AND author = $2
`

func (s *PostgresStore) GetBook(ctx context.Context, title, author string) (*model.CachedBook, error) {
	row := s.pool.QueryRow(ctx, postgresSelectBook, title, author)

	var (
		b                                    model.CachedBook
		isbn, isbn13, synopsis, coverURL     sql.NullString
		warnings, status, ctxSource, conf    sql.NullString
		overall, read, gram, pol, prose, pac sql.NullInt64
		votes, spice, requested              sql.NullInt64
		firstScored, lastScored              sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &isbn, &isbn13, &synopsis, &coverURL,
		&overall, &read, &gram, &pol, &prose, &pac,
		&conf, &votes, &spice, &warnings,
		&status, &ctxSource,
		&firstScored, &lastScored, &requested,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get book %q", title)
	}

	b.ISBN = isbn.String
	b.ISBN13 = isbn13.String
	b.Synopsis = synopsis.String
	b.CoverURL = coverURL.String
	b.Overall = int(overall.Int64)
	b.Dimensions = model.DimensionScores{
		Readability: int(read.Int64),
		Grammar:     int(gram.Int64),
		Polish:      int(pol.Int64),
		Prose:       int(prose.Int64),
		Pacing:      int(pac.Int64),
	}
	b.Confidence = conf.String
	b.VoteCount = int(votes.Int64)
	b.SpiceLevel = int(spice.Int64)
	b.Warnings = warnings.String
	b.ScoringStatus = model.ScoringStatus(status.String)
	b.ContextSource = model.ContextSource(ctxSource.String)
	b.FirstScoredAt = firstScored.Time
	b.LastScoredAt = lastScored.Time
	b.TimesRequested = int(requested.Int64)
	return &b, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, q model.BookQuery, identity string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, title, author, isbn, identity, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, q.Title, q.Author, nullable(q.ISBN), nullable(identity),
		string(model.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.Job{
		ID:        id,
		Query:     q,
		Identity:  identity,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, author, isbn, identity, status, result, error_message, created_at, updated_at
		 FROM jobs WHERE id = $1`,
		jobID,
	)

	var (
		j                    model.Job
		isbn, identity       sql.NullString
		resultJSON, errorMsg sql.NullString
		status               string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&j.ID, &j.Query.Title, &j.Query.Author, &isbn, &identity,
		&status, &resultJSON, &errorMsg, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	j.Query.ISBN = isbn.String
	j.Identity = identity.String
	j.Status = model.JobStatus(status)
	j.ErrorMessage = errorMsg.String
	j.CreatedAt = createdAt
	j.UpdatedAt = updatedAt
	if resultJSON.Valid && resultJSON.String != "" {
		var result model.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal job result %s", jobID)
		}
		j.Result = &result
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, result *model.JobResult, errorMessage string) error {
	var resultJSON any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal job result")
		}
		resultJSON = string(data)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2,
		        result = COALESCE($3, result),
		        error_message = COALESCE($4, error_message)
		 WHERE id = $5`,
		string(status), time.Now().UTC(), resultJSON, nullable(errorMessage), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CheckAndIncrementUsage(ctx context.Context, identity, month string, cap int) (bool, int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO usage_counters (identity, month, count) VALUES ($1, $2, 1)
		 ON CONFLICT (identity, month) DO UPDATE SET count = usage_counters.count + 1
		 WHERE usage_counters.count < $3
		 RETURNING count`,
		identity, month, cap,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		current, gerr := s.GetUsage(ctx, identity, month)
		if gerr != nil {
			return false, 0, gerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, 0, eris.Wrapf(err, "postgres: increment usage %s", identity)
	}
	return true, count, nil
}

func (s *PostgresStore) GetUsage(ctx context.Context, identity, month string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM usage_counters WHERE identity = $1 AND month = $2`,
		identity, month,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: get usage %s", identity)
	}
	return count, nil
}
