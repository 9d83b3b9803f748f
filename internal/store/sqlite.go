package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/BeyondDrewTV/stylescope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS books (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
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
	official_warnings TEXT,
	scoring_status    TEXT,
	context_source    TEXT,
	first_scored_at   DATETIME,
	last_scored_at    DATETIME,
	times_requested   INTEGER DEFAULT 0,
	UNIQUE(title, author)
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	author        TEXT NOT NULL,
	isbn          TEXT,
	identity      TEXT,
	status        TEXT NOT NULL DEFAULT 'queued',
	result        TEXT,
	error_message TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteUpsertBook = `
INSERT INTO books (
	title, author, isbn, isbn13, synopsis, cover_url, search_normalized,
	overall_score, readability, grammar, polish, prose, pacing,
	confidence_level, vote_count, spice_level, official_warnings,
	scoring_status, context_source,
	first_scored_at, last_scored_at, times_requested
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(title, author) DO UPDATE SET
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
`

func (s *SQLiteStore) UpsertScoredBook(ctx context.Context, p UpsertParams) (int64, error) {
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

	_, err := s.db.ExecContext(ctx, sqliteUpsertBook,
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
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert book %q", p.Query.Title)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM books WHERE title = ? AND author = ?`,
		p.Query.Title, p.Query.Author,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: fetch book id %q", p.Query.Title)
	}
	return id, nil
}

const sqliteSelectBook = `
SELECT id, title, author, isbn, isbn13, synopsis, cover_url,
       overall_score, readability, grammar, polish, prose, pacing,
       confidence_level, vote_count, spice_level, official_warnings,
       scoring_status, context_source,
       first_scored_at, last_scored_at, times_requested
FROM books WHERE title = ? AND author = ?
`

func (s *SQLiteStore) GetBook(ctx context.Context, title, author string) (*model.CachedBook, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelectBook, title, author)

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
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get book %q", title)
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

func (s *SQLiteStore) CreateJob(ctx context.Context, q model.BookQuery, identity string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, author, isbn, identity, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, q.Title, q.Author, nullable(q.ISBN), nullable(identity),
		string(model.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, isbn, identity, status, result, error_message, created_at, updated_at
		 FROM jobs WHERE id = ?`,
		jobID,
	)

	var (
		j                     model.Job
		isbn, identity        sql.NullString
		resultJSON, errorMsg  sql.NullString
		status                string
		createdAt, updatedAt  time.Time
	)
	err := row.Scan(&j.ID, &j.Query.Title, &j.Query.Author, &isbn, &identity,
		&status, &resultJSON, &errorMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
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
			return nil, eris.Wrapf(err, "sqlite: unmarshal job result %s", jobID)
		}
		j.Result = &result
	}
	return &j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, result *model.JobResult, errorMessage string) error {
	var resultJSON any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal job result")
		}
		resultJSON = string(data)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?,
		        result = COALESCE(?, result),
		        error_message = COALESCE(?, error_message)
		 WHERE id = ?`,
		string(status), time.Now().UTC(), resultJSON, nullable(errorMessage), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckAndIncrementUsage increments the per-identity monthly counter only
// when it is below cap, in a single statement so concurrent callers cannot
// both slip past the limit.
func (s *SQLiteStore) CheckAndIncrementUsage(ctx context.Context, identity, month string, cap int) (bool, int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_counters (identity, month, count) VALUES (?, ?, 1)
		 ON CONFLICT(identity, month) DO UPDATE SET count = count + 1
		 WHERE usage_counters.count < ?
		 RETURNING count`,
		identity, month, cap,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// Denied: counter already at cap, nothing incremented.
		current, gerr := s.GetUsage(ctx, identity, month)
		if gerr != nil {
			return false, 0, gerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, 0, eris.Wrapf(err, "sqlite: increment usage %s", identity)
	}
	return true, count, nil
}

func (s *SQLiteStore) GetUsage(ctx context.Context, identity, month string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE identity = ? AND month = ?`,
		identity, month,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get usage %s", identity)
	}
	return count, nil
}

// nullable maps an empty string to NULL so COALESCE-based preservation
// works as intended.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
