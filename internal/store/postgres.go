package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/db"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot pipeline paths.
var preparedStatements = map[string]string{
	"get_raw_event": `SELECT id, source_id, external_id, author, url, raw_text, raw_json,
		content_hash, published_at, ingested_at, immediate_token FROM raw_events WHERE id = $1`,
	"insert_fingerprint": `INSERT INTO fingerprints (raw_event_id, source_id, simhash, tokens, published_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (raw_event_id) DO NOTHING`,
	"recent_fingerprints": `SELECT raw_event_id, source_id, simhash, tokens, published_at
		FROM fingerprints WHERE source_id = $1 AND published_at >= $2 AND published_at <= $3`,
	"insert_decision": pgInsertDecision,
	"decision_chain": `SELECT raw_event_id, stage, decision, reason, model_name, model_confidence, prompt_version, created_at
		FROM filter_decisions WHERE raw_event_id = $1 ORDER BY created_at ASC`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use it with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk reference loads).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_events (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	author          TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	raw_text        TEXT NOT NULL,
	raw_json        TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL,
	published_at    TIMESTAMPTZ NOT NULL,
	ingested_at     TIMESTAMPTZ NOT NULL,
	immediate_token BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS canonical_index (
	content_hash TEXT PRIMARY KEY,
	raw_event_id TEXT NOT NULL REFERENCES raw_events(id)
);

CREATE TABLE IF NOT EXISTS fingerprints (
	raw_event_id TEXT PRIMARY KEY REFERENCES raw_events(id),
	source_id    TEXT NOT NULL,
	simhash      TEXT NOT NULL,
	tokens       JSONB NOT NULL,
	published_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS filter_decisions (
	raw_event_id     TEXT NOT NULL,
	stage            TEXT NOT NULL,
	decision         TEXT NOT NULL,
	reason           TEXT NOT NULL,
	model_name       TEXT NOT NULL DEFAULT '',
	model_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	prompt_version   TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (raw_event_id, stage)
);

CREATE TABLE IF NOT EXISTS extracted_actions (
	raw_event_id       TEXT PRIMARY KEY,
	project_name       TEXT NOT NULL DEFAULT '',
	required_action    TEXT NOT NULL DEFAULT '',
	cost_of_entry_usd  DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_confidence    TEXT NOT NULL DEFAULT 'low',
	vc_backing         JSONB NOT NULL DEFAULT '[]',
	evidence           JSONB NOT NULL DEFAULT '[]',
	deadline_at        TIMESTAMPTZ,
	structured_payload TEXT NOT NULL DEFAULT '',
	validation_status  TEXT NOT NULL,
	attempts           INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                    TEXT PRIMARY KEY,
	raw_event_id          TEXT NOT NULL UNIQUE,
	project_name          TEXT NOT NULL,
	required_action       TEXT NOT NULL,
	cost_of_entry_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
	vc_backing            JSONB NOT NULL DEFAULT '[]',
	deadline_at           TIMESTAMPTZ,
	score                 DOUBLE PRECISION NOT NULL,
	score_breakdown       JSONB NOT NULL,
	logic_to_profit_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence            DOUBLE PRECISION NOT NULL DEFAULT 0,
	priority              TEXT NOT NULL,
	immediate_token       BOOLEAN NOT NULL DEFAULT false,
	source_url            TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS investor_weights (
	investor TEXT PRIMARY KEY,
	tier     INTEGER NOT NULL,
	weight   DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	reliability DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS parked_events (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	envelope      JSONB NOT NULL,
	error         TEXT NOT NULL,
	error_type    TEXT NOT NULL DEFAULT 'transient',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 5,
	next_retry_at TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_tried_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_raw_events_source_external ON raw_events(source_id, external_id);
CREATE INDEX IF NOT EXISTS idx_fingerprints_source_published ON fingerprints(source_id, published_at);
CREATE INDEX IF NOT EXISTS idx_filter_decisions_event ON filter_decisions(raw_event_id, created_at);
CREATE INDEX IF NOT EXISTS idx_opportunities_score ON opportunities(score DESC);
CREATE INDEX IF NOT EXISTS idx_parked_events_next_retry ON parked_events(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgSelectCanonical = `SELECT e.id, e.source_id, e.external_id, e.author, e.url, e.raw_text, e.raw_json,
	e.content_hash, e.published_at, e.ingested_at, e.immediate_token
	FROM canonical_index c JOIN raw_events e ON e.id = c.raw_event_id
	WHERE c.content_hash = $1 FOR UPDATE OF c`

// InsertCanonical resolves ev against the canonical index. Concurrent
// first-writers of a new content hash race on the unique index: the
// loser's insert hits the conflict, its transaction is discarded, and the
// next attempt observes the winner's committed row.
func (s *PostgresStore) InsertCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		canonical, isCanonical, raced, err := s.resolveCanonical(ctx, ev)
		if err != nil {
			return nil, false, err
		}
		if !raced {
			return canonical, isCanonical, nil
		}
	}
	return nil, false, eris.Errorf("postgres: canonical index contention for %s", ev.ContentHash)
}

func (s *PostgresStore) resolveCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, false, eris.Wrap(err, "postgres: begin canonical insert")
	}
	defer tx.Rollback(ctx)

	existing, err := scanPgRawEvent(tx.QueryRow(ctx, pgSelectCanonical, ev.ContentHash))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, false, eris.Wrap(err, "postgres: lookup canonical")
	}

	if existing == nil {
		if err := insertPgRawEvent(ctx, tx, ev); err != nil {
			return nil, false, false, err
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO canonical_index (content_hash, raw_event_id) VALUES ($1, $2)
			 ON CONFLICT (content_hash) DO NOTHING`,
			ev.ContentHash, ev.ID,
		)
		if err != nil {
			return nil, false, false, eris.Wrap(err, "postgres: insert canonical index")
		}
		// Lost the first-writer race: discard our raw event and re-read
		// the winner.
		if tag.RowsAffected() == 0 {
			return nil, false, true, nil
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, false, eris.Wrap(err, "postgres: commit canonical insert")
		}
		return &ev, true, false, nil
	}

	if precedes(ev, *existing) {
		if err := insertPgRawEvent(ctx, tx, ev); err != nil {
			return nil, false, false, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE canonical_index SET raw_event_id = $1 WHERE content_hash = $2`,
			ev.ID, ev.ContentHash,
		); err != nil {
			return nil, false, false, eris.Wrap(err, "postgres: repoint canonical index")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, false, eris.Wrap(err, "postgres: commit canonical repoint")
		}
		return &ev, true, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, false, eris.Wrap(err, "postgres: commit canonical lookup")
	}
	return existing, false, false, nil
}

func insertPgRawEvent(ctx context.Context, tx pgx.Tx, ev model.RawEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO raw_events
		 (id, source_id, external_id, author, url, raw_text, raw_json, content_hash, published_at, ingested_at, immediate_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.SourceID, ev.ExternalID, ev.Author, ev.URL, ev.RawText, ev.RawJSON,
		ev.ContentHash, ev.PublishedAt, ev.IngestedAt, ev.ImmediateToken,
	)
	return eris.Wrap(err, "postgres: insert raw event")
}

func (s *PostgresStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	ev, err := scanPgRawEvent(s.pool.QueryRow(ctx,
		`SELECT id, source_id, external_id, author, url, raw_text, raw_json,
		 content_hash, published_at, ingested_at, immediate_token FROM raw_events WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: raw event not found: %s", id)
	}
	return ev, err
}

func scanPgRawEvent(row pgx.Row) (*model.RawEvent, error) {
	var ev model.RawEvent
	err := row.Scan(&ev.ID, &ev.SourceID, &ev.ExternalID, &ev.Author, &ev.URL, &ev.RawText,
		&ev.RawJSON, &ev.ContentHash, &ev.PublishedAt, &ev.IngestedAt, &ev.ImmediateToken)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *PostgresStore) InsertFingerprint(ctx context.Context, fp model.Fingerprint) error {
	tokensJSON, err := json.Marshal(fp.Tokens)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tokens")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO fingerprints (raw_event_id, source_id, simhash, tokens, published_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (raw_event_id) DO NOTHING`,
		fp.RawEventID, fp.SourceID, strconv.FormatUint(fp.Simhash, 10), tokensJSON, fp.PublishedAt,
	)
	return eris.Wrap(err, "postgres: insert fingerprint")
}

func (s *PostgresStore) RecentFingerprints(ctx context.Context, sourceID string, from, to time.Time) ([]model.Fingerprint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT raw_event_id, source_id, simhash, tokens, published_at
		 FROM fingerprints WHERE source_id = $1 AND published_at >= $2 AND published_at <= $3`,
		sourceID, from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent fingerprints")
	}
	defer rows.Close()

	var fps []model.Fingerprint
	for rows.Next() {
		var fp model.Fingerprint
		var simhashStr string
		var tokensJSON []byte
		if err := rows.Scan(&fp.RawEventID, &fp.SourceID, &simhashStr, &tokensJSON, &fp.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		fp.Simhash, err = strconv.ParseUint(simhashStr, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: parse simhash for %s", fp.RawEventID)
		}
		if err := json.Unmarshal(tokensJSON, &fp.Tokens); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal tokens")
		}
		fps = append(fps, fp)
	}
	return fps, eris.Wrap(rows.Err(), "postgres: recent fingerprints iterate")
}

const pgInsertDecision = `INSERT INTO filter_decisions
(raw_event_id, stage, decision, reason, model_name, model_confidence, prompt_version, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (raw_event_id, stage) DO NOTHING`

func (s *PostgresStore) SaveDecision(ctx context.Context, d model.FilterDecision) error {
	_, err := s.pool.Exec(ctx, pgInsertDecision, decisionArgs(d)...)
	return eris.Wrap(err, "postgres: save decision")
}

func (s *PostgresStore) DecisionChain(ctx context.Context, rawEventID string) ([]model.FilterDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT raw_event_id, stage, decision, reason, model_name, model_confidence, prompt_version, created_at
		 FROM filter_decisions WHERE raw_event_id = $1 ORDER BY created_at ASC`,
		rawEventID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: decision chain")
	}
	defer rows.Close()

	var chain []model.FilterDecision
	for rows.Next() {
		var d model.FilterDecision
		if err := rows.Scan(&d.RawEventID, &d.Stage, &d.Decision, &d.Reason,
			&d.ModelName, &d.ModelConfidence, &d.PromptVersion, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		chain = append(chain, d)
	}
	return chain, eris.Wrap(rows.Err(), "postgres: decision chain iterate")
}

func (s *PostgresStore) SaveActionWithDecision(ctx context.Context, action model.ExtractedAction, d model.FilterDecision) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin action save")
	}
	defer tx.Rollback(ctx)

	vcJSON, err := json.Marshal(action.VCBacking)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vc backing")
	}
	evidenceJSON, err := json.Marshal(action.Evidence)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO extracted_actions
		 (raw_event_id, project_name, required_action, cost_of_entry_usd, cost_confidence,
		  vc_backing, evidence, deadline_at, structured_payload, validation_status, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (raw_event_id) DO UPDATE SET
		   project_name = EXCLUDED.project_name,
		   required_action = EXCLUDED.required_action,
		   cost_of_entry_usd = EXCLUDED.cost_of_entry_usd,
		   cost_confidence = EXCLUDED.cost_confidence,
		   vc_backing = EXCLUDED.vc_backing,
		   evidence = EXCLUDED.evidence,
		   deadline_at = EXCLUDED.deadline_at,
		   structured_payload = EXCLUDED.structured_payload,
		   validation_status = EXCLUDED.validation_status,
		   attempts = EXCLUDED.attempts`,
		action.RawEventID, action.ProjectName, action.RequiredAction, action.CostOfEntryUSD,
		string(action.CostConfidence), vcJSON, evidenceJSON, action.DeadlineAt,
		action.StructuredPayload, string(action.ValidationStatus), action.Attempts,
	); err != nil {
		return eris.Wrap(err, "postgres: insert action")
	}

	if _, err := tx.Exec(ctx, pgInsertDecision, decisionArgs(d)...); err != nil {
		return eris.Wrap(err, "postgres: insert action decision")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit action save")
}

func (s *PostgresStore) SaveOpportunityWithDecision(ctx context.Context, opp model.Opportunity, d model.FilterDecision) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin opportunity save")
	}
	defer tx.Rollback(ctx)

	if err := upsertPgOpportunity(ctx, tx, opp); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, pgInsertDecision, decisionArgs(d)...); err != nil {
		return eris.Wrap(err, "postgres: insert opportunity decision")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit opportunity save")
}

func (s *PostgresStore) SaveOpportunity(ctx context.Context, opp model.Opportunity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin opportunity upsert")
	}
	defer tx.Rollback(ctx)

	if err := upsertPgOpportunity(ctx, tx, opp); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit opportunity upsert")
}

func upsertPgOpportunity(ctx context.Context, tx pgx.Tx, opp model.Opportunity) error {
	vcJSON, err := json.Marshal(opp.VCBacking)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vc backing")
	}
	breakdownJSON, err := json.Marshal(opp.ScoreBreakdown)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score breakdown")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO opportunities
		 (id, raw_event_id, project_name, required_action, cost_of_entry_usd, vc_backing,
		  deadline_at, score, score_breakdown, logic_to_profit_ratio, confidence, priority,
		  immediate_token, source_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (raw_event_id) DO UPDATE SET
		   score = EXCLUDED.score,
		   score_breakdown = EXCLUDED.score_breakdown,
		   logic_to_profit_ratio = EXCLUDED.logic_to_profit_ratio,
		   confidence = EXCLUDED.confidence,
		   priority = EXCLUDED.priority,
		   created_at = EXCLUDED.created_at`,
		opp.ID, opp.RawEventID, opp.ProjectName, opp.RequiredAction, opp.CostOfEntryUSD,
		vcJSON, opp.DeadlineAt, opp.Score, breakdownJSON, opp.LogicToProfitRatio,
		opp.Confidence, string(opp.Priority), opp.ImmediateToken, opp.SourceURL, opp.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert opportunity")
}

const pgSelectAction = `SELECT raw_event_id, project_name, required_action, cost_of_entry_usd, cost_confidence,
	vc_backing, evidence, deadline_at, structured_payload, validation_status, attempts
	FROM extracted_actions`

func (s *PostgresStore) GetExtractedAction(ctx context.Context, rawEventID string) (*model.ExtractedAction, error) {
	a, err := scanPgAction(s.pool.QueryRow(ctx, pgSelectAction+` WHERE raw_event_id = $1`, rawEventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: extracted action not found: %s", rawEventID)
	}
	return a, err
}

func (s *PostgresStore) ListExtractedActions(ctx context.Context, limit int) ([]model.ExtractedAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, pgSelectAction+` ORDER BY raw_event_id LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list actions")
	}
	defer rows.Close()

	var actions []model.ExtractedAction
	for rows.Next() {
		a, err := scanPgAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, eris.Wrap(rows.Err(), "postgres: list actions iterate")
}

func scanPgAction(row pgx.Row) (*model.ExtractedAction, error) {
	var a model.ExtractedAction
	var vcJSON, evidenceJSON []byte
	var deadline *time.Time

	err := row.Scan(&a.RawEventID, &a.ProjectName, &a.RequiredAction, &a.CostOfEntryUSD,
		&a.CostConfidence, &vcJSON, &evidenceJSON, &deadline, &a.StructuredPayload,
		&a.ValidationStatus, &a.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan action")
	}

	a.DeadlineAt = deadline
	if err := json.Unmarshal(vcJSON, &a.VCBacking); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vc backing")
	}
	if err := json.Unmarshal(evidenceJSON, &a.Evidence); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal evidence")
	}
	return &a, nil
}

func (s *PostgresStore) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error) {
	query := `SELECT id, raw_event_id, project_name, required_action, cost_of_entry_usd, vc_backing,
	          deadline_at, score, score_breakdown, logic_to_profit_ratio, confidence, priority,
	          immediate_token, source_url, created_at
	          FROM opportunities WHERE true`
	args := []any{}
	argIdx := 1

	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	query += ` ORDER BY score DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var opps []model.Opportunity
	for rows.Next() {
		var o model.Opportunity
		var vcJSON, breakdownJSON []byte
		var deadline *time.Time
		if err := rows.Scan(&o.ID, &o.RawEventID, &o.ProjectName, &o.RequiredAction, &o.CostOfEntryUSD,
			&vcJSON, &deadline, &o.Score, &breakdownJSON, &o.LogicToProfitRatio, &o.Confidence,
			&o.Priority, &o.ImmediateToken, &o.SourceURL, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}
		o.DeadlineAt = deadline
		if err := json.Unmarshal(vcJSON, &o.VCBacking); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal vc backing")
		}
		if err := json.Unmarshal(breakdownJSON, &o.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal score breakdown")
		}
		opps = append(opps, o)
	}
	return opps, eris.Wrap(rows.Err(), "postgres: list opportunities iterate")
}

// SeedInvestorWeights bulk-loads the investor reference table.
func (s *PostgresStore) SeedInvestorWeights(ctx context.Context, weights []model.InvestorWeight) error {
	rows := make([][]any, 0, len(weights))
	for _, w := range weights {
		rows = append(rows, []any{w.Investor, w.Tier, w.Weight})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "investor_weights",
		Columns:      []string{"investor", "tier", "weight"},
		ConflictKeys: []string{"investor"},
	}, rows)
	return eris.Wrap(err, "postgres: seed investor weights")
}

func (s *PostgresStore) InvestorWeights(ctx context.Context) ([]model.InvestorWeight, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT investor, tier, weight FROM investor_weights ORDER BY weight DESC, investor`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: investor weights")
	}
	defer rows.Close()

	var weights []model.InvestorWeight
	for rows.Next() {
		var w model.InvestorWeight
		if err := rows.Scan(&w.Investor, &w.Tier, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan investor weight")
		}
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "postgres: investor weights iterate")
}

// SeedSources bulk-loads the source reliability table.
func (s *PostgresStore) SeedSources(ctx context.Context, sources []model.Source) error {
	rows := make([][]any, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []any{src.ID, src.Reliability})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "sources",
		Columns:      []string{"id", "reliability"},
		ConflictKeys: []string{"id"},
	}, rows)
	return eris.Wrap(err, "postgres: seed sources")
}

func (s *PostgresStore) Sources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, reliability FROM sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Reliability); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: sources iterate")
}

// ParkEvent upserts by (source, external_id): parking an already-parked
// envelope bumps its retry count instead of duplicating the row.
func (s *PostgresStore) ParkEvent(ctx context.Context, entry resilience.ParkedEvent) error {
	envJSON, err := json.Marshal(entry.Envelope)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal parked envelope")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO parked_events
		 (id, source_id, external_id, envelope, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_tried_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (source_id, external_id) DO UPDATE SET
		   error = EXCLUDED.error,
		   error_type = EXCLUDED.error_type,
		   retry_count = parked_events.retry_count + 1,
		   next_retry_at = EXCLUDED.next_retry_at,
		   last_tried_at = EXCLUDED.last_tried_at`,
		entry.ID, entry.Envelope.Source, entry.Envelope.ExternalID, envJSON,
		entry.Error, entry.ErrorType, entry.RetryCount,
		entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastTriedAt,
	)
	return eris.Wrap(err, "postgres: park event")
}

func (s *PostgresStore) ParkedEvents(ctx context.Context, limit int) ([]resilience.ParkedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, envelope, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_tried_at
		 FROM parked_events ORDER BY next_retry_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parked events")
	}
	defer rows.Close()

	var entries []resilience.ParkedEvent
	for rows.Next() {
		var e resilience.ParkedEvent
		var envJSON []byte
		if err := rows.Scan(&e.ID, &envJSON, &e.Error, &e.ErrorType, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastTriedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parked event")
		}
		if err := json.Unmarshal(envJSON, &e.Envelope); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parked envelope")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: parked events iterate")
}

func (s *PostgresStore) DeleteParkedEvent(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM parked_events WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete parked event")
}
