package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/resilience"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_events (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	author          TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	raw_text        TEXT NOT NULL,
	raw_json        TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL,
	published_at    DATETIME NOT NULL,
	ingested_at     DATETIME NOT NULL,
	immediate_token INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS canonical_index (
	content_hash TEXT PRIMARY KEY,
	raw_event_id TEXT NOT NULL REFERENCES raw_events(id)
);

CREATE TABLE IF NOT EXISTS fingerprints (
	raw_event_id TEXT PRIMARY KEY REFERENCES raw_events(id),
	source_id    TEXT NOT NULL,
	simhash      TEXT NOT NULL,
	tokens       TEXT NOT NULL,
	published_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS filter_decisions (
	raw_event_id     TEXT NOT NULL,
	stage            TEXT NOT NULL,
	decision         TEXT NOT NULL,
	reason           TEXT NOT NULL,
	model_name       TEXT NOT NULL DEFAULT '',
	model_confidence REAL NOT NULL DEFAULT 0,
	prompt_version   TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	PRIMARY KEY (raw_event_id, stage)
);

CREATE TABLE IF NOT EXISTS extracted_actions (
	raw_event_id       TEXT PRIMARY KEY,
	project_name       TEXT NOT NULL DEFAULT '',
	required_action    TEXT NOT NULL DEFAULT '',
	cost_of_entry_usd  REAL NOT NULL DEFAULT 0,
	cost_confidence    TEXT NOT NULL DEFAULT 'low',
	vc_backing         TEXT NOT NULL DEFAULT '[]',
	evidence           TEXT NOT NULL DEFAULT '[]',
	deadline_at        DATETIME,
	structured_payload TEXT NOT NULL DEFAULT '',
	validation_status  TEXT NOT NULL,
	attempts           INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS opportunities (
	id                    TEXT PRIMARY KEY,
	raw_event_id          TEXT NOT NULL UNIQUE,
	project_name          TEXT NOT NULL,
	required_action       TEXT NOT NULL,
	cost_of_entry_usd     REAL NOT NULL DEFAULT 0,
	vc_backing            TEXT NOT NULL DEFAULT '[]',
	deadline_at           DATETIME,
	score                 REAL NOT NULL,
	score_breakdown       TEXT NOT NULL,
	logic_to_profit_ratio REAL NOT NULL DEFAULT 0,
	confidence            REAL NOT NULL DEFAULT 0,
	priority              TEXT NOT NULL,
	immediate_token       INTEGER NOT NULL DEFAULT 0,
	source_url            TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS investor_weights (
	investor TEXT PRIMARY KEY,
	tier     INTEGER NOT NULL,
	weight   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	reliability REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS parked_events (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	envelope      TEXT NOT NULL,
	error         TEXT NOT NULL,
	error_type    TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	max_retries   INTEGER NOT NULL DEFAULT 5,
	next_retry_at DATETIME NOT NULL,
	created_at    DATETIME NOT NULL,
	last_tried_at DATETIME NOT NULL,
	UNIQUE (source_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_raw_events_source_external ON raw_events(source_id, external_id);
CREATE INDEX IF NOT EXISTS idx_fingerprints_source_published ON fingerprints(source_id, published_at);
CREATE INDEX IF NOT EXISTS idx_filter_decisions_event ON filter_decisions(raw_event_id, created_at);
CREATE INDEX IF NOT EXISTS idx_opportunities_score ON opportunities(score DESC);
CREATE INDEX IF NOT EXISTS idx_parked_events_next_retry ON parked_events(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertCanonical(ctx context.Context, ev model.RawEvent) (*model.RawEvent, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: begin canonical insert")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT e.id, e.source_id, e.external_id, e.author, e.url, e.raw_text, e.raw_json,
		        e.content_hash, e.published_at, e.ingested_at, e.immediate_token
		 FROM canonical_index c JOIN raw_events e ON e.id = c.raw_event_id
		 WHERE c.content_hash = ?`,
		ev.ContentHash,
	)
	existing, err := scanRawEvent(row)
	if err != nil && !eris.Is(err, errNotFound) {
		return nil, false, err
	}

	if existing == nil {
		if err := insertRawEventTx(ctx, tx, ev); err != nil {
			return nil, false, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO canonical_index (content_hash, raw_event_id) VALUES (?, ?)`,
			ev.ContentHash, ev.ID,
		); err != nil {
			return nil, false, eris.Wrap(err, "sqlite: insert canonical index")
		}
		if err := tx.Commit(); err != nil {
			return nil, false, eris.Wrap(err, "sqlite: commit canonical insert")
		}
		return &ev, true, nil
	}

	// The earliest published event holds the canonical slot; ties break on
	// the smaller external id. Repointing keeps both event rows and their
	// ledger history intact.
	if precedes(ev, *existing) {
		if err := insertRawEventTx(ctx, tx, ev); err != nil {
			return nil, false, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE canonical_index SET raw_event_id = ? WHERE content_hash = ?`,
			ev.ID, ev.ContentHash,
		); err != nil {
			return nil, false, eris.Wrap(err, "sqlite: repoint canonical index")
		}
		if err := tx.Commit(); err != nil {
			return nil, false, eris.Wrap(err, "sqlite: commit canonical repoint")
		}
		return &ev, true, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: commit canonical lookup")
	}
	return existing, false, nil
}

// precedes reports whether a outranks b for the canonical slot.
func precedes(a, b model.RawEvent) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.Before(b.PublishedAt)
	}
	return a.ExternalID < b.ExternalID
}

func insertRawEventTx(ctx context.Context, tx *sql.Tx, ev model.RawEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO raw_events
		 (id, source_id, external_id, author, url, raw_text, raw_json, content_hash, published_at, ingested_at, immediate_token)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SourceID, ev.ExternalID, ev.Author, ev.URL, ev.RawText, ev.RawJSON,
		ev.ContentHash, ev.PublishedAt, ev.IngestedAt, boolToInt(ev.ImmediateToken),
	)
	return eris.Wrap(err, "sqlite: insert raw event")
}

func (s *SQLiteStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, external_id, author, url, raw_text, raw_json,
		        content_hash, published_at, ingested_at, immediate_token
		 FROM raw_events WHERE id = ?`,
		id,
	)
	ev, err := scanRawEvent(row)
	if eris.Is(err, errNotFound) {
		return nil, eris.Errorf("sqlite: raw event not found: %s", id)
	}
	return ev, err
}

func (s *SQLiteStore) InsertFingerprint(ctx context.Context, fp model.Fingerprint) error {
	tokensJSON, err := json.Marshal(fp.Tokens)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tokens")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (raw_event_id, source_id, simhash, tokens, published_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (raw_event_id) DO NOTHING`,
		fp.RawEventID, fp.SourceID, strconv.FormatUint(fp.Simhash, 10), string(tokensJSON), fp.PublishedAt,
	)
	return eris.Wrap(err, "sqlite: insert fingerprint")
}

func (s *SQLiteStore) RecentFingerprints(ctx context.Context, sourceID string, from, to time.Time) ([]model.Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_event_id, source_id, simhash, tokens, published_at
		 FROM fingerprints
		 WHERE source_id = ? AND published_at >= ? AND published_at <= ?`,
		sourceID, from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent fingerprints")
	}
	defer rows.Close()

	var fps []model.Fingerprint
	for rows.Next() {
		var fp model.Fingerprint
		var simhashStr, tokensJSON string
		if err := rows.Scan(&fp.RawEventID, &fp.SourceID, &simhashStr, &tokensJSON, &fp.PublishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		fp.Simhash, err = strconv.ParseUint(simhashStr, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse simhash for %s", fp.RawEventID)
		}
		if err := json.Unmarshal([]byte(tokensJSON), &fp.Tokens); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal tokens")
		}
		fps = append(fps, fp)
	}
	return fps, eris.Wrap(rows.Err(), "sqlite: recent fingerprints iterate")
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, d model.FilterDecision) error {
	_, err := s.db.ExecContext(ctx, sqliteInsertDecision, decisionArgs(d)...)
	return eris.Wrap(err, "sqlite: save decision")
}

// Decisions are append-only and idempotent per (event, stage): a replayed
// event re-records the same stage without clobbering the original row.
const sqliteInsertDecision = `
INSERT INTO filter_decisions
(raw_event_id, stage, decision, reason, model_name, model_confidence, prompt_version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (raw_event_id, stage) DO NOTHING`

func decisionArgs(d model.FilterDecision) []any {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return []any{
		d.RawEventID, string(d.Stage), string(d.Decision), d.Reason,
		d.ModelName, d.ModelConfidence, d.PromptVersion, d.CreatedAt,
	}
}

func (s *SQLiteStore) DecisionChain(ctx context.Context, rawEventID string) ([]model.FilterDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_event_id, stage, decision, reason, model_name, model_confidence, prompt_version, created_at
		 FROM filter_decisions WHERE raw_event_id = ? ORDER BY created_at ASC`,
		rawEventID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: decision chain")
	}
	defer rows.Close()

	var chain []model.FilterDecision
	for rows.Next() {
		var d model.FilterDecision
		if err := rows.Scan(&d.RawEventID, &d.Stage, &d.Decision, &d.Reason,
			&d.ModelName, &d.ModelConfidence, &d.PromptVersion, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		chain = append(chain, d)
	}
	return chain, eris.Wrap(rows.Err(), "sqlite: decision chain iterate")
}

func (s *SQLiteStore) SaveActionWithDecision(ctx context.Context, action model.ExtractedAction, d model.FilterDecision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin action save")
	}
	defer tx.Rollback()

	vcJSON, err := json.Marshal(action.VCBacking)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vc backing")
	}
	evidenceJSON, err := json.Marshal(action.Evidence)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO extracted_actions
		 (raw_event_id, project_name, required_action, cost_of_entry_usd, cost_confidence,
		  vc_backing, evidence, deadline_at, structured_payload, validation_status, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (raw_event_id) DO UPDATE SET
		   project_name = excluded.project_name,
		   required_action = excluded.required_action,
		   cost_of_entry_usd = excluded.cost_of_entry_usd,
		   cost_confidence = excluded.cost_confidence,
		   vc_backing = excluded.vc_backing,
		   evidence = excluded.evidence,
		   deadline_at = excluded.deadline_at,
		   structured_payload = excluded.structured_payload,
		   validation_status = excluded.validation_status,
		   attempts = excluded.attempts`,
		action.RawEventID, action.ProjectName, action.RequiredAction, action.CostOfEntryUSD,
		string(action.CostConfidence), string(vcJSON), string(evidenceJSON), action.DeadlineAt,
		action.StructuredPayload, string(action.ValidationStatus), action.Attempts,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert action")
	}

	if _, err := tx.ExecContext(ctx, sqliteInsertDecision, decisionArgs(d)...); err != nil {
		return eris.Wrap(err, "sqlite: insert action decision")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit action save")
}

func (s *SQLiteStore) SaveOpportunityWithDecision(ctx context.Context, opp model.Opportunity, d model.FilterDecision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin opportunity save")
	}
	defer tx.Rollback()

	if err := upsertOpportunityTx(ctx, tx, opp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertDecision, decisionArgs(d)...); err != nil {
		return eris.Wrap(err, "sqlite: insert opportunity decision")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit opportunity save")
}

func (s *SQLiteStore) SaveOpportunity(ctx context.Context, opp model.Opportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin opportunity upsert")
	}
	defer tx.Rollback()

	if err := upsertOpportunityTx(ctx, tx, opp); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit opportunity upsert")
}

func upsertOpportunityTx(ctx context.Context, tx *sql.Tx, opp model.Opportunity) error {
	vcJSON, err := json.Marshal(opp.VCBacking)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vc backing")
	}
	breakdownJSON, err := json.Marshal(opp.ScoreBreakdown)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score breakdown")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO opportunities
		 (id, raw_event_id, project_name, required_action, cost_of_entry_usd, vc_backing,
		  deadline_at, score, score_breakdown, logic_to_profit_ratio, confidence, priority,
		  immediate_token, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (raw_event_id) DO UPDATE SET
		   score = excluded.score,
		   score_breakdown = excluded.score_breakdown,
		   logic_to_profit_ratio = excluded.logic_to_profit_ratio,
		   confidence = excluded.confidence,
		   priority = excluded.priority,
		   created_at = excluded.created_at`,
		opp.ID, opp.RawEventID, opp.ProjectName, opp.RequiredAction, opp.CostOfEntryUSD,
		string(vcJSON), opp.DeadlineAt, opp.Score, string(breakdownJSON), opp.LogicToProfitRatio,
		opp.Confidence, string(opp.Priority), boolToInt(opp.ImmediateToken), opp.SourceURL, opp.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert opportunity")
}

func (s *SQLiteStore) GetExtractedAction(ctx context.Context, rawEventID string) (*model.ExtractedAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT raw_event_id, project_name, required_action, cost_of_entry_usd, cost_confidence,
		        vc_backing, evidence, deadline_at, structured_payload, validation_status, attempts
		 FROM extracted_actions WHERE raw_event_id = ?`,
		rawEventID,
	)
	a, err := scanAction(row)
	if eris.Is(err, errNotFound) {
		return nil, eris.Errorf("sqlite: extracted action not found: %s", rawEventID)
	}
	return a, err
}

func (s *SQLiteStore) ListExtractedActions(ctx context.Context, limit int) ([]model.ExtractedAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_event_id, project_name, required_action, cost_of_entry_usd, cost_confidence,
		        vc_backing, evidence, deadline_at, structured_payload, validation_status, attempts
		 FROM extracted_actions ORDER BY raw_event_id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list actions")
	}
	defer rows.Close()

	var actions []model.ExtractedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *a)
	}
	return actions, eris.Wrap(rows.Err(), "sqlite: list actions iterate")
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]model.Opportunity, error) {
	query := `SELECT id, raw_event_id, project_name, required_action, cost_of_entry_usd, vc_backing,
	          deadline_at, score, score_breakdown, logic_to_profit_ratio, confidence, priority,
	          immediate_token, source_url, created_at
	          FROM opportunities WHERE 1=1`
	var args []any

	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	query += ` ORDER BY score DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var opps []model.Opportunity
	for rows.Next() {
		var o model.Opportunity
		var vcJSON, breakdownJSON string
		var immediate int
		var deadline sql.NullTime
		if err := rows.Scan(&o.ID, &o.RawEventID, &o.ProjectName, &o.RequiredAction, &o.CostOfEntryUSD,
			&vcJSON, &deadline, &o.Score, &breakdownJSON, &o.LogicToProfitRatio, &o.Confidence,
			&o.Priority, &immediate, &o.SourceURL, &o.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opportunity")
		}
		if deadline.Valid {
			t := deadline.Time
			o.DeadlineAt = &t
		}
		o.ImmediateToken = immediate != 0
		if err := json.Unmarshal([]byte(vcJSON), &o.VCBacking); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal vc backing")
		}
		if err := json.Unmarshal([]byte(breakdownJSON), &o.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal score breakdown")
		}
		opps = append(opps, o)
	}
	return opps, eris.Wrap(rows.Err(), "sqlite: list opportunities iterate")
}

func (s *SQLiteStore) SeedInvestorWeights(ctx context.Context, weights []model.InvestorWeight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed investors")
	}
	defer tx.Rollback()

	for _, w := range weights {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO investor_weights (investor, tier, weight) VALUES (?, ?, ?)
			 ON CONFLICT (investor) DO UPDATE SET tier = excluded.tier, weight = excluded.weight`,
			w.Investor, w.Tier, w.Weight,
		); err != nil {
			return eris.Wrapf(err, "sqlite: seed investor %s", w.Investor)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit seed investors")
}

func (s *SQLiteStore) InvestorWeights(ctx context.Context) ([]model.InvestorWeight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT investor, tier, weight FROM investor_weights ORDER BY weight DESC, investor`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: investor weights")
	}
	defer rows.Close()

	var weights []model.InvestorWeight
	for rows.Next() {
		var w model.InvestorWeight
		if err := rows.Scan(&w.Investor, &w.Tier, &w.Weight); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan investor weight")
		}
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "sqlite: investor weights iterate")
}

func (s *SQLiteStore) SeedSources(ctx context.Context, sources []model.Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed sources")
	}
	defer tx.Rollback()

	for _, src := range sources {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sources (id, reliability) VALUES (?, ?)
			 ON CONFLICT (id) DO UPDATE SET reliability = excluded.reliability`,
			src.ID, src.Reliability,
		); err != nil {
			return eris.Wrapf(err, "sqlite: seed source %s", src.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit seed sources")
}

func (s *SQLiteStore) Sources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, reliability FROM sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Reliability); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: sources iterate")
}

// ParkEvent upserts by (source, external_id): parking an already-parked
// envelope bumps its retry count instead of duplicating the row.
func (s *SQLiteStore) ParkEvent(ctx context.Context, entry resilience.ParkedEvent) error {
	envJSON, err := json.Marshal(entry.Envelope)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal parked envelope")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO parked_events
		 (id, source_id, external_id, envelope, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_tried_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_id, external_id) DO UPDATE SET
		   error = excluded.error,
		   error_type = excluded.error_type,
		   retry_count = parked_events.retry_count + 1,
		   next_retry_at = excluded.next_retry_at,
		   last_tried_at = excluded.last_tried_at`,
		entry.ID, entry.Envelope.Source, entry.Envelope.ExternalID, string(envJSON),
		entry.Error, entry.ErrorType, entry.RetryCount,
		entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastTriedAt,
	)
	return eris.Wrap(err, "sqlite: park event")
}

func (s *SQLiteStore) ParkedEvents(ctx context.Context, limit int) ([]resilience.ParkedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, envelope, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_tried_at
		 FROM parked_events ORDER BY next_retry_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parked events")
	}
	defer rows.Close()

	var entries []resilience.ParkedEvent
	for rows.Next() {
		var e resilience.ParkedEvent
		var envJSON string
		if err := rows.Scan(&e.ID, &envJSON, &e.Error, &e.ErrorType, &e.RetryCount,
			&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastTriedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parked event")
		}
		if err := json.Unmarshal([]byte(envJSON), &e.Envelope); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parked envelope")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: parked events iterate")
}

func (s *SQLiteStore) DeleteParkedEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM parked_events WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete parked event")
}

// helpers

var errNotFound = eris.New("not found")

type scannable interface {
	Scan(dest ...any) error
}

func scanRawEvent(row scannable) (*model.RawEvent, error) {
	var ev model.RawEvent
	var immediate int
	err := row.Scan(&ev.ID, &ev.SourceID, &ev.ExternalID, &ev.Author, &ev.URL, &ev.RawText,
		&ev.RawJSON, &ev.ContentHash, &ev.PublishedAt, &ev.IngestedAt, &immediate)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan raw event")
	}
	ev.ImmediateToken = immediate != 0
	return &ev, nil
}

func scanAction(row scannable) (*model.ExtractedAction, error) {
	var a model.ExtractedAction
	var vcJSON, evidenceJSON string
	var deadline sql.NullTime

	err := row.Scan(&a.RawEventID, &a.ProjectName, &a.RequiredAction, &a.CostOfEntryUSD,
		&a.CostConfidence, &vcJSON, &evidenceJSON, &deadline, &a.StructuredPayload,
		&a.ValidationStatus, &a.Attempts)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan action")
	}

	if deadline.Valid {
		t := deadline.Time
		a.DeadlineAt = &t
	}
	if err := json.Unmarshal([]byte(vcJSON), &a.VCBacking); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vc backing")
	}
	if err := json.Unmarshal([]byte(evidenceJSON), &a.Evidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal evidence")
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
