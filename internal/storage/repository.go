package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"satsguard/internal/audit"
	"satsguard/internal/funding"
	"satsguard/internal/ledger"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS spend_ledger (
        id          TEXT PRIMARY KEY,
        destination TEXT NOT NULL,
        category    TEXT NOT NULL,
        amount_sats BIGINT NOT NULL,
        txid        TEXT,
        recorded_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS spend_ledger_recorded_at_idx ON spend_ledger (recorded_at);

    CREATE TABLE IF NOT EXISTS proposals (
        id                TEXT PRIMARY KEY,
        status            TEXT NOT NULL,
        amount_sats       BIGINT NOT NULL,
        justification     TEXT NOT NULL,
        intended_use      TEXT NOT NULL,
        expected_roi_sats BIGINT NOT NULL,
        risk_assessment   TEXT NOT NULL,
        time_horizon_days INT NOT NULL,
        trigger_balance   BIGINT NOT NULL,
        trigger_threshold BIGINT NOT NULL,
        trigger_outflow   BIGINT NOT NULL,
        artifact          BYTEA,
        txid              TEXT,
        decided_by        TEXT,
        decision_note     TEXT,
        created_at        TIMESTAMPTZ NOT NULL,
        expires_at        TIMESTAMPTZ NOT NULL,
        decided_at        TIMESTAMPTZ,
        executed_at       TIMESTAMPTZ
    );

    CREATE TABLE IF NOT EXISTS audit_events (
        id          TEXT PRIMARY KEY,
        kind        TEXT NOT NULL,
        action      TEXT,
        destination TEXT,
        amount_sats BIGINT NOT NULL DEFAULT 0,
        allowed     BOOLEAN NOT NULL,
        reason      TEXT,
        created_at  TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS audit_events_kind_created_idx ON audit_events (kind, created_at DESC);`

	insertSpendSQL = `INSERT INTO spend_ledger (
        id, destination, category, amount_sats, txid, recorded_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	sumSpentBetweenSQL = `SELECT COALESCE(SUM(amount_sats), 0)
    FROM spend_ledger
    WHERE recorded_at >= $1
      AND recorded_at < $2;`

	sumSpentToBetweenSQL = `SELECT COALESCE(SUM(amount_sats), 0)
    FROM spend_ledger
    WHERE destination = $1
      AND recorded_at >= $2
      AND recorded_at < $3;`

	listSpendsBetweenSQL = `SELECT id, destination, category, amount_sats, txid, recorded_at
    FROM spend_ledger
    WHERE recorded_at >= $1
      AND recorded_at < $2
    ORDER BY recorded_at;`

	upsertProposalSQL = `INSERT INTO proposals (
        id, status, amount_sats, justification, intended_use, expected_roi_sats,
        risk_assessment, time_horizon_days, trigger_balance, trigger_threshold,
        trigger_outflow, artifact, txid, decided_by, decision_note, created_at,
        expires_at, decided_at, executed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
    )
    ON CONFLICT (id) DO UPDATE
    SET status        = EXCLUDED.status,
        artifact      = EXCLUDED.artifact,
        txid          = EXCLUDED.txid,
        decided_by    = EXCLUDED.decided_by,
        decision_note = EXCLUDED.decision_note,
        decided_at    = EXCLUDED.decided_at,
        executed_at   = EXCLUDED.executed_at;`

	getProposalSQL = `SELECT id, status, amount_sats, justification, intended_use, expected_roi_sats,
        risk_assessment, time_horizon_days, trigger_balance, trigger_threshold,
        trigger_outflow, artifact, txid, decided_by, decision_note, created_at,
        expires_at, decided_at, executed_at
    FROM proposals
    WHERE id = $1;`

	listProposalsSQL = `SELECT id, status, amount_sats, justification, intended_use, expected_roi_sats,
        risk_assessment, time_horizon_days, trigger_balance, trigger_threshold,
        trigger_outflow, artifact, txid, decided_by, decision_note, created_at,
        expires_at, decided_at, executed_at
    FROM proposals
    ORDER BY created_at DESC;`

	insertAuditEventSQL = `INSERT INTO audit_events (
        id, kind, action, destination, amount_sats, allowed, reason, created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	listRecentAuditEventsSQL = `SELECT id, kind, action, destination, amount_sats, allowed, reason, created_at
    FROM audit_events
    WHERE ($1 = '' OR kind = $1)
    ORDER BY created_at DESC
    LIMIT $2;`
)

// Store aggregates access to the spend ledger, proposals, and audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// AppendSpend persists an executed spend entry.
func (s *Store) AppendSpend(ctx context.Context, entry ledger.Entry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var txid interface{}
	if entry.TxID != "" {
		txid = entry.TxID
	}

	_, execErr := pool.Exec(ctx, insertSpendSQL,
		entry.ID,
		entry.Destination,
		entry.Category,
		entry.AmountSats,
		txid,
		entry.RecordedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert spend entry: %w", execErr)
	}
	return nil
}

// SumSpentBetween totals spends within a window.
func (s *Store) SumSpentBetween(ctx context.Context, from, to time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var total int64
	if scanErr := pool.QueryRow(ctx, sumSpentBetweenSQL, from, to).Scan(&total); scanErr != nil {
		return 0, fmt.Errorf("sum spent between: %w", scanErr)
	}
	return total, nil
}

// SumSpentToBetween totals spends towards one destination within a window.
func (s *Store) SumSpentToBetween(ctx context.Context, destination string, from, to time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var total int64
	if scanErr := pool.QueryRow(ctx, sumSpentToBetweenSQL, destination, from, to).Scan(&total); scanErr != nil {
		return 0, fmt.Errorf("sum spent to destination: %w", scanErr)
	}
	return total, nil
}

// ListSpendsBetween lists spend entries within a window.
func (s *Store) ListSpendsBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSpendsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list spends between: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0)
	for rows.Next() {
		entry, scanErr := scanSpend(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// SaveProposal inserts or updates a proposal.
func (s *Store) SaveProposal(ctx context.Context, p funding.Proposal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertProposalSQL,
		p.ID,
		string(p.Status),
		p.AmountSats,
		p.Justification,
		p.IntendedUse,
		p.ExpectedROISats,
		p.RiskAssessment,
		p.TimeHorizonDays,
		p.Trigger.OperatingBalanceSats,
		p.Trigger.ThresholdSats,
		p.Trigger.DayAvgOutflowSats,
		p.Artifact,
		nullString(p.TxID),
		nullString(p.DecidedBy),
		nullString(p.DecisionNote),
		p.CreatedAt,
		p.ExpiresAt,
		p.DecidedAt,
		p.ExecutedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert proposal: %w", execErr)
	}
	return nil
}

// GetProposal returns one proposal by identifier.
func (s *Store) GetProposal(ctx context.Context, id string) (funding.Proposal, error) {
	pool, err := s.getPool()
	if err != nil {
		return funding.Proposal{}, err
	}

	rows, queryErr := pool.Query(ctx, getProposalSQL, id)
	if queryErr != nil {
		return funding.Proposal{}, fmt.Errorf("get proposal: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return funding.Proposal{}, rows.Err()
		}
		return funding.Proposal{}, funding.ErrNotFound
	}
	return scanProposal(rows)
}

// ListProposals lists all proposals, newest first.
func (s *Store) ListProposals(ctx context.Context) ([]funding.Proposal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProposalsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list proposals: %w", queryErr)
	}
	defer rows.Close()

	proposals := make([]funding.Proposal, 0)
	for rows.Next() {
		p, scanErr := scanProposal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		proposals = append(proposals, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return proposals, nil
}

// AppendEvent persists an audit event.
func (s *Store) AppendEvent(ctx context.Context, event audit.Event) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertAuditEventSQL,
		event.ID,
		string(event.Kind),
		nullString(event.Action),
		nullString(event.Destination),
		event.AmountSats,
		event.Allowed,
		nullString(event.Reason),
		event.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert audit event: %w", execErr)
	}
	return nil
}

// ListRecentEvents lists recent audit events, optionally filtered by kind.
func (s *Store) ListRecentEvents(ctx context.Context, kind audit.Kind, limit int) ([]audit.Event, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAuditEventsSQL, string(kind), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent audit events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, limit)
	for rows.Next() {
		var (
			event       audit.Event
			kindStr     string
			action      sql.NullString
			destination sql.NullString
			reason      sql.NullString
		)
		if err := rows.Scan(
			&event.ID,
			&kindStr,
			&action,
			&destination,
			&event.AmountSats,
			&event.Allowed,
			&reason,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		event.Kind = audit.Kind(kindStr)
		event.Action = action.String
		event.Destination = destination.String
		event.Reason = reason.String
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanSpend(rows pgx.Rows) (ledger.Entry, error) {
	var (
		entry ledger.Entry
		txid  sql.NullString
	)
	if err := rows.Scan(
		&entry.ID,
		&entry.Destination,
		&entry.Category,
		&entry.AmountSats,
		&txid,
		&entry.RecordedAt,
	); err != nil {
		return ledger.Entry{}, err
	}
	entry.TxID = txid.String
	return entry, nil
}

func scanProposal(rows pgx.Rows) (funding.Proposal, error) {
	var (
		p          funding.Proposal
		status     string
		txid       sql.NullString
		decidedBy  sql.NullString
		note       sql.NullString
		decidedAt  sql.NullTime
		executedAt sql.NullTime
	)
	if err := rows.Scan(
		&p.ID,
		&status,
		&p.AmountSats,
		&p.Justification,
		&p.IntendedUse,
		&p.ExpectedROISats,
		&p.RiskAssessment,
		&p.TimeHorizonDays,
		&p.Trigger.OperatingBalanceSats,
		&p.Trigger.ThresholdSats,
		&p.Trigger.DayAvgOutflowSats,
		&p.Artifact,
		&txid,
		&decidedBy,
		&note,
		&p.CreatedAt,
		&p.ExpiresAt,
		&decidedAt,
		&executedAt,
	); err != nil {
		return funding.Proposal{}, err
	}

	p.Status = funding.Status(status)
	p.TxID = txid.String
	p.DecidedBy = decidedBy.String
	p.DecisionNote = note.String
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	if executedAt.Valid {
		t := executedAt.Time
		p.ExecutedAt = &t
	}
	return p, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ ledger.Store  = (*Store)(nil)
	_ funding.Store = (*Store)(nil)
	_ audit.Store   = (*Store)(nil)
)
