package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketcalls/research-call-engine/internal/models"
)

const callColumns = `
	id, broker_id, created_by, approved_by, symbol, exchange, instrument_type,
	call_type, direction, rationale, timeframe_days,
	entry_price, target_1, target_2, target_3, stop_loss,
	risk_reward_ratio, expected_return_pct,
	status, published_at, expires_at, closed_at,
	exit_price, exit_reason, actual_return_pct, is_successful,
	created_at, updated_at`

// CreateCallWithEvent inserts a new research call and its initial event in a
// single transaction.
func (db *DB) CreateCallWithEvent(ctx context.Context, call *models.ResearchCall, event *models.ResearchCallEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO research_calls (
			broker_id, created_by, approved_by, symbol, exchange, instrument_type,
			call_type, direction, rationale, timeframe_days,
			entry_price, target_1, target_2, target_3, stop_loss,
			risk_reward_ratio, expected_return_pct,
			status, published_at, expires_at, closed_at,
			exit_price, exit_reason, actual_return_pct, is_successful,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27
		)
		RETURNING id
	`
	now := time.Now()
	err = tx.QueryRowContext(ctx, query,
		call.BrokerID, call.CreatedBy, nullID(call.ApprovedBy), call.Symbol, call.Exchange,
		call.InstrumentType, call.CallType, call.Direction, call.Rationale, call.TimeframeDays,
		call.EntryPrice, call.Target1, call.Target2, call.Target3, call.StopLoss,
		call.RiskRewardRatio, call.ExpectedReturnPct,
		call.Status, call.PublishedAt, call.ExpiresAt, call.ClosedAt,
		call.ExitPrice, nullString(string(call.ExitReason)), call.ActualReturnPct, call.IsSuccessful,
		now, now,
	).Scan(&call.ID)
	if err != nil {
		return fmt.Errorf("failed to create research call: %w", err)
	}
	call.CreatedAt = now
	call.UpdatedAt = now

	event.CallID = call.ID
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCall retrieves a research call by id.
func (db *DB) GetCall(ctx context.Context, id int64) (*models.ResearchCall, error) {
	query := `SELECT` + callColumns + ` FROM research_calls WHERE id = $1`
	call, err := scanCall(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("research call %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get research call %d: %w", id, err)
	}
	return call, nil
}

// UpdateCallWithEvents updates the call row and appends its events in one
// transaction. Either both are committed or neither is observed, so no state
// change exists without a corresponding event.
func (db *DB) UpdateCallWithEvents(ctx context.Context, call *models.ResearchCall, events ...*models.ResearchCallEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE research_calls SET
			approved_by = $2, entry_price = $3, target_1 = $4, target_2 = $5,
			target_3 = $6, stop_loss = $7, risk_reward_ratio = $8,
			expected_return_pct = $9, status = $10, published_at = $11,
			expires_at = $12, closed_at = $13, exit_price = $14, exit_reason = $15,
			actual_return_pct = $16, is_successful = $17, updated_at = $18
		WHERE id = $1
	`
	call.UpdatedAt = time.Now()
	result, err := tx.ExecContext(ctx, query,
		call.ID, nullID(call.ApprovedBy), call.EntryPrice, call.Target1, call.Target2,
		call.Target3, call.StopLoss, call.RiskRewardRatio,
		call.ExpectedReturnPct, call.Status, call.PublishedAt,
		call.ExpiresAt, call.ClosedAt, call.ExitPrice, nullString(string(call.ExitReason)),
		call.ActualReturnPct, call.IsSuccessful, call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update research call %d: %w", call.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("research call %d: %w", call.ID, ErrNotFound)
	}

	for _, event := range events {
		event.CallID = call.ID
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListActiveCalls returns every call with status ACTIVE, oldest published
// first. This is the monitoring sweep's working set.
func (db *DB) ListActiveCalls(ctx context.Context) ([]*models.ResearchCall, error) {
	return db.listCalls(ctx, `SELECT`+callColumns+` FROM research_calls WHERE status = $1 ORDER BY published_at ASC`, models.StatusActive)
}

// ListCallsByStatus returns calls filtered by status, newest first.
func (db *DB) ListCallsByStatus(ctx context.Context, status models.CallStatus) ([]*models.ResearchCall, error) {
	return db.listCalls(ctx, `SELECT`+callColumns+` FROM research_calls WHERE status = $1 ORDER BY created_at DESC`, status)
}

// ListCalls returns all calls, newest first.
func (db *DB) ListCalls(ctx context.Context) ([]*models.ResearchCall, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT`+callColumns+` FROM research_calls ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list research calls: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

func (db *DB) listCalls(ctx context.Context, query string, args ...interface{}) ([]*models.ResearchCall, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list research calls: %w", err)
	}
	defer rows.Close()
	return collectCalls(rows)
}

func collectCalls(rows *sql.Rows) ([]*models.ResearchCall, error) {
	var calls []*models.ResearchCall
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research call: %w", err)
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row rowScanner) (*models.ResearchCall, error) {
	var call models.ResearchCall
	var approvedBy sql.NullInt64
	var rationale, instrumentType, exitReason sql.NullString
	var timeframeDays sql.NullInt64
	var publishedAt, expiresAt, closedAt sql.NullTime

	err := row.Scan(
		&call.ID, &call.BrokerID, &call.CreatedBy, &approvedBy, &call.Symbol, &call.Exchange,
		&instrumentType, &call.CallType, &call.Direction, &rationale, &timeframeDays,
		&call.EntryPrice, &call.Target1, &call.Target2, &call.Target3, &call.StopLoss,
		&call.RiskRewardRatio, &call.ExpectedReturnPct,
		&call.Status, &publishedAt, &expiresAt, &closedAt,
		&call.ExitPrice, &exitReason, &call.ActualReturnPct, &call.IsSuccessful,
		&call.CreatedAt, &call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if approvedBy.Valid {
		call.ApprovedBy = approvedBy.Int64
	}
	if instrumentType.Valid {
		call.InstrumentType = instrumentType.String
	}
	if rationale.Valid {
		call.Rationale = rationale.String
	}
	if timeframeDays.Valid {
		call.TimeframeDays = int(timeframeDays.Int64)
	}
	if publishedAt.Valid {
		call.PublishedAt = &publishedAt.Time
	}
	if expiresAt.Valid {
		call.ExpiresAt = &expiresAt.Time
	}
	if closedAt.Valid {
		call.ClosedAt = &closedAt.Time
	}
	if exitReason.Valid {
		call.ExitReason = models.CloseReason(exitReason.String)
	}
	return &call, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
