package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketcalls/research-call-engine/internal/models"
)

const positionColumns = `
	id, user_id, call_id, entry_price, quantity, entry_date, invested_amount,
	current_price, current_value, unrealized_pnl,
	exit_price, exit_date, exit_reason, realized_pnl,
	status, created_at, updated_at`

// CreatePosition inserts a new portfolio position.
func (db *DB) CreatePosition(ctx context.Context, p *models.PortfolioPosition) error {
	query := `
		INSERT INTO portfolio_positions (
			user_id, call_id, entry_price, quantity, entry_date, invested_amount,
			current_price, current_value, unrealized_pnl,
			exit_price, exit_date, exit_reason, realized_pnl,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query,
		p.UserID, p.CallID, p.EntryPrice, p.Quantity, p.EntryDate, p.InvestedAmount,
		p.CurrentPrice, p.CurrentValue, p.UnrealizedPnl,
		p.ExitPrice, p.ExitDate, nullString(p.ExitReason), p.RealizedPnl,
		p.Status, now, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetPosition retrieves a position by id.
func (db *DB) GetPosition(ctx context.Context, id int64) (*models.PortfolioPosition, error) {
	query := `SELECT` + positionColumns + ` FROM portfolio_positions WHERE id = $1`
	p, err := scanPosition(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %d: %w", id, err)
	}
	return p, nil
}

// HasActivePosition reports whether the user already holds an active position
// on the call.
func (db *DB) HasActivePosition(ctx context.Context, userID, callID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM portfolio_positions
			WHERE user_id = $1 AND call_id = $2 AND status = $3
		)
	`
	var exists bool
	err := db.conn.QueryRowContext(ctx, query, userID, callID, models.PositionActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for active position: %w", err)
	}
	return exists, nil
}

// UpdatePosition saves the mutable fields of a position.
func (db *DB) UpdatePosition(ctx context.Context, p *models.PortfolioPosition) error {
	query := `
		UPDATE portfolio_positions SET
			current_price = $2, current_value = $3, unrealized_pnl = $4,
			exit_price = $5, exit_date = $6, exit_reason = $7, realized_pnl = $8,
			status = $9, updated_at = $10
		WHERE id = $1
	`
	p.UpdatedAt = time.Now()
	result, err := db.conn.ExecContext(ctx, query,
		p.ID, p.CurrentPrice, p.CurrentValue, p.UnrealizedPnl,
		p.ExitPrice, p.ExitDate, nullString(p.ExitReason), p.RealizedPnl,
		p.Status, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update position %d: %w", p.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// ActivePositionsForCall returns every active position referencing the call.
func (db *DB) ActivePositionsForCall(ctx context.Context, callID int64) ([]*models.PortfolioPosition, error) {
	query := `SELECT` + positionColumns + ` FROM portfolio_positions WHERE call_id = $1 AND status = $2 ORDER BY id ASC`
	return db.listPositions(ctx, query, callID, models.PositionActive)
}

// PositionsForUser returns all of the user's positions, newest first.
func (db *DB) PositionsForUser(ctx context.Context, userID int64) ([]*models.PortfolioPosition, error) {
	query := `SELECT` + positionColumns + ` FROM portfolio_positions WHERE user_id = $1 ORDER BY created_at DESC`
	return db.listPositions(ctx, query, userID)
}

func (db *DB) listPositions(ctx context.Context, query string, args ...interface{}) ([]*models.PortfolioPosition, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.PortfolioPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPosition(row rowScanner) (*models.PortfolioPosition, error) {
	var p models.PortfolioPosition
	var exitDate sql.NullTime
	var exitReason sql.NullString

	err := row.Scan(
		&p.ID, &p.UserID, &p.CallID, &p.EntryPrice, &p.Quantity, &p.EntryDate, &p.InvestedAmount,
		&p.CurrentPrice, &p.CurrentValue, &p.UnrealizedPnl,
		&p.ExitPrice, &exitDate, &exitReason, &p.RealizedPnl,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitDate.Valid {
		p.ExitDate = &exitDate.Time
	}
	if exitReason.Valid {
		p.ExitReason = exitReason.String
	}
	return &p, nil
}
