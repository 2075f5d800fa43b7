/*

Persists per-cycle maintenance accounting. Each cycle writes one receipt row
with its actions as JSONB and reconciles the deposits table against the
engine's in-memory registry, so a restart or the dashboard can always see
the last known position state.

*/

package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/streamlp/lpm/internal/logger"
	"github.com/streamlp/lpm/internal/types"
)

// CycleRecorder writes maintenance receipts and deposit snapshots to the
// database. It satisfies the engine's Recorder contract.
type CycleRecorder struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewCycleRecorder builds a recorder over the global connection pool.
func NewCycleRecorder() (*CycleRecorder, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &CycleRecorder{
		db:     DB,
		logger: logger.GetForComponent("cycle_recorder"),
	}, nil
}

// RecordCycle stores the receipt and replaces the deposits snapshot in one
// transaction.
func (r *CycleRecorder) RecordCycle(receipt types.MaintenanceReceipt, deposits []types.Deposit) error {
	actionsJSON, err := json.Marshal(receipt.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle actions: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertSQL := `
		INSERT INTO maintenance_receipts (cycle_id, cycle_timestamp, redeemed, success, message, duration_ms, actions)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`
	if _, err := tx.Exec(insertSQL,
		receipt.CycleID,
		receipt.Timestamp,
		receipt.Redeemed.String(),
		receipt.Success,
		receipt.Message,
		receipt.Duration.Milliseconds(),
		actionsJSON,
	); err != nil {
		return fmt.Errorf("failed to insert maintenance receipt: %w", err)
	}

	// Replace the snapshot wholesale; the registry is small and this keeps
	// removals visible without tombstone bookkeeping.
	if _, err := tx.Exec(`DELETE FROM deposits;`); err != nil {
		return fmt.Errorf("failed to clear deposits snapshot: %w", err)
	}
	upsertSQL := `
		INSERT INTO deposits (pair_key, token0, token1, position_id, liquidity, tick_lower, tick_upper, fee_tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`
	for _, d := range deposits {
		if _, err := tx.Exec(upsertSQL,
			d.Pair.String(),
			d.Pair.Token0.Hex(),
			d.Pair.Token1.Hex(),
			string(d.Position),
			d.Liquidity.String(),
			d.TickLower,
			d.TickUpper,
			d.FeeTier,
			d.CreatedAt,
			d.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert deposit snapshot for %s: %w", d.Pair, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle record: %w", err)
	}

	r.logger.Debug().
		Str("cycleId", receipt.CycleID).
		Int("actions", len(receipt.Actions)).
		Int("deposits", len(deposits)).
		Msg("Cycle receipt persisted")
	return nil
}
