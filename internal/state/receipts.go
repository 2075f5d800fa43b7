package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/streamlp/lpm/internal/types"
)

// LoadRecentReceipts returns the most recent maintenance receipts, newest
// first.
func LoadRecentReceipts(limit int) ([]types.MaintenanceReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT cycle_id, cycle_timestamp, redeemed, success, COALESCE(message, ''), duration_ms, actions
		FROM maintenance_receipts
		ORDER BY cycle_timestamp DESC
		LIMIT $1;`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.MaintenanceReceipt
	for rows.Next() {
		var (
			receipt     types.MaintenanceReceipt
			redeemedStr string
			durationMs  int64
			actionsJSON sql.NullString
		)
		if err := rows.Scan(
			&receipt.CycleID,
			&receipt.Timestamp,
			&redeemedStr,
			&receipt.Success,
			&receipt.Message,
			&durationMs,
			&actionsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance receipt: %w", err)
		}

		redeemed, ok := sdkmath.NewIntFromString(redeemedStr)
		if !ok {
			return nil, fmt.Errorf("invalid redeemed amount %q for cycle %s", redeemedStr, receipt.CycleID)
		}
		receipt.Redeemed = redeemed
		receipt.Duration = time.Duration(durationMs) * time.Millisecond

		if actionsJSON.Valid && actionsJSON.String != "" {
			if err := json.Unmarshal([]byte(actionsJSON.String), &receipt.Actions); err != nil {
				return nil, fmt.Errorf("failed to decode actions for cycle %s: %w", receipt.CycleID, err)
			}
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating maintenance receipts: %w", err)
	}
	return receipts, nil
}
