package storage

// sqlite.go — ledger inmutable de trades.
//
// Estrategia:
//   - `trades`: una fila por ciclo de vida completado (entrada + salida o
//     liquidación). Solo INSERT, nunca UPDATE: el ledger es append-only.
//   - Single writer: SQLite con una sola conexión. Todos los writes llegan
//     del loop de estrategias, ya serializado por el orquestador.
//   - Prune automático al arrancar: filas con más de 90 días.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    strategy       TEXT NOT NULL,
    condition_id   TEXT NOT NULL,
    side           TEXT NOT NULL,
    shares         INTEGER NOT NULL,
    entry_price    REAL NOT NULL,
    exit_price     REAL NOT NULL,
    entry_fee      REAL NOT NULL DEFAULT 0,
    exit_fee       REAL NOT NULL DEFAULT 0,
    gas_usd        REAL NOT NULL DEFAULT 0,
    capital_before REAL NOT NULL DEFAULT 0,
    capital_after  REAL NOT NULL DEFAULT 0,
    pnl            REAL NOT NULL,
    roi            REAL NOT NULL,
    reason         TEXT NOT NULL,
    opened_at      DATETIME NOT NULL,
    closed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_closed   ON trades(closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
`

const retentionTrades = 90 * 24 * time.Hour

// SQLiteLedger implementa ports.TradeStorage usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia filas antiguas.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}

	s := &SQLiteLedger{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// AppendTrade inserta una fila del ledger. Nunca actualiza filas existentes.
func (s *SQLiteLedger) AppendTrade(ctx context.Context, t domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, strategy, condition_id, side, shares, entry_price, exit_price,
			 entry_fee, exit_fee, gas_usd, capital_before, capital_after,
			 pnl, roi, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Strategy, t.ConditionID, string(t.Side), t.Shares,
		t.EntryPrice, t.ExitPrice, t.EntryFee, t.ExitFee, t.GasUSD,
		t.CapitalBefore, t.CapitalAfter, t.PnL, t.ROI, t.Reason,
		t.OpenedAt.UTC(), t.ClosedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.AppendTrade: insert: %w", err)
	}
	return nil
}

// TradesSince devuelve las filas cerradas desde la fecha dada, ordenadas por
// cierre ascendente.
func (s *SQLiteLedger) TradesSince(ctx context.Context, from time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, condition_id, side, shares, entry_price, exit_price,
		       entry_fee, exit_fee, gas_usd, capital_before, capital_after,
		       pnl, roi, reason, opened_at, closed_at
		FROM trades
		WHERE closed_at >= ?
		ORDER BY closed_at ASC`,
		from.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.TradesSince: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		if err := rows.Scan(
			&t.ID, &t.Strategy, &t.ConditionID, &side, &t.Shares,
			&t.EntryPrice, &t.ExitPrice, &t.EntryFee, &t.ExitFee, &t.GasUSD,
			&t.CapitalBefore, &t.CapitalAfter, &t.PnL, &t.ROI, &t.Reason,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.TradesSince: scan: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.TradesSince: rows: %w", err)
	}
	return trades, nil
}

// Close cierra la conexión.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// pruneOld borra filas más allá de la retención. Best-effort: un fallo aquí
// no impide arrancar.
func (s *SQLiteLedger) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionTrades)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE closed_at < ?`, cutoff); err != nil {
		return
	}
}
