// Package store persists confirmed dice transactions and their asset rows in
// SQLite, and answers the roll and bet lookups the handlers need.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/registry"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
	"github.com/sqfasd/asch-dice-game-dapp/internal/store/migrations"
)

type Store struct {
	sqlDB *sql.DB
}

var (
	_ types.Store     = (*Store)(nil)
	_ registry.Source = (*Store)(nil)
)

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ---- Transactions ----

// SaveTransaction records the common fields of a confirmed transaction. The
// asset row is written separately by the handler for its type.
func (s *Store) SaveTransaction(ctx context.Context, tx *types.Transaction, height int64) error {
	if tx == nil || tx.ID == "" {
		return types.ErrInvalidParams.Wrap("transaction id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO transactions (id, type, height, timestamp, sender_id, sender_public_key, recipient_id, amount, fee)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.Type, height, tx.Timestamp, tx.SenderID, tx.SenderPublicKey, tx.RecipientID, tx.Amount, tx.Fee,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDuplicateTx.Wrap(tx.ID)
		}
		return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// DeleteTransaction removes a transaction and its asset row.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	dbTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", id, err)
	}
	for _, q := range []string{
		`DELETE FROM asset_roll WHERE transaction_id = ?`,
		`DELETE FROM asset_bet WHERE transaction_id = ?`,
		`DELETE FROM asset_reveal WHERE transaction_id = ?`,
		`DELETE FROM transactions WHERE id = ?`,
	} {
		if _, err := dbTx.ExecContext(ctx, q, id); err != nil {
			_ = dbTx.Rollback()
			return fmt.Errorf("delete transaction %s: %w", id, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) HasTransaction(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup transaction %s: %w", id, err)
	}
	return true, nil
}

// PruneAbove deletes every transaction confirmed above height, with its asset
// row. Rows of a block that was executed but never committed are removed
// this way before the block is replayed.
func (s *Store) PruneAbove(ctx context.Context, height int64) (int64, error) {
	dbTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune above %d: %w", height, err)
	}
	for _, q := range []string{
		`DELETE FROM asset_roll WHERE transaction_id IN (SELECT id FROM transactions WHERE height > ?)`,
		`DELETE FROM asset_bet WHERE transaction_id IN (SELECT id FROM transactions WHERE height > ?)`,
		`DELETE FROM asset_reveal WHERE transaction_id IN (SELECT id FROM transactions WHERE height > ?)`,
	} {
		if _, err := dbTx.ExecContext(ctx, q, height); err != nil {
			_ = dbTx.Rollback()
			return 0, fmt.Errorf("prune above %d: %w", height, err)
		}
	}
	res, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE height > ?`, height)
	if err != nil {
		_ = dbTx.Rollback()
		return 0, fmt.Errorf("prune above %d: %w", height, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		_ = dbTx.Rollback()
		return 0, fmt.Errorf("prune above %d: %w", height, err)
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune above %d: %w", height, err)
	}
	return n, nil
}

// ---- Assets ----

func (s *Store) SaveRoll(ctx context.Context, txID string, a types.RollAsset) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO asset_roll (transaction_id, max_player, points_hash) VALUES (?, ?, ?)`,
		txID, a.MaxPlayer, a.PointsHash,
	)
	return wrapInsert(err, "roll", txID)
}

func (s *Store) SaveBet(ctx context.Context, txID string, a types.BetAsset) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO asset_bet (transaction_id, rule, point, roll_id) VALUES (?, ?, ?, ?)`,
		txID, a.Rule, a.Point, a.RollID,
	)
	return wrapInsert(err, "bet", txID)
}

func (s *Store) SaveReveal(ctx context.Context, txID string, a types.RevealAsset) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO asset_reveal (transaction_id, nonce, points, roll_id) VALUES (?, ?, ?, ?)`,
		txID, a.Nonce, joinPoints(a.Points), a.RollID,
	)
	return wrapInsert(err, "reveal", txID)
}

func (s *Store) LoadRoll(ctx context.Context, txID string) (*types.RollAsset, error) {
	var a types.RollAsset
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT max_player, points_hash FROM asset_roll WHERE transaction_id = ?`, txID,
	).Scan(&a.MaxPlayer, &a.PointsHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roll %s: %w", txID, err)
	}
	return &a, nil
}

func (s *Store) LoadBet(ctx context.Context, txID string) (*types.BetAsset, error) {
	var a types.BetAsset
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT rule, point, roll_id FROM asset_bet WHERE transaction_id = ?`, txID,
	).Scan(&a.Rule, &a.Point, &a.RollID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bet %s: %w", txID, err)
	}
	return &a, nil
}

func (s *Store) LoadReveal(ctx context.Context, txID string) (*types.RevealAsset, error) {
	var (
		a      types.RevealAsset
		points string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT nonce, points, roll_id FROM asset_reveal WHERE transaction_id = ?`, txID,
	).Scan(&a.Nonce, &points, &a.RollID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reveal %s: %w", txID, err)
	}
	if a.Points, err = splitPoints(points); err != nil {
		return nil, types.ErrIntegrity.Wrapf("reveal %s: %v", txID, err)
	}
	return &a, nil
}

// ---- Lookups ----

const sessionColumns = `t.id, t.sender_id, t.amount, r.max_player, r.points_hash`

func scanSession(row interface{ Scan(...any) error }) (types.Session, error) {
	var s types.Session
	err := row.Scan(&s.ID, &s.SenderID, &s.Amount, &s.MaxPlayer, &s.PointsHash)
	return s, err
}

// GetSession returns the confirmed roll with id, or nil when there is none.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	sess, err := scanSession(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM transactions t JOIN asset_roll r ON r.transaction_id = t.id
		 WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roll %s: %w", id, err)
	}
	return &sess, nil
}

// GetWagersForSession returns the confirmed bets on a roll ordered by bet id.
func (s *Store) GetWagersForSession(ctx context.Context, id string) ([]types.Wager, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT t.id, t.sender_id, t.amount, b.rule, b.point, b.roll_id
		 FROM transactions t JOIN asset_bet b ON b.transaction_id = t.id
		 WHERE b.roll_id = ?
		 ORDER BY t.id`, id)
	if err != nil {
		return nil, fmt.Errorf("query bets for roll %s: %w", id, err)
	}
	defer rows.Close()

	var out []types.Wager
	for rows.Next() {
		var w types.Wager
		if err := rows.Scan(&w.ID, &w.SenderID, &w.Amount, &w.Rule, &w.Point, &w.RollID); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bets for roll %s: %w", id, err)
	}
	return out, nil
}

// GetRevealForRoll returns the confirmed reveal of a roll, or nil.
func (s *Store) GetRevealForRoll(ctx context.Context, rollID string) (*types.Disclosure, error) {
	var (
		d      types.Disclosure
		points string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT t.id, t.sender_id, v.nonce, v.points, v.roll_id
		 FROM transactions t JOIN asset_reveal v ON v.transaction_id = t.id
		 WHERE v.roll_id = ?
		 ORDER BY t.height, t.id
		 LIMIT 1`, rollID,
	).Scan(&d.ID, &d.SenderID, &d.Nonce, &points, &d.RollID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reveal for roll %s: %w", rollID, err)
	}
	if d.Points, err = splitPoints(points); err != nil {
		return nil, types.ErrIntegrity.Wrapf("reveal %s: %v", d.ID, err)
	}
	return &d, nil
}

// ListRolls pages through confirmed rolls, newest first.
func (s *Store) ListRolls(ctx context.Context, limit int, offset int) ([]types.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM transactions t JOIN asset_roll r ON r.transaction_id = t.id
		 ORDER BY t.height DESC, t.id
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rolls: %w", err)
	}
	defer rows.Close()

	out := []types.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan roll: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rolls: %w", err)
	}
	return out, nil
}

// SettledSessions lists every roll with a confirmed reveal.
func (s *Store) SettledSessions(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT roll_id FROM asset_reveal ORDER BY roll_id`)
	if err != nil {
		return nil, fmt.Errorf("query settled rolls: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan settled roll: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// WagerCounts is the number of confirmed bets per roll.
func (s *Store) WagerCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT roll_id, COUNT(*) FROM asset_bet GROUP BY roll_id`)
	if err != nil {
		return nil, fmt.Errorf("query bet counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan bet count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ---- helpers ----

func joinPoints(points []int64) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatInt(p, 10)
	}
	return strings.Join(parts, ",")
}

func splitPoints(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad points %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}

func wrapInsert(err error, kind string, txID string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return types.ErrDuplicateTx.Wrapf("%s %s", kind, txID)
	}
	return fmt.Errorf("insert %s %s: %w", kind, txID, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
