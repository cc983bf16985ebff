package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"solana_game_server/models"

	"github.com/jmoiron/sqlx"
)

var sqlSchema = []string{`
CREATE TABLE IF NOT EXISTS solana_match (
	matchPubKey TEXT PRIMARY KEY,
	secretKey   TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS solana_user (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	matchPubKey          TEXT NOT NULL,
	userPubKey           TEXT NOT NULL,
	userTokenPubKey      TEXT NOT NULL,
	userMatchTokenPubKey TEXT NOT NULL,
	UNIQUE (matchPubKey, userPubKey)
)`}

// SQLMatchStore keeps matches in two relational tables. The (matchPubKey, userPubKey)
// unique constraint makes duplicate admission a no-op.
type SQLMatchStore struct {
	DB     *sqlx.DB
	Logger *slog.Logger
}

// OpenSQLMatchStore connects with driverName (e.g. "sqlite") and creates the schema.
// An in-memory sqlite database is pinned to one connection, since each
// connection would otherwise see its own empty database.
func OpenSQLMatchStore(ctx context.Context, driverName, dsn string, logger *slog.Logger) (*SQLMatchStore, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}
	if isSQLiteMemory(driverName, dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driverName, err)
	}
	store := &SQLMatchStore{DB: db, Logger: logger}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isSQLiteMemory(driverName, dsn string) bool {
	if driverName != "sqlite" && driverName != "sqlite3" {
		return false
	}
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Migrate creates the match tables if they do not exist.
func (s *SQLMatchStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqlSchema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create match schema: %w", err)
		}
	}
	return nil
}

func (s *SQLMatchStore) Close() error {
	return s.DB.Close()
}

func (s *SQLMatchStore) WriteMatchRecord(ctx context.Context, kp models.KeyPair) error {
	_, err := s.DB.ExecContext(ctx,
		s.DB.Rebind(`INSERT INTO solana_match (matchPubKey, secretKey) VALUES (?, ?)`),
		kp.PublicKey, kp.SecretKey)
	if err != nil {
		return fmt.Errorf("failed to insert match %s: %w", kp.PublicKey, err)
	}
	return nil
}

func (s *SQLMatchStore) WriteUserRecord(ctx context.Context, user models.UserRecord) error {
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO solana_user (matchPubKey, userPubKey, userTokenPubKey, userMatchTokenPubKey)
		VALUES (:matchPubKey, :userPubKey, :userTokenPubKey, :userMatchTokenPubKey)
		ON CONFLICT (matchPubKey, userPubKey) DO NOTHING`, user)
	if err != nil {
		return fmt.Errorf("failed to insert user %s: %w", user.UserPubKey, err)
	}
	return nil
}

func (s *SQLMatchStore) GetMatchRecord(ctx context.Context, matchPubKey string) (models.MatchRecord, error) {
	var record models.MatchRecord
	err := s.DB.GetContext(ctx, &record,
		s.DB.Rebind(`SELECT matchPubKey, secretKey FROM solana_match WHERE matchPubKey = ? LIMIT 1`),
		matchPubKey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MatchRecord{}, ErrMatchNotFound
	}
	if err != nil {
		return models.MatchRecord{}, fmt.Errorf("failed to query match %s: %w", matchPubKey, err)
	}
	return record, nil
}

func (s *SQLMatchStore) GetUserRecords(ctx context.Context, matchPubKey string) ([]models.UserRecord, error) {
	users := []models.UserRecord{}
	err := s.DB.SelectContext(ctx, &users, s.DB.Rebind(`
		SELECT matchPubKey, userPubKey, userTokenPubKey, userMatchTokenPubKey
		FROM solana_user
		WHERE matchPubKey = ?
		ORDER BY id`), matchPubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query users of match %s: %w", matchPubKey, err)
	}
	return users, nil
}

func (s *SQLMatchStore) RemoveUserRecords(ctx context.Context, args models.UpdateMatchArgs) error {
	if len(args.RemovedUsers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(args.RemovedUsers))
	for _, u := range args.RemovedUsers {
		keys = append(keys, u.UserPubKey)
	}
	query, params, err := sqlx.In(`DELETE FROM solana_user WHERE matchPubKey = ? AND userPubKey IN (?)`, args.MatchPubKey, keys)
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, s.DB.Rebind(query), params...); err != nil {
		return fmt.Errorf("failed to delete users of match %s: %w", args.MatchPubKey, err)
	}
	return nil
}

func (s *SQLMatchStore) RemoveMatch(ctx context.Context, matchPubKey string) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM solana_user WHERE matchPubKey = ?`), matchPubKey); err != nil {
		return fmt.Errorf("failed to delete users of match %s: %w", matchPubKey, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM solana_match WHERE matchPubKey = ?`), matchPubKey); err != nil {
		return fmt.Errorf("failed to delete match %s: %w", matchPubKey, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match removal: %w", err)
	}
	if s.Logger != nil {
		s.Logger.Debug("🗑️ Removed match rows", "matchPubKey", matchPubKey)
	}
	return nil
}
