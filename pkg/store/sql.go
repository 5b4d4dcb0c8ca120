package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/kandobyte/mcpbox/pkg/log"

	// registers the "sqlite" database/sql driver, pure Go, no cgo.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const sweepInterval = 5 * time.Minute

// SQL is the persistent Store implementation: a single `kv` table, entities
// serialised as JSON, per spec §4.2/§6. Keys are namespaced by entity kind
// so a single table can hold clients, access tokens and refresh tokens.
type SQL struct {
	db     *sqlx.DB
	stopCh chan struct{}
}

// NewSQL opens (creating if necessary) the sqlite database at dbFile,
// applies embedded migrations, and starts the background expiry sweeper.
func NewSQL(dbFile string) (*SQL, error) {
	db, err := sql.Open("sqlite", "file:"+dbFile+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	migDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	dbDriver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", migDriver, "sqlite", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s := &SQL{db: sqlx.NewDb(db, "sqlite"), stopCh: make(chan struct{})}
	go s.sweepLoop()
	return s, nil
}

func (s *SQL) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.CleanupExpired(context.Background()); err != nil {
				log.Warnf("kv store sweep failed: %v", err)
			}
		}
	}
}

func (s *SQL) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

// row mirrors the kv table's columns for sqlx scans.
type row struct {
	Key       string        `db:"key"`
	Value     string        `db:"value"`
	ExpiresAt sql.NullInt64 `db:"expires_at"`
}

func clientKey(id string) string  { return "client:" + id }
func accessKey(hash string) string  { return "access:" + hash }
func refreshKey(hash string) string { return "refresh:" + hash }

func (s *SQL) getJSON(ctx context.Context, key string, v any) error {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT key, value, expires_at FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if r.ExpiresAt.Valid && time.Now().Unix() > r.ExpiresAt.Int64 {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return ErrNotFound
	}
	return json.Unmarshal([]byte(r.Value), v)
}

func (s *SQL) put(ctx context.Context, key string, v any, expiresAt *time.Time) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var expires sql.NullInt64
	if expiresAt != nil {
		expires = sql.NullInt64{Int64: expiresAt.Unix(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, string(b), expires)
	return err
}

func (s *SQL) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *SQL) GetClient(ctx context.Context, clientID string) (Client, error) {
	var c Client
	err := s.getJSON(ctx, clientKey(clientID), &c)
	return c, err
}

func (s *SQL) SaveClient(ctx context.Context, c Client) error {
	return s.put(ctx, clientKey(c.ClientID), c, nil)
}

func (s *SQL) DeleteClient(ctx context.Context, clientID string) error {
	return s.delete(ctx, clientKey(clientID))
}

func (s *SQL) ListDynamicClients(ctx context.Context) ([]Client, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value, expires_at FROM kv WHERE key LIKE 'client:%'`); err != nil {
		return nil, err
	}
	var out []Client
	for _, r := range rows {
		var c Client
		if err := json.Unmarshal([]byte(r.Value), &c); err != nil {
			continue
		}
		if c.IsDynamic {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SQL) GetAccessToken(ctx context.Context, tokenHash string) (Token, error) {
	var t Token
	err := s.getJSON(ctx, accessKey(tokenHash), &t)
	return t, err
}

func (s *SQL) SaveAccessToken(ctx context.Context, t Token) error {
	return s.put(ctx, accessKey(t.TokenHash), t, &t.ExpiresAt)
}

func (s *SQL) DeleteAccessToken(ctx context.Context, tokenHash string) error {
	return s.delete(ctx, accessKey(tokenHash))
}

func (s *SQL) GetRefreshToken(ctx context.Context, tokenHash string) (Token, error) {
	var t Token
	err := s.getJSON(ctx, refreshKey(tokenHash), &t)
	return t, err
}

func (s *SQL) SaveRefreshToken(ctx context.Context, t Token) error {
	return s.put(ctx, refreshKey(t.TokenHash), t, &t.ExpiresAt)
}

func (s *SQL) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	return s.delete(ctx, refreshKey(tokenHash))
}

// RotateRefreshToken deletes oldHash and inserts newToken inside a single
// transaction: on failure the prior token survives (spec §4.2, §8).
func (s *SQL) RotateRefreshToken(ctx context.Context, oldHash string, newToken Token) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer txClose(tx, &err)

	if _, err = tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, refreshKey(oldHash)); err != nil {
		return err
	}

	b, err := json.Marshal(newToken)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, refreshKey(newToken.TokenHash), string(b), newToken.ExpiresAt.Unix())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQL) CleanupExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().Unix())
	return err
}

func txClose(tx *sqlx.Tx, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	if rbErr := tx.Rollback(); rbErr != nil {
		log.Warnf("failed to rollback transaction: %v", rbErr)
	}
}
