package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no credential is stored for the requested user.
var ErrNotFound = errors.New("credential not found")

const schema = `
CREATE TABLE IF NOT EXISTS user_tokens (
	user_id       TEXT PRIMARY KEY,
	token         TEXT,
	refresh_token TEXT,
	token_uri     TEXT,
	client_id     TEXT,
	client_secret TEXT,
	scopes        TEXT,
	expiry        TEXT
)`

type credentialRow struct {
	UserID       string         `db:"user_id"`
	Token        sql.NullString `db:"token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenURI     sql.NullString `db:"token_uri"`
	ClientID     sql.NullString `db:"client_id"`
	ClientSecret sql.NullString `db:"client_secret"`
	Scopes       sql.NullString `db:"scopes"`
	Expiry       sql.NullString `db:"expiry"`
}

// SQLiteStore keeps credentials in the user_tokens table of a SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and makes sure the
// user_tokens table exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open failed: %w", err)
	}

	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating user_tokens table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts the credential for userID, replacing any existing row.
func (s *SQLiteStore) Save(ctx context.Context, userID string, cred Credential) error {
	var expiry sql.NullString
	if !cred.Expiry.IsZero() {
		expiry = sql.NullString{String: cred.Expiry.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_tokens
			(user_id, token, refresh_token, token_uri, client_id, client_secret, scopes, expiry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID,
		cred.AccessToken,
		cred.RefreshToken,
		cred.TokenURI,
		cred.ClientID,
		cred.ClientSecret,
		strings.Join(cred.Scopes, " "),
		expiry,
	)
	if err != nil {
		return fmt.Errorf("saving credential for %s: %w", userID, err)
	}

	return nil
}

// Load returns the credential stored for userID or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, userID string) (Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, token, refresh_token, token_uri, client_id, client_secret, scopes, expiry
		FROM user_tokens WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("loading credential for %s: %w", userID, err)
	}

	return row.credential()
}

// Count returns the number of stored credentials.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM user_tokens"); err != nil {
		return 0, fmt.Errorf("counting credentials: %w", err)
	}
	return n, nil
}

func (r credentialRow) credential() (Credential, error) {
	cred := Credential{
		UserID:       r.UserID,
		AccessToken:  r.Token.String,
		RefreshToken: r.RefreshToken.String,
		TokenURI:     r.TokenURI.String,
		ClientID:     r.ClientID.String,
		ClientSecret: r.ClientSecret.String,
	}

	if scopes := strings.Fields(r.Scopes.String); len(scopes) > 0 {
		cred.Scopes = scopes
	}

	if r.Expiry.Valid && r.Expiry.String != "" {
		expiry, err := time.Parse(time.RFC3339Nano, r.Expiry.String)
		if err != nil {
			return Credential{}, fmt.Errorf("parsing expiry of %s: %w", r.UserID, err)
		}
		cred.Expiry = expiry
	}

	return cred, nil
}
