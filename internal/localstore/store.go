// Package localstore persists the signed-in session (bearer token plus
// serialized profile) across runs, the desktop analog of the web client's
// localStorage entries.
package localstore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"

	"github.com/campuslink/campuslink/internal/models"
)

// ErrNoSession is returned when nothing usable is stored; an expired token
// counts as no session.
var ErrNoSession = errors.New("localstore: no session")

type Store struct {
	db *sql.DB
}

// New opens (and if needed initializes) the store at the given sqlite DSN.
// Use ":memory:" in tests.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "localstore: open")
	}
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "localstore: ping")
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		user_json TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(query)
	return errors.Wrap(err, "localstore: create tables")
}

// SaveSession stores the token and profile, replacing any previous session.
func (s *Store) SaveSession(token string, student models.Student) error {
	buf, err := json.Marshal(student)
	if err != nil {
		return errors.Wrap(err, "localstore: encode profile")
	}
	_, err = s.db.Exec(`
		INSERT INTO session (id, token, user_json) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_json = excluded.user_json,
			saved_at = CURRENT_TIMESTAMP`,
		token, string(buf))
	return errors.Wrap(err, "localstore: save session")
}

// Session returns the stored token and profile, or ErrNoSession when signed
// out or when the stored token has already expired.
func (s *Store) Session() (string, *models.Student, error) {
	var token, userJSON string
	err := s.db.QueryRow(`SELECT token, user_json FROM session WHERE id = 1`).Scan(&token, &userJSON)
	if err == sql.ErrNoRows {
		return "", nil, ErrNoSession
	}
	if err != nil {
		return "", nil, errors.Wrap(err, "localstore: load session")
	}
	if tokenExpired(token, time.Now()) {
		return "", nil, ErrNoSession
	}
	var student models.Student
	if err := json.Unmarshal([]byte(userJSON), &student); err != nil {
		return "", nil, errors.Wrap(err, "localstore: decode profile")
	}
	return token, &student, nil
}

// Clear drops the stored session; used on sign-out and on a 401 from the API.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM session`)
	return errors.Wrap(err, "localstore: clear")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// tokenExpired inspects the JWT exp claim without verifying the signature;
// verification is the server's job, this only avoids presenting a token that
// is already dead. Opaque or claimless tokens pass through untouched.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
