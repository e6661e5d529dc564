// Where: cli/internal/store/sqlite/accounts.go
// What: Local accounts with Argon2id password hashes and a current session.
// Why: Exercise the auth service offline.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCurrentAccount = "current account"
	opCreateAccount  = "create account"
	opCreateSession  = "create session"
	opDeleteSession  = "delete session"

	sessionLifetime = 365 * 24 * time.Hour
)

func (s *Store) CurrentAccount(ctx context.Context) (store.Account, error) {
	var acc store.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.name, a.email, a.status
		FROM rb_sessions s JOIN rb_accounts a ON a.id = s.user_id
		WHERE s.current = 1 AND s.expire > ?`, s.now(),
	).Scan(&acc.ID, &acc.Name, &acc.Email, &acc.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.New(store.KindPermission, opCurrentAccount, "", "no active session")
	}
	if err != nil {
		return store.Account{}, classify(opCurrentAccount, "", err)
	}
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, userID, email, password, name string) (store.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < store.MinPasswordLength {
		return store.Account{}, store.New(store.KindValidation, opCreateAccount, email, "email and a password of at least 8 characters are required")
	}
	hash, err := store.HashPassword(password)
	if err != nil {
		return store.Account{}, store.Wrap(store.KindTransport, opCreateAccount, email, err)
	}
	acc := store.Account{ID: s.newID(userID), Name: name, Email: email, Status: true}
	err = s.inTx(ctx, opCreateAccount, email, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rb_accounts (id, email, name, password, status, created_at) VALUES (?, ?, ?, ?, 1, ?)`,
			acc.ID, acc.Email, acc.Name, hash.String(), s.now(),
		)
		return err
	})
	if err != nil {
		return store.Account{}, err
	}
	return acc, nil
}

func (s *Store) CreateEmailSession(ctx context.Context, email, password string) (store.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	invalid := store.New(store.KindPermission, opCreateSession, email, "invalid credentials")
	var session store.Session
	err := s.inTx(ctx, opCreateSession, email, func(tx *sql.Tx) error {
		var (
			userID  string
			encoded string
		)
		err := tx.QueryRowContext(ctx, `SELECT id, password FROM rb_accounts WHERE email = ?`, email).Scan(&userID, &encoded)
		if errors.Is(err, sql.ErrNoRows) {
			return invalid
		}
		if err != nil {
			return err
		}
		hash, err := store.ParsePasswordHash(encoded)
		if err != nil || !hash.Verify(password) {
			return invalid
		}
		session = store.Session{ID: s.NewID(), UserID: userID, Expire: s.Now().UTC().Add(sessionLifetime)}
		if _, err := tx.ExecContext(ctx, `UPDATE rb_sessions SET current = 0 WHERE current = 1`); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rb_sessions (id, user_id, expire, current) VALUES (?, ?, ?, 1)`,
			session.ID, session.UserID, store.FormatTime(session.Expire),
		)
		return err
	})
	if err != nil {
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.inTx(ctx, opDeleteSession, sessionID, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if sessionID == "current" {
			res, err = tx.ExecContext(ctx, `DELETE FROM rb_sessions WHERE current = 1`)
		} else {
			res, err = tx.ExecContext(ctx, `DELETE FROM rb_sessions WHERE id = ?`, sessionID)
		}
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.NotFound(opDeleteSession, sessionID)
		}
		return nil
	})
}
