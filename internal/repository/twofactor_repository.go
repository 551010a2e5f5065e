package repository

import (
	"context"
	"database/sql"
	"time"
)

// TwoFactorStore persists short-lived verification codes issued during
// login. Codes are stored hashed, expire after a few minutes and are
// single use.
type TwoFactorStore interface {
	StoreCode(ctx context.Context, userID uint64, codeHash string, exp time.Time) error
	ConsumeCode(ctx context.Context, userID uint64, codeHash string) error
}

type TwoFactorRepo struct{ DB *sql.DB }

func NewTwoFactorRepo(db *sql.DB) *TwoFactorRepo { return &TwoFactorRepo{DB: db} }

// StoreCode replaces any outstanding code for the user with a fresh one.
// Only one pending code per user exists at a time.
func (r *TwoFactorRepo) StoreCode(ctx context.Context, userID uint64, codeHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO two_factor_codes (user_id, code_hash, expires_at) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE code_hash=VALUES(code_hash), expires_at=VALUES(expires_at), consumed_at=NULL`,
		userID, codeHash, exp)
	return err
}

// ConsumeCode validates a submitted code and marks it used in the same
// statement, so a code can never be accepted twice.
func (r *TwoFactorRepo) ConsumeCode(ctx context.Context, userID uint64, codeHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE two_factor_codes SET consumed_at=NOW()
		 WHERE user_id=? AND code_hash=? AND consumed_at IS NULL AND expires_at > NOW()`,
		userID, codeHash)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
