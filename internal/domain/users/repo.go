package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/infra/db"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const userCols = `id, name, email, password_hash, room_no, role, wallet_balance, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoomNo, &u.Role,
		&u.WalletBalance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) Create(ctx context.Context, u *User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, room_no, role)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+userCols, u.Name, u.Email, u.PasswordHash, u.RoomNo, u.Role)
	out, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("email %s is already registered", u.Email)
		}
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email=$1`, email))
}

func (r *Repo) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users WHERE role=$1 ORDER BY name`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoomNo, &u.Role,
			&u.WalletBalance, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Delete refuses to remove users still referenced by redemption history;
// the FK violation maps to an integrity error, matching "deactivate instead".
func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Integrity("user %d has associated meal records and cannot be deleted", id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %d not found", id)
	}
	return nil
}

/* Guests */

const guestCols = `id, name, email, wallet_balance, otp_hash, otp_expires_at, created_at, updated_at`

func scanGuest(row pgx.Row) (*Guest, error) {
	var g Guest
	err := row.Scan(&g.ID, &g.Name, &g.Email, &g.WalletBalance, &g.OTPHash, &g.OTPExpiresAt,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// UpsertGuest creates the guest on first signup and refreshes the name on
// repeat signups, keeping the wallet untouched.
func (r *Repo) UpsertGuest(ctx context.Context, name, email string) (*Guest, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO guests (name, email)
		VALUES ($1,$2)
		ON CONFLICT (email)
		DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING `+guestCols, name, email)
	return scanGuest(row)
}

func (r *Repo) GetGuestByID(ctx context.Context, id int64) (*Guest, error) {
	return scanGuest(r.pool.QueryRow(ctx, `SELECT `+guestCols+` FROM guests WHERE id=$1`, id))
}

func (r *Repo) GetGuestByEmail(ctx context.Context, email string) (*Guest, error) {
	return scanGuest(r.pool.QueryRow(ctx, `SELECT `+guestCols+` FROM guests WHERE email=$1`, email))
}

func (r *Repo) ListGuests(ctx context.Context) ([]Guest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+guestCols+` FROM guests ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guest
	for rows.Next() {
		var g Guest
		if err := rows.Scan(&g.ID, &g.Name, &g.Email, &g.WalletBalance, &g.OTPHash, &g.OTPExpiresAt,
			&g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Repo) SetGuestOTP(ctx context.Context, id int64, otpHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE guests SET otp_hash=$2, otp_expires_at=$3, updated_at=now() WHERE id=$1
	`, id, otpHash, expiresAt)
	return err
}

// ClearGuestOTP consumes the OTP after a successful verification.
func (r *Repo) ClearGuestOTP(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE guests SET otp_hash='', otp_expires_at=NULL, updated_at=now() WHERE id=$1
	`, id)
	return err
}
