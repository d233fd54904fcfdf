package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/messmate/messmate/internal/domain/money"
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleGuest      Role = "guest"
)

// OwnerKind tags which table a wallet or redemption token belongs to.
// Students/admins live in users, walk-in guests in guests.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuest OwnerKind = "guest"
)

// AccountRef is the canonical "whose wallet" reference. Recharge requests
// arrive with either a user or a guest id; the API boundary normalizes them
// into this before anything reaches the ledger.
type AccountRef struct {
	Kind OwnerKind
	ID   int64
}

type User struct {
	ID            int64
	Name          string
	Email         string
	PasswordHash  string
	RoomNo        string
	Role          Role
	WalletBalance money.Amount
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) SetPassword(plain string) error {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(b)
	return nil
}

func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

type Guest struct {
	ID            int64
	Name          string
	Email         string
	WalletBalance money.Amount
	OTPHash       string
	OTPExpiresAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (g *Guest) SetOTP(plain string, expires time.Time) error {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	g.OTPHash = string(b)
	g.OTPExpiresAt = &expires
	return nil
}

func (g *Guest) CheckOTP(plain string, now time.Time) bool {
	if g.OTPHash == "" || g.OTPExpiresAt == nil || now.After(*g.OTPExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(g.OTPHash), []byte(plain)) == nil
}
