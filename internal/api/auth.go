package api

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/users"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoomNo   string `json:"room_no"`
}

type authResponse struct {
	Token string `json:"token"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		h.writeError(w, apperr.Validation("name, email and a password of at least 6 characters are required"))
		return
	}

	u := &users.User{Name: req.Name, Email: req.Email, RoomNo: req.RoomNo, Role: users.RoleStudent}
	if err := u.SetPassword(req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.users.Create(r.Context(), u)
	if err != nil {
		h.writeError(w, err)
		return
	}
	tok, err := h.auth.Issue(created.ID, users.OwnerUser, created.Role, created.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{
		Token: tok, ID: created.ID, Name: created.Name, Role: string(created.Role), Email: created.Email,
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	u, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if u == nil || !u.CheckPassword(req.Password) {
		// Same answer for unknown email and wrong password.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	tok, err := h.auth.Issue(u.ID, users.OwnerUser, u.Role, u.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Token: tok, ID: u.ID, Name: u.Name, Role: string(u.Role), Email: u.Email,
	})
}

const otpTTL = 10 * time.Minute

func (h *Handlers) guestSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		h.writeError(w, apperr.Validation("name and email are required"))
		return
	}

	g, err := h.users.UpsertGuest(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	otp, err := newOTP()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := g.SetOTP(otp, time.Now().Add(otpTTL)); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.users.SetGuestOTP(r.Context(), g.ID, g.OTPHash, *g.OTPExpiresAt); err != nil {
		h.writeError(w, err)
		return
	}

	// Delivery goes through the mail relay in production; outside it the
	// code is returned in the response so the flow stays testable.
	h.log.Info("guest OTP issued", "guest_id", g.ID, "email", g.Email)
	resp := map[string]any{"guest_id": g.ID, "expires_in_sec": int(otpTTL.Seconds())}
	if h.devMode {
		resp["otp"] = otp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) guestVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	g, err := h.users.GetGuestByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if g == nil || !g.CheckOTP(req.OTP, time.Now()) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired code"})
		return
	}
	if err := h.users.ClearGuestOTP(r.Context(), g.ID); err != nil {
		h.writeError(w, err)
		return
	}
	tok, err := h.auth.Issue(g.ID, users.OwnerGuest, users.RoleGuest, g.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Token: tok, ID: g.ID, Name: g.Name, Role: string(users.RoleGuest), Email: g.Email,
	})
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
