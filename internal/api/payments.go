package api

import (
	"io"
	"net/http"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/users"
)

func (h *Handlers) paymentOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount money.Amount `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c := claimsFrom(r)
	intent, err := h.recharge.CreateOrder(r.Context(), users.AccountRef{Kind: c.Kind, ID: c.AccountID}, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *Handlers) paymentVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID   string       `json:"order_id"`
		PaymentID string       `json:"payment_id"`
		Signature string       `json:"signature"`
		Amount    money.Amount `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c := claimsFrom(r)
	balance, err := h.recharge.Confirm(r.Context(), users.AccountRef{Kind: c.Kind, ID: c.AccountID},
		req.OrderID, req.PaymentID, req.Signature, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// paymentWebhook is unauthenticated by design; trust comes from the HMAC
// signature over the raw body.
func (h *Handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, apperr.Validation("unreadable request body"))
		return
	}
	sig := r.Header.Get("X-Razorpay-Signature")
	if err := h.recharge.HandleWebhook(r.Context(), body, sig); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
