// Package payments talks to the Razorpay-compatible gateway used for wallet
// recharges: order creation over HTTP, signature checks over HMAC-SHA256.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/money"
)

type Order struct {
	ID       string       `json:"id"`
	Amount   money.Amount `json:"amount"`
	Currency string       `json:"currency"`
	Status   string       `json:"status"`
}

type Gateway struct {
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	client        *http.Client
}

func NewGateway(baseURL, keyID, keySecret, webhookSecret string) *Gateway {
	return &Gateway{
		baseURL:       baseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *Gateway) KeyID() string { return g.keyID }

// CreateOrder registers a recharge intent with the gateway. The amount is in
// the smallest currency unit, which is what money.Amount already holds. Notes
// ride along and come back in webhook events, which is how a captured payment
// is correlated with a wallet.
func (g *Gateway) CreateOrder(ctx context.Context, amount money.Amount, receipt string, notes map[string]string) (*Order, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amount.Minor(),
		"currency": "INR",
		"receipt":  receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.External(err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.External(err, "read gateway response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.External(fmt.Errorf("status %d: %s", resp.StatusCode, raw), "create payment order")
	}
	var out Order
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.External(err, "decode gateway response")
	}
	return &out, nil
}

// VerifySignature checks the checkout callback signature, computed by the
// gateway as HMAC-SHA256 over "orderID|paymentID".
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook checks the webhook signature over the raw request body.
func (g *Gateway) VerifyWebhook(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
