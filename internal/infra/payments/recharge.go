package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/users"
)

// GatewayAPI is what the recharge flow needs from the gateway; *Gateway
// implements it, tests stub it.
type GatewayAPI interface {
	CreateOrder(ctx context.Context, amount money.Amount, receipt string, notes map[string]string) (*Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
	KeyID() string
}

type WalletStore interface {
	CreditDirect(ctx context.Context, ref users.AccountRef, amount money.Amount, description, gatewayRef string) (money.Amount, error)
}

type Recharge struct {
	gw        GatewayAPI
	wallets   WalletStore
	log       *slog.Logger
	onWebhook func(outcome string)
}

func NewRecharge(gw GatewayAPI, wallets WalletStore, log *slog.Logger, onWebhook func(outcome string)) *Recharge {
	return &Recharge{gw: gw, wallets: wallets, log: log, onWebhook: onWebhook}
}

type OrderIntent struct {
	OrderID  string       `json:"order_id"`
	Amount   money.Amount `json:"amount"`
	Currency string       `json:"currency"`
	KeyID    string       `json:"key_id"`
}

func (r *Recharge) CreateOrder(ctx context.Context, ref users.AccountRef, amount money.Amount) (*OrderIntent, error) {
	if amount <= 0 {
		return nil, apperr.Validation("recharge amount must be positive")
	}
	receipt := fmt.Sprintf("wallet-%s-%d-%d", ref.Kind, ref.ID, time.Now().Unix())
	notes := map[string]string{
		"owner_kind": string(ref.Kind),
		"owner_id":   strconv.FormatInt(ref.ID, 10),
	}
	order, err := r.gw.CreateOrder(ctx, amount, receipt, notes)
	if err != nil {
		return nil, err
	}
	r.log.Info("recharge order created", "owner_kind", ref.Kind, "owner_id", ref.ID, "order_id", order.ID, "amount", amount)
	return &OrderIntent{OrderID: order.ID, Amount: order.Amount, Currency: order.Currency, KeyID: r.gw.KeyID()}, nil
}

// Confirm validates the checkout signature and credits the wallet. paymentID
// doubles as the gateway reference, so a replayed confirmation conflicts
// instead of crediting twice.
func (r *Recharge) Confirm(ctx context.Context, ref users.AccountRef, orderID, paymentID, signature string, amount money.Amount) (money.Amount, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return 0, apperr.Validation("order id, payment id and signature are required")
	}
	if amount <= 0 {
		return 0, apperr.Validation("recharge amount must be positive")
	}
	if !r.gw.VerifySignature(orderID, paymentID, signature) {
		return 0, apperr.Validation("payment signature verification failed")
	}
	balance, err := r.wallets.CreditDirect(ctx, ref, amount, "wallet recharge", paymentID)
	if err != nil {
		return 0, err
	}
	r.log.Info("wallet recharged", "owner_kind", ref.Kind, "owner_id", ref.ID, "payment_id", paymentID, "amount", amount)
	return balance, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Amount  int64             `json:"amount"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook processes payment.captured events as a safety net for
// confirmations the client never delivered. Credits are deduped by payment id
// the same way Confirm's are, so the two paths cannot double-credit.
func (r *Recharge) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !r.gw.VerifyWebhook(body, signature) {
		r.webhookOutcome("bad_signature")
		return apperr.Validation("webhook signature verification failed")
	}
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		r.webhookOutcome("bad_payload")
		return apperr.Validation("malformed webhook payload")
	}
	if ev.Event != "payment.captured" {
		r.webhookOutcome("ignored")
		return nil
	}
	p := ev.Payload.Payment.Entity
	ref, err := refFromNotes(p.Notes)
	if err != nil {
		r.webhookOutcome("bad_payload")
		return err
	}
	_, err = r.wallets.CreditDirect(ctx, ref, money.FromMinor(p.Amount), "wallet recharge (webhook)", p.ID)
	if apperr.IsKind(err, apperr.KindConflict) {
		// already credited via Confirm
		r.webhookOutcome("duplicate")
		return nil
	}
	if err != nil {
		r.webhookOutcome("error")
		return err
	}
	r.webhookOutcome("credited")
	r.log.Info("wallet recharged via webhook", "owner_kind", ref.Kind, "owner_id", ref.ID, "payment_id", p.ID, "amount", p.Amount)
	return nil
}

func refFromNotes(notes map[string]string) (users.AccountRef, error) {
	kind := users.OwnerKind(notes["owner_kind"])
	if kind != users.OwnerUser && kind != users.OwnerGuest {
		return users.AccountRef{}, apperr.Validation("webhook notes missing owner kind")
	}
	id, err := strconv.ParseInt(notes["owner_id"], 10, 64)
	if err != nil || id <= 0 {
		return users.AccountRef{}, apperr.Validation("webhook notes missing owner id")
	}
	return users.AccountRef{Kind: kind, ID: id}, nil
}

func (r *Recharge) webhookOutcome(outcome string) {
	if r.onWebhook != nil {
		r.onWebhook(outcome)
	}
}
