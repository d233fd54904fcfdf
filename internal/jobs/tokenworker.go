// Package jobs runs the background loops: asynchronous token issuance and
// the weekend default-menu backfill.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/infra/db"
	"github.com/messmate/messmate/internal/infra/notify"
)

const (
	tokenBatchSize   = 50
	tokenMaxAttempts = 5
)

type TokenQueue interface {
	DuePending(ctx context.Context, limit int) ([]token.QueueEntry, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string, dead bool) error
}

type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetGuestByID(ctx context.Context, id int64) (*users.Guest, error)
}

type ItemStore interface {
	ItemsByID(ctx context.Context, ids []int64) (map[int64]menu.Item, error)
}

// TokenWorker drains the durable issue queue. Issuance is idempotent per
// slot, so the at-least-once delivery of the queue is safe to retry.
type TokenWorker struct {
	queue    TokenQueue
	accounts AccountStore
	items    ItemStore
	issuer   *token.Issuer
	q        db.Querier
	alerts   notify.Notifier
	log      *slog.Logger
	interval time.Duration
	onIssued func()
	onFailed func()
}

func NewTokenWorker(queue TokenQueue, accounts AccountStore, items ItemStore, issuer *token.Issuer,
	q db.Querier, alerts notify.Notifier, log *slog.Logger, interval time.Duration,
	onIssued, onFailed func()) *TokenWorker {
	return &TokenWorker{
		queue: queue, accounts: accounts, items: items, issuer: issuer,
		q: q, alerts: alerts, log: log, interval: interval,
		onIssued: onIssued, onFailed: onFailed,
	}
}

func (w *TokenWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.log.Error("token worker pass failed", "err", err)
			}
		}
	}
}

// Drain processes one batch of pending queue entries.
func (w *TokenWorker) Drain(ctx context.Context) error {
	pending, err := w.queue.DuePending(ctx, tokenBatchSize)
	if err != nil {
		return err
	}
	for _, e := range pending {
		if err := w.issueOne(ctx, e); err != nil {
			w.fail(ctx, e, err)
			continue
		}
		if err := w.queue.MarkDone(ctx, e.ID); err != nil {
			w.log.Error("mark queue entry done", "id", e.ID, "err", err)
			continue
		}
		if w.onIssued != nil {
			w.onIssued()
		}
	}
	return nil
}

func (w *TokenWorker) issueOne(ctx context.Context, e token.QueueEntry) error {
	name, err := w.ownerName(ctx, e)
	if err != nil {
		return err
	}
	items, err := w.items.ItemsByID(ctx, []int64{e.MenuItemID})
	if err != nil {
		return err
	}
	it, ok := items[e.MenuItemID]
	if !ok {
		return apperr.NotFound("menu item %d not found", e.MenuItemID)
	}

	claim := &token.Claim{
		OwnerKind:   e.OwnerKind,
		OwnerID:     e.OwnerID,
		DisplayName: name,
		MealDate:    e.MealDate.Format("2006-01-02"),
		MealType:    e.MealType,
		Items: []token.ClaimItem{
			{ID: it.ID, Name: it.Name, Description: it.Description, ImageURL: it.ImageURL},
		},
	}
	// The selection already paid any extra charge; the token itself costs
	// nothing. Guest tokens carry their cost because they are minted in the
	// order flow, not here.
	_, _, err = w.issuer.Issue(ctx, w.q, claim, 0)
	return err
}

func (w *TokenWorker) ownerName(ctx context.Context, e token.QueueEntry) (string, error) {
	if e.OwnerKind == users.OwnerGuest {
		g, err := w.accounts.GetGuestByID(ctx, e.OwnerID)
		if err != nil {
			return "", err
		}
		if g == nil {
			return "", apperr.NotFound("guest %d not found", e.OwnerID)
		}
		return g.Name, nil
	}
	u, err := w.accounts.GetByID(ctx, e.OwnerID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", apperr.NotFound("user %d not found", e.OwnerID)
	}
	return u.Name, nil
}

func (w *TokenWorker) fail(ctx context.Context, e token.QueueEntry, cause error) {
	dead := e.Attempts+1 >= tokenMaxAttempts
	// A conflict means the slot was already redeemed; retrying can never
	// succeed, so the entry is buried on the first attempt.
	if apperr.IsKind(cause, apperr.KindConflict) {
		dead = true
	}
	reason := cause.Error()
	if err := w.queue.MarkFailed(ctx, e.ID, reason, dead); err != nil {
		w.log.Error("mark queue entry failed", "id", e.ID, "err", err)
	}
	if w.onFailed != nil {
		w.onFailed()
	}
	w.log.Warn("token issuance failed",
		"queue_id", e.ID, "owner_kind", e.OwnerKind, "owner_id", e.OwnerID,
		"meal_date", e.MealDate.Format("2006-01-02"), "meal_type", e.MealType,
		"attempts", e.Attempts+1, "dead", dead, "err", cause)
	if dead {
		w.alerts.Alert("Token issuance gave up: %s %d, %s %s (%s)",
			e.OwnerKind, e.OwnerID, e.MealDate.Format("2006-01-02"), e.MealType,
			fmt.Sprintf("%.120s", reason))
	}
}
