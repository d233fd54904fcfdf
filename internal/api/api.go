// Package api is the HTTP boundary: routing, auth middleware, and the
// translation between JSON requests and the domain services.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/messmate/messmate/internal/auth"
	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/order"
	"github.com/messmate/messmate/internal/domain/selection"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/domain/wallet"
	"github.com/messmate/messmate/internal/infra/payments"
)

type Handlers struct {
	auth       *auth.Manager
	users      *users.Repo
	menus      *menu.Repo
	wallets    *wallet.Repo
	ent        *entitlement.Repo
	tokens     *token.Repo
	selections *selection.Service
	orders     *order.Service
	verifier   *token.Verifier
	recharge   *payments.Recharge
	log        *slog.Logger
	devMode    bool
}

func NewHandlers(
	authMgr *auth.Manager,
	usersRepo *users.Repo,
	menus *menu.Repo,
	wallets *wallet.Repo,
	ent *entitlement.Repo,
	tokens *token.Repo,
	selections *selection.Service,
	orders *order.Service,
	verifier *token.Verifier,
	recharge *payments.Recharge,
	log *slog.Logger,
	devMode bool,
) *Handlers {
	return &Handlers{
		auth:       authMgr,
		users:      usersRepo,
		menus:      menus,
		wallets:    wallets,
		ent:        ent,
		tokens:     tokens,
		selections: selections,
		orders:     orders,
		verifier:   verifier,
		recharge:   recharge,
		log:        log,
		devMode:    devMode,
	}
}

func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/guest/signup", h.guestSignup)
	mux.HandleFunc("POST /api/auth/guest/verify", h.guestVerify)

	student := h.requireRole(users.RoleStudent, users.RoleAdmin, users.RoleSuperAdmin)
	mux.Handle("GET /api/student/menu", student(h.studentMenu))
	mux.Handle("POST /api/student/selections", student(h.submitSelections))
	mux.Handle("POST /api/student/selections/preview", student(h.previewSelections))
	mux.Handle("GET /api/student/selections", student(h.currentSelections))
	mux.Handle("GET /api/student/meal-qr", student(h.studentMealQR))
	mux.Handle("GET /api/student/usage", student(h.studentUsage))
	mux.Handle("GET /api/student/wallet", student(h.walletSummary))

	guest := h.requireRole(users.RoleGuest)
	mux.Handle("GET /api/guest/menu", guest(h.guestMenu))
	mux.Handle("POST /api/guest/orders", guest(h.placeOrder))
	mux.Handle("GET /api/guest/orders", guest(h.listOrders))
	mux.Handle("GET /api/guest/wallet", guest(h.walletSummary))

	admin := h.requireRole(users.RoleAdmin, users.RoleSuperAdmin)
	mux.Handle("POST /api/admin/menu-items", admin(h.createMenuItem))
	mux.Handle("GET /api/admin/menu-items", admin(h.listMenuItems))
	mux.Handle("GET /api/admin/menu-items/{id}", admin(h.getMenuItem))
	mux.Handle("PUT /api/admin/menu-items/{id}", admin(h.updateMenuItem))
	mux.Handle("DELETE /api/admin/menu-items/{id}", admin(h.deleteMenuItem))
	mux.Handle("PUT /api/admin/weekly-menu", admin(h.replaceWeeklyMenu))
	mux.Handle("GET /api/admin/weekly-menu", admin(h.listWeeklyMenu))
	mux.Handle("POST /api/admin/recharge", admin(h.adminRecharge))
	mux.Handle("POST /api/admin/scan", admin(h.scan))
	mux.Handle("GET /api/admin/dashboard", admin(h.dashboard))
	mux.Handle("GET /api/admin/users", admin(h.listUsers))
	mux.Handle("DELETE /api/admin/users/{id}", admin(h.deleteUser))
	mux.Handle("GET /api/admin/reports/usage.xlsx", admin(h.usageReport))

	authed := h.requireAuth
	mux.Handle("POST /api/payments/order", authed(h.paymentOrder))
	mux.Handle("POST /api/payments/verify", authed(h.paymentVerify))
	mux.HandleFunc("POST /api/payments/webhook", h.paymentWebhook)

	return h.logRequests(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Unknown errors are
// logged and masked; kinded ones carry user-facing messages by construction.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status, msg = http.StatusBadRequest, err.Error()
	case apperr.KindNotFound:
		status, msg = http.StatusNotFound, err.Error()
	case apperr.KindConflict, apperr.KindIntegrity:
		status, msg = http.StatusConflict, err.Error()
	case apperr.KindInsufficientFunds:
		status, msg = http.StatusPaymentRequired, err.Error()
	case apperr.KindExternal:
		status, msg = http.StatusBadGateway, "upstream service error"
		h.log.Error("upstream error", "err", err)
	default:
		h.log.Error("unhandled error", "err", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("malformed JSON body")
	}
	return nil
}
