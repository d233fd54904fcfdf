package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/reports"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("bad id in path")
	}
	return id, nil
}

type menuItemRequest struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	ImageURL     string       `json:"image_url"`
	PrepMinutes  int          `json:"prep_minutes"`
	WeeklyLimit  int          `json:"weekly_limit"`
	MonthlyLimit int          `json:"monthly_limit"`
	ExtraPrice   money.Amount `json:"extra_price"`
}

func (req *menuItemRequest) toItem(id int64) *menu.Item {
	return &menu.Item{
		ID: id, Name: req.Name, Description: req.Description, ImageURL: req.ImageURL,
		PrepMinutes: req.PrepMinutes, WeeklyLimit: req.WeeklyLimit, MonthlyLimit: req.MonthlyLimit,
		ExtraPrice: req.ExtraPrice,
	}
}

func (h *Handlers) createMenuItem(w http.ResponseWriter, r *http.Request) {
	var req menuItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	item := req.toItem(0)
	if err := item.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.menus.CreateItem(r.Context(), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(created))
}

func (h *Handlers) listMenuItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.menus.ListItems(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]*itemDTO, 0, len(items))
	for i := range items {
		out = append(out, toItemDTO(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handlers) getMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	item, err := h.menus.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if item == nil {
		h.writeError(w, apperr.NotFound("menu item %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

func (h *Handlers) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req menuItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	item := req.toItem(id)
	if err := item.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.menus.UpdateItem(r.Context(), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(updated))
}

func (h *Handlers) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.menus.DeleteItem(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) replaceWeeklyMenu(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WeekStart string `json:"week_start"`
		Entries   []struct {
			DayOfWeek  string        `json:"day_of_week"`
			MealType   menu.MealType `json:"meal_type"`
			MenuItemID int64         `json:"menu_item_id"`
		} `json:"entries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries := make([]menu.WeekEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		if !menu.ValidDay(e.DayOfWeek) {
			h.writeError(w, apperr.Validation("unknown day of week %q", e.DayOfWeek))
			return
		}
		if !e.MealType.Valid() {
			h.writeError(w, apperr.Validation("unknown meal type %q", e.MealType))
			return
		}
		entries = append(entries, menu.WeekEntry{
			WeekStartDate: weekStart, DayOfWeek: e.DayOfWeek, MealType: e.MealType, MenuItemID: e.MenuItemID,
		})
	}
	if err := h.menus.ReplaceWeek(r.Context(), weekStart, entries); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"week_start": weekStart.Format(dateLayout), "entries": len(entries)})
}

func (h *Handlers) listWeeklyMenu(w http.ResponseWriter, r *http.Request) { h.weekMenu(w, r) }

// adminRecharge credits a user or guest wallet in cash, outside the payment
// gateway. Exactly one of user_id and guest_id must be set.
func (h *Handlers) adminRecharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  int64        `json:"user_id"`
		GuestID int64        `json:"guest_id"`
		Amount  money.Amount `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if (req.UserID == 0) == (req.GuestID == 0) {
		h.writeError(w, apperr.Validation("provide exactly one of user_id and guest_id"))
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, apperr.Validation("amount must be positive"))
		return
	}
	ref := users.AccountRef{Kind: users.OwnerUser, ID: req.UserID}
	if req.GuestID != 0 {
		ref = users.AccountRef{Kind: users.OwnerGuest, ID: req.GuestID}
	}
	balance, err := h.wallets.CreditDirect(r.Context(), ref, req.Amount, "admin recharge", "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// scan redeems whatever claim shape the scanner app sends.
func (h *Handlers) scan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, apperr.Validation("unreadable request body"))
		return
	}
	claim, err := token.ParseClaim(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.verifier.Redeem(r.Context(), claim)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tokens.TodayStats(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	students, err := h.users.ListByRole(r.Context(), users.RoleStudent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	guests, err := h.users.ListGuests(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	type userDTO struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		RoomNo  string `json:"room_no,omitempty"`
		Balance string `json:"wallet_balance"`
	}
	outUsers := make([]userDTO, 0, len(students))
	for _, u := range students {
		outUsers = append(outUsers, userDTO{ID: u.ID, Name: u.Name, Email: u.Email, RoomNo: u.RoomNo, Balance: u.WalletBalance.String()})
	}
	outGuests := make([]userDTO, 0, len(guests))
	for _, g := range guests {
		outGuests = append(outGuests, userDTO{ID: g.ID, Name: g.Name, Email: g.Email, Balance: g.WalletBalance.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": outUsers, "guests": outGuests})
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) usageReport(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	rows, err := h.ent.UsageReportRows(r.Context(), now)
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, name, err := reports.MonthlyUsageXLSX(rows, now)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}
