package api

import (
	"net/http"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/selection"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/qr"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation("bad date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

type itemDTO struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	ImageURL     string       `json:"image_url"`
	PrepMinutes  int          `json:"prep_minutes"`
	WeeklyLimit  int          `json:"weekly_limit"`
	MonthlyLimit int          `json:"monthly_limit"`
	ExtraPrice   money.Amount `json:"extra_price"`
}

func toItemDTO(it *menu.Item) *itemDTO {
	if it == nil {
		return nil
	}
	return &itemDTO{
		ID: it.ID, Name: it.Name, Description: it.Description, ImageURL: it.ImageURL,
		PrepMinutes: it.PrepMinutes, WeeklyLimit: it.WeeklyLimit, MonthlyLimit: it.MonthlyLimit,
		ExtraPrice: it.ExtraPrice,
	}
}

type weekEntryDTO struct {
	DayOfWeek string        `json:"day_of_week"`
	MealType  menu.MealType `json:"meal_type"`
	Item      *itemDTO      `json:"item"`
}

func (h *Handlers) weekMenu(w http.ResponseWriter, r *http.Request) {
	weekStart := selection.WeekStart(time.Now())
	if s := r.URL.Query().Get("week_start"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			h.writeError(w, err)
			return
		}
		weekStart = selection.WeekStart(t)
	}
	entries, err := h.menus.ListWeek(r.Context(), weekStart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]weekEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, weekEntryDTO{DayOfWeek: e.DayOfWeek, MealType: e.MealType, Item: toItemDTO(e.Item)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart.Format(dateLayout),
		"menu":       out,
	})
}

func (h *Handlers) studentMenu(w http.ResponseWriter, r *http.Request) { h.weekMenu(w, r) }
func (h *Handlers) guestMenu(w http.ResponseWriter, r *http.Request)  { h.weekMenu(w, r) }

type selectionsRequest struct {
	WeekStart  string `json:"week_start"`
	Selections []struct {
		MealDate   string        `json:"meal_date"`
		MealType   menu.MealType `json:"meal_type"`
		MenuItemID int64         `json:"menu_item_id"`
	} `json:"selections"`
}

func (req *selectionsRequest) decode() (time.Time, []selection.SlotInput, error) {
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		return time.Time{}, nil, err
	}
	inputs := make([]selection.SlotInput, 0, len(req.Selections))
	for _, s := range req.Selections {
		date, err := parseDate(s.MealDate)
		if err != nil {
			return time.Time{}, nil, err
		}
		inputs = append(inputs, selection.SlotInput{MealDate: date, MealType: s.MealType, MenuItemID: s.MenuItemID})
	}
	return weekStart, inputs, nil
}

func (h *Handlers) submitSelections(w http.ResponseWriter, r *http.Request) {
	var req selectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	weekStart, inputs, err := req.decode()
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.selections.Submit(r.Context(), claimsFrom(r).AccountID, weekStart, inputs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) previewSelections(w http.ResponseWriter, r *http.Request) {
	var req selectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	weekStart, inputs, err := req.decode()
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.selections.Preview(r.Context(), claimsFrom(r).AccountID, weekStart, inputs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type selectionDTO struct {
	MealDate   string        `json:"meal_date"`
	MealType   menu.MealType `json:"meal_type"`
	MenuItemID int64         `json:"menu_item_id"`
	IsDefault  bool          `json:"is_default"`
	Item       *itemDTO      `json:"item"`
}

func (h *Handlers) currentSelections(w http.ResponseWriter, r *http.Request) {
	sels, weekStart, err := h.selections.Current(r.Context(), claimsFrom(r).AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]selectionDTO, 0, len(sels))
	for _, s := range sels {
		out = append(out, selectionDTO{
			MealDate:   s.MealDate.Format(dateLayout),
			MealType:   s.MealType,
			MenuItemID: s.MenuItemID,
			IsDefault:  s.IsDefault,
			Item:       toItemDTO(s.Item),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart.Format(dateLayout),
		"selections": out,
	})
}

// studentMealQR returns the QR image for an already-issued token. Issuance is
// asynchronous, so right after submitting the client may briefly see 404 here.
func (h *Handlers) studentMealQR(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	meal := menu.MealType(r.URL.Query().Get("meal"))
	if !meal.Valid() {
		h.writeError(w, apperr.Validation("unknown meal type %q", meal))
		return
	}
	t, err := h.tokens.FindValid(r.Context(), users.OwnerUser, claimsFrom(r).AccountID, date, meal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if t == nil {
		h.writeError(w, apperr.NotFound("no meal QR for %s %s yet", date.Format(dateLayout), meal))
		return
	}
	claim, err := t.Claim()
	if err != nil {
		h.writeError(w, err)
		return
	}
	img, err := qr.DataURL(claim)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": t.TokenID,
		"claim":    claim,
		"qr_image": img,
	})
}

func (h *Handlers) studentUsage(w http.ResponseWriter, r *http.Request) {
	ref := users.AccountRef{Kind: users.OwnerUser, ID: claimsFrom(r).AccountID}
	stats, err := h.ent.MonthlyUsageStats(r.Context(), ref, time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": stats})
}

// walletSummary serves both students and guests: the claims say whose wallet.
func (h *Handlers) walletSummary(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r)
	ref := users.AccountRef{Kind: c.Kind, ID: c.AccountID}
	balance, err := h.wallets.Balance(r.Context(), ref)
	if err != nil {
		h.writeError(w, err)
		return
	}
	txs, err := h.wallets.Transactions(r.Context(), ref, 50)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(txs))
	for _, t := range txs {
		out = append(out, map[string]any{
			"type":        t.Type,
			"amount":      t.Amount,
			"description": t.Description,
			"created_at":  t.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance, "transactions": out})
}
