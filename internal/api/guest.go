package api

import (
	"net/http"

	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/order"
	"github.com/messmate/messmate/internal/qr"
)

type orderDTO struct {
	ID        int64         `json:"id"`
	OrderDate string        `json:"order_date"`
	MealDate  string        `json:"meal_date"`
	MealType  menu.MealType `json:"meal_type"`
	Status    order.Status  `json:"status"`
	PrepText  string        `json:"prep_text"`
	Amount    string        `json:"amount"`
	Items     []orderItem   `json:"items"`
}

type orderItem struct {
	Quantity int      `json:"quantity"`
	Item     *itemDTO `json:"item"`
}

func toOrderDTO(o *order.Order) orderDTO {
	dto := orderDTO{
		ID:        o.ID,
		OrderDate: o.OrderDate.Format("2006-01-02 15:04:05"),
		MealDate:  o.MealDate.Format(dateLayout),
		MealType:  o.MealType,
		Status:    o.Status,
		PrepText:  o.PrepText,
		Amount:    o.Amount.String(),
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItem{Quantity: it.Quantity, Item: toItemDTO(it.MenuItem)})
	}
	return dto
}

func (h *Handlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MealType menu.MealType     `json:"meal_type"`
		Items    []order.LineInput `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.orders.Place(r.Context(), claimsFrom(r).AccountID, req.MealType, req.Items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	claim, err := res.Token.Claim()
	if err != nil {
		h.writeError(w, err)
		return
	}
	img, err := qr.DataURL(claim)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"order":    toOrderDTO(res.Order),
		"token_id": res.Token.TokenID,
		"qr_image": img,
	})
}

func (h *Handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByGuest(r.Context(), claimsFrom(r).AccountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderDTO(&orders[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}
