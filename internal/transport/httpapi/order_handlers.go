package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, "Failed to create order")
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create order")
		return
	}

	order, err := h.workflow.PlaceOrder(r.Context(), actingUserID(r), in)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create order")
		return
	}
	writeOK(w, http.StatusCreated, "Order created successfully", newOrderView(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.orders.ListOrders(r.Context(), actingUserID(r), pageParam(r))
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to fetch orders")
		return
	}
	writeOK(w, http.StatusOK, "Orders retrieved successfully", newPageView(page, newOrderView))
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, domain.ErrOrderNotFound)
	if err != nil {
		writeError(w, r, h.logger, err, "")
		return
	}
	order, err := h.orders.GetOrder(r.Context(), actingUserID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to fetch order")
		return
	}
	writeOK(w, http.StatusOK, "Order retrieved successfully", newOrderView(order))
}
