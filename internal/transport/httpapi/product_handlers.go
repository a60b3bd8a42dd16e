package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (catalog.ProductInput, error) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return catalog.ProductInput{}, err
	}
	return req.input()
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.List(r.Context(), r.URL.Query().Get("search"), pageParam(r))
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to fetch products")
		return
	}
	writeOK(w, http.StatusOK, "Products retrieved successfully", newPageView(page, newProductView))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeProduct(w, r)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create product")
		return
	}
	product, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to create product")
		return
	}
	writeOK(w, http.StatusCreated, "Product created successfully", newProductView(product))
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, h.logger, err, "")
		return
	}
	product, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to fetch product")
		return
	}
	writeOK(w, http.StatusOK, "Product retrieved successfully", newProductView(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, h.logger, err, "")
		return
	}
	in, err := h.decodeProduct(w, r)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to update product")
		return
	}
	product, err := h.catalog.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.logger, err, "Failed to update product")
		return
	}
	writeOK(w, http.StatusOK, "Product updated successfully", newProductView(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, h.logger, err, "")
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err, "Failed to delete product")
		return
	}
	writeOK(w, http.StatusOK, "Product deleted successfully", nil)
}
