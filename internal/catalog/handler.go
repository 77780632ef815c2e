package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers catalog routes on an /api router.
func (h *Handler) MountRoutes(r chi.Router) {
	// Warehouses
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/warehouses", h.listWarehouses)
		r.Get("/warehouses/{id}", h.showWarehouse)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/warehouses", h.createWarehouse)
		r.Put("/warehouses/{id}", h.updateWarehouse)
		r.Delete("/warehouses/{id}", h.deleteWarehouse)
	})

	// Stores
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/stores", h.listStores)
		r.Get("/stores/{id}", h.showStore)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/stores", h.createStore)
		r.Put("/stores/{id}", h.updateStore)
		r.Delete("/stores/{id}", h.deleteStore)
	})

	// Products
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.showProduct)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/products", h.createProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
	})

	// Suppliers
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/suppliers", h.listSuppliers)
		r.Get("/suppliers/{id}", h.showSupplier)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/suppliers", h.createSupplier)
		r.Put("/suppliers/{id}", h.updateSupplier)
		r.Delete("/suppliers/{id}", h.deleteSupplier)
	})
}

func listFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	page := httpx.PageParams(r)
	filters := ListFilters{
		Limit:   page.Limit(),
		Offset:  page.Offset(),
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		return filters, err
	}
	filters.WarehouseID = warehouseID
	if raw := q.Get("status"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 16)
		if err == nil {
			status := int16(v)
			filters.Status = &status
		}
	}
	if raw := q.Get("active"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filters.IsActive = &v
		}
	}
	return filters, nil
}

// Warehouse handlers
func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	filters, err := listFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	warehouses, total, err := h.service.ListWarehouses(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, warehouses, httpx.PageParams(r), total)
}

func (h *Handler) showWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	warehouse, err := h.service.GetWarehouse(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var warehouse Warehouse
	if err := httpx.DecodeJSON(r, &warehouse); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	created, err := h.service.CreateWarehouse(r.Context(), warehouse)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	h.logger.Info("warehouse created", slog.Int64("warehouse_id", created.ID))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var warehouse Warehouse
	if err := httpx.DecodeJSON(r, &warehouse); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	updated, err := h.service.UpdateWarehouse(r.Context(), id, warehouse)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteWarehouse(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Store handlers
func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	filters, err := listFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	stores, total, err := h.service.ListStores(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, stores, httpx.PageParams(r), total)
}

func (h *Handler) showStore(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	store, err := h.service.GetStore(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, store)
}

func (h *Handler) createStore(w http.ResponseWriter, r *http.Request) {
	var store Store
	if err := httpx.DecodeJSON(r, &store); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	created, err := h.service.CreateStore(r.Context(), store)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	h.logger.Info("store created", slog.Int64("store_id", created.ID), slog.Int64("warehouse_id", created.WarehouseID))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateStore(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var store Store
	if err := httpx.DecodeJSON(r, &store); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	updated, err := h.service.UpdateStore(r.Context(), id, store)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteStore(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteStore(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Product handlers
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filters, err := listFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	products, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, products, httpx.PageParams(r), total)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var product Product
	if err := httpx.DecodeJSON(r, &product); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	h.logger.Info("product created", slog.Int64("product_id", created.ID), slog.String("code", created.Code))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var product Product
	if err := httpx.DecodeJSON(r, &product); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	updated, err := h.service.UpdateProduct(r.Context(), id, product)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Supplier handlers
func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	filters, err := listFilters(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	suppliers, total, err := h.service.ListSuppliers(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, suppliers, httpx.PageParams(r), total)
}

func (h *Handler) showSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	detail, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var in SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	created, err := h.service.CreateSupplier(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	h.logger.Info("supplier created", slog.Int64("supplier_id", created.ID))
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in SupplierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	updated, err := h.service.UpdateSupplier(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteSupplier(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
