package inventory

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers ledger routes on an /api router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/receipts", h.listReceipts)
			r.Post("/receipts", h.postReceipt)
			r.Get("/receipts/{id}", h.getReceipt)
			r.Post("/transfers", h.postTransfer)
			r.Get("/stock", h.listStock)
			r.Get("/history", h.listHistory)
			r.Get("/history/{id}", h.getHistory)
			r.With(h.rbac.RequireAdmin()).Put("/stock/{id}", h.adjustStock)
		})
		r.Get("/warehouses/{id}/products", h.warehouseProducts)
		r.Get("/warehouses/{id}/products/{productID}", h.warehouseProduct)
		r.Post("/sales", h.postSale)
		r.Post("/returns", h.postReturn)
	})
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	var in ReceiptInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in.ActorID, in.IdempotencyKey = requestMeta(r)
	receipt, err := h.service.PostReceipt(r.Context(), in)
	if err != nil {
		h.fail(w, r, "post receipt failed", err)
		return
	}
	h.logger.Info("receipt posted",
		slog.Int64("receipt_id", receipt.ID),
		slog.Int64("warehouse_id", receipt.WarehouseID),
		slog.Int("items", len(receipt.Items)))
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) postTransfer(w http.ResponseWriter, r *http.Request) {
	var in TransferInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in.ActorID, in.IdempotencyKey = requestMeta(r)
	result, err := h.service.PostTransfer(r.Context(), in)
	if err != nil {
		h.fail(w, r, "post transfer failed", err)
		return
	}
	h.logger.Info("transfer posted",
		slog.Int64("product_id", in.ProductID),
		slog.Int64("from_warehouse_id", in.FromWarehouseID),
		slog.Int64("to_warehouse_id", in.ToWarehouseID),
		slog.Int64("pieces", in.Pieces))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) postSale(w http.ResponseWriter, r *http.Request) {
	var in SaleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in.ActorID, in.IdempotencyKey = requestMeta(r)
	sale, err := h.service.PostSale(r.Context(), in)
	if err != nil {
		h.fail(w, r, "post sale failed", err)
		return
	}
	h.logger.Info("sale posted", slog.Int64("sale_id", sale.ID), slog.Int64("store_id", sale.StoreID))
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) postReturn(w http.ResponseWriter, r *http.Request) {
	var in ReturnInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in.ActorID, in.IdempotencyKey = requestMeta(r)
	ret, err := h.service.PostReturn(r.Context(), in)
	if err != nil {
		h.fail(w, r, "post return failed", err)
		return
	}
	h.logger.Info("return posted", slog.Int64("return_id", ret.ID), slog.Int64("sale_id", ret.SaleID))
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in AdjustInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in.PositionID = id
	in.ActorID, in.IdempotencyKey = requestMeta(r)
	change, err := h.service.AdjustPosition(r.Context(), in)
	if err != nil {
		h.fail(w, r, "adjust stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	views, err := h.service.ListPositions(r.Context(), PositionFilter{
		WarehouseID: warehouseID,
		ProductID:   productID,
		InStockOnly: r.URL.Query().Get("in_stock") == "true",
		Limit:       page.Limit(),
		Offset:      page.Offset(),
	})
	if err != nil {
		h.fail(w, r, "list stock failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	changes, err := h.service.ListChanges(r.Context(), ChangeFilter{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Type:        ChangeType(strings.ToUpper(r.URL.Query().Get("change_type"))),
		Limit:       page.Limit(),
		Offset:      page.Offset(),
	})
	if err != nil {
		h.fail(w, r, "list history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, changes)
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	change, err := h.service.GetChange(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	supplierID, err := httpx.QueryInt64(r, "supplier_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	receipts, err := h.service.ListReceipts(r.Context(), ReceiptFilter{
		WarehouseID: warehouseID,
		SupplierID:  supplierID,
		Limit:       page.Limit(),
		Offset:      page.Offset(),
	})
	if err != nil {
		h.fail(w, r, "list receipts failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get receipt failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) warehouseProducts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	views, err := h.service.WarehouseProducts(r.Context(), id, page.Limit(), page.Offset())
	if err != nil {
		h.fail(w, r, "list warehouse products failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) warehouseProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	productID, err := httpx.IDParam(r, "productID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pos, err := h.service.GetPosition(r.Context(), id, productID)
	if err != nil {
		h.fail(w, r, "get warehouse product failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.IsClientError(err) {
		h.logger.Warn(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, r, h.logger, err)
}

func requestMeta(r *http.Request) (actorID int64, key string) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		actorID = actor.ID
	}
	return actorID, strings.TrimSpace(r.Header.Get(IdempotencyHeader))
}
