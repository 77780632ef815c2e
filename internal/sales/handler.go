package sales

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler manages sales reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers sales read routes. Posting lives with the stock ledger.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/sales", h.listSales)
		r.Get("/sales/{id}", h.showSale)
		r.Get("/returns", h.listReturns)
		r.Get("/returns/{id}", h.showReturn)
		r.Get("/stores/{id}/summary", h.storeSummary)
	})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	storeID, err := httpx.QueryInt64(r, "store_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	sales, total, err := h.service.ListSales(r.Context(), SaleFilter{
		StoreID:     storeID,
		CustomerID:  customerID,
		PaymentType: r.URL.Query().Get("payment_type"),
		Period:      period,
		Limit:       page.Limit(),
		Offset:      page.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, sales, page, total)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	detail, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	saleID, err := httpx.QueryInt64(r, "sale_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	storeID, err := httpx.QueryInt64(r, "store_id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	returns, total, err := h.service.ListReturns(r.Context(), ReturnFilter{
		SaleID:  saleID,
		StoreID: storeID,
		Period:  period,
		Limit:   page.Limit(),
		Offset:  page.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.List(w, returns, page, total)
}

func (h *Handler) showReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	detail, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) storeSummary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	summary, err := h.service.StoreSummary(r.Context(), id, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// parsePeriod reads from/to dates; to is inclusive on the wire and exclusive
// in the returned Period.
func parsePeriod(r *http.Request) (Period, error) {
	var p Period
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return p, shared.Invalid("from", "must be a date in YYYY-MM-DD format")
		}
		p.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return p, shared.Invalid("to", "must be a date in YYYY-MM-DD format")
		}
		p.To = to.AddDate(0, 0, 1)
	}
	return p, nil
}
