package accounts

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	// Customer routes
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/customers", h.ListCustomers)
		r.Post("/customers", h.CreateCustomer)
		r.Get("/customers/{id}", h.ShowCustomer)
		r.Put("/customers/{id}", h.UpdateCustomer)
		r.Get("/customers/{id}/details", h.CustomerDetails)
		r.Post("/customers/{id}/update-balance", h.UpdateBalance)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Delete("/customers/{id}", h.DeleteCustomer)
	})

	// Retail debtor routes
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuth())
		r.Get("/debtors", h.ListDebtors)
		r.Get("/debtors/{id}", h.ShowDebtor)
		r.Post("/debtors/{id}/payments", h.RecordPayment)
	})
}
