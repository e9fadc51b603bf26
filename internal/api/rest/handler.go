// Package rest serves the ledger over JSON/HTTP with chi.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/equalsplit/internal/auth"
	"github.com/mmynk/equalsplit/internal/middleware"
	"github.com/mmynk/equalsplit/internal/service"
)

// Handler adapts the services to HTTP.
type Handler struct {
	ledger *service.LedgerService
	groups *service.GroupService
}

// NewHandler creates a Handler.
func NewHandler(ledger *service.LedgerService, groups *service.GroupService) *Handler {
	return &Handler{ledger: ledger, groups: groups}
}

// Routes returns the API router. Every route requires a bearer token.
func (h *Handler) Routes(jwtManager *auth.JWTManager) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(jwtManager, writeError))

	r.Route("/expenses", func(r chi.Router) {
		r.Post("/", h.addExpense)
		r.Get("/{expenseID}", h.getExpense)
		r.Delete("/{expenseID}", h.deleteExpense)
	})

	r.Route("/settlements", func(r chi.Router) {
		r.Post("/", h.recordSettlement)
		r.Get("/", h.listSettlements)
	})

	r.Route("/groups", func(r chi.Router) {
		r.Post("/", h.createGroup)
		r.Get("/", h.listGroups)
		r.Get("/{groupID}", h.getGroup)
		r.Get("/{groupID}/balances", h.getBalances)
		r.Post("/{groupID}/members", h.addMember)
		r.Delete("/{groupID}/members/{userID}", h.removeMember)
	})

	r.Post("/users/me", h.registerMe)
	r.Get("/users/search", h.searchUsers)
	r.Get("/dashboard", h.dashboard)

	return r
}

func requester(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}
