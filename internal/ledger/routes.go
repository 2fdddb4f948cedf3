package ledger

import "github.com/go-chi/chi/v5"

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups", h.handleListGroups)
	r.Post("/groups", h.handlePostGroup)
	r.Get("/groups/{id}", h.handleGetGroup)
	r.Post("/transactions/{id}/reverse", h.handleReverse)
	r.Patch("/transactions/{id}", h.handleUpdateMetadata)
	r.Post("/transfers", h.handleTransfer)
}
