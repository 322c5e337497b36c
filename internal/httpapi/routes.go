package httpapi

import "github.com/go-chi/chi/v5"

func registerRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/lead-sources/{slug}/uploads", h.StageCSV)

		r.Post("/candidates/{candidateID}/approve", h.ApproveCandidate)
		r.Post("/candidates/{candidateID}/reject", h.RejectCandidate)

		r.Post("/runs/transformer", h.RunTransformer)
		r.Post("/runs/matcher", h.RunMatcher)
		r.Post("/runs/embeddings", h.RunEmbeddings)
		r.Post("/runs/crm-sync", h.RunCrmSync)
	})
}
