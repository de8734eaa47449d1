package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/crowdsale-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса краудсейла.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/sale", h.GetStatus)
		r.Get("/sale/rate", h.GetRate)
		r.Get("/sale/goal", h.GetGoal)
		r.Get("/whitelist/{address}", h.GetWhitelisted)
		r.Get("/contributions/{address}", h.GetContribution)
		r.Get("/purchases/{address}", h.GetPurchases)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Post("/contributions", h.Contribute)
			r.Post("/contributions/{address}", h.BuyTokens)
			r.Post("/refunds", h.ClaimRefund)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/whitelist", h.AddToWhitelist)
				r.Delete("/whitelist/{address}", h.RemoveFromWhitelist)
				r.Post("/start", h.ownerAction("start crowdsale", h.service.StartCrowdsale))
				r.Post("/stop", h.ownerAction("stop crowdsale", h.service.StopCrowdsale))
				r.Post("/private-contribution", h.ChangePrivateContribution)
				r.Post("/release/enable", h.ownerAction("enable token release", h.service.EnableTokenRelease))
				r.Post("/release/disable", h.ownerAction("disable token release", h.service.DisableTokenRelease))
				r.Post("/release", h.ReleaseTokens)
				r.Post("/close", h.CloseSale)
				r.Post("/finalize", h.ownerAction("finalize", h.service.Finalize))
				r.Post("/ownership", h.TransferOwnership)
				r.Post("/vault/settle", h.ownerAction("enable settlement", h.service.EnableSettlement))
				r.Post("/vault/refunds", h.ownerAction("enable refunds", h.service.EnableRefunds))
				r.Post("/tokens", h.FundInventory)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
