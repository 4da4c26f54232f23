package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/worckguarddev/ton-trip-bonanza/internal/middleware"
	"github.com/worckguarddev/ton-trip-bonanza/internal/tracing"
)

type RouterOptions struct {
	Auth           middleware.AuthConfig
	IsAdmin        func(userID int64) bool
	AllowedOrigins string
}

func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing(tracing.ServiceName))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.InitDataHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(opts.Auth, h.logger))
		r.Use(middleware.RequestLogger(h.logger))

		r.Post("/launch", h.Launch)
		r.Get("/balance", h.GetBalance)
		r.Get("/ledger", h.GetLedger)
		r.Get("/referrals", h.GetReferrals)

		r.Get("/cards", h.ListCards)
		r.Post("/cards/{cardID}/purchase", h.PurchaseCard)

		r.Get("/me/cards", h.ListOwnedCards)
		r.Post("/me/cards/{ownershipID}/rent", h.RentCard)
		r.Post("/me/cards/{ownershipID}/withdraw", h.RequestWithdrawal)

		r.Post("/wallet", h.LinkWallet)
		r.Delete("/wallet", h.UnlinkWallet)

		r.Post("/topup/reference", h.TopUpReference)
		r.Post("/topup/confirm", h.ConfirmTopUp)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(opts.IsAdmin))

			r.Get("/cards", h.AdminListCards)
			r.Post("/cards", h.AdminCreateCard)
			r.Put("/cards/{cardID}", h.AdminUpdateCard)
			r.Delete("/cards/{cardID}", h.AdminDeleteCard)

			r.Get("/users", h.AdminListUsers)
			r.Post("/users/{userID}/balance", h.AdminAdjustBalance)

			r.Get("/withdrawals", h.AdminListWithdrawals)
			r.Post("/withdrawals/{ownershipID}/approve", h.AdminApproveWithdrawal)
			r.Post("/withdrawals/{ownershipID}/reject", h.AdminRejectWithdrawal)
		})
	})

	return r
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
