/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the cashier frontend

ROUTE GROUPS:
  /api/people/*         People, purchases, special transactions
  /api/products/*       Catalog, lookup, search
  /api/import/*         CSV imports
  /api/settlement/*     End-of-period settlement
  /api/backup, /restore Full-state bundle
  /api/branding         Organisation branding
  /api/reports/{kind}   CSV/XLSX downloads
  /api/scenarios/*      Demo data
  /*                    Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present, falling back to
  index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/canteen-ledger/config"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = config.DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/people", func(r chi.Router) {
			r.Get("/", h.ListPeople)
			r.Post("/", h.CreatePerson)
			r.Get("/{id}", h.GetPerson)
			r.Patch("/{id}", h.UpdatePerson)
			r.Delete("/{id}", h.DeletePerson)

			r.Post("/{id}/cart/quote", h.QuoteCart)
			r.Post("/{id}/purchases", h.CreatePurchase)
			r.Delete("/{id}/purchases/{purchaseID}", h.DeletePurchase)
			r.Delete("/{id}/purchases/{purchaseID}/items/{productID}", h.DeletePurchaseItem)
			r.Put("/{id}/purchases/{purchaseID}/items/{productID}", h.SetPurchaseItemQuantity)
			r.Post("/{id}/withdrawals", h.CreateWithdrawal)
			r.Post("/{id}/offers", h.CreateOffer)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/lookup", h.LookupProduct)
			r.Get("/search", h.SearchProducts)
			r.Get("/{id}", h.GetProduct)
			r.Patch("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/import", func(r chi.Router) {
			r.Post("/products", h.ImportProducts)
			r.Post("/people", h.ImportPeople)
		})

		r.Route("/settlement", func(r chi.Router) {
			r.Get("/", h.GetSettlement)
			r.Post("/", h.Settle)
			r.Get("/history", h.ListSettlements)
		})

		r.Get("/backup", h.Backup)
		r.Post("/restore", h.Restore)

		r.Get("/branding", h.GetBranding)
		r.Put("/branding", h.UpdateBranding)

		r.Get("/reports/{kind}", h.GetReport)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Serve static files (frontend)
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Cantina</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Cantina API</h1>
<p>The frontend is not built. The API is available under /api.</p>
<ul>
<li><a href="/api/people">/api/people</a> - List people</li>
<li><a href="/api/products">/api/products</a> - List products</li>
<li><a href="/api/settlement">/api/settlement</a> - Settlement summary</li>
<li><a href="/api/scenarios">/api/scenarios</a> - List demo scenarios</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}
