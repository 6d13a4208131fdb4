package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/smart-library/internal/web/handlers"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// staticJSON answers every request with the same JSON body.
func staticJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	authHandler := handlers.NewAuthHandler(s.config, s.sessionManager, s.lockout)
	usersHandler := handlers.NewUsersHandler(s.config, s.sessionManager)
	booksHandler := handlers.NewBooksHandler(s.config, s.sessionManager)
	loansHandler := handlers.NewLoansHandler(s.config, s.sessionManager, s.notifier)

	s.router.NotFound(staticJSON(http.StatusNotFound, `{"error":"not found"}`))
	s.router.MethodNotAllowed(staticJSON(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/config", configHandler.Get)

		// Registration and the two login steps
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/verify-face", authHandler.VerifyFace)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// Everything else requires a session that passed the face check
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Users
			r.Get("/users", usersHandler.List)
			r.Put("/users/me/descriptor", usersHandler.UpdateDescriptor)
			r.Get("/users/by-enrollment/{enrollmentId}", usersHandler.GetByEnrollment)
			r.Get("/users/{id}", usersHandler.Get)

			// Catalogue
			r.Get("/books", booksHandler.ListBooks)
			r.Post("/books", booksHandler.CreateBook)
			r.Get("/books/available", booksHandler.ListAvailable)
			r.Get("/books/by-barcode/{barcode}", booksHandler.GetBookByBarcode)
			r.Get("/books/{id}", booksHandler.GetBook)

			// Circulation
			r.Get("/loans", loansHandler.List)
			r.Post("/loans", loansHandler.Issue)
			r.Post("/loans/{id}/return", loansHandler.Return)
			r.Post("/loans/{id}/reissue", loansHandler.Reissue)
		})
	})
}
