package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router exposes the lifecycle operations over HTTP.
func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	})

	router.Get("/users", h.ListUsers)
	router.Post("/users", h.RegisterUser)
	router.Get("/users/{id}", h.GetUser)
	router.Put("/users/{id}/status", h.SetUserStatus)

	router.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Get("/{id}", h.GetTask)

		r.Group(func(r chi.Router) {
			r.Use(h.CallerMiddleware)
			r.Get("/posted", h.ListPosted)
			r.Get("/accepted", h.ListAccepted)
			r.Get("/pending-verification", h.ListPendingVerification)
			r.Get("/history", h.ListHistory)

			r.Post("/", h.CreateTask)
			r.Post("/{id}/accept", h.AcceptTask)
			r.Put("/{id}/request-done", h.RequestDone)
			r.Put("/{id}/confirm-done", h.ConfirmDone)
			r.Put("/{id}", h.UpdateTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Put("/{id}/deactivate", h.DeactivateTask)
			r.Put("/{id}/activate", h.ActivateTask)
		})
	})

	router.Route("/notifications", func(r chi.Router) {
		r.Use(h.CallerMiddleware)
		r.Get("/", h.ListNotifications)
		r.Put("/read", h.MarkNotificationsRead)
		r.Delete("/{id}", h.ClearNotification)
	})

	return router
}
