package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"task-market/internal/model"
	"task-market/internal/service"
)

type lifecycle interface {
	Create(ctx context.Context, ownerID uint, input service.TaskInput) (*model.Task, error)
	Accept(ctx context.Context, taskID, userID uint) (*model.Task, error)
	RequestMarkDone(ctx context.Context, taskID, userID uint) (*model.Task, error)
	ConfirmDone(ctx context.Context, taskID, userID uint) (*model.Task, error)
	Update(ctx context.Context, taskID, userID uint, input service.TaskInput) (*model.Task, error)
	Delete(ctx context.Context, taskID, userID uint) error
	DeactivateAs(ctx context.Context, taskID, userID uint) (bool, error)
	ActivateAs(ctx context.Context, taskID, userID uint) (bool, error)
	Get(ctx context.Context, taskID uint) (*model.Task, error)
	ListAll(ctx context.Context) ([]model.Task, error)
	ListByStatus(ctx context.Context, status model.TaskStatus) ([]model.Task, error)
	ListByActive(ctx context.Context, flag model.ActiveStatus) ([]model.Task, error)
	ListOwnedBy(ctx context.Context, userID uint) ([]model.Task, error)
	ListAcceptedBy(ctx context.Context, userID uint) ([]model.Task, error)
	ListPendingVerificationFor(ctx context.Context, userID uint) ([]model.Task, error)
	ListHistory(ctx context.Context, userID uint) ([]model.Task, error)
}

type userDirectory interface {
	Resolve(ctx context.Context, id uint) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Register(ctx context.Context, input service.UserInput) (*model.User, error)
	SetStatus(ctx context.Context, id uint, status model.UserStatus) error
}

type inbox interface {
	ListForUser(ctx context.Context, userID uint) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userID uint) error
	Clear(ctx context.Context, userID, id uint) error
}

type Handler struct {
	Tasks         lifecycle
	Users         userDirectory
	Notifications inbox
}

func NewHandler(tasks lifecycle, users userDirectory, notifications inbox) *Handler {
	return &Handler{
		Tasks:         tasks,
		Users:         users,
		Notifications: notifications,
	}
}

type ctxKey string

const contextUserID ctxKey = "user_id"

// HeaderUserID carries the caller identity established by the upstream gateway.
const HeaderUserID = "X-User-ID"

// CallerMiddleware rejects requests without a numeric caller identity.
func (h *Handler) CallerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || id == 0 {
			writeMessage(w, http.StatusUnauthorized, "missing or invalid "+HeaderUserID+" header")
			return
		}
		ctx := context.WithValue(r.Context(), contextUserID, uint(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) uint {
	id, _ := r.Context().Value(contextUserID).(uint)
	return id
}

func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps the lifecycle error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[http] internal error: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
