package handlers

import (
	"encoding/json"
	"net/http"

	"task-market/internal/model"
	"task-market/internal/service"
)

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var input service.UserInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid input")
		return
	}
	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.Users.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type statusRequest struct {
	Status model.UserStatus `json:"status"`
}

func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid input")
		return
	}
	if err := h.Users.SetStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "user status updated")
}
