package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"task-market/internal/model"
	"task-market/internal/service"
)

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []model.Task
		err   error
	)
	switch status, active := r.URL.Query().Get("status"), r.URL.Query().Get("active"); {
	case status != "":
		tasks, err = h.Tasks.ListByStatus(r.Context(), model.TaskStatus(status))
	case active != "":
		tasks, err = h.Tasks.ListByActive(r.Context(), model.ActiveStatus(active))
	default:
		tasks, err = h.Tasks.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := h.Tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) ListPosted(w http.ResponseWriter, r *http.Request) {
	h.listForCaller(w, r, h.Tasks.ListOwnedBy)
}

func (h *Handler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	h.listForCaller(w, r, h.Tasks.ListAcceptedBy)
}

func (h *Handler) ListPendingVerification(w http.ResponseWriter, r *http.Request) {
	h.listForCaller(w, r, h.Tasks.ListPendingVerificationFor)
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	h.listForCaller(w, r, h.Tasks.ListHistory)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var input service.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid input")
		return
	}
	task, err := h.Tasks.Create(r.Context(), callerID(r), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) AcceptTask(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.Accept)
}

func (h *Handler) RequestDone(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.RequestMarkDone)
}

func (h *Handler) ConfirmDone(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Tasks.ConfirmDone)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var input service.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid input")
		return
	}
	task, err := h.Tasks.Update(r.Context(), id, callerID(r), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err := h.Tasks.Delete(r.Context(), id, callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateTask(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Tasks.DeactivateAs, "task deactivated successfully")
}

func (h *Handler) ActivateTask(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Tasks.ActivateAs, "task activated successfully")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, taskID, userID uint) (*model.Task, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := op(r.Context(), id, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, taskID, userID uint) (bool, error), message string) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid task id")
		return
	}
	found, err := op(r.Context(), id, callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeMessage(w, http.StatusNotFound, "task not found")
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) listForCaller(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, userID uint) ([]model.Task, error)) {
	tasks, err := list(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
