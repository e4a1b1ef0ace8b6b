package handlers

import "net/http"

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.Notifications.ListForUser(r.Context(), callerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkAllRead(r.Context(), callerID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "notifications marked as read")
}

func (h *Handler) ClearNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.Notifications.Clear(r.Context(), callerID(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
