package http

import (
	"net/http"
	"time"

	"splitledger/internal/auth"
	"splitledger/internal/events"
	"splitledger/internal/storage"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := s.repo.ListNotifications(r.Context(), actor, unreadOnly)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if notifications == nil {
		notifications = []storage.Notification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}

type markReadRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())

	var req markReadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := s.repo.MarkNotificationsRead(r.Context(), actor, req.IDs); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type syncResponse struct {
	Events []events.Event `json:"events"`
}

// handleSync is the long-poll endpoint. It blocks until something the user
// cares about changes or the poll timeout passes, then returns whatever
// events were collected. An empty list means "nothing happened, poll again".
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())

	ch, cancel := s.broker.Subscribe(string(actor))
	defer cancel()

	collected := []events.Event{}
	timeout := time.NewTimer(s.pollTimeout)
	defer timeout.Stop()

	select {
	case ev := <-ch:
		collected = append(collected, ev)
		// drain whatever arrived in the same instant
		for {
			select {
			case more := <-ch:
				collected = append(collected, more)
				continue
			default:
			}
			break
		}
	case <-timeout.C:
	case <-r.Context().Done():
		// client went away, nothing to send
		return
	}

	respondJSON(w, http.StatusOK, syncResponse{Events: collected})
}
