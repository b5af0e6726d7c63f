package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"splitledger/internal/amqp"
	"splitledger/internal/auth"
	"splitledger/internal/core"
	"splitledger/internal/events"
	"splitledger/internal/log"
)

type groupRequest struct {
	Name              string          `json:"name"`
	DefaultCurrencyID core.CurrencyID `json:"default_currency_id"`
	Simplified        bool            `json:"simplified"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusUnprocessableEntity, "group name is required")
		return
	}
	if req.DefaultCurrencyID == 0 {
		respondError(w, http.StatusUnprocessableEntity, "default currency is required")
		return
	}

	group := core.Group{
		Name:              req.Name,
		DefaultCurrencyID: req.DefaultCurrencyID,
		BalanceConfig:     core.BalanceConfig{Simplified: req.Simplified},
	}
	id, err := s.repo.CreateGroup(r.Context(), group, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	detailed, err := s.repo.GetGroup(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, detailed)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())

	groups, err := s.repo.ListGroupsForUser(r.Context(), actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if groups == nil {
		groups = []core.Group{}
	}
	respondJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	detailed, err := s.repo.GetGroup(r.Context(), groupID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detailed)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusUnprocessableEntity, "group name is required")
		return
	}

	group := core.Group{
		ID:                groupID,
		Name:              req.Name,
		DefaultCurrencyID: req.DefaultCurrencyID,
		BalanceConfig:     core.BalanceConfig{Simplified: req.Simplified},
	}
	if err := s.repo.UpdateGroup(r.Context(), group); err != nil {
		respondServiceError(w, err)
		return
	}

	s.notifyGroup(r, groupID, "detail")
	respondJSON(w, http.StatusOK, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}

	detailed, err := s.repo.GetGroup(r.Context(), groupID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if detailed.Creator.ID != actor {
		respondError(w, http.StatusForbidden, "only the group creator can delete the group")
		return
	}

	if err := s.repo.DeleteGroup(r.Context(), groupID); err != nil {
		respondServiceError(w, err)
		return
	}
	s.ledger.InvalidateBalances(groupID)
	respondJSON(w, http.StatusNoContent, nil)
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}

	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	invitee, err := s.repo.GetUserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.repo.AddMember(r.Context(), groupID, invitee.ID, core.StatusPending); err != nil {
		respondServiceError(w, err)
		return
	}

	msg := amqp.NewActivityMessage(groupID, string(actor), amqp.ActionMemberInvited, 0)
	msg.TargetID = string(invitee.ID)
	s.publishActivity(r, msg)
	s.broker.Publish(events.Event{Kind: events.KindNotification, Timestamp: time.Now()}, string(invitee.ID))

	respondJSON(w, http.StatusCreated, core.Membership{User: invitee.User, Status: core.StatusPending})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}

	if err := s.repo.UpdateMembershipStatus(r.Context(), groupID, actor, core.StatusJoined); err != nil {
		respondServiceError(w, err)
		return
	}

	// the member set changed, cached balances are stale
	s.ledger.InvalidateBalances(groupID)
	s.publishActivity(r, amqp.NewActivityMessage(groupID, string(actor), amqp.ActionMemberJoined, 0))
	s.notifyGroup(r, groupID, "members")

	respondJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusJoined)})
}

func (s *Server) handleRejectInvite(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, false)
	if !ok {
		return
	}

	if err := s.repo.UpdateMembershipStatus(r.Context(), groupID, actor, core.StatusRejected); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusRejected)})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.UserID(r.Context())
	groupID, ok := s.groupFromPath(w, r, true)
	if !ok {
		return
	}
	target := core.UserID(chi.URLParam(r, "userID"))

	if target != actor {
		detailed, err := s.repo.GetGroup(r.Context(), groupID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if detailed.Creator.ID != actor {
			respondError(w, http.StatusForbidden, "only the group creator can remove other members")
			return
		}
	}

	if err := s.repo.RemoveMember(r.Context(), groupID, target); err != nil {
		respondServiceError(w, err)
		return
	}

	s.ledger.InvalidateBalances(groupID)
	s.notifyGroup(r, groupID, "members")
	respondJSON(w, http.StatusNoContent, nil)
}

// groupFromPath parses the group id and, when requireMember is set, checks
// that the caller is a joined member.
func (s *Server) groupFromPath(w http.ResponseWriter, r *http.Request, requireMember bool) (int64, bool) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || groupID < 1 {
		respondError(w, http.StatusBadRequest, "invalid group id")
		return 0, false
	}

	if requireMember {
		actor, _ := auth.UserID(r.Context())
		joined, err := s.repo.IsJoinedMember(r.Context(), groupID, actor)
		if err != nil {
			respondServiceError(w, err)
			return 0, false
		}
		if !joined {
			respondError(w, http.StatusForbidden, "not a member of this group")
			return 0, false
		}
	}
	return groupID, true
}

func (s *Server) publishActivity(r *http.Request, msg *amqp.ActivityMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActivity(r.Context(), msg); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to publish activity message",
			log.FieldGroupID, msg.GroupID,
			log.FieldAction, msg.Action,
			log.FieldError, err)
	}
}

// notifyGroup wakes the long-poll subscriptions of every joined member.
func (s *Server) notifyGroup(r *http.Request, groupID int64, field string) {
	members, err := s.repo.JoinedMemberIDs(r.Context(), groupID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to resolve members for event fan-out",
			log.FieldGroupID, groupID, log.FieldError, err)
		return
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = string(m)
	}
	s.broker.Publish(events.Event{
		Kind:      events.KindGroup,
		GroupID:   groupID,
		Field:     field,
		Timestamp: time.Now(),
	}, ids...)
}
