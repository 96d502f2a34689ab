package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"smartsolve/auth"
	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())

		var req SendMessageRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		msg, outcome, err := s.messaging.SendMessage(r.Context(), userID, domain.UserID(req.Receiver), req.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, SendMessageResponse{Message: ToMessageDTO(msg), Delivery: string(outcome.Status)}, http.StatusCreated, nil)
	}
}

func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())

		messages, err := s.messaging.GetConversation(r.Context(), userID, domain.UserID(mux.Vars(r)["withUser"]))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, ToMessageDTOs(messages), http.StatusOK, nil)
	}
}

func (s *Server) HandleMarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "messageId")
		if err != nil {
			s.fail(w, r, err)
			return
		}

		msg, err := s.messaging.MarkMessageRead(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, ToMessageDTO(msg), http.StatusOK, nil)
	}
}

func (s *Server) HandleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())
		id, err := pathUUID(r, "messageId")
		if err != nil {
			s.fail(w, r, err)
			return
		}

		msg, err := s.messaging.DeleteMessage(r.Context(), id, userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, ToMessageDTO(msg), http.StatusOK, nil)
	}
}

func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())

		count, err := s.messaging.UnreadCount(r.Context(), userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, map[string]int{"count": count}, http.StatusOK, nil)
	}
}

func (s *Server) HandlePendingNotifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())

		pending, err := s.notifications.PendingNotifications(r.Context(), userID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, ToNotificationDTOs(pending), http.StatusOK, nil)
	}
}

func (s *Server) HandleAcknowledge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserFrom(r.Context())
		id, err := pathUUID(r, "id")
		if err != nil {
			s.fail(w, r, err)
			return
		}

		n, err := s.notifications.AcknowledgeNotification(r.Context(), userID, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, ToNotificationDTO(n), http.StatusOK, nil)
	}
}

// HandleBroadcast is the producer entry point of the notification fan-out.
func (s *Server) HandleBroadcast() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BroadcastRequest
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		targets := lo.Map(req.Targets, func(t string, _ int) domain.UserID { return domain.UserID(t) })
		notifications, err := s.notifications.NotifyMany(r.Context(), targets, domain.EventType(req.Type), req.Payload)
		if err != nil && len(notifications) == 0 {
			s.fail(w, r, err)
			return
		}
		if err != nil {
			s.log.Warn("Broadcast partially failed", "targets", len(targets), "created", len(notifications), "error", err)
		}
		s.respond(w, ToNotificationDTOs(notifications), http.StatusAccepted, nil)
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body", errors.ErrInvalidContent)
	}
	return checkStruct(s.validate, dst)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid identifier", errors.ErrNotFound, name)
	}
	return id, nil
}
