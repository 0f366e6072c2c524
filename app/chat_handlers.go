package riverchat

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/router"
)

type ChatHandler struct {
	gateway *Gateway
}

func NewChatHandler(gateway *Gateway) *ChatHandler {
	return &ChatHandler{gateway: gateway}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.NewValidationError("malformed request body")
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError("%s must be a positive integer", name)
	}
	return id, nil
}

// intQuery returns 0 when the parameter is absent.
func intQuery(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, core.NewValidationError("%s must be a positive integer", name)
	}
	return n, nil
}

func (h *ChatHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	query := r.URL.Query()

	filter := core.RoomFilter{Type: core.RoomType(query.Get("type"))}
	if active := query.Get("active"); active != "" {
		activeOnly, err := strconv.ParseBool(active)
		if err != nil {
			return core.NewValidationError("active must be a boolean")
		}
		filter.IncludeInactive = !activeOnly
	}

	rooms, err := h.gateway.ListRooms(r.Context(), session.Principal, filter)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, rooms)
}

func (h *ChatHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	roomID, err := int64Param(r, "roomID")
	if err != nil {
		return err
	}

	room, err := h.gateway.GetRoom(r.Context(), session.Principal, roomID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, room)
}

func (h *ChatHandler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload core.RoomCreateInput
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	room, err := h.gateway.CreateRoom(r.Context(), session.Principal, payload)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, room)
}

type SetRoomActivePayload struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *ChatHandler) SetRoomActiveHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	roomID, err := int64Param(r, "roomID")
	if err != nil {
		return err
	}
	var payload SetRoomActivePayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}
	if err := validateInput(payload); err != nil {
		return err
	}

	room, err := h.gateway.SetRoomActive(r.Context(), session.Principal, roomID, *payload.Active)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, room)
}

func (h *ChatHandler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	roomID, err := int64Param(r, "roomID")
	if err != nil {
		return err
	}

	room, err := h.gateway.JoinRoom(r.Context(), session.Principal, roomID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, room)
}

func (h *ChatHandler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	roomID, err := int64Param(r, "roomID")
	if err != nil {
		return err
	}

	room, err := h.gateway.LeaveRoom(r.Context(), session.Principal, roomID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, room)
}

func (h *ChatHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	q := core.MessageQuery{
		Room:   chi.URLParam(r, "roomName"),
		Viewer: session.Principal,
	}

	var err error
	if q.Page, err = intQuery(r, "page"); err != nil {
		return err
	}
	if q.Limit, err = intQuery(r, "limit"); err != nil {
		return err
	}
	if before := r.URL.Query().Get("before"); before != "" {
		t, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return core.NewValidationError("before must be an RFC 3339 timestamp")
		}
		q.Before = &t
	}

	page, err := h.gateway.ListMessages(r.Context(), q)
	if err != nil {
		return err
	}
	return router.Paginated(w, page.Messages, router.NewPagination(page.Page, page.Limit, page.Total))
}

type SendMessagePayload struct {
	Body    string           `json:"body"`
	Type    core.MessageType `json:"message_type"`
	ReplyTo *int64           `json:"reply_to"`
}

func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload SendMessagePayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	msg, err := h.gateway.SendMessage(r.Context(), session.Principal, core.MessageCreateInput{
		Room:    chi.URLParam(r, "roomName"),
		Body:    payload.Body,
		Type:    payload.Type,
		ReplyTo: payload.ReplyTo,
	})
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, msg)
}

type EditMessagePayload struct {
	Body string `json:"body"`
}

func (h *ChatHandler) EditMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	id, err := int64Param(r, "messageID")
	if err != nil {
		return err
	}
	var payload EditMessagePayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	msg, err := h.gateway.EditMessage(r.Context(), session.Principal, id, payload.Body)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	id, err := int64Param(r, "messageID")
	if err != nil {
		return err
	}

	if err := h.gateway.DeleteMessage(r.Context(), session.Principal, id); err != nil {
		return err
	}
	return router.Message(w, http.StatusOK, "message deleted")
}

type ToggleReactionPayload struct {
	Emoji string `json:"emoji"`
}

func (h *ChatHandler) ToggleReactionHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	id, err := int64Param(r, "messageID")
	if err != nil {
		return err
	}
	var payload ToggleReactionPayload
	if err := decodeBody(r, &payload); err != nil {
		return err
	}

	msg, err := h.gateway.ToggleReaction(r.Context(), session.Principal, id, payload.Emoji)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, msg)
}
