package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"trainer-chat/auth"
	"trainer-chat/errors"
	"trainer-chat/runtime"
	"trainer-chat/services"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	maxBodySize                 = 64 << 10
	DefaultConnectionBufferSize = 64
)

type Handler struct {
	log                  *slog.Logger
	messaging            *services.MessagingService
	chatList             *services.ChatListAggregator
	syncChannel          *runtime.SyncChannel
	registry             *runtime.Registry
	upgrader             websocket.Upgrader
	connectionBufferSize int

	streams     sync.WaitGroup
	mu          sync.Mutex
	connections map[string]*connection
}

func NewHandler(log *slog.Logger, messaging *services.MessagingService, chatList *services.ChatListAggregator,
	syncChannel *runtime.SyncChannel, registry *runtime.Registry, connectionBufferSize int) *Handler {
	if connectionBufferSize <= 0 {
		connectionBufferSize = DefaultConnectionBufferSize
	}
	return &Handler{
		log:         log,
		messaging:   messaging,
		chatList:    chatList,
		syncChannel: syncChannel,
		registry:    registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Requests are authenticated by token, not by cookie
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connectionBufferSize: connectionBufferSize,
		connections:          make(map[string]*connection),
	}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principalAndPeer reads the authenticated caller and the peer path parameter.
func principalAndPeer(r *http.Request) (string, string, error) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return "", "", errors.ErrMissingToken
	}
	peerID := chi.URLParam(r, "peerID")
	if err := auth.ValidatePrincipalID(peerID); err != nil {
		return "", "", err
	}
	return principal, peerID, nil
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	principal, peerID, err := principalAndPeer(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body sendRequest
	if err = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		writeError(w, h.log, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	result, err := h.messaging.SendMessage(r.Context(), principal, peerID, body.Text)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{
		ID:               result.MessageID,
		Conversation:     result.ConversationKey.String(),
		IsTrainerMessage: result.Role.IsTrainer(),
	})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	principal, peerID, err := principalAndPeer(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	conv, err := h.messaging.Conversation(r.Context(), principal, peerID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationDTO(conv))
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	principal, peerID, err := principalAndPeer(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	messages, err := h.messaging.Messages(r.Context(), principal, peerID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageDTOs(messages))
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, peerID, err := principalAndPeer(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	marked, err := h.messaging.MarkRead(r.Context(), principal, peerID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Marked: marked})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.log, errors.ErrMissingToken)
		return
	}
	entries, err := h.chatList.ListConversations(r.Context(), principal)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatListDTOs(entries))
}
