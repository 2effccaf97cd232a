package api

import (
	"context"
	"encoding/json"
	"net/http"

	"trainer-chat/auth"
	"trainer-chat/domain"
	"trainer-chat/errors"
	"trainer-chat/observability"
	"trainer-chat/runtime"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Stream upgrades to a websocket that carries live conversation snapshots.
// The client subscribes with {"type":"subscribe","peerId":"..."} frames; on
// /conversations/{peerID}/stream the path peer is subscribed on connect.
// Subscribing again to the same peer replaces the previous subscription.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.log, errors.ErrMissingToken)
		return
	}
	initialPeer := chi.URLParam(r, "peerID")
	if initialPeer != "" {
		if err := auth.ValidatePrincipalID(initialPeer); err != nil {
			writeError(w, h.log, err)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		h.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	conn := newConnection(principal, ws, h.connectionBufferSize)
	h.track(conn)
	defer h.untrack(conn)
	conn.start()
	observability.OpenSockets.Inc()
	h.log.Debug("Websocket opened", "connection", conn.id, "principal", principal)

	// Only this goroutine subscribes, so subs needs no lock
	var subs []*runtime.Subscription
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.close(websocket.CloseNormalClosure, "session closed")
		h.registry.DetachConsumer(conn.id)
		for _, sub := range subs {
			<-sub.Done()
		}
		observability.OpenSockets.Dec()
		h.log.Debug("Websocket closed", "connection", conn.id)
	}()

	if initialPeer != "" {
		subs = h.subscribe(ctx, conn, initialPeer, subs)
	}

	err = conn.readLoop(func(data []byte) {
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.sendJSON(errorFrame{Type: frameError, Kind: string(errors.KindInvalidArgument)})
			return
		}
		switch frame.Type {
		case frameSubscribe:
			subs = h.subscribe(ctx, conn, frame.PeerID, subs)
		case frameUnsubscribe:
			if key, err := domain.DeriveKey(conn.principalID, frame.PeerID); err == nil {
				h.registry.Detach(conn.id, key)
			}
		default:
			_ = conn.sendJSON(errorFrame{Type: frameError, Kind: string(errors.KindInvalidArgument)})
		}
	})
	if err != nil {
		h.log.Debug("Websocket read failed", "connection", conn.id, "error", err)
	}
}

// subscribe attaches a subscription on the conversation with peerID and
// returns subs with it appended.
func (h *Handler) subscribe(ctx context.Context, conn *connection, peerID string,
	subs []*runtime.Subscription) []*runtime.Subscription {
	if err := auth.ValidatePrincipalID(peerID); err != nil {
		_ = conn.sendJSON(errorFrame{Type: frameError, Kind: string(errors.KindOf(err))})
		return subs
	}
	key, err := domain.DeriveKey(conn.principalID, peerID)
	if err != nil {
		_ = conn.sendJSON(errorFrame{Type: frameError, Kind: string(errors.KindOf(err))})
		return subs
	}

	var sub *runtime.Subscription
	h.registry.Replace(conn.id, key, func() runtime.Canceler {
		sub = h.syncChannel.Subscribe(ctx, conn.principalID, key,
			func(messages []domain.Message) {
				_ = conn.sendJSON(snapshotFrame{Type: frameSnapshot, Conversation: key.String(), Messages: toMessageDTOs(messages)})
			},
			func(kind errors.Kind) {
				_ = conn.sendJSON(errorFrame{Type: frameError, Conversation: key.String(), Kind: string(kind)})
			})
		return sub
	})
	h.log.Debug("Subscribed", "connection", conn.id, "conversation", key, "subscriptions", h.registry.Count(conn.id))

	// Replaced subscriptions have exited, forget them
	live := lo.Reject(subs, func(s *runtime.Subscription, _ int) bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	})
	return append(live, sub)
}

func (h *Handler) track(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams.Add(1)
	h.connections[conn.id] = conn
}

func (h *Handler) untrack(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn.id)
	h.streams.Done()
}

// CloseStreams closes every open websocket and waits for their subscriptions
// to be cancelled. http.Server.Shutdown does not wait for hijacked connections,
// so this must run before the store is closed.
func (h *Handler) CloseStreams() {
	h.mu.Lock()
	for _, conn := range h.connections {
		conn.close(websocket.CloseGoingAway, "server shutting down")
	}
	h.mu.Unlock()
	h.streams.Wait()
}
