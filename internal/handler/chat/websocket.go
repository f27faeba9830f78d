package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// handleWebSocket relays every inbound ChatRequest over one connection. Browsers cannot
// set headers on the handshake, so the token may arrive as ?access_token=.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.identify(r)
	if err != nil {
		status, message := auth.StatusFor(err)
		utils.RespondError(w, status, message)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := h.logger.WithFields(logrus.Fields{
		"remote": ClientKey(r),
		"user":   user.ID,
	})
	log.Info("websocket connected")

	conn.SetReadLimit(maxBodyBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.pingLoop(ctx, conn)

	sink := stream.NewWSSink(conn, h.writeWait)
	key := ClientKey(r)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var body ChatRequest
		if err := conn.ReadJSON(&body); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket read error")
			}
			log.Info("websocket closed")
			return
		}

		if h.limiter != nil && !h.limiter.Allow(key) {
			if err := sink.Send(stream.ErrorEvent(rateLimitedMessage)); err != nil {
				return
			}
			continue
		}

		req, err := Validate(body, h.personas)
		if err == nil && req.ConversationID != "" && user.ID == "" {
			err = errors.New("대화를 저장하려면 로그인이 필요합니다.")
		}
		if err == nil && !h.relay.Enabled() {
			err = errors.New("AI 서비스가 설정되지 않았습니다.")
		}
		if err != nil {
			if sendErr := sink.Send(stream.ErrorEvent(clientMessage(err))); sendErr != nil {
				return
			}
			continue
		}

		req.UserID = user.ID
		if result := h.relay.Stream(ctx, sink, req); result.State == stream.StateAborted {
			log.WithError(result.Err).Info("websocket client went away mid-stream")
			return
		}
	}
}

// identify resolves the caller for the handshake. A missing or bad token is only an
// error when authentication is required.
func (h *Handler) identify(r *http.Request) (auth.User, error) {
	if auth.BearerToken(r) == "" && !h.requireAuth {
		return auth.User{}, nil
	}
	user, err := h.auth.Authenticate(r)
	if err != nil {
		if h.requireAuth {
			return auth.User{}, err
		}
		h.logger.WithError(err).Debug("ignoring unverifiable websocket token")
		return auth.User{}, nil
	}
	return user, nil
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		}
	}
}

func clientMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}
