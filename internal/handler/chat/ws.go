package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	chatmodel "github.com/pocketchat-dev/pocketchat/backend/internal/model/chat"
	"github.com/pocketchat-dev/pocketchat/backend/internal/service/llm"
	"github.com/pocketchat-dev/pocketchat/backend/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsRequest is one inbound completion request frame.
type wsRequest struct {
	Messages       []chatmodel.Message `json:"messages"`
	Model          string              `json:"model,omitempty"`
	ConversationID string              `json:"conversationId,omitempty"`
}

// handleChatWS relays completions over a duplex websocket. Each inbound
// frame triggers one completion; fragments go out as StreamChunk frames
// sharing a minted message id, terminated by a done frame.
func (h *Handler) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if h.chatSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("[chat] websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[chat] websocket closed unexpectedly")
			}
			return
		}

		h.serveExchange(ctx, conn, req)

		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Handler) serveExchange(ctx context.Context, conn *websocket.Conn, req wsRequest) {
	messageID := uuid.NewString()
	chatReq := chatmodel.Request{Messages: req.Messages, Model: req.Model}

	if err := chatReq.Validate(); err != nil {
		h.writeChunk(conn, chatmodel.StreamChunk{MessageID: messageID, Error: err.Error(), Done: true})
		return
	}

	full, err := h.chatSvc.Stream(ctx, chatReq, func(delta string) error {
		return conn.WriteJSON(chatmodel.StreamChunk{MessageID: messageID, Delta: delta})
	})
	if err != nil {
		if chatmodel.IsValidationError(err) {
			h.writeChunk(conn, chatmodel.StreamChunk{MessageID: messageID, Error: err.Error(), Done: true})
			return
		}
		log.Error().Err(err).Str("message_id", messageID).Msg("[chat] websocket stream failed")
		h.writeChunk(conn, chatmodel.StreamChunk{MessageID: messageID, Error: llm.ErrUpstream.Error(), Done: true})
		return
	}

	h.writeChunk(conn, chatmodel.StreamChunk{MessageID: messageID, Done: true})

	if h.transcripts != nil && full != "" {
		if _, err := h.transcripts.Save(ctx, req.ConversationID, chatReq, full); err != nil {
			log.Warn().Err(err).Msg("[chat] transcript save failed")
		}
	}
}

func (h *Handler) writeChunk(conn *websocket.Conn, chunk chatmodel.StreamChunk) {
	if err := conn.WriteJSON(chunk); err != nil {
		data, _ := json.Marshal(chunk)
		log.Debug().Err(err).RawJSON("chunk", data).Msg("[chat] websocket write failed")
	}
}
