package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatmodel "github.com/pocketchat-dev/pocketchat/backend/internal/model/chat"
	"github.com/pocketchat-dev/pocketchat/backend/internal/service/llm"
	"github.com/pocketchat-dev/pocketchat/backend/internal/service/transcript"
	"github.com/pocketchat-dev/pocketchat/backend/pkg/utils"
)

// Handler relays chat requests to the completion adapter.
type Handler struct {
	chatSvc     *llm.Service
	transcripts *transcript.Service
}

// New creates the chat handler. chatSvc may be nil when the completion
// endpoint is not configured; requests then fail with 503. transcripts may
// be nil to disable history persistence.
func New(chatSvc *llm.Service, transcripts *transcript.Service) *Handler {
	return &Handler{chatSvc: chatSvc, transcripts: transcripts}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/chat/sse", h.handleChatSSE)
	r.Get("/chat/ws", h.handleChatWS)
}

// handleChat streams the completion as a chunked text/plain body. The
// aggregated mode is used when streaming is disabled by configuration.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if !h.chatSvc.StreamingEnabled() {
		content, err := h.chatSvc.Complete(r.Context(), req)
		if err != nil {
			log.Error().Err(err).Msg("[chat] completion failed")
			utils.RespondError(w, http.StatusInternalServerError, llm.ErrUpstream.Error())
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(content))
		h.saveTranscript(r.Context(), req, content)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	full, err := h.chatSvc.Stream(r.Context(), req, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, werr := w.Write([]byte(delta)); werr != nil {
			return werr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("[chat] stream failed")
		if !started {
			utils.RespondError(w, http.StatusInternalServerError, llm.ErrUpstream.Error())
		}
		return
	}

	if !started {
		// Remote stream ended without emitting a single fragment.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}

	h.saveTranscript(r.Context(), req, full)
}

// sseFrame mirrors one relayed fragment on the SSE transport.
type sseFrame struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleChatSSE relays the completion as Server-Sent Events: one "delta"
// frame per fragment, a final "message" frame with the aggregate, then "end".
func (h *Handler) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	full, err := h.chatSvc.Stream(r.Context(), req, func(delta string) error {
		utils.SendSSEChunk(w, flusher, sseFrame{Event: "delta", Content: delta})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("[chat] sse stream failed")
		utils.SendSSEChunk(w, flusher, sseFrame{Event: "error", Error: llm.ErrUpstream.Error()})
		return
	}

	utils.SendSSEChunk(w, flusher, sseFrame{Event: "message", Content: full})
	utils.SendSSEChunk(w, flusher, sseFrame{Event: "end", Finished: true})

	h.saveTranscript(r.Context(), req, full)
}

// decodeRequest parses and validates the request body, writing the error
// response itself when the payload is rejected.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (chatmodel.Request, bool) {
	if h.chatSvc == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return chatmodel.Request{}, false
	}

	var req chatmodel.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return chatmodel.Request{}, false
	}

	if err := req.Validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return chatmodel.Request{}, false
	}

	return req, true
}

func (h *Handler) saveTranscript(ctx context.Context, req chatmodel.Request, reply string) {
	if h.transcripts == nil || reply == "" {
		return
	}

	// The request context is done once the response is written; the save
	// gets its own deadline-free context.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if _, err := h.transcripts.Save(ctx, "", req, reply); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("[chat] transcript save failed")
	}
}
