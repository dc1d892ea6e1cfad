// Package transcript persists completed chat exchanges to PocketBase
// through the shared service session.
package transcript

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pocketchat-dev/pocketchat/backend/internal/model/chat"
	"github.com/pocketchat-dev/pocketchat/backend/internal/pocketbase"
	"github.com/pocketchat-dev/pocketchat/backend/internal/session"
)

// Collection is the PocketBase collection receiving chat exchanges.
const Collection = "messages"

// Service writes one record per completed prompt/reply exchange. When the
// shared session is not authenticated (no service account configured, or
// its token lapsed) saving becomes a no-op rather than an error: history is
// an amenity, not part of the chat contract.
type Service struct {
	accessor *session.Accessor
}

// NewService wraps the accessor owning the shared client.
func NewService(accessor *session.Accessor) *Service {
	return &Service{accessor: accessor}
}

// Save records the final user prompt and the assistant reply under the
// given conversation id, minting one when empty. It returns the
// conversation id actually used.
func (s *Service) Save(ctx context.Context, conversationID string, req chat.Request, reply string) (string, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	client := s.accessor.Shared()
	if !session.IsAuthenticated(client) {
		log.Debug().Str("conversation", conversationID).Msg("transcript: shared session not authenticated, skipping save")
		return conversationID, nil
	}

	fields := map[string]any{
		"conversation": conversationID,
		"prompt":       lastUserContent(req),
		"reply":        reply,
	}

	if _, err := client.Create(ctx, Collection, fields); err != nil {
		return conversationID, err
	}
	return conversationID, nil
}

// Client exposes the shared handle, mostly for startup wiring.
func (s *Service) Client() *pocketbase.Client {
	return s.accessor.Shared()
}

func lastUserContent(req chat.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
