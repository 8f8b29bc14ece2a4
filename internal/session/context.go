package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superglue-ai/agent-runtime/internal/client"
)

// Message is one prior conversation turn. ToolOutputs holds the raw
// JSON outputs of operations that ran during the turn; drafts produced
// by build_tool live only inside these payloads.
type Message struct {
	Role        string            `json:"role"`
	Content     string            `json:"content,omitempty"`
	ToolOutputs []json.RawMessage `json:"toolOutputs,omitempty"`
}

// Context is the per-conversation state threaded through every
// operation. It is constructed per agent turn from durable session
// state and discarded after the turn; it never shares mutable state
// with another session's context.
type Context struct {
	SessionID   string
	WorkspaceID string

	// Files maps sanitized upload key to parsed file content. Read-only
	// to operations; populated by the upload path.
	Files map[string]any

	// Messages is the ordered prior conversation, oldest first.
	Messages []Message

	Client client.Client
	Drafts DraftStore

	Logger *zap.Logger

	// Notify is an optional progress sink surfaced in the UI.
	Notify func(msg string)
}

// Log sends a progress notification and mirrors it to the logger.
func (c *Context) Log(msg string) {
	if c.Notify != nil {
		c.Notify(msg)
	}
	if c.Logger != nil {
		c.Logger.Debug("session progress",
			zap.String("session_id", c.SessionID),
			zap.String("msg", msg),
		)
	}
}

// Draft is an unsaved tool configuration being iterated on.
type Draft struct {
	ID          string            `json:"draftId"`
	Config      client.ToolConfig `json:"config"`
	SystemIDs   []string          `json:"systemIds,omitempty"`
	Instruction string            `json:"instruction,omitempty"`
	CreatedAt   time.Time         `json:"createdAt,omitzero"`
}

// NewDraftID mints an identifier for a freshly built draft.
func NewDraftID() string {
	return "draft_" + uuid.New().String()
}

// FixDraftID mints an identifier for a draft seeded from a saved tool.
func FixDraftID(toolID string) string {
	return fmt.Sprintf("fix-%s-%d", toolID, time.Now().UnixMilli())
}

// DraftNotFoundError reports an unresolvable draft reference. Drafts
// expire with the session, so a missing draft is a normal condition the
// agent recovers from by rebuilding.
type DraftNotFoundError struct {
	DraftID string
}

func (e *DraftNotFoundError) Error() string {
	return fmt.Sprintf("draft %q not found in this conversation", e.DraftID)
}

func (e *DraftNotFoundError) Suggestion() string {
	return "the draft may have expired or the conversation history was pruned; rebuild it with build_tool"
}

// ResolveDraft looks a draft up in the store, falling back to a
// backward scan of the conversation history for the turn that produced
// it. A draft absent from both is a DraftNotFoundError, never a silent
// fallback.
func (c *Context) ResolveDraft(ctx context.Context, draftID string) (*Draft, error) {
	if c.Drafts != nil {
		d, err := c.Drafts.Get(ctx, c.SessionID, draftID)
		if err != nil {
			return nil, fmt.Errorf("ResolveDraft: %w", err)
		}
		if d != nil {
			return d, nil
		}
	}

	if d := scanHistory(c.Messages, draftID); d != nil {
		return d, nil
	}
	return nil, &DraftNotFoundError{DraftID: draftID}
}

// scanHistory walks the conversation backward looking for the tool
// output that embedded the draft. Most recent turn wins.
func scanHistory(messages []Message, draftID string) *Draft {
	for i := len(messages) - 1; i >= 0; i-- {
		for _, raw := range messages[i].ToolOutputs {
			var d Draft
			if err := json.Unmarshal(raw, &d); err != nil {
				continue
			}
			if d.ID == draftID {
				return &d
			}
		}
	}
	return nil
}
