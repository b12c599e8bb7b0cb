package notify

import (
	"context"
	"log"
)

// Role classifies an outstanding message the service owns in a conversation.
type Role string

const (
	RoleQuestionPrompt  Role = "question-prompt"
	RoleSummary         Role = "summary"
	RoleResult          Role = "result"
	RoleStaffReviewCard Role = "staff-review-card"

	// RoleTranscript marks one-off transcript deliveries. These are ordinary
	// messages owned by the recipient, never tracked in the ledger.
	RoleTranscript Role = "transcript"
)

// MessageRef identifies one message the service owns in a conversation. The
// handle is assigned by the transport collaborator and is opaque here.
// ApplicationID ties the ref to the application it was sent for; callers fill
// it in before handing the ref to the ledger.
type MessageRef struct {
	ConversationID string
	Handle         string
	Role           Role
	ApplicationID  string
}

// Dispatcher is the outbound message boundary. Implementations adapt a real
// transport (applicant DMs, the staff channel); the core only emits intents
// through this interface and never depends on delivery succeeding.
//
// Delete and DeleteMany are best-effort: an already-deleted message or a
// revoked permission is not an error the caller can act on.
type Dispatcher interface {
	Send(ctx context.Context, conversationID string, role Role, content string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, content string) error
	Delete(ctx context.Context, ref MessageRef) error
	DeleteMany(ctx context.Context, refs []MessageRef) error
}

// Discard deletes refs through the dispatcher, logging failures and moving on.
// State transitions are committed before this runs, so a transport failure
// here never rolls anything back.
func Discard(ctx context.Context, d Dispatcher, refs ...MessageRef) {
	for _, ref := range refs {
		if err := d.Delete(ctx, ref); err != nil {
			log.Printf("notify: delete %s in %s: %v", ref.Handle, ref.ConversationID, err)
		}
	}
}
