package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// LocalDispatcher is a transport-less Dispatcher that logs every outbound
// intent and mints opaque handles. The daemon falls back to it when no real
// transport adapter is configured, which keeps local runs and smoke tests
// working end to end.
type LocalDispatcher struct {
	newHandle func() string
}

// NewLocalDispatcher builds a logging dispatcher with uuid handles.
func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{
		newHandle: func() string { return uuid.NewString() },
	}
}

func (d *LocalDispatcher) Send(ctx context.Context, conversationID string, role Role, content string) (MessageRef, error) {
	ref := MessageRef{
		ConversationID: conversationID,
		Handle:         d.newHandle(),
		Role:           role,
	}
	log.Printf("notify: send %s %s to %s:\n%s", role, ref.Handle, conversationID, content)
	return ref, nil
}

func (d *LocalDispatcher) Edit(ctx context.Context, ref MessageRef, content string) error {
	log.Printf("notify: edit %s in %s:\n%s", ref.Handle, ref.ConversationID, content)
	return nil
}

func (d *LocalDispatcher) Delete(ctx context.Context, ref MessageRef) error {
	log.Printf("notify: delete %s in %s", ref.Handle, ref.ConversationID)
	return nil
}

func (d *LocalDispatcher) DeleteMany(ctx context.Context, refs []MessageRef) error {
	for _, ref := range refs {
		if err := d.Delete(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}
