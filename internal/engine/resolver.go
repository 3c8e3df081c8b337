package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgard/dogbot/internal/database"
)

// ResolveTriggerContext places trigger last after the selected window. When
// the trigger replies to a message older than the window, that parent is
// placed first so the reply keeps its antecedent. The window's own order is
// preserved and the trigger never appears twice.
func ResolveTriggerContext(selected []database.Message, trigger database.Message, parent *database.Message) []database.Message {
	out := make([]database.Message, 0, len(selected)+2)
	window := make([]database.Message, 0, len(selected))
	for _, m := range selected {
		if m.ID != trigger.ID {
			window = append(window, m)
		}
	}

	if parent != nil && !parentInWindow(window, *parent) {
		out = append(out, *parent)
	}
	out = append(out, window...)
	return append(out, trigger)
}

// parentInWindow checks containment by id first and falls back to comparing
// the parent's date with the oldest selected message.
func parentInWindow(window []database.Message, parent database.Message) bool {
	if len(window) == 0 {
		return false
	}
	for _, m := range window {
		if m.ID == parent.ID {
			return true
		}
	}
	return !parent.Date.Before(window[0].Date)
}

// resolve fetches the trigger's parent when needed and applies ResolveTriggerContext.
func (e *Engine) resolve(ctx context.Context, selected []database.Message, trigger database.Message) ([]database.Message, error) {
	if !trigger.HasReplyParent() {
		return ResolveTriggerContext(selected, trigger, nil), nil
	}

	parentID := trigger.ReplyToMessageID.Int64
	for _, m := range selected {
		if m.ID == parentID {
			return ResolveTriggerContext(selected, trigger, nil), nil
		}
	}

	parent, err := e.store.GetMessage(ctx, parentID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, tagged(ErrMissingParent, fmt.Errorf("message %d replies to missing message %d", trigger.ID, parentID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reply parent: %w", err)
	}
	if parent.ChatID != trigger.ChatID {
		return nil, tagged(ErrMissingParent, fmt.Errorf("reply parent %d belongs to another chat", parentID))
	}
	return ResolveTriggerContext(selected, trigger, parent), nil
}
