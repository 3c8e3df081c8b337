package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/edgard/dogbot/internal/bot/jobs"
	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/telegram"
)

type messageHandler struct {
	deps HandlerDeps
}

// NewMessageHandler returns the default handler. It stores every group
// message, applies edits in place and queues a reply when the bot is
// mentioned or replied to.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	h := messageHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

func (h messageHandler) handle(ctx context.Context, s telegram.Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "message")

	if update.EditedMessage != nil {
		h.handleEdit(ctx, update.EditedMessage)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	stored, err := ingest(ctx, h.deps, msg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to store message", "error", err, "chat_id", msg.Chat.ID)
		return
	}
	if stored == nil {
		return
	}

	if !telegram.MentionsBot(msg, h.deps.botUsername()) && !telegram.RepliesToBot(msg, h.deps.botID()) {
		return
	}

	log.InfoContext(ctx, "Bot mentioned, queueing reply", "chat_id", msg.Chat.ID, "message_id", stored.ID)
	job, err := jobs.NewJob(jobs.KindReply, jobs.ReplyPayload{
		ChatID:       stored.ChatID,
		ChatAPIID:    msg.Chat.ID,
		MessageID:    stored.ID,
		MessageAPIID: msg.ID,
	})
	if err == nil {
		err = h.deps.Jobs.Enqueue(ctx, job)
	}
	if err != nil {
		log.WarnContext(ctx, "Failed to queue reply", "error", err, "chat_id", msg.Chat.ID)
		if errors.Is(err, jobs.ErrQueueFull) {
			notify(ctx, log, s, msg.Chat.ID, msg.ID, h.deps.Config.Messages.Busy)
		}
	}
}

func (h messageHandler) handleEdit(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "edited_message")
	if !storable(h.deps, msg) {
		return
	}
	in, ok := telegram.ToIncoming(msg)
	if !ok {
		return
	}
	optedOut, err := h.deps.Store.IsOptedOut(ctx, msg.From.ID)
	if err != nil || optedOut {
		return
	}

	var before string
	if chat, err := h.deps.Store.GetChatByAPIID(ctx, msg.Chat.ID); err == nil {
		if old, err := h.deps.Store.GetMessageByAPIID(ctx, chat.ID, int64(msg.ID)); err == nil {
			before = old.Text
		}
	}

	updated, err := h.deps.Store.UpdateIncoming(ctx, in)
	if errors.Is(err, database.ErrNotFound) {
		log.DebugContext(ctx, "Edited message was never stored", "chat_id", msg.Chat.ID, "message_api_id", msg.ID)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to apply edit", "error", err, "chat_id", msg.Chat.ID)
		return
	}

	log.DebugContext(ctx, "Message edited", "chat_id", msg.Chat.ID, "message_id", updated.ID, "change", describeEdit(before, updated.Text))
}

// describeEdit renders the change between two texts as "[-old-]{+new+}" runs.
func describeEdit(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		}
	}
	return sb.String()
}

// storable reports whether messages from this chat are kept at all.
func storable(deps HandlerDeps, msg *models.Message) bool {
	return msg != nil && msg.From != nil &&
		database.ChatType(msg.Chat.Type).IsGroup() &&
		deps.Config.Telegram.ChatAllowed(msg.Chat.ID)
}

// ingest stores msg unless the chat is not tracked, the sender opted out or
// there is no text. A nil message with a nil error means it was skipped.
func ingest(ctx context.Context, deps HandlerDeps, msg *models.Message) (*database.Message, error) {
	if !storable(deps, msg) {
		return nil, nil
	}
	in, ok := telegram.ToIncoming(msg)
	if !ok {
		return nil, nil
	}
	optedOut, err := deps.Store.IsOptedOut(ctx, msg.From.ID)
	if err != nil {
		return nil, err
	}
	if optedOut {
		return nil, nil
	}
	return deps.Store.StoreIncoming(ctx, in)
}
