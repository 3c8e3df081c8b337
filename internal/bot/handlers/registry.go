package handlers

import (
	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/dogbot/internal/database"
	"github.com/edgard/dogbot/internal/telegram"
)

// RegisterAllCommands initializes and returns a map of all available bot commands.
// Commands other than /start and /help pass through GroupOnly and are stored
// like ordinary messages before they run.
func RegisterAllCommands(deps HandlerDeps) map[string]telegram.RegisteredHandler {
	handlers := make(map[string]telegram.RegisteredHandler)
	group := []tgbot.Middleware{GroupOnly(deps), StoreCommand(deps)}

	add := func(name, description string, h tgbot.HandlerFunc, mw []tgbot.Middleware) {
		handlers["/"+name] = telegram.RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     name,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			MatchFunc:   telegram.CommandMatcher(name, deps.botUsername),
			Handler:     h,
			Middleware:  mw,
			Description: description,
		}
	}

	add(CommandStart, "", NewStartHandler(deps), nil)
	add(CommandHelp, "Show available commands", NewHelpHandler(deps), nil)
	add(CommandSummarize, "Summarize recent chat", NewSummarizeHandler(deps, database.SummaryStyleDefault), group)
	add(CommandSummarizeNicely, "Summarize, but nicely", NewSummarizeHandler(deps, database.SummaryStyleNice), group)
	add(CommandVibeCheck, "How is everyone doing", NewSummarizeHandler(deps, database.SummaryStyleVibeCheck), group)
	add(CommandTranslate, "Translate text or the replied message", NewTranslateHandler(deps), group)
	add(CommandChatStats, "Who talks the most", NewStatsHandler(deps), group)
	add(CommandOptOut, "Stop storing your messages", NewOptOutInfoHandler(deps), group)
	add(CommandOptOutConfirm, "", NewOptOutHandler(deps, true), group)
	add(CommandOptIn, "", NewOptOutHandler(deps, false), group)

	return handlers
}
