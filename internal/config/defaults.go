package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultDBPath   = "dogbot.db"

	DefaultLLMModel             = "gemini-2.0-flash"
	DefaultLLMMaxRetries        = 3
	DefaultLLMRetryDelaySeconds = 2
	DefaultTranslateLanguage    = "english"

	DefaultMaxContext                  = 200
	DefaultMinMessagesBetweenSummaries = 100
	DefaultSummaryStaleAfter           = time.Minute
	DefaultReplyContext                = 100
	DefaultMaxAttempts                 = 4

	DefaultJobWorkers   = 4
	DefaultJobQueueSize = 64
	DefaultJobQueue     = "dogbot"

	DefaultRetainMessages  = 48 * time.Hour
	DefaultRetainSummaries = 48 * time.Hour

	TaskPurgeOldMessages = "purge_old_messages"
	TaskSQLMaintenance   = "sql_maintenance"
)

// DefaultTranslateLanguages are offered when none are configured.
var DefaultTranslateLanguages = []string{
	"english", "spanish", "portuguese", "french", "german", "italian", "polish", "russian", "japanese",
}

// Sticker names referenced by notices. The file ids come from messages.stickers.
const (
	StickerDead        = "dead"
	StickerHeavyTyping = "heavy_typing"
	StickerGun         = "gun"
	StickerSprayBottle = "spray_bottle"
	StickerBonk        = "bonk"
	StickerHeck        = "heck"
	StickerNoFrench    = "no_french"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.whitelist_enabled", false)
	v.SetDefault("telegram.translate_languages", DefaultTranslateLanguages)
	v.SetDefault("telegram.default_language", DefaultTranslateLanguage)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.max_retries", DefaultLLMMaxRetries)
	v.SetDefault("llm.retry_delay_seconds", DefaultLLMRetryDelaySeconds)

	v.SetDefault("engine.max_context", DefaultMaxContext)
	v.SetDefault("engine.min_messages_between_summaries", DefaultMinMessagesBetweenSummaries)
	v.SetDefault("engine.summary_stale_after", DefaultSummaryStaleAfter)
	v.SetDefault("engine.reply_context", DefaultReplyContext)
	v.SetDefault("engine.max_attempts", DefaultMaxAttempts)

	v.SetDefault("jobs.workers", DefaultJobWorkers)
	v.SetDefault("jobs.queue_size", DefaultJobQueueSize)
	v.SetDefault("jobs.queue", DefaultJobQueue)

	v.SetDefault("scheduler.tasks."+TaskPurgeOldMessages+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskPurgeOldMessages+".schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskSQLMaintenance+".schedule", "0 30 4 * * *")

	v.SetDefault("purge.retain_messages", DefaultRetainMessages)
	v.SetDefault("purge.retain_summaries", DefaultRetainSummaries)

	v.SetDefault("messages.start", "You start! By adding this bot to a group chat, because it has no functionality in DMs or channels.")
	v.SetDefault("messages.help", "Commands:\n"+
		"/summarize - summarize recent chat\n"+
		"/summarize_nicely - summarize, but nicely\n"+
		"/vibe_check - how is everyone doing\n"+
		"/translate [language] [text] - translate text or the replied message\n"+
		"/chat_stats - who talks the most\n"+
		"/opt_out - stop the bot from storing your messages\n\n"+
		"Mention me or reply to me and I will answer.")
	v.SetDefault("messages.not_group_chat", "the commands only work in group chats!!!1")
	v.SetDefault("messages.not_whitelisted", "This chat isn't whitelisted; contact this bot's owner.")
	v.SetDefault("messages.from_bot", "begone bot")
	v.SetDefault("messages.summary_running", "Still working on another summary!!")
	v.SetDefault("messages.no_history", "Nothing to summarize yet.")
	v.SetDefault("messages.summary_failed", "Processing failed, sowwy :(")
	v.SetDefault("messages.reply_failed", "I have no words :(")
	v.SetDefault("messages.translate_usage", "💬 Translate\n"+
		"• Reply to a message, or\n"+
		"• Paste text after command:\n"+
		"    /translate hola mi amigo\n\n"+
		"⚙️ Choose target language\n"+
		"    /translate polish hi there!\n\n"+
		"❔ Supported languages\n%s")
	v.SetDefault("messages.translate_failed", "Translation failed :(")
	v.SetDefault("messages.busy", "Too much going on right now, try again in a bit.")
	v.SetDefault("messages.opt_out_info", "To stop this bot from storing your messages, and delete the ones it has, send:\n"+
		"/i_hate_you_and_never_want_to_see_you_again\n\n"+
		"To undo that later, send:\n/im_deeply_sorry_please_take_me_back")
	v.SetDefault("messages.opt_out_confirmed", "Fine. Deleted %d of your messages and I will ignore you from now on.")
	v.SetDefault("messages.opt_in_confirmed", "Welcome back. Your new messages will be stored again.")
	v.SetDefault("messages.stats_empty", "No stats for this chat yet.")
	v.SetDefault("messages.general_error", "An error occurred. Please try again later.")
}
