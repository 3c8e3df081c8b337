// Package config provides configuration loading, validation, and management
// for DogBot. It reads an optional YAML file, applies defaults and DOGBOT_*
// environment overrides, and validates the result.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
)

// Config is the root of the application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Purge     PurgeConfig     `mapstructure:"purge"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and chat authorization settings.
type TelegramConfig struct {
	Token              string   `mapstructure:"token"               validate:"required"`
	WhitelistEnabled   bool     `mapstructure:"whitelist_enabled"`
	ChatWhitelist      []int64  `mapstructure:"chat_whitelist"      validate:"required_if=WhitelistEnabled true"`
	TranslateLanguages []string `mapstructure:"translate_languages" validate:"min=1,dive,required"`
	DefaultLanguage    string   `mapstructure:"default_language"    validate:"required"`

	// BotInfo is filled at startup from getMe and never read from the file.
	BotInfo *models.User `mapstructure:"-"`
}

// ChatAllowed reports whether the chat passes the whitelist.
func (c TelegramConfig) ChatAllowed(chatID int64) bool {
	if !c.WhitelistEnabled {
		return true
	}
	return slices.Contains(c.ChatWhitelist, chatID)
}

// LookupLanguage returns the configured language matching word, ignoring case.
func (c TelegramConfig) LookupLanguage(word string) (string, bool) {
	for _, lang := range c.TranslateLanguages {
		if strings.EqualFold(lang, word) {
			return strings.ToLower(lang), true
		}
	}
	return "", false
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LLMConfig configures the generative model client.
type LLMConfig struct {
	APIKey            string `mapstructure:"api_key"             validate:"required"`
	Model             string `mapstructure:"model"               validate:"required"`
	TranslateModel    string `mapstructure:"translate_model"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
	// PromptsDir overrides the built-in prompt templates when set.
	PromptsDir string `mapstructure:"prompts_dir"`
}

// EngineConfig tunes context selection, shrinking retries and the job gate.
// MaxAttempts counts every LLM invocation of one operation, the first one
// included, so 4 means the full window plus three shrunk ones.
type EngineConfig struct {
	MaxContext                  int           `mapstructure:"max_context"                    validate:"gt=0"`
	MinMessagesBetweenSummaries int           `mapstructure:"min_messages_between_summaries" validate:"gte=0"`
	SummaryStaleAfter           time.Duration `mapstructure:"summary_stale_after"            validate:"gt=0"`
	ReplyContext                int           `mapstructure:"reply_context"                  validate:"gt=0"`
	MaxAttempts                 int           `mapstructure:"max_attempts"                   validate:"gt=0,lte=10"`
}

// JobsConfig selects the unit-of-work backend. A non-empty RedisURL switches
// from the in-process pool to an asynq queue.
type JobsConfig struct {
	Workers   int    `mapstructure:"workers"    validate:"gt=0,lte=64"`
	QueueSize int    `mapstructure:"queue_size" validate:"gt=0"`
	RedisURL  string `mapstructure:"redis_url"  validate:"omitempty,url"`
	Queue     string `mapstructure:"queue"      validate:"required"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"omitempty,cron"`
}

// PurgeConfig sets how long history is retained.
type PurgeConfig struct {
	RetainMessages  time.Duration `mapstructure:"retain_messages"  validate:"gt=0"`
	RetainSummaries time.Duration `mapstructure:"retain_summaries" validate:"gt=0"`
}

// MessagesConfig holds user-facing texts and the sticker file ids used in notices.
type MessagesConfig struct {
	Start           string            `mapstructure:"start"`
	Help            string            `mapstructure:"help"`
	NotGroupChat    string            `mapstructure:"not_group_chat"`
	NotWhitelisted  string            `mapstructure:"not_whitelisted"`
	FromBot         string            `mapstructure:"from_bot"`
	SummaryRunning  string            `mapstructure:"summary_running"`
	NoHistory       string            `mapstructure:"no_history"`
	SummaryFailed   string            `mapstructure:"summary_failed"`
	ReplyFailed     string            `mapstructure:"reply_failed"`
	TranslateUsage  string            `mapstructure:"translate_usage"`
	TranslateFailed string            `mapstructure:"translate_failed"`
	Busy            string            `mapstructure:"busy"`
	OptOutInfo      string            `mapstructure:"opt_out_info"`
	OptOutConfirmed string            `mapstructure:"opt_out_confirmed"`
	OptInConfirmed  string            `mapstructure:"opt_in_confirmed"`
	StatsEmpty      string            `mapstructure:"stats_empty"`
	GeneralError    string            `mapstructure:"general_error"`
	Stickers        map[string]string `mapstructure:"stickers"`
}
