package handlers

// Command names as typed after the slash.
const (
	CommandStart           = "start"
	CommandHelp            = "help"
	CommandSummarize       = "summarize"
	CommandSummarizeNicely = "summarize_nicely"
	CommandVibeCheck       = "vibe_check"
	CommandTranslate       = "translate"
	CommandChatStats       = "chat_stats"
	CommandOptOut          = "opt_out"
	CommandOptOutConfirm   = "i_hate_you_and_never_want_to_see_you_again"
	CommandOptIn           = "im_deeply_sorry_please_take_me_back"
)
