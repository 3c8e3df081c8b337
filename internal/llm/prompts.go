package llm

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PromptName identifies a system prompt template.
type PromptName string

const (
	PromptSummarize       PromptName = "summarize"
	PromptSummarizeNicely PromptName = "summarize_nicely"
	PromptVibeCheck       PromptName = "vibe_check"
	PromptTranslate       PromptName = "translate"
	PromptReply           PromptName = "reply_when_mentioned"
)

// AllPrompts lists every template LoadPrompts requires.
var AllPrompts = []PromptName{PromptSummarize, PromptSummarizeNicely, PromptVibeCheck, PromptTranslate, PromptReply}

//go:embed prompts/*.txt
var defaultPrompts embed.FS

// Prompts is the immutable prompt set, loaded once at startup.
type Prompts struct {
	texts map[PromptName]string
}

// LoadPrompts reads every template from dir, falling back to the built-in
// text for files that are missing. An empty dir uses only built-ins.
func LoadPrompts(dir string) (*Prompts, error) {
	p := &Prompts{texts: make(map[PromptName]string, len(AllPrompts))}
	for _, name := range AllPrompts {
		text, err := readPrompt(dir, name)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("prompt %s is empty", name)
		}
		p.texts[name] = text
	}
	return p, nil
}

func readPrompt(dir string, name PromptName) (string, error) {
	file := string(name) + ".txt"
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}

	data, err := defaultPrompts.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("missing built-in prompt %s: %w", name, err)
	}
	return string(data), nil
}

// Get returns the template text for name.
func (p *Prompts) Get(name PromptName) string {
	return p.texts[name]
}

// Reply returns the mention-reply prompt addressed to the bot's identity.
func (p *Prompts) Reply(botName, botUsername string) string {
	return strings.NewReplacer("{bot_name}", botName, "{bot_username}", botUsername).Replace(p.texts[PromptReply])
}
