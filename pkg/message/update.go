// Package message defines the platform-agnostic values that flow between the
// inbound producers (webhook, long-polling) and the reply dispatcher.
package message

import "strings"

// CommandPrefix marks a message text as a bot command.
const CommandPrefix = "/"

// Update is one normalized inbound event. It is built fresh from each
// webhook body or polled update and discarded after the reply attempt.
type Update struct {
	UpdateID  int    `json:"update_id"`
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text,omitempty"`
	HasText   bool   `json:"has_text"`
	IsCommand bool   `json:"is_command"`
	Command   string `json:"command,omitempty"`
	// Mention is the "@botname" suffix of a command, without the "@".
	Mention   string `json:"mention,omitempty"`
}

// NewUpdate builds an Update and derives its command fields from text.
// A nil or empty text means the inbound message carried no usable text.
func NewUpdate(updateID int, chatID int64, text *string) Update {
	u := Update{UpdateID: updateID, ChatID: chatID}
	if text == nil || *text == "" {
		return u
	}
	u.Text = *text
	u.HasText = true
	u.Command, u.Mention, u.IsCommand = ParseCommand(u.Text)
	return u
}

// Actionable reports whether the dispatcher can do anything with u.
// Updates without a chat cannot be answered.
func (u Update) Actionable() bool {
	return u.ChatID != 0 && u.HasText
}

// AddressedTo reports whether a command in u is meant for the bot called
// username. Commands without a mention are addressed to every bot, and an
// unknown username accepts any mention.
func (u Update) AddressedTo(username string) bool {
	if !u.IsCommand {
		return false
	}
	if u.Mention == "" || username == "" {
		return true
	}
	return strings.EqualFold(u.Mention, strings.TrimPrefix(username, "@"))
}

// ParseCommand extracts the command name from text starting with "/".
// The name is lower-cased and split from any "@botname" suffix, so
// "/Start@my_bot hello" yields ("start", "my_bot", true).
func ParseCommand(text string) (name, mention string, ok bool) {
	if !strings.HasPrefix(text, CommandPrefix) {
		return "", "", false
	}
	name = strings.TrimPrefix(text, CommandPrefix)
	if i := strings.IndexAny(name, " \t\n"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name, mention = name[:i], name[i+1:]
	}
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), mention, true
}
