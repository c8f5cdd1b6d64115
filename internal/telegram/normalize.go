package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/flemzord/tgecho/pkg/message"
)

// ParseUpdate decodes a raw webhook body and normalizes it.
// Bodies that are not JSON objects or lack a message object yield
// ErrMalformedUpdate.
func ParseUpdate(body []byte) (message.Update, error) {
	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return message.Update{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	return Normalize(&update)
}

// Normalize converts a Telegram Update into a message.Update. Edited
// messages, channel posts and other update kinds carry no "message" object
// and are reported as malformed.
func Normalize(update *Update) (message.Update, error) {
	msg := update.Message
	if msg == nil {
		return message.Update{}, fmt.Errorf("%w: update %d contains no message", ErrMalformedUpdate, update.UpdateID)
	}
	return message.NewUpdate(update.UpdateID, msg.Chat.ID, &msg.Text), nil
}
