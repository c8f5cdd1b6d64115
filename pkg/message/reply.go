package message

// Reply is the outbound payload for a single sendMessage call.
type Reply struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}
