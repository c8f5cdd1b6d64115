package reply

import "github.com/flemzord/tgecho/pkg/message"

const (
	// EchoPrefix precedes the user's text in every echo reply.
	EchoPrefix = "You said: "

	// GreetingCommand is answered with Greeting instead of an echo.
	GreetingCommand = "start"

	// Greeting is the fixed answer to /start.
	Greeting = "Hi! Send me any text and I will echo it back."
)

// Compose returns the reply for u, or false when nothing should be sent.
// botUsername is the bot's own username; "/start@someone_else" is echoed
// like plain text.
func Compose(u message.Update, botUsername string) (message.Reply, bool) {
	if u.ChatID == 0 {
		return message.Reply{}, false
	}
	if u.Command == GreetingCommand && u.AddressedTo(botUsername) {
		return message.Reply{ChatID: u.ChatID, Text: Greeting}, true
	}
	if !u.HasText {
		return message.Reply{}, false
	}
	return message.Reply{ChatID: u.ChatID, Text: EchoPrefix + u.Text}, true
}
