// Package telegram talks to the Telegram Bot API and turns its updates into
// message.Update values.
//
// It provides:
//
//   - Client, a thin net/http + encoding/json wrapper for the handful of Bot
//     API methods the relay needs (getMe, getUpdates, setWebhook,
//     deleteWebhook, getWebhookInfo, sendMessage)
//   - WebhookReceiver, which authenticates webhook calls with the
//     X-Telegram-Bot-Api-Secret-Token header and normalizes their bodies
//   - Poller, a long-polling producer feeding the same inbox as the webhook
//
// Both producers hand normalized updates to a single inbox function, usually
// reply.Dispatcher.Submit.
package telegram
