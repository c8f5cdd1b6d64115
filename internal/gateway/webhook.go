package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/flemzord/tgecho/internal/metrics"
	"github.com/flemzord/tgecho/internal/telegram"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ackResponse struct {
	OK bool `json:"ok"`
}

// handleWebhook authenticates one Telegram call, parses it and submits the
// update for delivery. Only a bad secret token is answered with an error
// status: everything past authentication is acknowledged with 200 so that
// Telegram does not redeliver updates the relay can never act on.
func (g *Gateway) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "webhook.receive")
		defer span.End()

		log := g.logger.With("request_id", middleware.GetReqID(ctx))

		if err := g.receiver.Authorize(r.Header); err != nil {
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultUnauthorized)
			span.SetStatus(codes.Error, "unauthorized")
			log.Warn("webhook rejected", "remote_addr", r.RemoteAddr, "reason", "invalid secret token")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes))
		if err != nil {
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultMalformed)
			log.Warn("webhook body unreadable", "remote_addr", r.RemoteAddr, "error", err)
			writeJSON(w, http.StatusOK, ackResponse{OK: true})
			return
		}

		update, err := g.receiver.Accept(ctx, body)
		span.SetAttributes(
			attribute.Int("telegram.update_id", update.UpdateID),
			attribute.Int64("telegram.chat_id", update.ChatID),
		)

		switch {
		case err == nil:
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultAccepted)
			log.Debug("webhook update accepted", "update_id", update.UpdateID, "chat_id", update.ChatID)
		case errors.Is(err, telegram.ErrMalformedUpdate):
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultMalformed)
			log.Warn("webhook update malformed", "remote_addr", r.RemoteAddr, "error", err)
		case errors.Is(err, telegram.ErrEmptyUpdate):
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultEmpty)
			log.Debug("webhook update ignored", "update_id", update.UpdateID, "reason", "no chat or text")
		default:
			g.metrics.RecordUpdate(metrics.SourceWebhook, metrics.ResultDropped)
			span.RecordError(err)
			log.Error("webhook update dropped", "update_id", update.UpdateID, "chat_id", update.ChatID, "error", err)
		}

		writeJSON(w, http.StatusOK, ackResponse{OK: true})
	}
}
