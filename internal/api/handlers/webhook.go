package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
	"github.com/rs/zerolog/log"
)

// WebhookHandler receives calls for WEBHOOK triggers. It is mounted outside
// the authenticated API; requests are authenticated by the trigger's HMAC
// secret when one is configured.
type WebhookHandler struct {
	triggerSvc *services.TriggerService
}

func NewWebhookHandler(triggerSvc *services.TriggerService) *WebhookHandler {
	return &WebhookHandler{triggerSvc: triggerSvc}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triggerID, ok := uuidParam(w, r, "triggerID", "trigger")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, DefaultMaxWebhookSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.ErrorResponse(w, http.StatusRequestEntityTooLarge, "request body too large (max 5MB)")
			return
		}
		dto.BadRequest(w, "failed to read body")
		return
	}

	trigger, err := h.triggerSvc.Get(ctx, triggerID)
	if err != nil || trigger.Type != models.TriggerTypeWebhook {
		dto.NotFound(w, "Webhook")
		return
	}
	cfg, err := services.DecodeTriggerConfig(trigger.Type, trigger.Config)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	signature := r.Header.Get(cfg.Webhook.SignatureHeaderName())
	execution, err := h.triggerSvc.FireWebhook(ctx, triggerID, r.Method, body, signature)
	recordFire(models.TriggerTypeWebhook, err)
	if err != nil {
		log.Debug().Err(err).Str("trigger_id", triggerID.String()).Msg("Webhook rejected")
		dto.HandleServiceError(w, err)
		return
	}

	dto.Accepted(w, map[string]string{
		"execution_id": execution.ID.String(),
		"status":       string(execution.Status),
	})
}
