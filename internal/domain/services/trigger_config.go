package services

import (
	"encoding/json"
	"fmt"

	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/pkg/validator"
	"github.com/linkflow-ai/scriptflow/internal/webhook"
)

type ScheduledConfig struct {
	CronExpression string `json:"cron_expression" validate:"required,cron"`
	Timezone       string `json:"timezone,omitempty" validate:"timezone"`
}

type WebhookConfig struct {
	Method             string `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Secret             string `json:"secret,omitempty"`
	SignatureHeader    string `json:"signature_header,omitempty"`
	SignatureAlgorithm string `json:"signature_algorithm,omitempty" validate:"omitempty,oneof=sha1 sha256"`
}

type EventConfig struct {
	EventName string `json:"event_name" validate:"required,event_name"`
	Source    string `json:"source,omitempty" validate:"max=255"`
}

type APIConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty" validate:"gte=0"`
}

// TriggerConfig is the decoded config of one trigger. Exactly one of the typed
// variants is set, matching Type. Keys the variant does not declare are kept
// in Extra untouched.
type TriggerConfig struct {
	Type      models.TriggerType
	Scheduled *ScheduledConfig
	Webhook   *WebhookConfig
	Event     *EventConfig
	API       *APIConfig
	Extra     map[string]interface{}
}

var triggerConfigKeys = map[models.TriggerType][]string{
	models.TriggerTypeScheduled: {"cron_expression", "timezone"},
	models.TriggerTypeWebhook:   {"method", "secret", "signature_header", "signature_algorithm"},
	models.TriggerTypeEvent:     {"event_name", "source"},
	models.TriggerTypeAPI:       {"rate_limit_per_minute"},
}

// DecodeTriggerConfig decodes and validates raw for a trigger of type t.
func DecodeTriggerConfig(t models.TriggerType, raw models.JSON) (*TriggerConfig, error) {
	const op = "trigger.DecodeConfig"

	if !t.Valid() {
		return nil, errs.New(op, errs.ErrInvalidParameter, "unknown trigger type %q", t)
	}

	cfg := &TriggerConfig{Type: t, Extra: map[string]interface{}{}}
	var target interface{}
	switch t {
	case models.TriggerTypeScheduled:
		cfg.Scheduled = &ScheduledConfig{}
		target = cfg.Scheduled
	case models.TriggerTypeWebhook:
		cfg.Webhook = &WebhookConfig{}
		target = cfg.Webhook
	case models.TriggerTypeEvent:
		cfg.Event = &EventConfig{}
		target = cfg.Event
	case models.TriggerTypeAPI:
		cfg.API = &APIConfig{}
		target = cfg.API
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger config: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, errs.New(op, errs.ErrInvalidParameter, "%s trigger config: %v", t, err)
	}
	if err := validator.Validate(target); err != nil {
		return nil, errs.New(op, errs.ErrInvalidParameter, "%s trigger config: %s", t, validator.Summary(err))
	}

	known := make(map[string]bool, len(triggerConfigKeys[t]))
	for _, k := range triggerConfigKeys[t] {
		known[k] = true
	}
	for k, v := range raw {
		if !known[k] {
			cfg.Extra[k] = v
		}
	}
	return cfg, nil
}

// Encode flattens the typed variant and Extra back into a JSON object.
func (c *TriggerConfig) Encode() (models.JSON, error) {
	var typed interface{}
	switch c.Type {
	case models.TriggerTypeScheduled:
		typed = c.Scheduled
	case models.TriggerTypeWebhook:
		typed = c.Webhook
	case models.TriggerTypeEvent:
		typed = c.Event
	case models.TriggerTypeAPI:
		typed = c.API
	}

	out := models.JSON{}
	for k, v := range c.Extra {
		out[k] = v
	}
	data, err := json.Marshal(typed)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// SignatureHeaderName returns the request header carrying the signature.
func (c *WebhookConfig) SignatureHeaderName() string {
	if c.SignatureHeader != "" {
		return c.SignatureHeader
	}
	return webhook.DefaultSignatureHeader
}
