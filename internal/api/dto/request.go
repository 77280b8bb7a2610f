package dto

import (
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/pkg/validator"
)

// Sanitizer is implemented by requests carrying display text. Handlers call
// Sanitize after decoding and before validation.
type Sanitizer interface {
	Sanitize()
}

// Workflow
type CreateWorkflowRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    int      `json:"priority,omitempty" validate:"gte=0"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

type UpdateWorkflowRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Priority    *int     `json:"priority,omitempty" validate:"omitempty,gte=1"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// Graph
type CreateNodeRequest struct {
	Name           string              `json:"name" validate:"required,min=1,max=255"`
	ScriptID       *string             `json:"script_id,omitempty" validate:"omitempty,uuid"`
	CustomScriptID *string             `json:"custom_script_id,omitempty" validate:"omitempty,uuid"`
	InputParams    models.ParameterMap `json:"input_params,omitempty"`
	OutputParams   models.ParameterMap `json:"output_params,omitempty"`
	MaxRetries     *int                `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	TimeoutSeconds *int                `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1,lte=86400"`
	MetaData       models.JSON         `json:"meta_data,omitempty"`
}

type UpdateNodeRequest struct {
	Name           *string             `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	ScriptID       *string             `json:"script_id,omitempty" validate:"omitempty,uuid"`
	CustomScriptID *string             `json:"custom_script_id,omitempty" validate:"omitempty,uuid"`
	ClearScript    bool                `json:"clear_script,omitempty"`
	InputParams    models.ParameterMap `json:"input_params,omitempty"`
	OutputParams   models.ParameterMap `json:"output_params,omitempty"`
	MaxRetries     *int                `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	TimeoutSeconds *int                `json:"timeout_seconds,omitempty" validate:"omitempty,gte=1,lte=86400"`
	MetaData       models.JSON         `json:"meta_data,omitempty"`
}

type EdgeRequest struct {
	FromNodeID string `json:"from_node_id" validate:"required,uuid"`
	ToNodeID   string `json:"to_node_id" validate:"required,uuid"`
}

// Triggers
type CreateTriggerRequest struct {
	Name         string      `json:"name" validate:"required,min=1,max=255"`
	Description  *string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Type         string      `json:"type" validate:"required,oneof=API SCHEDULED WEBHOOK EVENT"`
	Config       models.JSON `json:"config,omitempty"`
	InputMapping models.JSON `json:"input_mapping,omitempty"`
	IsEnabled    *bool       `json:"is_enabled,omitempty"`
}

type UpdateTriggerRequest struct {
	Name         *string     `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description  *string     `json:"description,omitempty" validate:"omitempty,max=2000"`
	Config       models.JSON `json:"config,omitempty"`
	InputMapping models.JSON `json:"input_mapping,omitempty"`
	IsEnabled    *bool       `json:"is_enabled,omitempty"`
}

type FireTriggerRequest struct {
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type EmitEventRequest struct {
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Executions
type TestRunRequest struct {
	TriggerData models.JSON `json:"trigger_data,omitempty"`
}

// Credentials
type CreateCredentialRequest struct {
	Name        string                `json:"name" validate:"required,min=1,max=100"`
	Type        string                `json:"type" validate:"required,oneof=api_key basic bearer postgres mysql mongodb"`
	Data        models.CredentialData `json:"data"`
	Description *string               `json:"description,omitempty" validate:"omitempty,max=500"`
}

type CreateVariableRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Value       string  `json:"value"`
	IsSecret    bool    `json:"is_secret,omitempty"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func (r *CreateWorkflowRequest) Sanitize() {
	r.Name = validator.SanitizeName(r.Name)
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
	for i, tag := range r.Tags {
		r.Tags[i] = validator.SanitizeName(tag)
	}
}

func (r *UpdateWorkflowRequest) Sanitize() {
	r.Name = validator.SanitizeOptional(r.Name, validator.SanitizeName)
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
	for i, tag := range r.Tags {
		r.Tags[i] = validator.SanitizeName(tag)
	}
}

func (r *CreateNodeRequest) Sanitize() {
	r.Name = validator.SanitizeName(r.Name)
}

func (r *UpdateNodeRequest) Sanitize() {
	r.Name = validator.SanitizeOptional(r.Name, validator.SanitizeName)
}

func (r *CreateTriggerRequest) Sanitize() {
	r.Name = validator.SanitizeName(r.Name)
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
}

func (r *UpdateTriggerRequest) Sanitize() {
	r.Name = validator.SanitizeOptional(r.Name, validator.SanitizeName)
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
}

func (r *CreateCredentialRequest) Sanitize() {
	r.Name = validator.SanitizeName(r.Name)
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
}

func (r *CreateVariableRequest) Sanitize() {
	r.Description = validator.SanitizeOptional(r.Description, validator.SanitizeText)
}
