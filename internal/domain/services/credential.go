package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/rs/zerolog/log"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrVariableNotFound   = errors.New("variable not found")
)

// CredentialService stores workspace secrets sealed at rest and opens them
// for the reference stores of the worker.
type CredentialService struct {
	credentials repositories.CredentialStore
	variables   repositories.VariableStore
	encryptor   *crypto.Encryptor
}

func NewCredentialService(
	credentials repositories.CredentialStore,
	variables repositories.VariableStore,
	encryptor *crypto.Encryptor,
) *CredentialService {
	return &CredentialService{
		credentials: credentials,
		variables:   variables,
		encryptor:   encryptor,
	}
}

type CreateCredentialInput struct {
	WorkspaceID uuid.UUID
	CreatedBy   uuid.UUID
	Name        string
	Type        string
	Data        models.CredentialData
	Description *string
}

func (s *CredentialService) CreateCredential(ctx context.Context, input CreateCredentialInput) (*models.Credential, error) {
	const op = "credential.Create"

	if strings.TrimSpace(input.Name) == "" {
		return nil, errs.New(op, errs.ErrInvalidParameter, "credential name is required")
	}

	dataJSON, err := json.Marshal(input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential data: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(string(dataJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to seal credential: %w", err)
	}

	credential := &models.Credential{
		WorkspaceID: input.WorkspaceID,
		CreatedBy:   input.CreatedBy,
		Name:        strings.TrimSpace(input.Name),
		Type:        input.Type,
		Data:        sealed,
		Description: input.Description,
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	log.Info().
		Str("credential_id", credential.ID.String()).
		Str("workspace_id", credential.WorkspaceID.String()).
		Str("type", credential.Type).
		Msg("Credential created")

	return credential, nil
}

// Open loads and decrypts a credential of the workspace.
func (s *CredentialService) Open(ctx context.Context, workspaceID, id uuid.UUID) (*models.Credential, *models.CredentialData, error) {
	credential, err := s.credentials.FindByID(ctx, workspaceID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}

	plain, err := s.encryptor.Decrypt(credential.Data)
	if err != nil {
		return nil, nil, err
	}

	var data models.CredentialData
	if err := json.Unmarshal([]byte(plain), &data); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal credential data: %w", err)
	}

	if err := s.credentials.TouchLastUsed(ctx, id); err != nil {
		log.Warn().Err(err).Str("credential_id", id.String()).Msg("Failed to record credential use")
	}

	return credential, &data, nil
}

type CreateVariableInput struct {
	WorkspaceID uuid.UUID
	CreatedBy   uuid.UUID
	Name        string
	Value       string
	IsSecret    bool
	Description *string
}

func (s *CredentialService) CreateVariable(ctx context.Context, input CreateVariableInput) (*models.Variable, error) {
	const op = "variable.Create"

	if !models.ValidVariableName(input.Name) {
		return nil, errs.New(op, errs.ErrInvalidParameter, "invalid variable name %q", input.Name)
	}

	value := input.Value
	if input.IsSecret {
		sealed, err := s.encryptor.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("failed to seal variable: %w", err)
		}
		value = sealed
	}

	variable := &models.Variable{
		WorkspaceID: input.WorkspaceID,
		CreatedBy:   input.CreatedBy,
		Name:        input.Name,
		Value:       value,
		IsSecret:    input.IsSecret,
		Description: input.Description,
	}
	err := s.variables.Create(ctx, variable)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, errs.New(op, errs.ErrDuplicateName, "variable %q already exists", input.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create variable: %w", err)
	}

	log.Info().
		Str("workspace_id", variable.WorkspaceID.String()).
		Str("variable", variable.Name).
		Bool("secret", variable.IsSecret).
		Msg("Variable created")

	return variable, nil
}

// VariableValue returns the plain value of a variable and whether it is secret.
func (s *CredentialService) VariableValue(ctx context.Context, workspaceID uuid.UUID, name string) (string, bool, error) {
	variable, err := s.variables.FindByName(ctx, workspaceID, name)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", false, fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	if err != nil {
		return "", false, err
	}
	if !variable.IsSecret {
		return variable.Value, false, nil
	}

	plain, err := s.encryptor.Decrypt(variable.Value)
	if err != nil {
		return "", true, err
	}
	return plain, true, nil
}
