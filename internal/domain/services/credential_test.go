package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories/memory"
	"github.com/linkflow-ai/scriptflow/internal/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentialService(t *testing.T) (*CredentialService, *memory.Store) {
	t.Helper()
	enc, err := crypto.NewEncryptor("test-key")
	require.NoError(t, err)
	store := memory.New()
	return NewCredentialService(store.Credentials, store.Variables, enc), store
}

func TestCredentialService_CreateAndOpen(t *testing.T) {
	ctx := context.Background()
	svc, store := newCredentialService(t)
	ws := uuid.New()

	cred, err := svc.CreateCredential(ctx, CreateCredentialInput{
		WorkspaceID: ws,
		CreatedBy:   uuid.New(),
		Name:        "warehouse",
		Type:        models.CredentialTypePostgres,
		Data:        models.CredentialData{Host: "db", Port: 5432, Username: "etl", Password: "hunter2", Database: "dw"},
	})
	require.NoError(t, err)
	assert.NotContains(t, cred.Data, "hunter2")

	stored, err := store.Credentials.FindByID(ctx, ws, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, cred.Data, stored.Data)

	_, data, err := svc.Open(ctx, ws, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", data.Password)
	assert.Equal(t, 5432, data.Port)

	touched, err := store.Credentials.FindByID(ctx, ws, cred.ID)
	require.NoError(t, err)
	assert.NotNil(t, touched.LastUsedAt)

	_, _, err = svc.Open(ctx, uuid.New(), cred.ID)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialService_Variables(t *testing.T) {
	ctx := context.Background()
	svc, store := newCredentialService(t)
	ws := uuid.New()

	_, err := svc.CreateVariable(ctx, CreateVariableInput{WorkspaceID: ws, Name: "REGION", Value: "eu-west-1"})
	require.NoError(t, err)
	_, err = svc.CreateVariable(ctx, CreateVariableInput{WorkspaceID: ws, Name: "API_TOKEN", Value: "tok", IsSecret: true})
	require.NoError(t, err)

	raw, err := store.Variables.FindByName(ctx, ws, "API_TOKEN")
	require.NoError(t, err)
	assert.NotEqual(t, "tok", raw.Value)

	tests := []struct {
		name       string
		variable   string
		wantValue  string
		wantSecret bool
		wantErr    error
	}{
		{name: "plain", variable: "REGION", wantValue: "eu-west-1"},
		{name: "secret", variable: "API_TOKEN", wantValue: "tok", wantSecret: true},
		{name: "missing", variable: "NOPE", wantErr: ErrVariableNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, secret, err := svc.VariableValue(ctx, ws, tt.variable)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantSecret, secret)
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		_, err := svc.CreateVariable(ctx, CreateVariableInput{WorkspaceID: ws, Name: "REGION", Value: "us"})
		assert.ErrorIs(t, err, errs.ErrDuplicateName)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := svc.CreateVariable(ctx, CreateVariableInput{WorkspaceID: ws, Name: "bad name", Value: "x"})
		assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	})
}
