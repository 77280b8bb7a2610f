// Package stores serves the external reference kinds (value, credential,
// database, file) to the parameter resolver.
package stores

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
)

// Secrets opens sealed workspace secrets.
type Secrets interface {
	Open(ctx context.Context, workspaceID, id uuid.UUID) (*models.Credential, *models.CredentialData, error)
	VariableValue(ctx context.Context, workspaceID uuid.UUID, name string) (string, bool, error)
}

// Registry maps every external kind to its store. files may be nil when no
// object storage is configured; file references then fail to resolve.
func Registry(secrets Secrets, files params.Store) map[params.Kind]params.Store {
	r := map[params.Kind]params.Store{
		params.KindValue:      Variables(secrets),
		params.KindCredential: Credentials(secrets),
		params.KindDatabase:   Databases(secrets),
	}
	if files != nil {
		r[params.KindFile] = files
	}
	return r
}

// Variables resolves ${value:NAME}. Secret variables are marked secret.
func Variables(secrets Secrets) params.Store {
	return params.StoreFunc(func(ctx context.Context, workspaceID uuid.UUID, ref params.Reference) (params.Value, error) {
		value, secret, err := secrets.VariableValue(ctx, workspaceID, ref.Locator)
		if err != nil {
			return params.Value{}, err
		}
		return params.Value{Data: value, Secret: secret}, nil
	})
}

// Credentials resolves ${credential:ID} to the credential's fields, or
// ${credential:ID.field} to one of them.
func Credentials(secrets Secrets) params.Store {
	return params.StoreFunc(func(ctx context.Context, workspaceID uuid.UUID, ref params.Reference) (params.Value, error) {
		credential, data, err := secrets.Open(ctx, workspaceID, ref.ID)
		if err != nil {
			return params.Value{}, err
		}

		if ref.Field != "" {
			v, ok := data.Field(ref.Field)
			if !ok {
				return params.Value{}, fmt.Errorf("credential %s has no field %q", ref.ID, ref.Field)
			}
			return params.Value{Data: v, Secret: true}, nil
		}
		return params.Value{Data: credentialFields(credential, data), Secret: true}, nil
	})
}

func credentialFields(credential *models.Credential, data *models.CredentialData) map[string]interface{} {
	out := map[string]interface{}{"type": credential.Type}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("api_key", data.APIKey)
	set("username", data.Username)
	set("password", data.Password)
	set("token", data.Token)
	set("host", data.Host)
	set("database", data.Database)
	set("connection_string", data.ConnectionString)
	if data.Port != 0 {
		out["port"] = data.Port
	}
	for k, v := range data.Custom {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}
