// Package cache keeps opened workspace secrets in worker memory for a short
// time so a busy workflow does not decrypt the same credential per node.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/worker/stores"
)

const DefaultTTL = time.Minute

type credentialKey struct {
	workspaceID uuid.UUID
	id          uuid.UUID
}

type variableKey struct {
	workspaceID uuid.UUID
	name        string
}

type cachedCredential struct {
	credential *models.Credential
	data       *models.CredentialData
	expiresAt  time.Time
}

type cachedVariable struct {
	value     string
	secret    bool
	expiresAt time.Time
}

// SecretsCache wraps a stores.Secrets. Decrypted values never leave the
// process; misses and errors always go to the wrapped source.
type SecretsCache struct {
	source      stores.Secrets
	ttl         time.Duration
	credentials sync.Map // credentialKey -> *cachedCredential
	variables   sync.Map // variableKey -> *cachedVariable
	now         func() time.Time
}

var _ stores.Secrets = (*SecretsCache)(nil)

// NewSecretsCache creates a cache in front of source. A zero ttl uses
// DefaultTTL.
func NewSecretsCache(source stores.Secrets, ttl time.Duration) *SecretsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SecretsCache{
		source: source,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *SecretsCache) Open(ctx context.Context, workspaceID, id uuid.UUID) (*models.Credential, *models.CredentialData, error) {
	key := credentialKey{workspaceID, id}
	if v, ok := c.credentials.Load(key); ok {
		cached := v.(*cachedCredential)
		if c.now().Before(cached.expiresAt) {
			return cached.credential, cached.data, nil
		}
		c.credentials.Delete(key)
	}

	credential, data, err := c.source.Open(ctx, workspaceID, id)
	if err != nil {
		return nil, nil, err
	}
	c.credentials.Store(key, &cachedCredential{
		credential: credential,
		data:       data,
		expiresAt:  c.now().Add(c.ttl),
	})
	return credential, data, nil
}

func (c *SecretsCache) VariableValue(ctx context.Context, workspaceID uuid.UUID, name string) (string, bool, error) {
	key := variableKey{workspaceID, name}
	if v, ok := c.variables.Load(key); ok {
		cached := v.(*cachedVariable)
		if c.now().Before(cached.expiresAt) {
			return cached.value, cached.secret, nil
		}
		c.variables.Delete(key)
	}

	value, secret, err := c.source.VariableValue(ctx, workspaceID, name)
	if err != nil {
		return "", false, err
	}
	c.variables.Store(key, &cachedVariable{
		value:     value,
		secret:    secret,
		expiresAt: c.now().Add(c.ttl),
	})
	return value, secret, nil
}

// Invalidate drops every cached secret of a workspace.
func (c *SecretsCache) Invalidate(workspaceID uuid.UUID) {
	c.credentials.Range(func(k, _ interface{}) bool {
		if k.(credentialKey).workspaceID == workspaceID {
			c.credentials.Delete(k)
		}
		return true
	})
	c.variables.Range(func(k, _ interface{}) bool {
		if k.(variableKey).workspaceID == workspaceID {
			c.variables.Delete(k)
		}
		return true
	})
}

// CleanupExpired removes expired entries
func (c *SecretsCache) CleanupExpired() {
	now := c.now()
	c.credentials.Range(func(k, v interface{}) bool {
		if !now.Before(v.(*cachedCredential).expiresAt) {
			c.credentials.Delete(k)
		}
		return true
	})
	c.variables.Range(func(k, v interface{}) bool {
		if !now.Before(v.(*cachedVariable).expiresAt) {
			c.variables.Delete(k)
		}
		return true
	})
}

// StartCleanupRoutine runs CleanupExpired every interval until ctx is done.
func (c *SecretsCache) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.CleanupExpired()
			}
		}
	}()
}
