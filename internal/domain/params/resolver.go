package params

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

// Value is what a Store returns for a reference. Secret values never leave
// the resolver except towards the script runtime.
type Value struct {
	Data   interface{}
	Secret bool
}

// Store resolves references of the external kinds (value, credential,
// database, file) for one workspace.
type Store interface {
	Lookup(ctx context.Context, workspaceID uuid.UUID, ref Reference) (Value, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, workspaceID uuid.UUID, ref Reference) (Value, error)

func (f StoreFunc) Lookup(ctx context.Context, workspaceID uuid.UUID, ref Reference) (Value, error) {
	return f(ctx, workspaceID, ref)
}

// Snapshot is the execution state a resolution reads. Callers pass copies:
// the resolver never mutates it and never retains it.
type Snapshot struct {
	WorkspaceID uuid.UUID
	TriggerData map[string]interface{}
	Outputs     map[uuid.UUID]map[string]interface{}
}

// Resolution is the result of resolving one node's inputs.
type Resolution struct {
	// Values holds the concrete inputs handed to the runtime.
	Values map[string]interface{}
	// Snapshot equals Values with secret values replaced by their reference string.
	Snapshot map[string]interface{}
	// References maps parameter name to the reference string it was resolved from.
	References map[string]string
	// Redacted lists the parameter names whose value was withheld from Snapshot.
	Redacted []string
}

// Resolver resolves node inputs within one execution. External lookups are
// memoized so that every node of the run observes the same value.
type Resolver struct {
	stores map[Kind]Store

	mu    sync.Mutex
	cache map[string]Value
}

func NewResolver(stores map[Kind]Store) *Resolver {
	return &Resolver{
		stores: stores,
		cache:  make(map[string]Value),
	}
}

// Resolve turns the node's declared inputs into concrete values.
func (r *Resolver) Resolve(ctx context.Context, node *models.Node, snap Snapshot) (*Resolution, error) {
	res := &Resolution{
		Values:     make(map[string]interface{}, len(node.InputParams)),
		Snapshot:   make(map[string]interface{}, len(node.InputParams)),
		References: make(map[string]string),
	}

	for _, name := range node.InputParams.Names() {
		spec := node.InputParams[name]

		value, secret, ref, err := r.resolveValue(ctx, name, spec.Value, snap)
		if err != nil {
			return nil, err
		}
		if value == nil && spec.Default != nil {
			value, secret, ref, err = r.resolveValue(ctx, name, spec.Default, snap)
			if err != nil {
				return nil, err
			}
		}
		if value == nil {
			if spec.Required {
				return nil, errs.New("params.Resolve", errs.ErrMissingRequiredParameter,
					"node %q parameter %q has neither value nor default", node.Name, name)
			}
			continue
		}
		if !spec.Accepts(value) {
			return nil, errs.New("params.Resolve", errs.ErrInvalidParameter,
				"node %q parameter %q resolved to a value that is not %s", node.Name, name, spec.Type)
		}

		res.Values[name] = value
		if ref != "" {
			res.References[name] = ref
		}
		if secret {
			res.Snapshot[name] = ref
			res.Redacted = append(res.Redacted, name)
		} else {
			res.Snapshot[name] = models.CloneValue(value)
		}
	}

	return res, nil
}

func (r *Resolver) resolveValue(ctx context.Context, name string, raw interface{}, snap Snapshot) (interface{}, bool, string, error) {
	s, ok := raw.(string)
	if !ok || !IsReference(s) {
		return models.CloneValue(raw), false, "", nil
	}

	ref, err := Parse(s)
	if err != nil {
		return nil, false, "", err
	}
	v, err := r.lookup(ctx, ref, snap)
	if err != nil {
		return nil, false, s, err
	}
	return v.Data, v.Secret, s, nil
}

func (r *Resolver) lookup(ctx context.Context, ref Reference, snap Snapshot) (Value, error) {
	switch ref.Kind {
	case KindStatic:
		return Value{Data: ref.Locator}, nil

	case KindTrigger:
		v, ok := ref.Path.Lookup(snap.TriggerData)
		if !ok {
			return Value{}, nil
		}
		return Value{Data: models.CloneValue(v)}, nil

	case KindNode:
		out, ok := snap.Outputs[ref.NodeID]
		if !ok {
			return Value{}, errs.New("params.Resolve", errs.ErrUnresolvedReference,
				"%s: node %s has not produced output", ref.Raw, ref.NodeID)
		}
		v, ok := ref.Path.Lookup(out)
		if !ok {
			return Value{}, errs.New("params.Resolve", errs.ErrUnresolvedReference,
				"%s: node %s output has no field %s", ref.Raw, ref.NodeID, ref.Path)
		}
		return Value{Data: models.CloneValue(v)}, nil
	}

	return r.external(ctx, ref, snap.WorkspaceID)
}

func (r *Resolver) external(ctx context.Context, ref Reference, workspaceID uuid.UUID) (Value, error) {
	r.mu.Lock()
	cached, ok := r.cache[ref.Raw]
	r.mu.Unlock()
	if ok {
		return Value{Data: models.CloneValue(cached.Data), Secret: cached.Secret}, nil
	}

	store, ok := r.stores[ref.Kind]
	if !ok {
		return Value{}, errs.New("params.Resolve", errs.ErrUnresolvedReference,
			"%s: no store serves %s references", ref.Raw, ref.Kind)
	}

	v, err := store.Lookup(ctx, workspaceID, ref)
	if err != nil {
		if errors.Is(err, errs.ErrUnresolvedReference) {
			return Value{}, err
		}
		return Value{}, &errs.Error{
			Op:      "params.Resolve",
			Code:    errs.CodeUnresolvedReference,
			Message: ref.Raw + ": " + err.Error(),
			Err:     errs.ErrUnresolvedReference,
		}
	}

	r.mu.Lock()
	if prev, ok := r.cache[ref.Raw]; ok {
		v = prev
	} else {
		r.cache[ref.Raw] = v
	}
	r.mu.Unlock()

	return Value{Data: models.CloneValue(v.Data), Secret: v.Secret}, nil
}
