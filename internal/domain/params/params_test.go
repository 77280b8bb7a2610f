package params

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	nodeID := uuid.New()
	credID := uuid.New()

	tests := []struct {
		input string
		check func(t *testing.T, ref Reference)
	}{
		{"${static:hello world}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindStatic, ref.Kind)
			assert.Equal(t, "hello world", ref.Locator)
		}},
		{"${trigger:user.emails[1]}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindTrigger, ref.Kind)
			assert.Equal(t, Path{{Key: "user"}, {Key: "emails"}, {Index: 1, IsIndex: true}}, ref.Path)
			assert.Equal(t, "user.emails[1]", ref.Path.String())
		}},
		{"${node:" + nodeID.String() + ".result}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindNode, ref.Kind)
			assert.Equal(t, nodeID, ref.NodeID)
			assert.Equal(t, "result", ref.Path.String())
		}},
		{"${value:API_BASE_URL}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindValue, ref.Kind)
			assert.Equal(t, "API_BASE_URL", ref.Locator)
		}},
		{"${credential:" + credID.String() + "}", func(t *testing.T, ref Reference) {
			assert.Equal(t, credID, ref.ID)
			assert.Empty(t, ref.Field)
		}},
		{"${credential:" + credID.String() + ".password}", func(t *testing.T, ref Reference) {
			assert.Equal(t, credID, ref.ID)
			assert.Equal(t, "password", ref.Field)
		}},
		{"${database:" + credID.String() + "}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindDatabase, ref.Kind)
			assert.Equal(t, credID, ref.ID)
		}},
		{"${file:reports/2024/q1.csv}", func(t *testing.T, ref Reference) {
			assert.Equal(t, KindFile, ref.Kind)
			assert.Equal(t, "reports/2024/q1.csv", ref.Locator)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, ref.String())
			tt.check(t, ref)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	id := uuid.NewString()
	inputs := []string{
		"",
		"plain",
		"${}",
		"${node}",
		"${node:}",
		"${unknown:x}",
		"${trigger:a.b",
		"${trigger:a..b}",
		"${trigger:a[x]}",
		"${node:not-a-uuid.result}",
		"${node:" + id + "}",
		"${node:" + id + ".}",
		"${credential:" + id + ".}",
		"${value:a.b}",
		"${file:/etc/passwd}",
		"${trigger:${trigger:x}}",
		"prefix ${static:x}",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.ErrorIs(t, err, errs.ErrInvalidReference)
		})
	}
}

func TestPathLookup(t *testing.T) {
	data := map[string]interface{}{
		"user": map[string]interface{}{
			"tags": []interface{}{"a", "b"},
		},
	}
	v, ok := Path{{Key: "user"}, {Key: "tags"}, {Index: 1, IsIndex: true}}.Lookup(data)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = Path{{Key: "user"}, {Key: "tags"}, {Index: 5, IsIndex: true}}.Lookup(data)
	assert.False(t, ok)
	_, ok = Path{{Key: "user"}, {Key: "missing"}}.Lookup(data)
	assert.False(t, ok)
}

func nodeWith(inputs models.ParameterMap) *models.Node {
	return &models.Node{ID: uuid.New(), Name: "consumer", InputParams: inputs}
}

func TestResolve_NodeReference(t *testing.T) {
	upstream := uuid.New()
	node := nodeWith(models.ParameterMap{
		"in": {Type: models.ParamTypeJSON, Value: "${node:" + upstream.String() + ".result}", Required: true},
	})
	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), node, Snapshot{})
	assert.ErrorIs(t, err, errs.ErrUnresolvedReference)

	snap := Snapshot{Outputs: map[uuid.UUID]map[string]interface{}{
		upstream: {"result": map[string]interface{}{"count": float64(2)}},
	}}
	first, err := r.Resolve(context.Background(), node, snap)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), node, snap)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"count": float64(2)}, first.Values["in"])
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, "${node:"+upstream.String()+".result}", first.References["in"])

	// Mutating a result must not leak into the snapshot it came from.
	first.Values["in"].(map[string]interface{})["count"] = float64(99)
	assert.Equal(t, float64(2), snap.Outputs[upstream]["result"].(map[string]interface{})["count"])
}

func TestResolve_MissingField(t *testing.T) {
	upstream := uuid.New()
	node := nodeWith(models.ParameterMap{
		"in": {Type: models.ParamTypeString, Value: "${node:" + upstream.String() + ".nope}"},
	})
	snap := Snapshot{Outputs: map[uuid.UUID]map[string]interface{}{upstream: {"result": "x"}}}

	_, err := NewResolver(nil).Resolve(context.Background(), node, snap)
	assert.ErrorIs(t, err, errs.ErrUnresolvedReference)
}

func TestResolve_DefaultsAndRequired(t *testing.T) {
	tests := []struct {
		name    string
		spec    models.ParameterSpec
		want    interface{}
		present bool
		wantErr error
	}{
		{"literal", models.ParameterSpec{Type: models.ParamTypeInteger, Value: float64(5)}, float64(5), true, nil},
		{"default", models.ParameterSpec{Type: models.ParamTypeString, Default: "fallback"}, "fallback", true, nil},
		{"optional omitted", models.ParameterSpec{Type: models.ParamTypeString}, nil, false, nil},
		{"required missing", models.ParameterSpec{Type: models.ParamTypeString, Required: true}, nil, false, errs.ErrMissingRequiredParameter},
		{"missing trigger field uses default", models.ParameterSpec{Type: models.ParamTypeString, Value: "${trigger:absent}", Default: "d"}, "d", true, nil},
		{"missing trigger field required", models.ParameterSpec{Type: models.ParamTypeString, Value: "${trigger:absent}", Required: true}, nil, false, errs.ErrMissingRequiredParameter},
		{"trigger field", models.ParameterSpec{Type: models.ParamTypeString, Value: "${trigger:user.name}"}, "ada", true, nil},
		{"static", models.ParameterSpec{Type: models.ParamTypeString, Value: "${static:literal text}"}, "literal text", true, nil},
		{"type mismatch", models.ParameterSpec{Type: models.ParamTypeNumber, Value: "${trigger:user.name}"}, nil, false, errs.ErrInvalidParameter},
	}

	snap := Snapshot{TriggerData: map[string]interface{}{
		"user": map[string]interface{}{"name": "ada"},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewResolver(nil).Resolve(context.Background(), nodeWith(models.ParameterMap{"p": tt.spec}), snap)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			v, ok := res.Values["p"]
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestResolve_SecretsAreRedacted(t *testing.T) {
	credID := uuid.New()
	var calls int32
	stores := map[Kind]Store{
		KindCredential: StoreFunc(func(_ context.Context, _ uuid.UUID, ref Reference) (Value, error) {
			atomic.AddInt32(&calls, 1)
			return Value{Data: "s3cr3t", Secret: true}, nil
		}),
		KindValue: StoreFunc(func(_ context.Context, _ uuid.UUID, ref Reference) (Value, error) {
			return Value{Data: "https://api.example.com"}, nil
		}),
	}
	ref := "${credential:" + credID.String() + ".password}"
	node := nodeWith(models.ParameterMap{
		"password": {Type: models.ParamTypeString, Value: ref},
		"base_url": {Type: models.ParamTypeString, Value: "${value:BASE_URL}"},
	})

	r := NewResolver(stores)
	res, err := r.Resolve(context.Background(), node, Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", res.Values["password"])
	assert.Equal(t, ref, res.Snapshot["password"])
	assert.Equal(t, "https://api.example.com", res.Snapshot["base_url"])
	assert.Equal(t, []string{"password"}, res.Redacted)

	_, err = r.Resolve(context.Background(), node, Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResolve_StoreErrorsAreUnresolved(t *testing.T) {
	stores := map[Kind]Store{
		KindValue: StoreFunc(func(context.Context, uuid.UUID, Reference) (Value, error) {
			return Value{}, errors.New("variable not found")
		}),
	}
	node := nodeWith(models.ParameterMap{"p": {Type: models.ParamTypeString, Value: "${value:MISSING}"}})

	_, err := NewResolver(stores).Resolve(context.Background(), node, Snapshot{})
	assert.ErrorIs(t, err, errs.ErrUnresolvedReference)

	// No store registered for files.
	node = nodeWith(models.ParameterMap{"p": {Type: models.ParamTypeString, Value: "${file:a.txt}"}})
	_, err = NewResolver(stores).Resolve(context.Background(), node, Snapshot{})
	assert.ErrorIs(t, err, errs.ErrUnresolvedReference)
}
