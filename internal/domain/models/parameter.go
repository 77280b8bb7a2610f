package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"sort"
)

// ParamType tags a parameter declaration with the shape of its value.
type ParamType string

const (
	ParamTypeString  ParamType = "string"
	ParamTypeNumber  ParamType = "number"
	ParamTypeInteger ParamType = "integer"
	ParamTypeBoolean ParamType = "boolean"
	ParamTypeObject  ParamType = "object"
	ParamTypeArray   ParamType = "array"
	// ParamTypeJSON passes any decoded JSON value through untouched.
	ParamTypeJSON ParamType = "json"
)

func (t ParamType) Valid() bool {
	switch t {
	case ParamTypeString, ParamTypeNumber, ParamTypeInteger, ParamTypeBoolean,
		ParamTypeObject, ParamTypeArray, ParamTypeJSON:
		return true
	}
	return false
}

// ParameterSpec declares one input or output parameter of a node.
// Value holds either a literal of the declared type or a reference string.
type ParameterSpec struct {
	Type        ParamType   `json:"type"`
	Value       interface{} `json:"value,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
	IsReference bool        `json:"is_reference,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Accepts reports whether v is a literal of the declared type.
func (p ParameterSpec) Accepts(v interface{}) bool {
	if v == nil {
		return true
	}
	switch p.Type {
	case ParamTypeString:
		_, ok := v.(string)
		return ok
	case ParamTypeNumber:
		_, ok := toFloat(v)
		return ok
	case ParamTypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case ParamTypeBoolean:
		_, ok := v.(bool)
		return ok
	case ParamTypeObject:
		switch v.(type) {
		case map[string]interface{}, JSON:
			return true
		}
		return false
	case ParamTypeArray:
		switch v.(type) {
		case []interface{}, JSONArray:
			return true
		}
		return false
	case ParamTypeJSON:
		return true
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ParameterMap is stored as a JSONB object keyed by parameter name.
type ParameterMap map[string]ParameterSpec

func (m ParameterMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *ParameterMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan ParameterMap: not a byte slice")
	}
	return json.Unmarshal(bytes, m)
}

// Names returns the parameter names in sorted order.
func (m ParameterMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
