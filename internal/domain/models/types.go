package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// JSON type for JSONB columns
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSON: not a byte slice")
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray type for JSONB array columns
type JSONArray []interface{}

func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONArray: not a byte slice")
	}
	return json.Unmarshal(bytes, j)
}

// StringArray type for text[] columns
type StringArray = pq.StringArray

// Clone returns a deep copy of j so callers can hand it out without sharing
// nested maps or slices.
func (j JSON) Clone() JSON {
	if j == nil {
		return nil
	}
	return cloneValue(map[string]interface{}(j)).(map[string]interface{})
}

// CloneValue deep-copies the map/slice structure of a decoded JSON value.
func CloneValue(v interface{}) interface{} {
	return cloneValue(v)
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case JSON:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case JSONArray:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
