package services

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

var templateRegex = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// InputMapper turns a trigger payload into execution trigger data using the
// trigger's input_mapping. Each mapping entry is either an expr expression
// ("payload.user.id") or a string template ("order-{{ payload.id }}").
type InputMapper struct {
	programs sync.Map // expression -> *vm.Program
}

func NewInputMapper() *InputMapper {
	return &InputMapper{}
}

// Check compiles every mapping entry without running it.
func (m *InputMapper) Check(mapping models.JSON) error {
	for key, raw := range mapping {
		source, ok := raw.(string)
		if !ok {
			return errs.New("trigger.InputMapping", errs.ErrInvalidParameter, "mapping %q must be a string expression", key)
		}
		for _, expression := range expressions(source) {
			if _, err := m.compile(expression); err != nil {
				return errs.New("trigger.InputMapping", errs.ErrInvalidParameter, "mapping %q: %v", key, err)
			}
		}
	}
	return nil
}

// Map evaluates mapping against payload. An empty mapping passes the payload through.
func (m *InputMapper) Map(trigger *models.Trigger, payload map[string]interface{}, now time.Time) (models.JSON, error) {
	if len(trigger.InputMapping) == 0 {
		return models.JSON(payload).Clone(), nil
	}

	env := map[string]interface{}{
		"payload": payload,
		"now":     now,
		"trigger": map[string]interface{}{
			"id":   trigger.ID.String(),
			"name": trigger.Name,
			"type": string(trigger.Type),
		},
	}

	out := models.JSON{}
	for key, raw := range trigger.InputMapping {
		source, ok := raw.(string)
		if !ok {
			return nil, errs.New("trigger.InputMapping", errs.ErrInvalidParameter, "mapping %q must be a string expression", key)
		}
		v, err := m.evaluate(source, env)
		if err != nil {
			return nil, errs.New("trigger.InputMapping", errs.ErrInvalidParameter, "mapping %q: %v", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func (m *InputMapper) evaluate(source string, env map[string]interface{}) (interface{}, error) {
	if !strings.Contains(source, "{{") {
		return m.run(source, env)
	}

	var firstErr error
	result := templateRegex.ReplaceAllStringFunc(source, func(match string) string {
		v, err := m.run(templateRegex.FindStringSubmatch(match)[1], env)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	return result, firstErr
}

func (m *InputMapper) run(expression string, env map[string]interface{}) (interface{}, error) {
	program, err := m.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("runtime error: %w", err)
	}
	return result, nil
}

func (m *InputMapper) compile(expression string) (*vm.Program, error) {
	if p, ok := m.programs.Load(expression); ok {
		return p.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	m.programs.Store(expression, program)
	return program, nil
}

func expressions(source string) []string {
	if !strings.Contains(source, "{{") {
		return []string{source}
	}
	var out []string
	for _, match := range templateRegex.FindAllStringSubmatch(source, -1) {
		out = append(out, match[1])
	}
	return out
}
