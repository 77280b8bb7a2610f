// Package runtime runs node scripts in a goja JavaScript sandbox.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedLanguage is returned for scripts the sandbox cannot run.
var ErrUnsupportedLanguage = errors.New("unsupported script language")

// Sandbox runs a script body as a function of its resolved inputs:
//
//	function (inputs) { <source> }
//
// The returned object becomes the node output. Non-object results are
// wrapped as {"result": value}.
type Sandbox struct {
	timeLimit time.Duration
	pool      *vmPool
}

type Config struct {
	// TimeLimit caps one run regardless of the node deadline. Zero means none.
	TimeLimit time.Duration
	// MaxVMs bounds the idle VM pool.
	MaxVMs        int
	EnableConsole bool
}

func DefaultConfig() Config {
	return Config{
		MaxVMs:        10,
		EnableConsole: true,
	}
}

func NewSandbox(cfg Config) *Sandbox {
	if cfg.MaxVMs <= 0 {
		cfg.MaxVMs = 10
	}
	return &Sandbox{
		timeLimit: cfg.TimeLimit,
		pool:      newVMPool(cfg.MaxVMs, cfg.EnableConsole),
	}
}

// Run executes script with inputs. It returns when the script finishes or
// ctx is done, whichever comes first; an interrupted VM is discarded.
func (s *Sandbox) Run(ctx context.Context, script *models.Script, inputs map[string]interface{}) (map[string]interface{}, error) {
	if script.Language != "" && !strings.EqualFold(script.Language, models.ScriptLanguageJavaScript) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, script.Language)
	}

	vm := s.pool.get()

	if s.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeLimit)
		defer cancel()
	}

	if err := vm.Set("inputs", inputs); err != nil {
		s.pool.put(vm)
		return nil, fmt.Errorf("failed to set inputs: %w", err)
	}

	var result interface{}
	var runErr error

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("sandbox panic: %v", r)
			}
		}()

		val, err := vm.RunString("(function (inputs) {\n" + script.Source + "\n})(inputs)")
		if err != nil {
			runErr = scriptError(err)
			return
		}
		result = exportValue(val)
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("context done")
		<-done
		return nil, ctx.Err()
	case <-done:
	}

	s.pool.put(vm)
	if runErr != nil {
		return nil, runErr
	}
	return toOutput(result), nil
}

func scriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return fmt.Errorf("script error: %s", exc.Value().String())
	}
	return fmt.Errorf("script error: %w", err)
}

func toOutput(result interface{}) map[string]interface{} {
	switch v := result.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return v
	}
	return map[string]interface{}{"result": result}
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

type vmPool struct {
	pool          chan *goja.Runtime
	enableConsole bool
}

func newVMPool(size int, enableConsole bool) *vmPool {
	return &vmPool{
		pool:          make(chan *goja.Runtime, size),
		enableConsole: enableConsole,
	}
}

func (p *vmPool) create() *goja.Runtime {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	// Remove dangerous globals
	_ = vm.Set("eval", goja.Undefined())
	_ = vm.Set("Function", goja.Undefined())

	if p.enableConsole {
		console := vm.NewObject()
		logFn := func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = a.String()
			}
			log.Debug().Str("source", "script").Msg(strings.Join(args, " "))
			return goja.Undefined()
		}
		for _, name := range []string{"log", "info", "warn", "error"} {
			_ = console.Set(name, logFn)
		}
		_ = vm.Set("console", console)
	}

	return vm
}

func (p *vmPool) get() *goja.Runtime {
	select {
	case vm := <-p.pool:
		return vm
	default:
		return p.create()
	}
}

func (p *vmPool) put(vm *goja.Runtime) {
	vm.ClearInterrupt()
	_ = vm.Set("inputs", goja.Undefined())

	select {
	case p.pool <- vm:
	default:
		// Pool is full, discard VM
	}
}
