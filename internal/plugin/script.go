package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const scriptEntryPoint = "Handle"

// ScriptLoader interprets .go files with yaegi. A script plugin declares
//
//	func Handle(method string, request map[string]any) (map[string]any, error)
//
// and receives every plugin method through it.
type ScriptLoader struct{}

// Load implements Loader.
func (ScriptLoader) Load(_ context.Context, name, dir string) (Kind, bool, error) {
	if filepath.Ext(name) != ".go" {
		return Kind{}, false, nil
	}
	h, err := loadScript(pluginPath(name, dir))
	if err != nil {
		return Kind{}, false, err
	}
	return HandlerKind(name, h), true, nil
}

func loadScript(path string) (Handler, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, err
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}
	fn, err := i.Eval(scriptEntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%s must define %s(method string, request map[string]any) (map[string]any, error): %w", path, scriptEntryPoint, err)
	}
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: %s is not a function", path, scriptEntryPoint)
	}
	var mu sync.Mutex
	return func(_ context.Context, method string, request map[string]any) (map[string]any, error) {
		mu.Lock()
		defer mu.Unlock()
		return invokeScript(fn, method, request)
	}, nil
}

func invokeScript(fn reflect.Value, method string, request map[string]any) (resp map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s(%q) panicked: %v", scriptEntryPoint, method, r)
		}
	}()
	results := fn.Call([]reflect.Value{reflect.ValueOf(method), reflect.ValueOf(request)})
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]any[, error])", scriptEntryPoint)
	}
	if len(results) == 2 && !results[1].IsNil() {
		if e, ok := results[1].Interface().(error); ok {
			return nil, e
		}
		return nil, fmt.Errorf("%s returned a non-error second value", scriptEntryPoint)
	}
	out := results[0]
	if out.Kind() == reflect.Map && out.IsNil() {
		return nil, nil
	}
	m, ok := out.Interface().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must return map[string]any, got %s", scriptEntryPoint, out.Type())
	}
	return m, nil
}
