package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecPrefix is prepended to bare plugin names when searching PATH.
const ExecPrefix = "releaser-"

// ExecLoader runs executable plugins. Each method call starts the executable
// with the method name as its only argument, writes the request as JSON to
// stdin and reads a JSON response from stdout. Empty output means no answer.
type ExecLoader struct{}

// Load implements Loader.
func (ExecLoader) Load(_ context.Context, name, dir string) (Kind, bool, error) {
	path := pluginPath(name, dir)
	fi, err := os.Stat(path)
	switch {
	case err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0:
		return HandlerKind(name, execHandler(path)), true, nil
	case err != nil && !os.IsNotExist(err):
		return Kind{}, false, err
	}
	if strings.ContainsAny(name, `/\`) {
		return Kind{}, false, nil
	}
	if found, err := exec.LookPath(ExecPrefix + name); err == nil {
		return HandlerKind(name, execHandler(found)), true, nil
	}
	return Kind{}, false, nil
}

func execHandler(path string) Handler {
	return func(ctx context.Context, method string, request map[string]any) (map[string]any, error) {
		payload, err := json.Marshal(request)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		cmd := exec.CommandContext(ctx, path, method)
		cmd.Stdin = bytes.NewReader(payload)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%s %s: %s", path, method, msg)
			}
			return nil, fmt.Errorf("%s %s: %w", path, method, err)
		}
		out := bytes.TrimSpace(stdout.Bytes())
		if len(out) == 0 {
			return nil, nil
		}
		var resp map[string]any
		if err := json.Unmarshal(out, &resp); err != nil {
			return nil, fmt.Errorf("%s %s: decode response: %w", path, method, err)
		}
		return resp, nil
	}
}
