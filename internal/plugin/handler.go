package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/releaser/internal/config"
	"github.com/example/releaser/internal/semver"
	"github.com/spf13/cast"
)

// Handler answers one method call of a script or executable plugin. The
// request carries namespace, options, context and call arguments; the
// response may carry:
//
//	result   the answer of a query method
//	context  values merged into the shared release context
//	skip     true to suppress the after hooks of a lifecycle step
//	enabled  the answer of isEnabled
//	disable  internal plugins replaced, for disablePlugin
//	error    a failure message
type Handler func(ctx context.Context, method string, request map[string]any) (map[string]any, error)

// HandlerKind adapts h to a plugin Kind named name.
func HandlerKind(name string, h Handler) Kind {
	return Kind{
		Name: name,
		IsEnabled: func(ctx context.Context, options any) (bool, error) {
			if IsFalse(options) {
				return false, nil
			}
			resp, err := h(ctx, "isEnabled", map[string]any{"options": options})
			if err != nil {
				return false, err
			}
			if v, ok := resp["enabled"]; ok {
				return cast.ToBoolE(v)
			}
			return true, nil
		},
		DisablePlugin: func(ctx context.Context, options any) ([]string, error) {
			resp, err := h(ctx, "disablePlugin", map[string]any{"options": options})
			if err != nil {
				return nil, err
			}
			if msg := cast.ToString(resp["error"]); msg != "" {
				return nil, errors.New(msg)
			}
			return config.ToStringSlice(resp["disable"]), nil
		},
		New: func(p Params) (Plugin, error) {
			return &handlerPlugin{Base: NewBase(p), handle: h}, nil
		},
	}
}

type handlerPlugin struct {
	*Base
	handle Handler
}

func (p *handlerPlugin) call(ctx context.Context, method string, args map[string]any) (map[string]any, error) {
	req := map[string]any{
		"namespace": p.Namespace(),
		"options":   p.Options(),
		"context":   p.Config().Context(),
	}
	for k, v := range args {
		req[k] = v
	}
	p.Log().V(1).Info("plugin call", "method", method)
	resp, err := p.handle(ctx, method, req)
	if err != nil {
		return nil, fmt.Errorf("plugin %s %s: %w", p.Namespace(), method, err)
	}
	if values, ok := resp["context"].(map[string]any); ok {
		p.Config().Merge(values)
	}
	if msg := cast.ToString(resp["error"]); msg != "" {
		return nil, fmt.Errorf("plugin %s %s: %s", p.Namespace(), method, msg)
	}
	return resp, nil
}

func (p *handlerPlugin) lifecycle(ctx context.Context, method string, args map[string]any) error {
	resp, err := p.call(ctx, method, args)
	if err != nil {
		return err
	}
	if cast.ToBool(resp["skip"]) {
		return ErrSkip
	}
	return nil
}

func (p *handlerPlugin) query(ctx context.Context, method string, args map[string]any) (string, error) {
	resp, err := p.call(ctx, method, args)
	if err != nil {
		return "", err
	}
	return cast.ToString(resp["result"]), nil
}

func baseArgs(base IncrementBase) map[string]any {
	return map[string]any{"latestVersion": base.LatestVersion, "increment": base.Increment.String()}
}

func (p *handlerPlugin) Init(ctx context.Context) error {
	return p.lifecycle(ctx, StageInit, nil)
}

func (p *handlerPlugin) GetName(ctx context.Context) (string, error) {
	return p.query(ctx, "getName", nil)
}

func (p *handlerPlugin) GetLatestVersion(ctx context.Context) (*LatestVersion, error) {
	resp, err := p.call(ctx, "getLatestVersion", nil)
	if err != nil {
		return nil, err
	}
	switch v := resp["result"].(type) {
	case string:
		if v != "" {
			return &LatestVersion{Version: v}, nil
		}
	case map[string]any:
		lv := &LatestVersion{
			Version:    cast.ToString(v["version"]),
			TaggerName: cast.ToString(v["taggerName"]),
			TaggerDate: cast.ToString(v["taggerDate"]),
		}
		if lv.Version != "" {
			return lv, nil
		}
	}
	return nil, nil
}

func (p *handlerPlugin) GetIncrement(ctx context.Context, base IncrementBase) (semver.Increment, error) {
	resp, err := p.call(ctx, "getIncrement", baseArgs(base))
	if err != nil {
		return semver.Increment{}, err
	}
	if resp["result"] == nil {
		return semver.Increment{}, nil
	}
	return semver.ParseIncrement(resp["result"]), nil
}

func (p *handlerPlugin) GetIncrementedVersionCI(ctx context.Context, base IncrementBase) (string, error) {
	return p.query(ctx, "getIncrementedVersionCI", baseArgs(base))
}

func (p *handlerPlugin) GetIncrementedVersion(ctx context.Context, base IncrementBase) (string, error) {
	return p.query(ctx, "getIncrementedVersion", baseArgs(base))
}

func (p *handlerPlugin) BeforeBump(ctx context.Context) error {
	return p.lifecycle(ctx, StageBeforeBump, nil)
}

func (p *handlerPlugin) Bump(ctx context.Context, version string) error {
	return p.lifecycle(ctx, StageBump, map[string]any{"version": version})
}

func (p *handlerPlugin) BeforeRelease(ctx context.Context) error {
	return p.lifecycle(ctx, StageBeforeRelease, nil)
}

func (p *handlerPlugin) Release(ctx context.Context) error {
	return p.lifecycle(ctx, StageRelease, nil)
}

func (p *handlerPlugin) AfterRelease(ctx context.Context) error {
	return p.lifecycle(ctx, StageAfterRelease, nil)
}
