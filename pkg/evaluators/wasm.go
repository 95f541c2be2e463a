package evaluators

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/smalls/arcs/pkg/recipe"
	"github.com/smalls/arcs/pkg/strategizer"
)

// Plugin defaults.
const (
	DefaultPluginTimeout     = 5 * time.Second
	DefaultPluginMemoryPages = 256 // 16MB
)

// Plugin scores candidates with a WebAssembly module. The module must export
//
//	memory
//	malloc(size i32) i32
//	free(ptr i32)
//	fitness(ptr i32, len i32) i64
//
// fitness receives a JSON request {"recipe": ..., "context": {...}} and
// returns (ptr << 32 | len) of a JSON reply written to its memory:
// {"fitness": 0.7}, {"applicable": false} or {"error": "..."}. The host
// provides env.log(ptr, len) to write a message to the log.
type Plugin struct {
	name    string
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	malloc  api.Function
	free    api.Function
	fitness api.Function

	timeout time.Duration
	logger  zerolog.Logger

	// mu serializes calls; a module instance is not safe for concurrent use.
	mu sync.Mutex
}

// PluginConfig configures the WebAssembly runtime of a Plugin.
type PluginConfig struct {
	// Timeout bounds a single fitness call.
	Timeout time.Duration

	// MemoryLimitPages caps the module's memory in 64KB pages.
	MemoryLimitPages uint32

	Logger zerolog.Logger
}

// pluginRequest is the JSON document passed to the fitness export.
type pluginRequest struct {
	Recipe  recipe.Document        `json:"recipe"`
	Context map[string]interface{} `json:"context"`
}

// pluginReply is the JSON document returned by the fitness export.
type pluginReply struct {
	Fitness    *float64 `json:"fitness"`
	Applicable *bool    `json:"applicable"`
	Error      string   `json:"error"`
}

// LoadPlugin reads a WebAssembly module from a file and instantiates it.
func LoadPlugin(ctx context.Context, path string, cfg PluginConfig) (*Plugin, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NewPlugin(ctx, name, wasm, cfg)
}

// NewPlugin instantiates a WebAssembly fitness module.
func NewPlugin(ctx context.Context, name string, wasm []byte, cfg PluginConfig) (*Plugin, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultPluginTimeout
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = DefaultPluginMemoryPages
	}

	p := &Plugin{
		name:    name,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With().Str("plugin", name).Logger(),
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	p.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, p.runtime); err != nil {
		_ = p.runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	_, err := p.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, ptr, length uint32) {
			msg, ok := mod.Memory().Read(ptr, length)
			if !ok {
				p.logger.Warn().Msg("Plugin log message out of range")
				return
			}
			p.logger.Debug().Str("output", string(msg)).Msg("Plugin log")
		}).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		_ = p.runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	module, err := p.runtime.Instantiate(ctx, wasm)
	if err != nil {
		_ = p.runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate plugin %s: %w", name, err)
	}
	p.module = module

	if err := p.bind(); err != nil {
		_ = p.runtime.Close(ctx)
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	return p, nil
}

func (p *Plugin) bind() error {
	if p.memory = p.module.Memory(); p.memory == nil {
		return fmt.Errorf("module does not export memory")
	}
	exports := []struct {
		name string
		fn   *api.Function
	}{
		{"malloc", &p.malloc},
		{"free", &p.free},
		{"fitness", &p.fitness},
	}
	for _, e := range exports {
		if *e.fn = p.module.ExportedFunction(e.name); *e.fn == nil {
			return fmt.Errorf("module does not export %s function", e.name)
		}
	}
	return nil
}

// Name implements strategizer.Evaluator.
func (p *Plugin) Name() string { return "plugin:" + p.name }

// Evaluate implements strategizer.Evaluator. A plugin error aborts the round.
func (p *Plugin) Evaluate(ctx context.Context, in strategizer.Input, candidates []*strategizer.Individual) ([]strategizer.Opinion, error) {
	opinions := make([]strategizer.Opinion, len(candidates))
	for i, ind := range candidates {
		op, err := p.call(ctx, ind.Recipe, map[string]interface{}{
			"generation": in.Generation + 1,
			"score":      ind.Score,
		})
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", short(ind.Hash()), err)
		}
		opinions[i] = op
	}
	return opinions, nil
}

// EvaluateRecipe scores one recipe outside of planning.
func (p *Plugin) EvaluateRecipe(ctx context.Context, r *recipe.Recipe) (strategizer.Opinion, error) {
	return p.call(ctx, r, map[string]interface{}{"generation": 0, "score": 0.0})
}

func (p *Plugin) call(ctx context.Context, r *recipe.Recipe, info map[string]interface{}) (strategizer.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return strategizer.NotApplicable, err
	}

	req, err := json.Marshal(pluginRequest{Recipe: r.Document(), Context: info})
	if err != nil {
		return strategizer.NotApplicable, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	out, err := p.invoke(ctx, req)
	p.mu.Unlock()
	if err != nil {
		return strategizer.NotApplicable, fmt.Errorf("fitness failed: %w", err)
	}

	var reply pluginReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return strategizer.NotApplicable, fmt.Errorf("failed to decode reply: %w", err)
	}
	if reply.Error != "" {
		return strategizer.NotApplicable, fmt.Errorf("fitness failed: %s", reply.Error)
	}
	if (reply.Applicable != nil && !*reply.Applicable) || reply.Fitness == nil {
		return strategizer.NotApplicable, nil
	}

	f := *reply.Fitness
	if math.IsNaN(f) {
		return strategizer.NotApplicable, fmt.Errorf("fitness returned NaN")
	}
	return strategizer.Opinion{Fitness: math.Max(0, math.Min(1, f)), Applicable: true}, nil
}

// invoke copies input into the module, calls fitness and copies the reply
// out. The reply buffer is released with free.
func (p *Plugin) invoke(ctx context.Context, input []byte) ([]byte, error) {
	results, err := p.malloc.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("malloc failed: %w", err)
	}
	inPtr := uint32(results[0])
	if inPtr == 0 {
		return nil, fmt.Errorf("malloc returned null pointer")
	}
	defer p.release(ctx, inPtr)

	if !p.memory.Write(inPtr, input) {
		return nil, fmt.Errorf("failed to write request to module memory")
	}

	results, err = p.fitness.Call(ctx, uint64(inPtr), uint64(len(input)))
	if err != nil {
		return nil, err
	}

	outPtr, outLen := uint32(results[0]>>32), uint32(results[0])
	if outLen == 0 {
		return nil, fmt.Errorf("empty reply")
	}
	view, ok := p.memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("reply out of module memory range")
	}
	out := make([]byte, len(view))
	copy(out, view)
	p.release(ctx, outPtr)

	return out, nil
}

func (p *Plugin) release(ctx context.Context, ptr uint32) {
	if _, err := p.free.Call(ctx, uint64(ptr)); err != nil {
		p.logger.Warn().Err(err).Msg("Plugin free failed")
	}
}

// Close releases the module and its runtime.
func (p *Plugin) Close(ctx context.Context) error {
	return p.runtime.Close(ctx)
}

var _ strategizer.Evaluator = (*Plugin)(nil)
