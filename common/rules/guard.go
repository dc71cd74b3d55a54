package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// GuardEvaluator evaluates collection guard expressions against candidate
// assets at commit time. Compiled programs are cached per expression.
type GuardEvaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewGuardEvaluator creates a guard evaluator with caching
func NewGuardEvaluator() *GuardEvaluator {
	return &GuardEvaluator{
		cache: make(map[string]cel.Program),
	}
}

// Allow evaluates the rule's guard for the asset. An empty guard always
// allows; a guard that evaluates to false or errors denies the commit.
func (e *GuardEvaluator) Allow(rule *models.CollectionRule, asset *models.Asset, totalLength uint64) error {
	if rule == nil || rule.Guard == "" {
		return nil
	}

	prg, err := e.program(rule.Guard)
	if err != nil {
		return faults.Validation("guard for %s does not compile: %v", rule.Collection, err)
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"asset": guardScope(asset, totalLength),
	})
	if err != nil {
		return faults.Validation("guard evaluation for %s: %v", rule.Collection, err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return faults.Validation("guard for %s did not return a boolean, got %T", rule.Collection, out.Value())
	}
	if !allowed {
		return faults.PermissionDenied("guard for %s denied asset %s", rule.Collection, asset.Key.FullPath)
	}
	return nil
}

func (e *GuardEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()
	if exists {
		return prg, nil
	}

	prg, err := compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *GuardEvaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

func compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("asset", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// guardScope exposes the asset fields guard expressions may inspect
func guardScope(asset *models.Asset, totalLength uint64) map[string]interface{} {
	headers := make(map[string]string, len(asset.Headers))
	for _, h := range asset.Headers {
		headers[h.Name] = h.Value
	}

	return map[string]interface{}{
		"full_path":    asset.Key.FullPath,
		"name":         asset.Key.Name,
		"collection":   asset.Key.Collection,
		"description":  asset.Key.Description,
		"total_length": totalLength,
		"headers":      headers,
	}
}
