// internal/service/loyalty/infrastructure/rule/cel_rule_engine.go
package rule

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"restrohub/internal/service/loyalty/domain"
	"restrohub/internal/service/loyalty/port"
)

// CelRuleEngine 是 port.ClaimRuleEngine 的 CEL 实现。
// 餐厅在配置里写一条 CEL 表达式（比如 "spend_amount >= 100.0 &&
// tier != 'Bronze'"），领取时对事实求值。编译结果按表达式缓存。
type CelRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCelRuleEngine() (*CelRuleEngine, error) {
	// 变量名与 ClaimFact 的 json 字段一一对应
	env, err := cel.NewEnv(
		cel.Variable("offer", cel.StringType),
		cel.Variable("spend_amount", cel.DoubleType),
		cel.Variable("total_points", cel.IntType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("spin_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CelRuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 对事实求值。空规则直接放行。
func (e *CelRuleEngine) Evaluate(ruleDefinition string, fact domain.ClaimFact) (bool, error) {
	if ruleDefinition == "" {
		return true, nil
	}

	prg, err := e.program(ruleDefinition)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"offer":        fact.Offer,
		"spend_amount": fact.SpendAmount,
		"total_points": fact.TotalPoints,
		"tier":         string(fact.Tier),
		"spin_count":   fact.SpinCount,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate claim rule: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("claim rule must evaluate to bool, got %T", out.Value())
	}
	return result, nil
}

func (e *CelRuleEngine) program(ruleDefinition string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[ruleDefinition]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(ruleDefinition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile claim rule: %w", issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim rule program: %w", err)
	}

	e.mu.Lock()
	e.programs[ruleDefinition] = prg
	e.mu.Unlock()
	return prg, nil
}

var _ port.ClaimRuleEngine = (*CelRuleEngine)(nil)
