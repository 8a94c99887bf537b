// internal/service/loyalty/infrastructure/rule/cel_rule_engine_test.go
package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restrohub/internal/service/loyalty/domain"
)

func TestCelRuleEngine_EmptyRuleAllows(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	ok, err := engine.Evaluate("", domain.ClaimFact{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCelRuleEngine_Evaluate(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	rule := `spend_amount >= 100.0 && tier != 'Bronze'`

	ok, err := engine.Evaluate(rule, domain.ClaimFact{SpendAmount: 150, Tier: "Silver"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Evaluate(rule, domain.ClaimFact{SpendAmount: 150, Tier: "Bronze"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = engine.Evaluate(rule, domain.ClaimFact{SpendAmount: 50, Tier: "Gold"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCelRuleEngine_AllFactVariables(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	ok, err := engine.Evaluate(
		`offer == 'Free Coffee' && total_points > 100 && spin_count < 5`,
		domain.ClaimFact{Offer: "Free Coffee", TotalPoints: 200, SpinCount: 2},
	)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCelRuleEngine_CompileError(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`undeclared_var > 10`, domain.ClaimFact{})
	assert.Error(t, err)
}

func TestCelRuleEngine_NonBoolResult(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	_, err = engine.Evaluate(`total_points + 1`, domain.ClaimFact{TotalPoints: 10})
	assert.Error(t, err)
}

func TestCelRuleEngine_CachesPrograms(t *testing.T) {
	engine, err := NewCelRuleEngine()
	require.NoError(t, err)

	rule := `tier == 'Gold'`
	_, err = engine.Evaluate(rule, domain.ClaimFact{Tier: "Gold"})
	require.NoError(t, err)

	engine.mu.RLock()
	_, cached := engine.programs[rule]
	engine.mu.RUnlock()
	assert.True(t, cached)
}
