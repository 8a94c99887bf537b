package port

import "restrohub/internal/service/loyalty/domain"

// ClaimRuleEngine 评估餐厅配置的领取资格规则。
// ruleDefinition 为空串时实现应直接放行。
type ClaimRuleEngine interface {
	Evaluate(ruleDefinition string, fact domain.ClaimFact) (bool, error)
}
