package domain

// Tier 定义了会员等级。它是 total_points 的派生属性：
// 任何积分变更提交后都必须立即用提交后的总分重新推导，绝不能单独写入。
type Tier string

const (
	TierBronze Tier = "Bronze"
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
)

// 等级阈值是全局固定的，与各餐厅自己的 reward_thresholds 无关。
const (
	goldThreshold   = 300
	silverThreshold = 100
)

// TierFor 从积分总数推导等级。纯函数，必须作用于事务内提交后的总分，
// 不能用客户端读到的快照估算（快照和提交之间可能已有并发变更）。
func TierFor(totalPoints int64) Tier {
	switch {
	case totalPoints >= goldThreshold:
		return TierGold
	case totalPoints >= silverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}
