// internal/service/loyalty/domain/threshold.go
package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Thresholds 是餐厅的奖励阈值表：积分阈值 -> 奖励标签。
// 管理端以 "1000:20%,2000:30%" 的文本格式提交，存储时 key 也是文本，
// 但比较永远按整数进行（"200" 和 "1000" 按数值排序而不是字典序）。
type Thresholds map[int64]string

// ParseThresholds 解析管理端提交的阈值串。任何一段格式不对、
// 阈值为负或出现重复阈值都整体拒绝。
func ParseThresholds(raw string) (Thresholds, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidThresholds
	}
	t := Thresholds{}
	for _, item := range strings.Split(raw, ",") {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, ErrInvalidThresholds
		}
		points, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || points < 0 {
			return nil, ErrInvalidThresholds
		}
		reward := strings.TrimSpace(parts[1])
		if reward == "" {
			return nil, ErrInvalidThresholds
		}
		if _, dup := t[points]; dup {
			return nil, ErrInvalidThresholds
		}
		t[points] = reward
	}
	return t, nil
}

// Encode 还原为 "points:reward,..." 的存储格式，阈值升序。
func (t Thresholds) Encode() string {
	var b strings.Builder
	for i, p := range t.sorted() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(p, 10))
		b.WriteByte(':')
		b.WriteString(t[p])
	}
	return b.String()
}

// CurrentReward 返回 total 当前解锁的奖励：≤ total 的最高阈值对应的标签。
// 没有解锁任何档位时 ok 为 false。
func (t Thresholds) CurrentReward(total int64) (string, bool) {
	var best int64 = -1
	for p := range t {
		if p <= total && p > best {
			best = p
		}
	}
	if best < 0 {
		return "", false
	}
	return t[best], true
}

// NextReward 返回 total 之上最近的一档：最低的 > total 的阈值及其奖励。
func (t Thresholds) NextReward(total int64) (int64, string, bool) {
	found := false
	var next int64
	for p := range t {
		if p > total && (!found || p < next) {
			next = p
			found = true
		}
	}
	if !found {
		return 0, "", false
	}
	return next, t[next], true
}

// Max 返回最高阈值；空表返回 ok=false。
func (t Thresholds) Max() (int64, bool) {
	found := false
	var max int64
	for p := range t {
		if !found || p > max {
			max = p
			found = true
		}
	}
	return max, found
}

func (t Thresholds) sorted() []int64 {
	keys := make([]int64, 0, len(t))
	for p := range t {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
