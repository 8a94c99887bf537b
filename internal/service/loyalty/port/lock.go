package port

// DistributedLock 是一把针对具体资源的锁。
type DistributedLock interface {
	Lock() error
	Unlock() error
}

// LockFactory 按资源名创建分布式锁。阈值迁移用它保证同一家餐厅
// 同时只有一个迁移任务在跑。
type LockFactory interface {
	NewLock(resourceID string) DistributedLock
}
