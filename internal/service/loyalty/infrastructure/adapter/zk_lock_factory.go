// internal/service/loyalty/infrastructure/adapter/zk_lock_factory.go
package adapter

import (
	"fmt"

	"restrohub/internal/service/loyalty/port"
	"restrohub/internal/zookeeper"
)

// ZkLockFactory 基于 ZooKeeper 临时顺序节点实现 port.LockFactory。
// 阈值迁移用它保证同一家餐厅同时只有一个迁移任务在跑。
type ZkLockFactory struct {
	conn *zookeeper.Conn
}

func NewZkLockFactory(conn *zookeeper.Conn) *ZkLockFactory {
	return &ZkLockFactory{conn: conn}
}

func (f *ZkLockFactory) NewLock(resourceID string) port.DistributedLock {
	return zookeeper.NewDistributedLock(f.conn, fmt.Sprintf("/loyalty/migration/%s", resourceID))
}

var _ port.LockFactory = (*ZkLockFactory)(nil)
