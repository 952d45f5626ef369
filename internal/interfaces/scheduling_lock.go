package interfaces

import (
	"context"
	"errors"
)

// ErrLockHeld 同一组织的排期锁已被占用
var ErrLockHeld = errors.New("scheduling lock held")

// ReleaseFunc 释放锁；锁已过期或被他人持有时为空操作
type ReleaseFunc func(ctx context.Context) error

// SchedulingLock 组织级排期互斥锁（生成 + 冲突检测期间持有）
type SchedulingLock interface {
	// Acquire 非阻塞获取锁，已被占用时返回 ErrLockHeld
	Acquire(ctx context.Context, organizationID string) (ReleaseFunc, error)
}
