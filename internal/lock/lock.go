package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 分布式锁的错误
var (
	ErrLockTimeout     = errors.New("获取锁超时")
	ErrLockUnavailable = errors.New("分布式锁未启用")
)

// 获取锁失败时的重试间隔
const retryInterval = 50 * time.Millisecond

// releaseScript 仅当持有者一致时删除锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 Redis 的分布式锁
type Locker struct {
	client *redis.Client
	prefix string
	wait   time.Duration
	lease  time.Duration
}

// NewLocker 创建分布式锁
// wait 为最长等待时间，lease 为锁租约时长，租约到期自动释放
func NewLocker(client *redis.Client, prefix string, wait, lease time.Duration) *Locker {
	if lease <= 0 {
		lease = 5 * time.Second
	}
	return &Locker{
		client: client,
		prefix: strings.TrimSpace(prefix),
		wait:   wait,
		lease:  lease,
	}
}

// Mutex 一次成功获取的锁
type Mutex struct {
	locker *Locker
	key    string
	token  string
}

func (l *Locker) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Acquire 在等待时间内尝试获取锁
// 等待超时返回 ErrLockTimeout，调用方应将其映射为「请求太频繁」一类的提示
func (l *Locker) Acquire(ctx context.Context, key string) (*Mutex, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockUnavailable
	}
	fullKey := l.buildKey(key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Mutex{locker: l, key: fullKey, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release 释放锁，仅删除本持有者写入的键
func (m *Mutex) Release(ctx context.Context) error {
	if m == nil || m.locker == nil || m.locker.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, m.locker.client, []string{m.key}, m.token).Err()
}
