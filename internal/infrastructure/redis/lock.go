package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired  = errors.New("ロックを取得できませんでした")
	ErrLockNotOwned     = errors.New("ロックの所有者ではありません")
	ErrStoreUnavailable = errors.New("ロックストアに接続できません")
)

// releaseScript は所有者確認と削除をアトミックに実行するLuaスクリプト
// GETと DELの間に別の所有者が現れるレースを防ぐ
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// extendScript は所有者確認と有効期限延長をアトミックに実行するLuaスクリプト
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Lock は取得済みの分散ロックのインターフェース
type Lock interface {
	// Token はロックの所有トークンを返す
	Token() string
	// Release はロックを解放する
	Release(ctx context.Context) error
	// Extend はロックの有効期限を延長する
	Extend(ctx context.Context, ttl time.Duration) error
}

// LockManagerInterface は分散ロックマネージャのインターフェース
type LockManagerInterface interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
	AcquireAll(ctx context.Context, keys []string, ttl time.Duration) (Lock, error)
	AcquireAllWithRetry(ctx context.Context, keys []string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error)
	Held(ctx context.Context, keys []string, token string) (bool, error)
	ReleaseToken(ctx context.Context, keys []string, token string) error
}

// DistributedLock は取得済みの分散ロック
// 複数キーにまたがる場合もトークンは1つで、全キーが同じ値を持つ
type DistributedLock struct {
	client *redis.Client
	keys   []string
	token  string
	ttl    time.Duration
}

// LockManager はRedisを使用した分散ロックを管理する
type LockManager struct {
	client *redis.Client
}

func NewLockManager(client *redis.Client) *LockManager {
	return &LockManager{client: client}
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// Acquire はロックを取得する
// SET NX EX によりキーが存在しない場合のみアトミックに設定される。
// ストア障害時は取得失敗として扱う（排他性が確認できない限り許可しない）
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	return m.AcquireAll(ctx, []string{key}, ttl)
}

// AcquireAll は複数キーのロックを1つのトークンでまとめて取得する
// キーはソート順に取得してデッドロックを防止し、途中で失敗した場合は
// 取得済みのキーを解放してから ErrLockNotAcquired を返す
func (m *LockManager) AcquireAll(ctx context.Context, keys []string, ttl time.Duration) (Lock, error) {
	if len(keys) == 0 {
		return nil, ErrLockNotAcquired
	}

	sorted := make([]string, len(keys))
	for i, k := range keys {
		sorted[i] = lockKey(k)
	}
	sort.Strings(sorted)

	token := uuid.New().String()
	acquired := make([]string, 0, len(sorted))

	for _, k := range sorted {
		ok, err := m.client.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			m.releaseKeys(ctx, acquired, token)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			m.releaseKeys(ctx, acquired, token)
			return nil, ErrLockNotAcquired
		}
		acquired = append(acquired, k)
	}

	return &DistributedLock{client: m.client, keys: sorted, token: token, ttl: ttl}, nil
}

// AcquireAllWithRetry はリトライ付きでロックを取得する
func (m *LockManager) AcquireAllWithRetry(ctx context.Context, keys []string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireAll(ctx, keys, ttl)
		if err == nil {
			return lock, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, lastErr
}

// Held は指定トークンが全キーの現在の所有者かを確認する
// TTL切れで別の呼び出し元がロックを取り直した場合は false になる
func (m *LockManager) Held(ctx context.Context, keys []string, token string) (bool, error) {
	for _, k := range keys {
		val, err := m.client.Get(ctx, lockKey(k)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, nil
			}
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if val != token {
			return false, nil
		}
	}
	return true, nil
}

// ReleaseToken はキーとトークンの組からロックを解放する
// ホールドハンドル経由でトークンを引き継いだ確定処理が使用する
func (m *LockManager) ReleaseToken(ctx context.Context, keys []string, token string) error {
	var released int
	for _, k := range keys {
		result, err := releaseScript.Run(ctx, m.client, []string{lockKey(k)}, token).Int()
		if err != nil {
			return fmt.Errorf("ロック解放に失敗: %w", err)
		}
		released += result
	}
	if released == 0 {
		return ErrLockNotOwned
	}
	return nil
}

func (m *LockManager) releaseKeys(ctx context.Context, keys []string, token string) {
	for _, k := range keys {
		releaseScript.Run(ctx, m.client, []string{k}, token)
	}
}

// Token はロックの所有トークンを返す。ホールドハンドルとして呼び出し元に渡される
func (l *DistributedLock) Token() string {
	return l.token
}

// Release はロックを解放する
// Luaスクリプトによる compare-and-delete で、TTL切れ後に他者が取得した
// ロックを誤って削除しないことを保証する
func (l *DistributedLock) Release(ctx context.Context) error {
	var released int
	for _, k := range l.keys {
		result, err := releaseScript.Run(ctx, l.client, []string{k}, l.token).Int()
		if err != nil {
			return fmt.Errorf("ロック解放に失敗: %w", err)
		}
		released += result
	}
	if released == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// Extend はロックの有効期限を延長する
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	for _, k := range l.keys {
		result, err := extendScript.Run(ctx, l.client, []string{k}, l.token, ttl.Milliseconds()).Int()
		if err != nil {
			return fmt.Errorf("ロック延長に失敗: %w", err)
		}
		if result == 0 {
			return ErrLockNotOwned
		}
	}
	l.ttl = ttl
	return nil
}

var _ LockManagerInterface = (*LockManager)(nil)
var _ Lock = (*DistributedLock)(nil)
