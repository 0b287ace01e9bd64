package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaMarkOnce 通过 SETNX 保证“同一事件只标记一次”。
const luaMarkOnce = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])

if redis.call('SETNX', key, '1') == 1 then
  if ttlSec > 0 then
    redis.call('EXPIRE', key, ttlSec)
  end
  return 1
end
return 0
`

// MarkOnce 幂等标记：
// - 首次标记返回 true
// - 重复标记返回 false
func MarkOnce(ctx context.Context, rdb *rd.Client, key string, ttl time.Duration) (bool, error) {
	n, err := rdb.Eval(ctx, luaMarkOnce, []string{key}, int64(ttl/time.Second)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// WebhookMarks 记录已成功处理的 webhook 事件，重放时直接短路。
// 只在事务提交后标记。
type WebhookMarks struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewWebhookMarks(rdb *rd.Client, ttl time.Duration) *WebhookMarks {
	return &WebhookMarks{rdb: rdb, ttl: ttl}
}

// Seen 判断事件是否已处理。
func (m *WebhookMarks) Seen(ctx context.Context, parts ...string) (bool, error) {
	n, err := m.rdb.Exists(ctx, WebhookSeenKey(Fingerprint(parts...))).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark 标记事件已处理。
func (m *WebhookMarks) Mark(ctx context.Context, parts ...string) error {
	_, err := MarkOnce(ctx, m.rdb, WebhookSeenKey(Fingerprint(parts...)), m.ttl)
	return err
}

// Fingerprint 将事件字段哈希成定长 key 片段。
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}
