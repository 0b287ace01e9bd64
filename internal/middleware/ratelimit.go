package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"griff_shop/internal/logging"
	rediskey "griff_shop/pkg/redis"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳(ms)，ARGV[2]=窗口开始时间戳(ms)，ARGV[3]=窗口毫秒数
// ARGV[4]=本次请求的 member，ARGV[5]=窗口内上限
// 返回：窗口内的请求数；超限返回 -1
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowMs = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, windowMs)
  return count + 1
else
  return -1
end
`

// RedisRateLimit Redis 分布式限流（Lua 原子操作）。
// 放在 RequireUser 之后按用户限流；拿不到用户时按 IP 限流。
// rdb 为 nil 或 Redis 出错时放行（降级策略）。
func RedisRateLimit(rdb *rd.Client, scope string, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		var key string
		if uid, ok := UserID(c); ok {
			key = rediskey.RateLimitKey(scope, "user:"+strconv.FormatUint(uint64(uid), 10))
		} else {
			key = rediskey.RateLimitKey(scope, "ip:"+c.ClientIP())
		}

		now := time.Now()
		nowMs := now.UnixMilli()
		windowMs := window.Milliseconds()
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := rdb.Eval(c.Request.Context(), luaRateLimit, []string{key},
			nowMs, nowMs-windowMs, windowMs, member, limit).Int()
		if err != nil {
			logger.Warn("rate limit unavailable, allowing request",
				zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if res < 0 {
			c.Header("Retry-After", strconv.Itoa(max(1, int(window.Seconds()))))
			abort(c, http.StatusTooManyRequests, "rate_limited", "请求过于频繁，请稍后再试")
			return
		}
		c.Next()
	}
}
