package redis

import "fmt"

// RateLimitKey 限流 key：scope 为接口，subject 为 user:<id> 或 ip:<addr>。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("griff:rate_limit:%s:%s", scope, subject)
}

// WebhookSeenKey 标记某个 webhook 事件已经处理成功。
func WebhookSeenKey(fingerprint string) string {
	return fmt.Sprintf("griff:webhook:seen:%s", fingerprint)
}
