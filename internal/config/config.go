package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	LogLevel string

	// 数据库：sqlite 用于本地/测试，mysql 用于生产（支持行锁）
	DBDriver     string
	DBPath       string
	MySQLDSN     string
	DBMaxOpen    int
	DBMaxIdle    int
	DBLifetime   time.Duration
	RedisAddr    string
	RedisDB      int
	RedisEnabled bool

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（API 提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string
	EventsEnabled      bool

	// 下单、支付确认接口限流
	RateLimit  int
	RateWindow time.Duration

	// 管理接口的简单令牌（上游网关负责真正的鉴权）
	AdminToken string

	// 支付网关
	GatewaySecretKey string
	GatewayBaseURL   string
	GatewayTimeout   time.Duration
	WebhookSeenTTL   time.Duration

	// 订单事件审计（MongoDB）
	AuditEnabled    bool
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// Load 读取并校验配置，缺失时使用默认值。
// CONFIG_FILE 指向可选的 YAML 文件；环境变量优先级更高。
func Load() (AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_PATH", "griff_shop.db")
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("DB_MAX_OPEN", 5)
	v.SetDefault("DB_MAX_IDLE", 5)
	v.SetDefault("DB_CONN_LIFETIME_SEC", 300)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "griff-order-events")
	v.SetDefault("KAFKA_GROUP_ID", "griff-order-audit")
	v.SetDefault("ORDER_EVENT_STREAM", "griff:order_events")
	v.SetDefault("ORDER_EVENT_GROUP", "griff-relay-group")
	v.SetDefault("ORDER_EVENT_CONSUMER", "griff-relay-1")
	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("RATE_LIMIT", 20)
	v.SetDefault("RATE_WINDOW_SEC", 1)
	v.SetDefault("ADMIN_TOKEN", "dev-admin-token")
	v.SetDefault("TOSS_SECRET_KEY", "")
	v.SetDefault("TOSS_API_URL", "https://api.tosspayments.com/v1/payments")
	v.SetDefault("GATEWAY_TIMEOUT_SEC", 10)
	v.SetDefault("WEBHOOK_SEEN_TTL_HOUR", 72)
	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "griff_shop")
	v.SetDefault("MONGO_COLLECTION", "order_audit")
}

func fromViper(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:           strings.TrimSpace(v.GetString("HTTP_ADDR")),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		DBDriver:           strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		DBPath:             strings.TrimSpace(v.GetString("DB_PATH")),
		MySQLDSN:           strings.TrimSpace(v.GetString("MYSQL_DSN")),
		DBMaxOpen:          v.GetInt("DB_MAX_OPEN"),
		DBMaxIdle:          v.GetInt("DB_MAX_IDLE"),
		DBLifetime:         time.Duration(v.GetInt("DB_CONN_LIFETIME_SEC")) * time.Second,
		RedisAddr:          strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisDB:            v.GetInt("REDIS_DB"),
		RedisEnabled:       v.GetBool("REDIS_ENABLED"),
		KafkaBrokers:       splitCSV(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:         strings.TrimSpace(v.GetString("KAFKA_TOPIC")),
		KafkaGroupID:       strings.TrimSpace(v.GetString("KAFKA_GROUP_ID")),
		OrderEventStream:   strings.TrimSpace(v.GetString("ORDER_EVENT_STREAM")),
		OrderEventGroup:    strings.TrimSpace(v.GetString("ORDER_EVENT_GROUP")),
		OrderEventConsumer: strings.TrimSpace(v.GetString("ORDER_EVENT_CONSUMER")),
		EventsEnabled:      v.GetBool("EVENTS_ENABLED"),
		RateLimit:          v.GetInt("RATE_LIMIT"),
		RateWindow:         time.Duration(v.GetInt("RATE_WINDOW_SEC")) * time.Second,
		AdminToken:         strings.TrimSpace(v.GetString("ADMIN_TOKEN")),
		GatewaySecretKey:   strings.TrimSpace(v.GetString("TOSS_SECRET_KEY")),
		GatewayBaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("TOSS_API_URL")), "/"),
		GatewayTimeout:     time.Duration(v.GetInt("GATEWAY_TIMEOUT_SEC")) * time.Second,
		WebhookSeenTTL:     time.Duration(v.GetInt("WEBHOOK_SEEN_TTL_HOUR")) * time.Hour,
		AuditEnabled:       v.GetBool("AUDIT_ENABLED"),
		MongoURI:           strings.TrimSpace(v.GetString("MONGO_URI")),
		MongoDatabase:      strings.TrimSpace(v.GetString("MONGO_DATABASE")),
		MongoCollection:    strings.TrimSpace(v.GetString("MONGO_COLLECTION")),
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate 校验配置之间的约束。
func (c AppConfig) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DB_PATH must not be empty when DB_DRIVER=sqlite")
		}
	case "mysql":
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN must not be empty when DB_DRIVER=mysql")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", c.DBDriver)
	}
	if c.DBMaxOpen <= 0 {
		return errors.New("DB_MAX_OPEN must be > 0")
	}
	if c.RateLimit <= 0 {
		return errors.New("RATE_LIMIT must be > 0")
	}
	if c.RateWindow <= 0 {
		return errors.New("RATE_WINDOW_SEC must be > 0")
	}
	if c.GatewayTimeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT_SEC must be > 0")
	}
	if c.GatewayBaseURL == "" {
		return errors.New("TOSS_API_URL must not be empty")
	}
	if c.EventsEnabled {
		if !c.RedisEnabled {
			return errors.New("EVENTS_ENABLED requires REDIS_ENABLED")
		}
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS must not be empty")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC must not be empty")
		}
		if c.OrderEventStream == "" || c.OrderEventGroup == "" || c.OrderEventConsumer == "" {
			return errors.New("ORDER_EVENT_STREAM, ORDER_EVENT_GROUP and ORDER_EVENT_CONSUMER must not be empty")
		}
	}
	if c.AuditEnabled {
		if !c.EventsEnabled {
			return errors.New("AUDIT_ENABLED requires EVENTS_ENABLED")
		}
		if c.KafkaGroupID == "" {
			return errors.New("KAFKA_GROUP_ID must not be empty")
		}
		if c.MongoURI == "" || c.MongoDatabase == "" || c.MongoCollection == "" {
			return errors.New("MONGO_URI, MONGO_DATABASE and MONGO_COLLECTION must not be empty")
		}
	}
	return nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
