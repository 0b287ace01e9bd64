package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"griff_shop/internal/model"
)

// Options 描述数据库连接参数。
type Options struct {
	Driver      string // sqlite | mysql
	DSN         string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	LogSQL      bool
}

// Open 按驱动打开数据库并自动建表。
// mysql 支持 SELECT ... FOR UPDATE 行锁；sqlite 会忽略行锁，库存安全依赖条件 UPDATE。
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(SQLiteDSN(opts.DSN))
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}

	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.LogSQL {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if opts.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxLifetime)
	}

	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

// MemoryDSN 返回一个独立的内存 sqlite 库，用于测试和本地演示。
func MemoryDSN() string {
	return fmt.Sprintf("file:griff_%s?mode=memory&cache=shared", uuid.NewString())
}

// sqliteDefaults 补齐 sqlite 连接参数：
// WAL 让读不阻塞写；_txlock=immediate 让事务在 BEGIN 时就拿写锁，
// 并发写事务按 busy_timeout 排队，而不是在读锁升级写锁时直接报 database is locked。
var sqliteDefaults = [][2]string{
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_txlock", "immediate"},
}

// SQLiteDSN appends the connection defaults the DSN does not set itself.
func SQLiteDSN(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	for _, kv := range sqliteDefaults {
		if values.Get(kv[0]) == "" {
			values.Set(kv[0], kv[1])
		}
	}
	return path + "?" + values.Encode()
}
