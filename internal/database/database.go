package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"talentCorner/internal/config"
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Models lists every table managed by Migrate.
func Models() []any {
	return []any{
		&OrgAccount{},
		&ImportedRecord{},
		&CandidateDetail{},
		&CandidateRanking{},
		&CandidateEmailStatus{},
		&OrgEmailCount{},
	}
}

// expression indexes gorm tags cannot describe; valid on PostgreSQL and SQLite.
var rawIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_candidate_rankings_email_subdomain
		ON candidate_rankings (LOWER(email), LOWER(sub_domain))`,
	`CREATE INDEX IF NOT EXISTS idx_candidate_rankings_partition
		ON candidate_rankings (LOWER(domain), LOWER(sub_domain))`,
}

// Migrate 同步表结构并创建表达式索引。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range rawIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
