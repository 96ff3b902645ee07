// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/coupserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormMatch{}, &models.GormMatchPlayer{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveMatchRecord writes the match and its seats in one transaction.
func (p *GormPostgreSQL) SaveMatchRecord(ctx context.Context, record models.MatchRecord) error {
	match, seats := record.ToGorm()
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&match).Error; err != nil {
			return err
		}
		if len(seats) == 0 {
			return nil
		}
		return tx.Create(&seats).Error
	})
}

func (p *GormPostgreSQL) RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error) {
	q := p.db.WithContext(ctx).Model(&models.GormMatch{})
	if name != "" {
		q = q.Where("id IN (?)",
			p.db.Model(&models.GormMatchPlayer{}).Select("match_id").Where("name = ?", name))
	}
	var rows []models.GormMatch
	if err := q.Order("finished_at DESC").Limit(normalizeLimit(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.MatchRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Record())
	}
	return out, nil
}

type statsRow struct {
	TotalGames int
	Wins       int
	Forfeits   int
	LastPlayed sql.NullTime
}

func (p *GormPostgreSQL) GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error) {
	var row statsRow
	err := p.db.WithContext(ctx).Model(&models.GormMatchPlayer{}).
		Select(`COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN winner THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN forfeited THEN 1 ELSE 0 END), 0) AS forfeits,
            MAX(finished_at) AS last_played`).
		Where("name = ?", name).
		Scan(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlayerStats{}, ErrRecordNotFound
		}
		return models.PlayerStats{}, err
	}
	return row.stats(name)
}

func (r statsRow) stats(name string) (models.PlayerStats, error) {
	if r.TotalGames == 0 {
		return models.PlayerStats{}, ErrRecordNotFound
	}
	return models.PlayerStats{
		Name:       name,
		TotalGames: r.TotalGames,
		Wins:       r.Wins,
		Losses:     r.TotalGames - r.Wins,
		Forfeits:   r.Forfeits,
		LastPlayed: r.LastPlayed.Time,
	}, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
