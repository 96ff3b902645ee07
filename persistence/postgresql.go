// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/coupserver/models"
)

// PostgreSQL 数据库实现 on database/sql
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构, compatible with the GORM migration
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS matches (
            id VARCHAR(36) PRIMARY KEY,
            room_id TEXT NOT NULL,
            winner_id TEXT NOT NULL,
            winner_name TEXT NOT NULL,
            players JSONB NOT NULL,
            log JSONB NOT NULL,
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_players (
            id SERIAL PRIMARY KEY,
            match_id VARCHAR(36) NOT NULL,
            name TEXT NOT NULL,
            seat BIGINT,
            winner BOOLEAN,
            forfeited BOOLEAN,
            finished_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_matches_room_id ON matches(room_id);
        CREATE INDEX IF NOT EXISTS idx_matches_finished_at ON matches(finished_at);
        CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(name);
        CREATE INDEX IF NOT EXISTS idx_match_players_match_id ON match_players(match_id);
    `)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, record models.MatchRecord) error {
	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}
	logText, err := json.Marshal(record.Log)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO matches (id, room_id, winner_id, winner_name, players, log, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, record.ID, record.RoomID, record.WinnerID, record.WinnerName, players, logText,
		record.StartedAt, record.FinishedAt)
	if err != nil {
		return err
	}

	for _, seat := range record.Players {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO match_players (match_id, name, seat, winner, forfeited, finished_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, record.ID, seat.Name, seat.Seat, seat.Winner, seat.Forfeited, record.FinishedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgreSQL) RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error) {
	query := `
        SELECT id, room_id, winner_id, winner_name, players, log, started_at, finished_at
        FROM matches
        WHERE $1 = '' OR id IN (SELECT match_id FROM match_players WHERE name = $1)
        ORDER BY finished_at DESC
        LIMIT $2
    `
	rows, err := p.db.QueryContext(ctx, query, name, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var (
			rec           models.MatchRecord
			players, logs []byte
		)
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.WinnerID, &rec.WinnerName,
			&players, &logs, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(logs, &rec.Log); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgreSQL) GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error) {
	var row statsRow
	err := p.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN winner THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN forfeited THEN 1 ELSE 0 END), 0),
            MAX(finished_at)
        FROM match_players
        WHERE name = $1
    `, name).Scan(&row.TotalGames, &row.Wins, &row.Forfeits, &row.LastPlayed)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.PlayerStats{}, ErrRecordNotFound
		}
		return models.PlayerStats{}, err
	}
	return row.stats(name)
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
