// models/gorm_models.go
package models

import (
	"time"
)

// GormMatch 对局归档表
type GormMatch struct {
	ID         string        `gorm:"primaryKey;size:36"`
	RoomID     string        `gorm:"index;not null"`
	WinnerID   string        `gorm:"not null"`
	WinnerName string        `gorm:"index;not null"`
	Players    []MatchPlayer `gorm:"serializer:json;type:jsonb"`
	Log        []string      `gorm:"serializer:json;type:jsonb"`
	StartedAt  time.Time
	FinishedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (GormMatch) TableName() string { return "matches" }

// GormMatchPlayer 每局每个座位一行，用于按玩家统计
type GormMatchPlayer struct {
	ID         uint   `gorm:"primaryKey"`
	MatchID    string `gorm:"index;size:36;not null"`
	Name       string `gorm:"index;not null"`
	Seat       int
	Winner     bool
	Forfeited  bool
	FinishedAt time.Time
}

func (GormMatchPlayer) TableName() string { return "match_players" }

// ToGorm splits a record into its match row and per-seat rows.
func (m MatchRecord) ToGorm() (GormMatch, []GormMatchPlayer) {
	match := GormMatch{
		ID:         m.ID,
		RoomID:     m.RoomID,
		WinnerID:   m.WinnerID,
		WinnerName: m.WinnerName,
		Players:    m.Players,
		Log:        m.Log,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	rows := make([]GormMatchPlayer, 0, len(m.Players))
	for _, p := range m.Players {
		rows = append(rows, GormMatchPlayer{
			MatchID:    m.ID,
			Name:       p.Name,
			Seat:       p.Seat,
			Winner:     p.Winner,
			Forfeited:  p.Forfeited,
			FinishedAt: m.FinishedAt,
		})
	}
	return match, rows
}

// Record converts a stored row back into the domain record.
func (g GormMatch) Record() MatchRecord {
	return MatchRecord{
		ID:         g.ID,
		RoomID:     g.RoomID,
		WinnerID:   g.WinnerID,
		WinnerName: g.WinnerName,
		Players:    g.Players,
		Log:        g.Log,
		StartedAt:  g.StartedAt,
		FinishedAt: g.FinishedAt,
	}
}
