// models/models.go
package models

import (
	"time"
)

// MatchRecord 对局记录，一局结束后写入归档
type MatchRecord struct {
	ID         string        `json:"id"`
	RoomID     string        `json:"room_id"`
	WinnerID   string        `json:"winner_id"`
	WinnerName string        `json:"winner_name"`
	Players    []MatchPlayer `json:"players"`
	Log        []string      `json:"log"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration is the wall time the game ran for.
func (m MatchRecord) Duration() time.Duration {
	return m.FinishedAt.Sub(m.StartedAt)
}

// MatchPlayer 对局中的一个座位
type MatchPlayer struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Seat          int    `json:"seat"`
	Coins         int    `json:"coins"`
	Influence     int    `json:"influence"`
	Winner        bool   `json:"winner"`
	Forfeited     bool   `json:"forfeited"`
}

// PlayerStats 玩家统计信息, keyed by display name
type PlayerStats struct {
	Name       string    `json:"name"`
	TotalGames int       `json:"total_games"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Forfeits   int       `json:"forfeits"`
	LastPlayed time.Time `json:"last_played"`
}
