// persistence/interface.go
package persistence

import (
	"context"
	"fmt"

	"github.com/wfunc/coupserver/models"
)

// Database 对局归档接口. Rooms are never restored from it.
type Database interface {
	SaveMatchRecord(ctx context.Context, record models.MatchRecord) error
	// RecentMatches returns finished matches newest first. An empty name
	// selects every match.
	RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error)
	GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
