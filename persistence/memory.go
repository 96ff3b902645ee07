package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wfunc/coupserver/models"
)

// Memory keeps the archive in process memory. It is the default when no
// database is configured.
type Memory struct {
	mutex   sync.RWMutex
	matches []models.MatchRecord
	byID    map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]struct{})}
}

func (m *Memory) SaveMatchRecord(ctx context.Context, record models.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.byID[record.ID]; ok {
		return fmt.Errorf("match %s already archived", record.ID)
	}
	m.byID[record.ID] = struct{}{}
	record.Players = append([]models.MatchPlayer(nil), record.Players...)
	record.Log = append([]string(nil), record.Log...)
	m.matches = append(m.matches, record)
	return nil
}

func (m *Memory) RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var out []models.MatchRecord
	for _, rec := range m.matches {
		if name == "" || playedIn(rec, name) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := models.PlayerStats{Name: name}
	for _, rec := range m.matches {
		for _, p := range rec.Players {
			if p.Name != name {
				continue
			}
			stats.TotalGames++
			if p.Winner {
				stats.Wins++
			}
			if p.Forfeited {
				stats.Forfeits++
			}
			if rec.FinishedAt.After(stats.LastPlayed) {
				stats.LastPlayed = rec.FinishedAt
			}
		}
	}
	if stats.TotalGames == 0 {
		return models.PlayerStats{}, ErrRecordNotFound
	}
	stats.Losses = stats.TotalGames - stats.Wins
	return stats, nil
}

func (m *Memory) Close() error { return nil }

func playedIn(rec models.MatchRecord, name string) bool {
	for _, p := range rec.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}
