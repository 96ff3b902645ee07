package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/persistence"
)

// ErrNameRequired is returned by queries keyed by display name.
var ErrNameRequired = errors.New("name is required")

const (
	defaultWriteTimeout = 5 * time.Second
	maxConcurrentWrites = 8
)

// MatchService archives finished matches and answers history queries.
type MatchService struct {
	db      persistence.Database
	timeout time.Duration
	writes  *semaphore.Weighted
	wg      sync.WaitGroup
}

func NewMatchService(db persistence.Database, timeout time.Duration) *MatchService {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &MatchService{
		db:      db,
		timeout: timeout,
		writes:  semaphore.NewWeighted(maxConcurrentWrites),
	}
}

// ArchiveMatch stores the record in the background. Failures are logged;
// a room never waits on the archive.
func (s *MatchService) ArchiveMatch(record models.MatchRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.writes.Acquire(ctx, 1); err != nil {
			logger.Log.Warnw("match archive backlog, dropping record", "match", record.ID, "room", record.RoomID)
			return
		}
		defer s.writes.Release(1)

		if err := s.db.SaveMatchRecord(ctx, record); err != nil {
			logger.Log.Errorw("failed to archive match", "match", record.ID, "room", record.RoomID, "error", err)
			return
		}
		logger.Log.Infow("match archived", "match", record.ID, "room", record.RoomID,
			"winner", record.WinnerName, "duration", record.Duration())
	}()
}

// Wait blocks until pending archive writes finish or ctx is done.
func (s *MatchService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPlayerStats 获取玩家统计
func (s *MatchService) GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.PlayerStats{}, ErrNameRequired
	}
	return s.db.GetPlayerStats(ctx, name)
}

func (s *MatchService) RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error) {
	return s.db.RecentMatches(ctx, strings.TrimSpace(name), limit)
}
