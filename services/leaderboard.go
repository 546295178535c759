package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "progression:leaderboard"

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	Rank   int64  `json:"rank"`
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

// LeaderboardService keeps a points leaderboard in a Redis sorted set.
// Updates are best-effort: a Redis outage never blocks an award.
type LeaderboardService struct {
	rdb *redis.Client
}

func NewLeaderboardService(addr, password string) (*LeaderboardService, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &LeaderboardService{rdb: rdb}, nil
}

// UpdateScore sets the user's score to their current point total. ZADD with
// the absolute total (not an increment) keeps the board correct even if an
// update was previously missed.
func (s *LeaderboardService) UpdateScore(ctx context.Context, userID string, points int64) error {
	return s.rdb.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(points),
		Member: userID,
	}).Err()
}

// Top returns the highest-scoring users, best first.
func (s *LeaderboardService) Top(ctx context.Context, n int64) ([]LeaderboardEntry, error) {
	if n < 1 || n > 100 {
		n = 10
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, LeaderboardEntry{
			Rank:   int64(i) + 1,
			UserID: fmt.Sprint(z.Member),
			Points: int64(z.Score),
		})
	}
	return entries, nil
}

// RankOf returns the user's leaderboard position (1-based), or 0 when the
// user has no entry yet.
func (s *LeaderboardService) RankOf(ctx context.Context, userID string) (int64, error) {
	rank, err := s.rdb.ZRevRank(ctx, leaderboardKey, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

func (s *LeaderboardService) Close() error {
	return s.rdb.Close()
}
