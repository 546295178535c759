package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskflow-progression/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
// State is guarded by a single RWMutex; the per-user critical section is a
// separate mutex per user so different users never contend.
type MemoryStore struct {
	mu               sync.RWMutex
	progressions     map[string]*models.UserProgression          // userID -> progression
	transactions     map[string][]*models.PointTransaction       // userID -> ledger, append order
	byEventKey       map[string]*models.PointTransaction         // userID|type|sourceID -> transaction
	catalog          []models.Achievement
	userAchievements map[string]map[string]*models.UserAchievement // userID -> achievementID -> row

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progressions:     make(map[string]*models.UserProgression),
		transactions:     make(map[string][]*models.PointTransaction),
		byEventKey:       make(map[string]*models.PointTransaction),
		userAchievements: make(map[string]map[string]*models.UserAchievement),
		userLocks:        make(map[string]*sync.Mutex),
	}
}

// SetCatalog replaces the achievement catalog (tests seed through this).
func (s *MemoryStore) SetCatalog(catalog []models.Achievement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range catalog {
		if catalog[i].ID == "" {
			catalog[i].ID = uuid.NewString()
		}
	}
	s.catalog = catalog
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	return mu
}

func (s *MemoryStore) WithUserLock(ctx context.Context, userID string, fn func(tx Store) error) error {
	mu := s.userLock(userID)
	if !mu.TryLock() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for acquired := false; !acquired; {
			select {
			case <-ctx.Done():
				return ErrLockTimeout
			case <-ticker.C:
				acquired = mu.TryLock()
			}
		}
	}
	defer mu.Unlock()
	return fn(s)
}

func (s *MemoryStore) EnsureProgression(_ context.Context, userID string) (*models.UserProgression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prog, ok := s.progressions[userID]
	if !ok {
		prog = &models.UserProgression{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		prog.CreatedAt = time.Now()
		s.progressions[userID] = prog
	}
	return prog.Clone(), nil
}

func (s *MemoryStore) GetProgression(_ context.Context, userID string) (*models.UserProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prog, ok := s.progressions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return prog.Clone(), nil
}

func (s *MemoryStore) SaveProgression(_ context.Context, p *models.UserProgression) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p.Clone()
	cp.UpdatedAt = time.Now()
	s.progressions[p.UserID] = cp
	return nil
}

func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.progressions))
	for id := range s.progressions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func eventKey(userID string, typ models.TransactionType, sourceID string) string {
	return userID + "|" + string(typ) + "|" + sourceID
}

func (s *MemoryStore) AppendTransaction(_ context.Context, t *models.PointTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.SourceID != nil {
		key := eventKey(t.UserID, t.Type, *t.SourceID)
		if _, exists := s.byEventKey[key]; exists {
			return ErrDuplicateKey
		}
		defer func() { s.byEventKey[key] = t }()
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.transactions[t.UserID] = append(s.transactions[t.UserID], t)
	return nil
}

func (s *MemoryStore) FindTransaction(_ context.Context, userID string, typ models.TransactionType, sourceID string) (*models.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byEventKey[eventKey(userID, typ, sourceID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) SumPoints(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, t := range s.transactions[userID] {
		sum += t.Points
	}
	return sum, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, page, size int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.transactions[userID]
	total := int64(len(all))

	// Newest first, like the postgres store.
	start := (page - 1) * size
	if start >= len(all) {
		return nil, total, nil
	}
	out := make([]models.PointTransaction, 0, size)
	for i := len(all) - 1 - start; i >= 0 && len(out) < size; i-- {
		out = append(out, *all[i])
	}
	return out, total, nil
}

func (s *MemoryStore) ListCatalog(_ context.Context) ([]models.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Achievement, len(s.catalog))
	copy(out, s.catalog)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Requirement < out[j].Requirement })
	return out, nil
}

func (s *MemoryStore) ListUserAchievements(_ context.Context, userID string) ([]models.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]models.UserAchievement, 0, len(s.userAchievements[userID]))
	for _, ua := range s.userAchievements[userID] {
		rows = append(rows, *ua)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AchievementID < rows[j].AchievementID })
	return rows, nil
}

func (s *MemoryStore) UpsertUserAchievements(_ context.Context, rows []models.UserAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		byID, ok := s.userAchievements[row.UserID]
		if !ok {
			byID = make(map[string]*models.UserAchievement)
			s.userAchievements[row.UserID] = byID
		}
		existing, ok := byID[row.AchievementID]
		if !ok {
			cp := row
			if cp.ID == "" {
				cp.ID = uuid.NewString()
			}
			cp.CreatedAt = time.Now()
			cp.UpdatedAt = cp.CreatedAt
			byID[row.AchievementID] = &cp
			continue
		}
		// Monotonic merge, mirroring the postgres ON CONFLICT assignments.
		if row.Progress > existing.Progress {
			existing.Progress = row.Progress
		}
		if row.IsCompleted {
			existing.IsCompleted = true
		}
		if existing.UnlockedAt == nil {
			existing.UnlockedAt = row.UnlockedAt
		}
		existing.UpdatedAt = time.Now()
	}
	return nil
}
