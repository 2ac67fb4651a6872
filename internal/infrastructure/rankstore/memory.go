package rankstore

import (
	"context"
	"sort"
	"sync"

	"github.com/rhythmnet/rhythmd/internal/domain/rank"
)

// Memory is the in-process ordered-set store. Sets are materialized on read
// in descending value order with ascending user ID as the tie-break, so
// positions are stable across identical snapshots.
type Memory struct {
	mu   sync.RWMutex
	sets map[string]map[int64]float64
}

func NewMemory() *Memory {
	return &Memory{sets: make(map[string]map[int64]float64)}
}

var _ rank.Store = (*Memory)(nil)

func (m *Memory) Upsert(_ context.Context, key string, userID int64, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[int64]float64)
		m.sets[key] = set
	}
	set[userID] = value

	return nil
}

func (m *Memory) Remove(_ context.Context, key string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.sets[key]; ok {
		delete(set, userID)
	}

	return nil
}

func (m *Memory) Position(_ context.Context, key string, userID int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[key]
	if !ok {
		return 0, false, nil
	}
	if _, ok := set[userID]; !ok {
		return 0, false, nil
	}

	for i, entry := range ordered(set) {
		if entry.UserID == userID {
			return int64(i), true, nil
		}
	}

	return 0, false, nil
}

func (m *Memory) RangeByPosition(_ context.Context, key string, from, to int64) ([]rank.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[key]
	if !ok {
		return nil, nil
	}

	members := ordered(set)
	size := int64(len(members))
	if from < 0 {
		from = 0
	}
	if from >= size {
		return nil, nil
	}
	if to < 0 || to >= size {
		to = size - 1
	}
	if to < from {
		return nil, nil
	}

	out := make([]rank.Member, to-from+1)
	copy(out, members[from:to+1])

	return out, nil
}

func ordered(set map[int64]float64) []rank.Member {
	members := make([]rank.Member, 0, len(set))
	for userID, value := range set {
		members = append(members, rank.Member{UserID: userID, Value: value})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Value != members[j].Value {
			return members[i].Value > members[j].Value
		}
		return members[i].UserID < members[j].UserID
	})

	return members
}
