package lease

import (
	"context"
	"sync"
)

type memorySlot struct {
	mu    sync.Mutex
	lease WorkerLease
	found bool
}

// MemoryStore 进程内存储，每个槽位一把锁，不同槽位互不阻塞
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[int64]*memorySlot
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[int64]*memorySlot)}
}

func (s *MemoryStore) slot(workerID int64) *memorySlot {
	s.mu.RLock()
	sl, ok := s.slots[workerID]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[workerID]; !ok {
		sl = &memorySlot{}
		s.slots[workerID] = sl
	}
	return sl
}

func (s *MemoryStore) Get(ctx context.Context, workerID int64) (WorkerLease, bool, error) {
	if err := ctx.Err(); err != nil {
		return WorkerLease{}, false, err
	}
	sl := s.slot(workerID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.lease, sl.found, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, prev WorkerLease, found bool, next WorkerLease) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sl := s.slot(next.WorkerID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.found != found {
		return false, nil
	}
	if found && !sl.lease.Matches(prev.Version, prev.HolderToken) {
		return false, nil
	}
	sl.lease = next
	sl.found = true
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]WorkerLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	slots := make([]*memorySlot, 0, len(s.slots))
	for _, sl := range s.slots {
		slots = append(slots, sl)
	}
	s.mu.RUnlock()

	out := make([]WorkerLease, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.found {
			out = append(out, sl.lease)
		}
		sl.mu.Unlock()
	}
	sortByWorkerID(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.slots = make(map[int64]*memorySlot)
	s.mu.Unlock()
	return nil
}
