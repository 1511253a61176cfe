package repo

import (
	"sort"
	"sync"

	"referral-service/internal/domain"
	"referral-service/pkg/utils"
)

// MemoryStore 纯内存实现，driver=memory 和单测用。
// 读写都做深拷贝，调用方拿到的对象改了不会透写回来。
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User // key: id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*domain.User)}
}

var _ domain.UserStore = (*MemoryStore)(nil)

func cloneUser(u *domain.User) *domain.User {
	cp := *u
	cp.Referrals = append(domain.IDList{}, u.Referrals...)
	return &cp
}

func (m *MemoryStore) findBy(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FindByID(id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (m *MemoryStore) FindByEmail(email string) (*domain.User, error) {
	return m.findBy(func(u *domain.User) bool { return u.Email == email })
}

func (m *MemoryStore) FindByReferralCode(code string) (*domain.User, error) {
	return m.findBy(func(u *domain.User) bool { return u.ReferralCode == code })
}

func (m *MemoryStore) FindByUserNumber(n int64) (*domain.User, error) {
	return m.findBy(func(u *domain.User) bool { return u.UserNumber == n })
}

func (m *MemoryStore) FindReferredWithCompletedProfile(referrerID string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.User
	for _, u := range m.users {
		if u.ReferredBy != nil && *u.ReferredBy == referrerID && u.ProfileCompleted {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserNumber < out[j].UserNumber })
	return out, nil
}

func (m *MemoryStore) ExistsByEmail(email string) (bool, error) {
	u, err := m.FindByEmail(email)
	return u != nil, err
}

func (m *MemoryStore) ExistsByReferralCode(code string) (bool, error) {
	u, err := m.FindByReferralCode(code)
	return u != nil, err
}

func (m *MemoryStore) Save(u *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = utils.NewID()
	}
	if u.Referrals == nil {
		u.Referrals = domain.IDList{}
	}
	// 唯一约束兜底，与数据库的唯一索引对齐
	for _, other := range m.users {
		if other.ID == u.ID {
			continue
		}
		if other.Email == u.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (m *MemoryStore) FindAll() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserNumber < out[j].UserNumber })
	return out, nil
}

// MemorySequence 互斥锁守护的计数器，语义与 SequenceRepo 一致
type MemorySequence struct {
	mu  sync.Mutex
	seq int64
}

func NewMemorySequence() *MemorySequence { return &MemorySequence{} }

var _ domain.SequenceAllocator = (*MemorySequence)(nil)

func (m *MemorySequence) Next() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}
