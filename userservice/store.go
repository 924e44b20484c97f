package userservice

import (
	"context"
	"sort"
	"sync"
)

// Store persists users. Implementations must be safe for concurrent use: one
// Impl serves every connection of the server.
type Store interface {
	Get(ctx context.Context, id int) (*User, error) // nil, nil when absent
	FindByName(ctx context.Context, name string) (*User, error)
	Put(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int) (bool, error)
	List(ctx context.Context) ([]*User, error)
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps users in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int]User)}
}

func (s *MemoryStore) Get(_ context.Context, id int) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// FindByName returns the lowest-id user called name.
func (s *MemoryStore) FindByName(ctx context.Context, name string) (*User, error) {
	users, _ := s.List(ctx)
	for _, u := range users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Put(_ context.Context, u *User) error {
	s.mu.Lock()
	s.users[u.ID] = *u
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *MemoryStore) List(context.Context) ([]*User, error) {
	s.mu.RLock()
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, &u)
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}
