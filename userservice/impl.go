package userservice

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Seed is loaded into an empty store on first access.
var Seed = []User{
	{ID: 1, Name: "Alice"},
	{ID: 2, Name: "Bob"},
}

// directory owns the store and its lazy seeding. Impl embeds it; List is
// served as a promoted method.
type directory struct {
	store  Store
	logger *zap.Logger

	mu     sync.Mutex
	seeded bool
}

// ready seeds the store the first time it is used, if it is empty.
// A failed attempt is retried on the next call.
func (d *directory) ready(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seeded {
		return nil
	}

	n, err := d.store.Len(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		for i := range Seed {
			u := Seed[i]
			if err := d.store.Put(ctx, &u); err != nil {
				return err
			}
		}
		d.logger.Info("seeded user store", zap.Int("users", len(Seed)))
	}
	d.seeded = true
	return nil
}

func (d *directory) List(ctx context.Context) ([]*User, error) {
	if err := d.ready(ctx); err != nil {
		return nil, err
	}
	return d.store.List(ctx)
}

// Impl is the server-side UserService.
type Impl struct {
	*directory
}

var _ UserService = (*Impl)(nil)

func NewImpl(store Store, logger *zap.Logger) *Impl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Impl{directory: &directory{store: store, logger: logger}}
}

func (s *Impl) GetByID(ctx context.Context, id int) (*User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

func (s *Impl) LookupID(ctx context.Context, id int) (*User, error) {
	return s.GetByID(ctx, id)
}

func (s *Impl) LookupName(ctx context.Context, name string) (*User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.store.FindByName(ctx, name)
}

func (s *Impl) Save(ctx context.Context, u *User) error {
	if u == nil {
		return errors.New("user is required")
	}
	if u.ID <= 0 {
		return errors.Errorf("invalid user id %d", u.ID)
	}
	if strings.TrimSpace(u.Name) == "" {
		return errors.Errorf("user %d: name is required", u.ID)
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.store.Put(ctx, u)
}

func (s *Impl) Delete(ctx context.Context, id int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("user %d not found", id)
	}
	return nil
}
