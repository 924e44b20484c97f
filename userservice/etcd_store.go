package userservice

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdPrefix is where EtcdStore keeps users:
//
//	Key:   /contract-rpc/users/{ID}
//	Value: JSON-encoded User
const DefaultEtcdPrefix = "/contract-rpc/users/"

// EtcdStore keeps users in etcd, so several servers can share one directory.
type EtcdStore struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	prefix string
}

// NewEtcdStore connects to the given etcd endpoints.
func NewEtcdStore(endpoints []string, dialTimeout time.Duration) (*EtcdStore, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	return &EtcdStore{client: c, prefix: DefaultEtcdPrefix}, nil
}

// NewEtcdStoreFromClient uses an existing client and key prefix.
func NewEtcdStoreFromClient(c *clientv3.Client, prefix string) *EtcdStore {
	return &EtcdStore{client: c, prefix: prefix}
}

func (s *EtcdStore) key(id int) string {
	return s.prefix + strconv.Itoa(id)
}

func (s *EtcdStore) Get(ctx context.Context, id int) (*User, error) {
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	u := &User{}
	if err := json.Unmarshal(resp.Kvs[0].Value, u); err != nil {
		return nil, errors.Wrapf(err, "decode user %d", id)
	}
	return u, nil
}

// FindByName scans the prefix; the directory is small.
func (s *EtcdStore) FindByName(ctx context.Context, name string) (*User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, nil
}

func (s *EtcdStore) Put(ctx context.Context, u *User) error {
	val, err := json.Marshal(u)
	if err != nil {
		return errors.Wrapf(err, "encode user %d", u.ID)
	}
	if _, err := s.client.Put(ctx, s.key(u.ID), string(val)); err != nil {
		return errors.Wrapf(err, "put user %d", u.ID)
	}
	return nil
}

func (s *EtcdStore) Delete(ctx context.Context, id int) (bool, error) {
	resp, err := s.client.Delete(ctx, s.key(id))
	if err != nil {
		return false, errors.Wrapf(err, "delete user %d", id)
	}
	return resp.Deleted > 0, nil
}

// List returns every user under the prefix ordered by id. Malformed entries are skipped.
func (s *EtcdStore) List(ctx context.Context) ([]*User, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	users := make([]*User, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		u := &User{}
		if err := json.Unmarshal(kv.Value, u); err != nil {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *EtcdStore) Len(ctx context.Context) (int, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, errors.Wrap(err, "count users")
	}
	return int(resp.Count), nil
}

// Clear removes every user under the prefix.
func (s *EtcdStore) Clear(ctx context.Context) error {
	_, err := s.client.Delete(ctx, s.prefix, clientv3.WithPrefix())
	return errors.Wrap(err, "clear users")
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
