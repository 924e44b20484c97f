// Package userservice is the sample contract served by rpc-server: a small user
// directory addressed by id or by name.
//
// The wire names are lower-case, and "lookup" is overloaded: LookupID and
// LookupName share it and are told apart by their parameter descriptors.
package userservice

import (
	"context"

	"contract-rpc/contract"
)

// ContractName is the name UserService is registered and called under.
const ContractName = "UserService"

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type UserService interface {
	// GetByID returns the user with id, or nil when there is none.
	GetByID(ctx context.Context, id int) (*User, error)
	LookupID(ctx context.Context, id int) (*User, error)
	LookupName(ctx context.Context, name string) (*User, error)
	// Save creates or replaces a user.
	Save(ctx context.Context, u *User) error
	// Delete fails when the user does not exist.
	Delete(ctx context.Context, id int) error
	// List returns every user ordered by id.
	List(ctx context.Context) ([]*User, error)
}

var Contract = contract.MustDefine(NewStub,
	contract.WithName(ContractName),
	contract.WithMethodName("GetByID", "getById"),
	contract.WithMethodName("LookupID", "lookup"),
	contract.WithMethodName("LookupName", "lookup"),
	contract.WithMethodName("Save", "save"),
	contract.WithMethodName("Delete", "delete"),
	contract.WithMethodName("List", "list"),
)

type stub struct {
	inv contract.Invoker
}

// NewStub returns a UserService that forwards every method to inv.
func NewStub(inv contract.Invoker) UserService {
	return stub{inv: inv}
}

func (s stub) GetByID(ctx context.Context, id int) (*User, error) {
	var u *User
	err := s.inv.Invoke(ctx, "getById", &u, id)
	return u, err
}

func (s stub) LookupID(ctx context.Context, id int) (*User, error) {
	var u *User
	err := s.inv.Invoke(ctx, "lookup", &u, id)
	return u, err
}

func (s stub) LookupName(ctx context.Context, name string) (*User, error) {
	var u *User
	err := s.inv.Invoke(ctx, "lookup", &u, name)
	return u, err
}

func (s stub) Save(ctx context.Context, u *User) error {
	return s.inv.Invoke(ctx, "save", nil, u)
}

func (s stub) Delete(ctx context.Context, id int) error {
	return s.inv.Invoke(ctx, "delete", nil, id)
}

func (s stub) List(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.inv.Invoke(ctx, "list", &users)
	return users, err
}
