package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"contract-rpc/userservice"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func idArg(c *cli.Context, i int) (int, error) {
	s := c.Args().Get(i)
	if s == "" {
		return 0, errors.Errorf("missing argument, usage: %s %s", c.Command.Name, c.Command.ArgsUsage)
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printUser(u *userservice.User) {
	if u == nil {
		fmt.Println("not found")
		return
	}
	fmt.Printf("%d\t%s\n", u.ID, u.Name)
}

func getCommand(c *cli.Context) (err error) {
	id, err := idArg(c, 0)
	if err != nil {
		return err
	}
	return withUsers(c, func(ctx context.Context, users userservice.UserService) error {
		u, err := users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		printUser(u)
		return nil
	})
}

// lookupCommand calls the id overload for numeric arguments, the name overload otherwise.
func lookupCommand(c *cli.Context) (err error) {
	arg := c.Args().First()
	if arg == "" {
		return errors.New("missing argument, usage: lookup <id|name>")
	}
	return withUsers(c, func(ctx context.Context, users userservice.UserService) error {
		var (
			u   *userservice.User
			err error
		)
		if id, convErr := strconv.Atoi(arg); convErr == nil {
			u, err = users.LookupID(ctx, id)
		} else {
			u, err = users.LookupName(ctx, arg)
		}
		if err != nil {
			return err
		}
		printUser(u)
		return nil
	})
}

func saveCommand(c *cli.Context) (err error) {
	id, err := idArg(c, 0)
	if err != nil {
		return err
	}
	name := strings.Join(c.Args().Tail(), " ")
	return withUsers(c, func(ctx context.Context, users userservice.UserService) error {
		return users.Save(ctx, &userservice.User{ID: id, Name: name})
	})
}

func deleteCommand(c *cli.Context) (err error) {
	id, err := idArg(c, 0)
	if err != nil {
		return err
	}
	return withUsers(c, func(ctx context.Context, users userservice.UserService) error {
		return users.Delete(ctx, id)
	})
}

func listCommand(c *cli.Context) (err error) {
	return withUsers(c, func(ctx context.Context, users userservice.UserService) error {
		all, err := users.List(ctx)
		if err != nil {
			return err
		}
		for _, u := range all {
			printUser(u)
		}
		return nil
	})
}
