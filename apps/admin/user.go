package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, roles []string, isAdmin bool) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if isAdmin {
		roles = append(roles, user.RoleAdmin)
	}
	for _, role := range roles {
		if user.RolePriority(role) == 0 {
			return user.User{}, errors.Errorf("unknown role %q", role)
		}
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil && errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(ctx, email)
	}
	switch {
	case err == nil:
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{CreatedAt: now}
	default:
		return user.User{}, err
	}

	if name != "" {
		usr.Name = name
	}
	usr.Username = uname
	usr.Email = email
	if len(roles) > 0 {
		usr.Roles = roles
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}

	if usr.ID == "" {
		return cli.usrRepo.CreateUser(ctx, usr)
	}
	active := true
	return cli.usrRepo.UpdateUser(ctx, usr, &active)
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = cli.usrRepo.UpdateUser(ctx, usr, nil)
	return err
}
