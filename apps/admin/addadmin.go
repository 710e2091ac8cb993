package main

import (
	"github.com/SherMarri/schooly-api/core/user"
)

// addAdmin creates an active admin account.
func (cli *commandLine) addAdmin(uname, email, pwd string) error {
	_, err := cli.usrSvc.CreateStaffMember(user.NewStaffMember{
		FullName: uname,
		Username: uname,
		Email:    email,
		Password: pwd,
		Kind:     user.KindAdmin,
	})
	return err
}
