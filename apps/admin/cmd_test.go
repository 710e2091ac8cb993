package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
	emailsvc "github.com/SherMarri/schooly-api/services/email"
	"github.com/SherMarri/schooly-api/storage/database/inmem"
)

func setup(t *testing.T) (*commandLine, *user.Service) {
	t.Helper()
	conf := &core.Config{AppName: "Schooly", DefaultFromEmail: "noreply@localhost"}
	svc := user.NewService(inmem.NewUserRepository(inmem.Open()), emailsvc.NewConsoleServiceMock(conf), conf)
	return &commandLine{usrSvc: svc}, svc
}

func Test_commandLine_run(t *testing.T) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("G0#druid!pass"), nil }

	tests := []struct {
		name    string
		args    []string // without program name
		wantErr error
	}{
		{name: "no subcommand", args: nil, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"lol"}, wantErr: errHelp},
		{name: "addadmin: no args", args: []string{"addadmin"}, wantErr: errHelp},
		{name: "addadmin", args: []string{"addadmin", "-username", "headmaster", "-email", "head@school.org"}},
		{name: "resetpassword: no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "resetpassword: unknown user", args: []string{"resetpassword", "-username", "nobody"}, wantErr: user.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _ := setup(t)
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("G0#druid!pass"), nil }

	cli, svc := setup(t)
	assert.NoError(t, cli.addAdmin("headmaster", "head@school.org", "G0#druid!pass"))

	assert.NoError(t, cli.run([]string{"admin", "resetpassword", "-username", "headmaster"}))

	usr, err := svc.GetByUsernameOrEmail("headmaster")
	assert.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("G0#druid!pass"))
}
