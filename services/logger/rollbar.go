package logsvc

import (
	"log"
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
)

// RollbarLogger forwards leveled messages to rollbar and mirrors them on a
// standard logger. A user.User among the args identifies the rollbar person
// for the report; remaining args ride along as extra payload.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.ServerHost)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

func (l RollbarLogger) emit(report func(...interface{}), msg string, args []interface{}) {
	payload := make([]interface{}, 0, len(args)+1)
	payload = append(payload, msg)

	var person bool
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok && !person {
			rollbar.SetPerson(strconv.Itoa(usr.ID), usr.Username, usr.Email)
			person = true
			continue
		}
		payload = append(payload, arg)
	}
	if !person {
		rollbar.ClearPerson()
	}
	report(payload...)

	l.std.Println(msg)
	for _, arg := range payload[1:] {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.emit(rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.emit(rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.emit(rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.emit(rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.emit(rollbar.Critical, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
