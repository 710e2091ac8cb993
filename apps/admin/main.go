package main

import (
	"fmt"
	"log"
	"os"

	"github.com/SherMarri/schooly-api/core"
	"github.com/SherMarri/schooly-api/core/user"
	emailsvc "github.com/SherMarri/schooly-api/services/email"
	logsvc "github.com/SherMarri/schooly-api/services/logger"
	"github.com/SherMarri/schooly-api/storage/database"
)

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()

	// set up logger
	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		usrSvc: user.NewService(database.NewUserRepository(db), mailSvc, conf),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%v", err))
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error())
	}
}
