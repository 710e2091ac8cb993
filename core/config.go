package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Engine        string
	Name          string
	User          string
	Password      string
	AdminUser     string
	AdminPassword string
	Host          string
	Port          string
	DisableTLS    bool
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Config carries all runtime settings. The school's operational singletons
// (active academic session, default ledger account, fees category) are
// injected here instead of being resolved by is_active/is_default row scans
// at call time, so two rows flagged active can never race.
type Config struct {
	Debug            bool
	Env              string
	AppName          string
	Build            string
	ServerHost       string
	DefaultFromEmail string
	SendgridAPIKey   string
	RollbarToken     string

	Database DatabaseConfig

	ActiveSessionID  int
	DefaultAccountID int
	FeesCategoryID   int
}

// NewConfig loads configuration from the environment, reading
// config/.env.<env> first if present.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Schooly")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("serverHost", "localhost")
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "schooly")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		ServerHost:       v.GetString("serverHost"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		ActiveSessionID:  v.GetInt("activeSessionId"),
		DefaultAccountID: v.GetInt("defaultAccountId"),
		FeesCategoryID:   v.GetInt("feesCategoryId"),
	}
}
