package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	ServerConfig struct {
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	// FeeTypeNames maps every charge category of a payment plan to the name of its FeeType catalog entry.
	FeeTypeNames struct {
		Enrollment string
		Tuition    string
		Materials  string
		Uniform    string
		Transport  string
	}

	LedgerConfig struct {
		Currency string
		FeeTypes FeeTypeNames
	}

	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		LogFormat    string // console | json
		RollbarToken string
		Database     DatabaseConfig
		Server       ServerConfig
		Ledger       LedgerConfig
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the configuration of the environment named by $ENV.
func NewConfig() *Config {
	return LoadConfig(os.Getenv("ENV"))
}

// LoadConfig loads the configuration of the given environment.
// Values are read from `<ENV>_<KEY>` environment variables, eg. DEV_DATABASE_HOST,
// optionally preloaded from config/.env.<env>.
func LoadConfig(env string) *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Colegio")
	v.SetDefault("logFormat", "console")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "colegio")
	v.SetDefault("database.user", "colegio")
	v.SetDefault("database.password", "colegio")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("ledger.currency", "USD")
	v.SetDefault("ledger.feeTypes.enrollment", "Matricula")
	v.SetDefault("ledger.feeTypes.tuition", "Mensualidad")
	v.SetDefault("ledger.feeTypes.materials", "Materiales")
	v.SetDefault("ledger.feeTypes.uniform", "Uniforme")
	v.SetDefault("ledger.feeTypes.transport", "Transporte")

	env = strings.ToUpper(strings.TrimSpace(env))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if root, ok := ProjectRoot(); ok {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		LogFormat:    v.GetString("logFormat"),
		RollbarToken: v.GetString("rollbarToken"),
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Ledger: LedgerConfig{
			Currency: v.GetString("ledger.currency"),
			FeeTypes: FeeTypeNames{
				Enrollment: v.GetString("ledger.feeTypes.enrollment"),
				Tuition:    v.GetString("ledger.feeTypes.tuition"),
				Materials:  v.GetString("ledger.feeTypes.materials"),
				Uniform:    v.GetString("ledger.feeTypes.uniform"),
				Transport:  v.GetString("ledger.feeTypes.transport"),
			},
		},
	}
}
