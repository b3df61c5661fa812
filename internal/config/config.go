// Package config assembles the service configuration from defaults,
// an optional YAML/JSON config file, environment variables and command line flags,
// in increasing order of priority, and validates the result.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" yaml:"server_address" validate:"hostname_port"`
	GRPCRunAddr         string        `env:"GRPC_SERVER_ADDRESS" yaml:"grpc_server_address" validate:"omitempty,hostname_port"`
	LogLevel            string        `env:"LOG_LEVEL" yaml:"log_level" validate:"loglevel"`
	DatabaseDSN         string        `env:"DATABASE_DSN" yaml:"database_dsn"`
	DBFileName          string        `env:"FILE_STORAGE_PATH" yaml:"file_storage_path" validate:"storagefile"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" yaml:"db_connection_timeout" validate:"gt=0"`
	DBQueryTimeout      time.Duration `env:"DB_QUERY_TIMEOUT" yaml:"db_query_timeout" validate:"gt=0"`
	DBMaxOpenConns      int           `env:"DB_MAX_OPEN_CONNS" yaml:"db_max_open_conns" validate:"gt=0"`
	DBMaxIdleConns      int           `env:"DB_MAX_IDLE_CONNS" yaml:"db_max_idle_conns" validate:"gte=0"`
	DBConnMaxLifetime   time.Duration `env:"DB_CONN_MAX_LIFETIME" yaml:"db_conn_max_lifetime" validate:"gte=0"`
	TrustedSubnet       string        `env:"TRUSTED_SUBNET" yaml:"trusted_subnet" validate:"omitempty,cidr"`
	AuthSigningKey      string        `env:"AUTH_SIGNING_KEY" yaml:"auth_signing_key" validate:"omitempty,base64url"`
	AuthCookieName      string        `env:"AUTH_COOKIE_NAME" yaml:"auth_cookie_name" validate:"required"`
	CORSAllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," yaml:"cors_allowed_origins"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" validate:"gt=0"`

	// ConfigFile is the path of the optional YAML or JSON config file.
	ConfigFile string `env:"CONFIG" yaml:"-"`
}

var defaultConfig = Config{
	RunAddr:             "127.0.0.1:7878",
	GRPCRunAddr:         "",
	LogLevel:            "info",
	DatabaseDSN:         "",
	DBFileName:          "",
	DBConnectionTimeout: 10 * time.Second,
	DBQueryTimeout:      5 * time.Second,
	DBMaxOpenConns:      10,
	DBMaxIdleConns:      5,
	DBConnMaxLifetime:   30 * time.Minute,
	TrustedSubnet:       "",
	AuthSigningKey:      "",
	AuthCookieName:      "auth",
	CORSAllowedOrigins:  []string{"*"},
	ShutdownTimeout:     10 * time.Second,
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command line parsing, which is what tests usually want.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds the configuration. Priority, lowest first:
// defaults, config file, environment, command line flags.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	var cli Config
	visited := map[string]bool{}
	if !options.disableFlagsParsing {
		fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		fs.StringVar(&cli.RunAddr, "a", "", "address and port to run the HTTP server")
		fs.StringVar(&cli.GRPCRunAddr, "g", "", "address and port to run the gRPC server")
		fs.StringVar(&cli.LogLevel, "l", "", "logger level")
		fs.StringVar(&cli.DatabaseDSN, "d", "", "a string with the database connection details")
		fs.StringVar(&cli.DBFileName, "f", "", "JSON file with users")
		fs.StringVar(&cli.TrustedSubnet, "t", "", "trusted subnet in CIDR notation")
		fs.StringVar(&cli.ConfigFile, "c", "", "path to a YAML or JSON config file")
		if err := fs.Parse(os.Args[1:]); err != nil {
			return nil, err
		}
		fs.Visit(func(f *flag.Flag) {
			visited[f.Name] = true
		})
	}

	var valuesFromEnv Config
	if err := env.Parse(&valuesFromEnv); err != nil {
		return nil, err
	}

	configFile := valuesFromEnv.ConfigFile
	if visited["c"] {
		configFile = cli.ConfigFile
	}
	if configFile != "" {
		if err := values.loadFile(configFile); err != nil {
			return nil, err
		}
		values.ConfigFile = configFile
	}

	overrideNonZero(values, valuesFromEnv)
	overrideVisitedFlags(values, cli, visited)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
	values.CORSAllowedOrigins = append([]string(nil), defaults.CORSAllowedOrigins...)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadFile(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadFile(): error while `yaml.Unmarshal()` calling: %w", err)
	}

	return nil
}

func overrideNonZero(dst *Config, src Config) {
	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(src)
	for i := 0; i < srcValue.NumField(); i++ {
		if !srcValue.Field(i).IsZero() {
			dstValue.Field(i).Set(srcValue.Field(i))
		}
	}
}

func overrideVisitedFlags(dst *Config, cli Config, visited map[string]bool) {
	for name := range visited {
		switch name {
		case "a":
			dst.RunAddr = cli.RunAddr
		case "g":
			dst.GRPCRunAddr = cli.GRPCRunAddr
		case "l":
			dst.LogLevel = cli.LogLevel
		case "d":
			dst.DatabaseDSN = cli.DatabaseDSN
		case "f":
			dst.DBFileName = cli.DBFileName
		case "t":
			dst.TrustedSubnet = cli.TrustedSubnet
		}
	}
}

func validateStorageFile(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)

	return (err == nil && !info.IsDir()) || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("storagefile", validateStorageFile)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}
