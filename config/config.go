// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers   = []string{"sqlite", "postgres"}
)

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.domain", "host_domain")
	v.BindEnv("host.cors", "host_cors")

	v.BindEnv("jwt.secret", "jwt_secret")

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("storage.access_key_id", "storage_access_key_id")
	v.BindEnv("storage.secret_access_key", "storage_secret_access_key")
	v.BindEnv("storage.bucket", "storage_bucket")
	v.BindEnv("storage.endpoint", "storage_endpoint")
	v.BindEnv("storage.region", "storage_region")
	v.BindEnv("storage.max_usage", "storage_max_usage")

	v.BindEnv("security.rate_limit", "security_rate_limit")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost")
	v.SetDefault("host.cors", []string{"http://localhost:5173"})

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("security.rate_limit", 20)

	// Per-kind upload ceilings, in MiB. Zero falls back to the
	// built-in policy for that kind
	v.SetDefault("upload.image.max_size", 0)
	v.SetDefault("upload.audio.max_size", 0)
	v.SetDefault("upload.video.max_size", 0)
	v.SetDefault("upload.code.max_size", 0)

	v.SetDefault("uploads.remove_after", "5s")

	// Proxy uploads carry multipart framing on top of the largest
	// accepted file
	v.SetDefault("upload.proxy_max_body", int64(1<<30+32<<20))

	v.SetDefault("storage.upload_url_ttl", "15m")
	v.SetDefault("storage.download_url_ttl", "1h")
	v.SetDefault("urls.refresh_margin", "30s")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if !slices.Contains(validDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("storage.access_key_id") == "" {
		return errors.New("storage access key id can't be empty")
	}
	if v.GetString("storage.secret_access_key") == "" {
		return errors.New("storage secret access key can't be empty")
	}
	if v.GetString("storage.bucket") == "" {
		return errors.New("storage bucket can't be empty")
	}
	if v.GetString("storage.endpoint") == "" && v.GetString("storage.region") == "" {
		return errors.New("either a storage endpoint or a region must be set")
	}

	if v.GetDuration("urls.refresh_margin") < 0 {
		return errors.New("urls.refresh_margin can't be negative")
	}

	// Ceilings are configured in MiB, used in bytes
	for _, kind := range []string{"image", "audio", "video", "code"} {
		key := "upload." + kind + ".max_size"
		if s := v.GetInt64(key); s > 0 {
			v.Set(key, s<<20)
		}
	}

	if s := v.GetInt64("storage.max_usage"); s > 0 {
		v.Set("storage.max_usage", s<<20)
	}

	return nil
}
