package config

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// FlashConfig represents the runtime configuration
type FlashConfig struct {
	Hostname             string
	WebPort              int
	MetricsPort          int
	LogLevel             string
	Debug                bool
	DevMode              bool
	StoragePath          string
	MasterKey            []byte
	SessionTTLMinutes    int
	SweepIntervalMinutes int
	BurnedRetentionMins  int
	Database             *dbConfig
	Client               *clientConfig
}

type dbConfig struct {
	Type     string
	User     string
	Password string
	Hostname string
	Port     uint
	Name     string
}

type clientConfig struct {
	ServerURL          string
	ToolsPath          string
	IntegrityCheck     bool
	TrustedToolHashes  []string
	KeyBits            int
	OverwritePasses    int
	RequestTimeoutMins int
}

var config *FlashConfig

// Init configuration for service
func Init() {
	options := viper.New()
	options.SetDefault("WebPort", 3000)
	options.SetDefault("MetricsPort", 8080)
	options.SetDefault("LogLevel", "INFO")
	options.SetDefault("Debug", false)
	options.SetDefault("DevMode", false)
	options.SetDefault("FirmwareStoragePath", "/var/lib/flashguard/firmware")
	options.SetDefault("MasterKeyBase64", "")
	options.SetDefault("SessionTTLMinutes", 15)
	options.SetDefault("SweepIntervalMinutes", 5)
	options.SetDefault("BurnedRetentionMinutes", 60)
	options.SetDefault("Database", "sqlite")
	options.SetDefault("DatabaseName", "flashguard.db")
	options.SetDefault("ServerURL", "https://localhost:3000")
	options.SetDefault("ToolsPath", "/usr/local/lib/flashguard/tools")
	options.SetDefault("ToolIntegrityCheck", true)
	options.SetDefault("TrustedToolHashes", []string{})
	options.SetDefault("ClientKeyBits", 2048)
	options.SetDefault("OverwritePasses", 3)
	options.SetDefault("RequestTimeoutMinutes", 10)
	options.AutomaticEnv()

	if options.GetBool("Debug") {
		options.Set("LogLevel", "DEBUG")
	}

	hostname, _ := os.Hostname()

	config = &FlashConfig{
		Hostname:             hostname,
		WebPort:              options.GetInt("WebPort"),
		MetricsPort:          options.GetInt("MetricsPort"),
		LogLevel:             options.GetString("LogLevel"),
		Debug:                options.GetBool("Debug"),
		DevMode:              options.GetBool("DevMode"),
		StoragePath:          options.GetString("FirmwareStoragePath"),
		SessionTTLMinutes:    options.GetInt("SessionTTLMinutes"),
		SweepIntervalMinutes: options.GetInt("SweepIntervalMinutes"),
		BurnedRetentionMins:  options.GetInt("BurnedRetentionMinutes"),
		Client: &clientConfig{
			ServerURL:          options.GetString("ServerURL"),
			ToolsPath:          options.GetString("ToolsPath"),
			IntegrityCheck:     options.GetBool("ToolIntegrityCheck"),
			TrustedToolHashes:  options.GetStringSlice("TrustedToolHashes"),
			KeyBits:            options.GetInt("ClientKeyBits"),
			OverwritePasses:    options.GetInt("OverwritePasses"),
			RequestTimeoutMins: options.GetInt("RequestTimeoutMinutes"),
		},
	}

	if raw := options.GetString("MasterKeyBase64"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err == nil && len(key) == 32 {
			config.MasterKey = key
		}
	}

	database := options.GetString("Database")

	if database == "pgsql" {
		config.Database = &dbConfig{
			Type:     "pgsql",
			User:     options.GetString("PGSQL_USER"),
			Password: options.GetString("PGSQL_PASSWORD"),
			Hostname: options.GetString("PGSQL_HOSTNAME"),
			Port:     options.GetUint("PGSQL_PORT"),
			Name:     options.GetString("PGSQL_DATABASE"),
		}
	} else {
		config.Database = &dbConfig{
			Type: "sqlite",
			Name: options.GetString("DatabaseName"),
		}
	}
}

// Get returns an initialized FlashConfig
func Get() *FlashConfig {
	return config
}

// Set replaces the active configuration, used by tests
func Set(cfg *FlashConfig) {
	config = cfg
}

// ClientKeyPath returns the location of the protected client keypair blob
func ClientKeyPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "flashguard", "client_key.dat"), nil
}
