package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WARDEN_CONFIG env, ./config.yaml, /etc/warden/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. WARDEN_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/warden/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("WARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/warden/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so typos in plugin settings surface early.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps WARDEN_* environment variables to config fields.
// Malformed numeric or boolean values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("WARDEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WARDEN_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WARDEN_AUTH_REALM"); v != "" {
		cfg.Auth.Realm = v
	}
	if v := os.Getenv("WARDEN_AUTH_PLUGINS"); v != "" {
		cfg.Auth.Plugins = splitList(v)
	}
	if v := os.Getenv("WARDEN_ANONYMOUS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WARDEN_ANONYMOUS: %w", err)
		}
		cfg.Auth.Anonymous = b
	}
	if v := os.Getenv("WARDEN_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("WARDEN_POSTGRES_DSN"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("WARDEN_JWKS_URL"); v != "" {
		cfg.Auth.JWT.JWKSURL = v
	}
	if v := os.Getenv("WARDEN_LDAP_URL"); v != "" {
		cfg.Auth.LDAP.URL = v
	}
	if v := os.Getenv("WARDEN_LDAP_BIND_PASSWORD"); v != "" {
		cfg.Auth.LDAP.BindPassword = v
	}
	if v := os.Getenv("WARDEN_THROTTLE_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WARDEN_THROTTLE_LIMIT: %w", err)
		}
		cfg.Auth.Throttle.Limit = limit
	}

	// WARDEN_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("WARDEN_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing WARDEN_API_KEYS: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. An explicit value always wins over its _file variant.
func resolveFileReferences(cfg *Config) error {
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	if cfg.Auth.LDAP.BindPasswordFile != "" && cfg.Auth.LDAP.BindPassword == "" {
		val, err := readSecretFile(cfg.Auth.LDAP.BindPasswordFile)
		if err != nil {
			return fmt.Errorf("auth.ldap.bind_password_file: %w", err)
		}
		cfg.Auth.LDAP.BindPassword = val
	}

	for i := range cfg.Auth.Users {
		u := &cfg.Auth.Users[i]
		if u.PasswordHashFile != "" && u.PasswordHash == "" {
			val, err := readSecretFile(u.PasswordHashFile)
			if err != nil {
				return fmt.Errorf("auth.users[%d].password_hash_file: %w", i, err)
			}
			u.PasswordHash = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
