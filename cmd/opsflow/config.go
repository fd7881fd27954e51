package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/credential"
	"github.com/finward/opsflow/internal/store"
)

// ProviderDoc configures one credential provider instance.
type ProviderDoc struct {
	Name string                 `yaml:"name"`
	Type string                 `yaml:"type"`
	Spec map[string]interface{} `yaml:"spec"`
}

// ConfigDoc is the opsflow config file.
type ConfigDoc struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text or json
	} `yaml:"logging"`
	SecretKey string `yaml:"secret_key"`
	Store     struct {
		Driver string                 `yaml:"driver"`
		Config map[string]interface{} `yaml:"config"`
	} `yaml:"store"`
	Providers []ProviderDoc `yaml:"providers"`
	Server    struct {
		Addr       string `yaml:"addr"`
		AuthSecret string `yaml:"auth_secret"`
	} `yaml:"server"`
	Runbook string `yaml:"runbook"`
}

// Load reads and parses the config file, resolving the runbook path
// relative to the config file's directory.
func (d *ConfigDoc) Load(path string) error {
	cleanPath := filepath.Clean(path)

	// #nosec G304 -- path is provided by user configuration
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if d.Runbook != "" && !filepath.IsAbs(d.Runbook) {
		d.Runbook = filepath.Join(filepath.Dir(cleanPath), d.Runbook)
	}
	return nil
}

// SetupLogging installs the configured default logger.
func (d *ConfigDoc) SetupLogging() {
	level := common.ParseLogLevel(d.Logging.Level)
	if d.Logging.Format == "json" {
		common.SetDefaultLogger(common.NewJSONLogger(level))
		return
	}
	common.SetDefaultLogger(common.NewLogger(level))
}

// OpenStore opens the configured store, defaulting to a local sqlite
// file next to the working directory.
func (d *ConfigDoc) OpenStore() (*store.Store, error) {
	driver := d.Store.Driver
	config := d.Store.Config
	if config == nil {
		config = map[string]interface{}{}
	}
	if driver == "" || driver == store.DriverSqlite {
		if _, ok := config["path"]; !ok {
			config["path"] = "opsflow.db"
		}
	}
	return store.Open(driver, config)
}

// BuildManager builds the credential manager with every configured
// provider attached.
func (d *ConfigDoc) BuildManager(st *store.Store) (*credential.Manager, error) {
	if d.SecretKey == "" {
		return nil, fmt.Errorf("secret_key is required to protect stored tokens")
	}
	cipher, err := credential.NewCipher(d.SecretKey)
	if err != nil {
		return nil, err
	}
	m := credential.NewManager(st, cipher)
	for _, p := range d.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider entries need a name")
		}
		provider, err := credential.Build(p.Type, p.Spec)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		m.AddProvider(p.Name, provider)
	}
	return m, nil
}
