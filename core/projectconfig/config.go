package projectconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultPath = ".archiveprep/config.yaml"
	EnvPath     = "ARCHIVEPREP_CONFIG"
)

type Config struct {
	Archive  ArchiveDefaults  `yaml:"archive"`
	Session  SessionDefaults  `yaml:"session"`
	Metadata MetadataDefaults `yaml:"metadata"`
	Notebook NotebookDefaults `yaml:"notebook"`
}

type ArchiveDefaults struct {
	Scheme     string `yaml:"scheme"`
	Host       string `yaml:"host"`
	Extension  string `yaml:"extension"`
	APITimeout string `yaml:"api_timeout"`
}

type SessionDefaults struct {
	CacheDir string `yaml:"cache_dir"`
}

type MetadataDefaults struct {
	Path string `yaml:"path"`
}

type NotebookDefaults struct {
	Template     string `yaml:"template"`
	Output       string `yaml:"output"`
	AiidaProfile string `yaml:"aiida_profile"`
}

// ResolvePath picks the config file: the explicit path, then $ARCHIVEPREP_CONFIG,
// then DefaultPath. The boolean reports whether the file was named explicitly
// and therefore must exist.
func ResolvePath(explicit string, lookup func(string) (string, bool)) (string, bool) {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed, true
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(EnvPath); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), true
	}
	return DefaultPath, false
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	if err := configuration.validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

// APITimeout parses archive.api_timeout; zero means unset.
func (configuration Config) APITimeout() (time.Duration, error) {
	if configuration.Archive.APITimeout == "" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(configuration.Archive.APITimeout)
	if err != nil {
		return 0, fmt.Errorf("parse archive.api_timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("archive.api_timeout must be positive")
	}
	return timeout, nil
}

func (configuration *Config) normalize() {
	configuration.Archive.Scheme = strings.ToLower(strings.TrimSpace(configuration.Archive.Scheme))
	configuration.Archive.Host = strings.ToLower(strings.TrimSpace(configuration.Archive.Host))
	configuration.Archive.Extension = strings.ToLower(strings.TrimSpace(configuration.Archive.Extension))
	configuration.Archive.APITimeout = strings.TrimSpace(configuration.Archive.APITimeout)
	configuration.Session.CacheDir = strings.TrimSpace(configuration.Session.CacheDir)
	configuration.Metadata.Path = strings.TrimSpace(configuration.Metadata.Path)
	configuration.Notebook.Template = strings.TrimSpace(configuration.Notebook.Template)
	configuration.Notebook.Output = strings.TrimSpace(configuration.Notebook.Output)
	configuration.Notebook.AiidaProfile = strings.TrimSpace(configuration.Notebook.AiidaProfile)
}

func (configuration Config) validate() error {
	switch configuration.Archive.Scheme {
	case "", "http", "https":
	default:
		return fmt.Errorf("archive.scheme must be http or https, got %q", configuration.Archive.Scheme)
	}
	if strings.ContainsAny(configuration.Archive.Host, "/ ") {
		return fmt.Errorf("archive.host must be a bare host name, got %q", configuration.Archive.Host)
	}
	if _, err := configuration.APITimeout(); err != nil {
		return err
	}
	return nil
}
