package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davidahmann/archiveprep/core/archiveurl"
	coreerrors "github.com/davidahmann/archiveprep/core/errors"
	"github.com/davidahmann/archiveprep/core/logging"
	"github.com/davidahmann/archiveprep/core/metadata"
	"github.com/davidahmann/archiveprep/core/projectconfig"
	"github.com/davidahmann/archiveprep/core/session"
)

const (
	envArchiveURL       = "ARCHIVE_URL"
	envArchiveURLLegacy = "archive_url"
	envSessionDir       = "ARCHIVEPREP_SESSION_DIR"
	envMetadataPath     = "ARCHIVEPREP_METADATA_PATH"
	defaultMetadataFile = "mca_metadata.json"
)

// settings merges flags, environment, project config and built-in defaults,
// in that order of precedence.
type settings struct {
	configPath string
	config     projectconfig.Config
	normalizer *archiveurl.Normalizer
	logger     *slog.Logger
}

func loadSettings(configFlag string) (settings, error) {
	path, explicit := projectconfig.ResolvePath(configFlag, os.LookupEnv)
	configuration, err := projectconfig.Load(path, !explicit)
	if err != nil {
		return settings{}, coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "config_invalid", fmt.Sprintf("fix or remove %s", path), false)
	}
	return settings{
		configPath: path,
		config:     configuration,
		normalizer: archiveurl.New(archiveurl.Options{
			Scheme:    configuration.Archive.Scheme,
			Host:      configuration.Archive.Host,
			Extension: configuration.Archive.Extension,
		}),
		logger: logging.FromEnv(os.LookupEnv),
	}, nil
}

// archiveURL resolves the launch URL: the flag, then $ARCHIVE_URL, then the
// lowercase $archive_url the notebook platform exports.
func archiveURL(flagValue string) (string, string) {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed, "flag"
	}
	for _, key := range []string{envArchiveURL, envArchiveURLLegacy} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value, "env:" + key
		}
	}
	return "", ""
}

func (s settings) cacheDir(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv(envSessionDir), s.config.Session.CacheDir, session.DefaultCacheDir())
}

func (s settings) metadataPath(flagValue string) string {
	return firstNonEmpty(flagValue, os.Getenv(envMetadataPath), s.config.Metadata.Path, filepath.Join(os.TempDir(), defaultMetadataFile))
}

func (s settings) notebookTemplate(flagValue string) string {
	return firstNonEmpty(flagValue, s.config.Notebook.Template)
}

func (s settings) notebookOutput(flagValue string) string {
	return firstNonEmpty(flagValue, s.config.Notebook.Output)
}

func (s settings) aiidaProfile(flagValue string) string {
	return firstNonEmpty(flagValue, s.config.Notebook.AiidaProfile)
}

func (s settings) apiTimeout(flagValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if configured, err := s.config.APITimeout(); err == nil && configured > 0 {
		return configured
	}
	return metadata.DefaultTimeout
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
