package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/replisync/pkg/errors"
	"github.com/sidkik/replisync/pkg/sync"
)

const (
	// InitialSyncConfigVersion is the first version of the replisync
	// config. Config files that do not specify a version will default to
	// this version.
	InitialSyncConfigVersion = "v1alpha1"

	// SupportedSyncConfigVersion is the supported version of the replisync
	// config of the current binary.
	SupportedSyncConfigVersion = "v1alpha1"

	// DefaultLogFile is the log file used when none is configured.
	DefaultLogFile = "sync_log.txt"

	// DefaultInterval is the default number of seconds between passes.
	DefaultInterval = 30
)

// SyncConfig contains everything needed to run the periodic sync.
type SyncConfig struct {
	Version string `json:"version,omitempty"`

	// Source and Replica are the roots of the two trees. Required.
	Source  string `json:"source"`
	Replica string `json:"replica"`

	LogFile string `json:"logFile,omitempty"`

	// Interval is the number of seconds to wait between passes.
	Interval int `json:"interval,omitempty"`

	// UseHash selects content comparison rather than modification times.
	UseHash       bool   `json:"useHash,omitempty"`
	HashAlgorithm string `json:"hashAlgorithm,omitempty"`

	// Watch starts a pass as soon as the source changes, rather than only
	// when the interval elapses.
	Watch bool `json:"watch,omitempty"`

	// Only populated and consumed by replisync. Never set by user.
	path string
}

// DefaultSyncConfig returns the config used when nothing is overridden.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Version:       InitialSyncConfigVersion,
		LogFile:       DefaultLogFile,
		Interval:      DefaultInterval,
		HashAlgorithm: string(sync.SHA512),
	}
}

// GetPath returns the filepath that the config was parsed from. A getter
// method is used rather than making the field public so that it can't get set
// by the yaml Unmarshalling.
func (c SyncConfig) GetPath() string {
	return c.path
}

func (c SyncConfig) getVersion() string {
	return c.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseSyncConfig parses the config file at path. Fields that aren't set in
// the file get their defaults. Relative paths in the file are evaluated
// relative to the directory containing it.
func ParseSyncConfig(path string) (SyncConfig, error) {
	config := SyncConfig{
		Version: InitialSyncConfigVersion,
		path:    path,
	}
	if err := parseConfig(path, &config, SupportedSyncConfigVersion); err != nil {
		return SyncConfig{}, errors.WithContext(err, "parse")
	}

	configDir := filepath.Dir(path)
	for _, field := range []*string{&config.Source, &config.Replica, &config.LogFile} {
		if *field == "" {
			continue
		}

		expanded, err := homedirExpand(*field)
		if err != nil {
			return SyncConfig{}, errors.WithContext(err, "expand homedir")
		}

		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(configDir, expanded)
		}
		*field = expanded
	}

	config.applyDefaults()
	return config, nil
}

func (c *SyncConfig) applyDefaults() {
	defaults := DefaultSyncConfig()
	if c.LogFile == "" {
		c.LogFile = defaults.LogFile
	}
	if c.Interval == 0 {
		c.Interval = defaults.Interval
	}
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = defaults.HashAlgorithm
	}
}

// Expand expands a leading `~` in the paths of the config.
func (c *SyncConfig) Expand() error {
	for _, field := range []*string{&c.Source, &c.Replica, &c.LogFile} {
		expanded, err := homedirExpand(*field)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("expand %q", *field))
		}
		*field = expanded
	}
	return nil
}

// Validate checks that the config can be used to run a sync.
func (c SyncConfig) Validate() error {
	if c.Source == "" {
		return errors.MissingFieldError{Field: "source"}
	}

	if c.Replica == "" {
		return errors.MissingFieldError{Field: "replica"}
	}

	if c.LogFile == "" {
		return errors.MissingFieldError{Field: "logFile"}
	}

	if c.Interval <= 0 {
		return errors.NewFriendlyError(
			"The sync interval must be a positive number of seconds, but got %d.",
			c.Interval)
	}

	if !sync.HashAlgorithm(c.HashAlgorithm).Valid() {
		var supported []string
		for _, alg := range sync.HashAlgorithms {
			supported = append(supported, string(alg))
		}
		return errors.NewFriendlyError(
			"Unsupported hash algorithm %q. Supported algorithms are: %s.",
			c.HashAlgorithm, strings.Join(supported, ", "))
	}
	return nil
}

// GetSyncOptions returns the comparison options for the sync algorithm.
func (c SyncConfig) GetSyncOptions() sync.Options {
	opts := sync.Options{
		Mode:          sync.ModeTimestamp,
		HashAlgorithm: sync.HashAlgorithm(c.HashAlgorithm),
	}
	if c.UseHash {
		opts.Mode = sync.ModeHash
	}
	return opts
}

// GetInterval returns the time to wait between passes.
func (c SyncConfig) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
