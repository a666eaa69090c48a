package config

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/replisync/pkg/errors"
	"github.com/sidkik/replisync/pkg/sync"
)

func TestParseSyncConfig(t *testing.T) {
	out := "/etc/replisync/replisync.yaml"

	homedirExpand = func(path string) (string, error) {
		if strings.HasPrefix(path, "~") {
			return "/home/kevin" + path[1:], nil
		}
		return path, nil
	}

	withDefaults := func(cfg SyncConfig) SyncConfig {
		defaults := DefaultSyncConfig()
		if cfg.Version == "" {
			cfg.Version = defaults.Version
		}
		if cfg.LogFile == "" {
			cfg.LogFile = defaults.LogFile
		}
		if cfg.Interval == 0 {
			cfg.Interval = defaults.Interval
		}
		if cfg.HashAlgorithm == "" {
			cfg.HashAlgorithm = defaults.HashAlgorithm
		}
		cfg.path = out
		return cfg
	}

	tests := []struct {
		name      string
		input     []byte
		expConfig SyncConfig
		expError  error
	}{
		{
			name: "EmptyVersion",
			input: mustMarshal(SyncConfig{
				Source:  "/data/source",
				Replica: "/data/replica",
			}),
			expConfig: withDefaults(SyncConfig{
				Source:  "/data/source",
				Replica: "/data/replica",
			}),
		},
		{
			name: "AllFields",
			input: mustMarshal(SyncConfig{
				Version:       SupportedSyncConfigVersion,
				Source:        "~/source",
				Replica:       "replica",
				LogFile:       "/var/log/replisync.log",
				Interval:      5,
				UseHash:       true,
				HashAlgorithm: "blake2b",
				Watch:         true,
			}),
			expConfig: withDefaults(SyncConfig{
				Version:       SupportedSyncConfigVersion,
				Source:        "/home/kevin/source",
				Replica:       "/etc/replisync/replica",
				LogFile:       "/var/log/replisync.log",
				Interval:      5,
				UseHash:       true,
				HashAlgorithm: "blake2b",
				Watch:         true,
			}),
		},
		{
			name: "IncorrectVersion",
			input: mustMarshal(SyncConfig{
				Version: "incorrect_version",
				Source:  "/data/source",
			}),
			expConfig: SyncConfig{},
			expError: errors.WithContext(unsupportedVersionError{
				path:      out,
				supported: SupportedSyncConfigVersion,
				actual:    "incorrect_version",
			}, "parse"),
		},
		{
			name: "ExtraFields",
			input: []byte(fmt.Sprintf(
				"version: %s\nextra: fields", SupportedSyncConfigVersion)),
			expError: errors.WithContext(
				errors.NewFriendlyError(invalidConfigTemplate, out,
					errors.New("error unmarshaling JSON: while decoding JSON: "+
						`json: unknown field "extra"`)),
				"parse"),
		},
		{
			name: "IncorrectVersionAndExtraFields",
			input: []byte(`
version: incorrect_version
extra: fields
`),
			expError: errors.WithContext(unsupportedVersionError{
				path:      out,
				supported: SupportedSyncConfigVersion,
				actual:    "incorrect_version",
			}, "parse"),
		},
	}

	fs = afero.NewMemMapFs()
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := afero.WriteFile(fs, out, test.input, 0644)
			assert.NoError(t, err)
			config, err := ParseSyncConfig(out)
			assert.Equal(t, test.expConfig, config)
			assert.Equal(t, test.expError, err)
		})
	}
}

func TestParseSyncConfigMissing(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := ParseSyncConfig("/missing.yaml")
	assert.Equal(t, errors.FileNotFound{Path: "/missing.yaml"}, errors.RootCause(err))
}

func TestParseSyncConfigPrintableErrors(t *testing.T) {
	fs = afero.NewMemMapFs()
	path := "/replisync.yaml"

	tests := []struct {
		name   string
		input  string
		expMsg string
	}{
		{
			name:  "UnsupportedVersion",
			input: "version: v2\nsource: /data/source\n",
			expMsg: `The sync config "/replisync.yaml" has version "v2", but this build ` +
				`of replisync only reads version "v1alpha1".`,
		},
		{
			name:  "WrongType",
			input: "version: v1alpha1\ninterval: soon\n",
			expMsg: `The sync config "/replisync.yaml" is invalid.` + "\n" +
				"Check that it only sets source, replica, logFile, interval, useHash, " +
				"hashAlgorithm and watch, and that interval is a whole number.",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, afero.WriteFile(fs, path, []byte(test.input), 0644))
			_, err := ParseSyncConfig(path)
			require.Error(t, err)
			assert.Contains(t, errors.GetPrintableMessage(err), test.expMsg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := DefaultSyncConfig()
	valid.Source = "/source"
	valid.Replica = "/replica"

	withChange := func(change func(*SyncConfig)) SyncConfig {
		cfg := valid
		change(&cfg)
		return cfg
	}

	tests := []struct {
		name     string
		config   SyncConfig
		expError error
	}{
		{
			name:   "Valid",
			config: valid,
		},
		{
			name:     "MissingSource",
			config:   withChange(func(c *SyncConfig) { c.Source = "" }),
			expError: errors.MissingFieldError{Field: "source"},
		},
		{
			name:     "MissingReplica",
			config:   withChange(func(c *SyncConfig) { c.Replica = "" }),
			expError: errors.MissingFieldError{Field: "replica"},
		},
		{
			name:     "MissingLogFile",
			config:   withChange(func(c *SyncConfig) { c.LogFile = "" }),
			expError: errors.MissingFieldError{Field: "logFile"},
		},
		{
			name:   "ZeroInterval",
			config: withChange(func(c *SyncConfig) { c.Interval = 0 }),
			expError: errors.NewFriendlyError(
				"The sync interval must be a positive number of seconds, but got 0."),
		},
		{
			name:   "UnknownHashAlgorithm",
			config: withChange(func(c *SyncConfig) { c.HashAlgorithm = "sha1" }),
			expError: errors.NewFriendlyError(
				`Unsupported hash algorithm "sha1". Supported algorithms are: sha512, md5, blake2b.`),
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expError, test.config.Validate())
		})
	}
}

func TestExpand(t *testing.T) {
	homedirExpand = func(path string) (string, error) {
		if strings.HasPrefix(path, "~") {
			return "/home/kevin" + path[1:], nil
		}
		return path, nil
	}

	cfg := SyncConfig{Source: "~/src", Replica: "/replica", LogFile: "~/sync_log.txt"}
	assert.NoError(t, cfg.Expand())
	assert.Equal(t, "/home/kevin/src", cfg.Source)
	assert.Equal(t, "/replica", cfg.Replica)
	assert.Equal(t, "/home/kevin/sync_log.txt", cfg.LogFile)
}

func TestGetSyncOptions(t *testing.T) {
	cfg := DefaultSyncConfig()
	assert.Equal(t, sync.Options{Mode: sync.ModeTimestamp, HashAlgorithm: sync.SHA512},
		cfg.GetSyncOptions())
	assert.Equal(t, 30*time.Second, cfg.GetInterval())

	cfg.UseHash = true
	cfg.HashAlgorithm = "md5"
	assert.Equal(t, sync.Options{Mode: sync.ModeHash, HashAlgorithm: sync.MD5},
		cfg.GetSyncOptions())
}

func mustMarshal(cfg interface{}) []byte {
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		panic(fmt.Errorf("bad test input, unable to marshal to yaml: %s", err))
	}
	return yamlBytes
}
