package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// invalidConfigTemplate is shown when a sync config file isn't valid YAML, or
// doesn't match the SyncConfig schema. The parser's own message is appended
// since it's the only place that names the offending field.
const invalidConfigTemplate = "The sync config %q is invalid.\n" +
	"Check that it only sets source, replica, logFile, interval, useHash, " +
	"hashAlgorithm and watch, and that interval is a whole number.\n\n" +
	"Parser error: %s"

// Mocked out for unit testing.
var fs = afero.NewOsFs()

type versioned interface {
	getVersion() string
}

// unsupportedVersionError is returned for config files written for a
// different schema version.
type unsupportedVersionError struct {
	path, supported, actual string
}

func (err unsupportedVersionError) Error() string {
	return err.FriendlyMessage()
}

func (err unsupportedVersionError) FriendlyMessage() string {
	return fmt.Sprintf("The sync config %q has version %q, but this build "+
		"of replisync only reads version %q.", err.path, err.actual, err.supported)
}

// parseConfig loads the YAML at path into config. The version is checked
// before unknown fields are rejected, so that a config from a newer release
// reports the version mismatch rather than its new fields.
func parseConfig(path string, config versioned, supportedVersion string) error {
	contents, err := afero.ReadFile(fs, path)
	switch {
	case os.IsNotExist(err):
		return errors.FileNotFound{Path: path}
	case err != nil:
		return errors.WithContext(err, "read file")
	}

	if err := yaml.Unmarshal(contents, config); err != nil {
		return errors.NewFriendlyError(invalidConfigTemplate, path, err)
	}

	if actual := config.getVersion(); actual != supportedVersion {
		return unsupportedVersionError{path: path, supported: supportedVersion, actual: actual}
	}

	if err := yaml.UnmarshalStrict(contents, config, yaml.DisallowUnknownFields); err != nil {
		return errors.NewFriendlyError(invalidConfigTemplate, path, err)
	}
	return nil
}
