// Package logging sets up the log that records every change a pass makes to
// the replica.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// TimestampFormat is the format of the timestamp that starts every line.
const TimestampFormat = "2006-01-02 15:04:05,000"

// consoleLevels are mirrored to the console in addition to the log file.
var consoleLevels = []logrus.Level{
	logrus.PanicLevel,
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
}

// Logger is a logrus logger backed by an append-only log file. It's created
// once at startup, and must be closed at exit.
type Logger struct {
	*logrus.Logger
	file afero.File
}

// Open opens the log file at path for appending, creating it if necessary.
// If console is non-nil, every Info-or-higher entry is also written to it.
func Open(fs afero.Fs, path string, console io.Writer) (*Logger, error) {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}

	logger := logrus.New()
	logger.SetFormatter(LineFormatter{})
	logger.SetOutput(f)
	if console != nil {
		logger.AddHook(&writer.Hook{
			Writer:    console,
			LogLevels: consoleLevels,
		})
	}
	return &Logger{Logger: logger, file: f}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return errors.WithContext(err, "sync log file")
	}
	return l.file.Close()
}

// LineFormatter formats entries as `<timestamp> - <LEVEL> - <message>`.
// Fields are appended after the message as sorted key=value pairs.
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s - %s - %s", entry.Time.Format(TimestampFormat),
		strings.ToUpper(entry.Level.String()), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
