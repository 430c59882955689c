// Package storage persists accounts, groups and messages in badger and
// stages attachments on disk.
package storage

import (
	"fmt"
	"strings"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/dgraph-io/badger/v4"
)

// OpenOptions selects how the badger database is opened.
type OpenOptions struct {
	Path     string
	InMemory bool
	ReadOnly bool
}

// Open opens a badger database logging through logger.
func Open(opts OpenOptions, logger *logging.Logger) (*badger.DB, error) {
	var options badger.Options
	if opts.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// a read-only reader may run next to the server holding the lock
		options = badger.DefaultOptions(opts.Path).
			WithReadOnly(opts.ReadOnly).
			WithBypassLockGuard(opts.ReadOnly)
	}
	options = options.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return db, nil
}

// badgerLogger adapts the relay logger to badger.Logger. Badger is chatty
// at info level, so info is demoted to debug.
type badgerLogger struct {
	logger *logging.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(trim(format, args), "component", "badger")
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(trim(format, args), "component", "badger")
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(trim(format, args), "component", "badger")
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(trim(format, args), "component", "badger")
}

func trim(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
