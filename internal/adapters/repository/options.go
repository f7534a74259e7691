package repository

import "time"

type sqliteOptions struct {
	fileName    string
	busyTimeout time.Duration
}

// Option applies a configuration option to the SQLiteStore.
type Option func(*sqliteOptions)

// WithFileName sets the database file name inside the data dir.
func WithFileName(name string) Option {
	return func(o *sqliteOptions) {
		if name != "" {
			o.fileName = name
		}
	}
}

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *sqliteOptions) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}
