// Package sqlite provides options for the embedded SQLite database.
package sqlite

import (
	"fmt"

	"github.com/papercite/papercite/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains SQLite configuration.
type Options struct {
	// Path is the database file path. The special value ":memory:" keeps
	// the database in process memory.
	Path string `json:"path" mapstructure:"path"`

	// MaxOpenConns caps the open connection count. SQLite serializes
	// writers, so a small pool is enough.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Path:         "papercite.db",
		MaxOpenConns: 4,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, options.Join(prefixes...)+"sqlite.path", o.Path, "SQLite database file path.")
	fs.IntVar(&o.MaxOpenConns, options.Join(prefixes...)+"sqlite.max-open-conns", o.MaxOpenConns, "Maximum open SQLite connections.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("sqlite path is required"))
	}
	return errs
}
