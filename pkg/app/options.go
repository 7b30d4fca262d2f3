package app

import "github.com/spf13/pflag"

// CliOptions is the contract an options struct must satisfy to drive the
// application. The papercite server options implement it by aggregating
// the per-concern option blocks.
type CliOptions interface {
	// AddFlags registers every flag on the command's flagset.
	AddFlags(fs *pflag.FlagSet)
	// Validate checks the merged configuration before the server starts.
	Validate() error
	// Complete fills in derived values after config and flags are merged.
	Complete() error
}

// CompletableOptions marks option blocks that derive values after load.
type CompletableOptions interface {
	Complete() error
}

// ValidatableOptions marks option blocks that self-validate.
type ValidatableOptions interface {
	Validate() error
}

// PrintableOptions marks option blocks that can render themselves for
// startup logging.
type PrintableOptions interface {
	String() string
}
