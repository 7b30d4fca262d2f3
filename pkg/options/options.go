// Package options defines the shared contract for the per-concern option
// blocks (milvus, sqlite, redis, llm, logger) aggregated by the server
// options.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, so callers can build flag names like
// "milvus.address" or "embedding.provider" by prepending the result.
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every option block.
type IOptions interface {
	// Validate returns every problem with the block, not just the first.
	Validate() []error

	// AddFlags registers the block's flags, optionally under a prefix.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}
