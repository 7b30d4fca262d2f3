package papercite

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The llm options append the dot separator to their prefix themselves, so
// the provider slots register as embedding.* / chat.* with a single dot.
func TestAddFlagsSpellings(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("papercite", pflag.ContinueOnError)
	opts.AddFlags(fs)

	for _, name := range []string{
		"http.addr",
		"backend",
		"embedding.provider",
		"embedding.model",
		"chat.provider",
		"chat.model",
		"pipeline.chunk-size",
		"pipeline.verify-policy",
		"cache.enabled",
		"workers.capacity",
	} {
		assert.NotNil(t, fs.Lookup(name), "missing flag %s", name)
	}

	assert.Nil(t, fs.Lookup("embedding..provider"))
	assert.Nil(t, fs.Lookup("chat..model"))
}

func TestOptionsValidateDefaults(t *testing.T) {
	opts := NewOptions()
	require.NoError(t, opts.Validate())
}

func TestOptionsValidateBadBackend(t *testing.T) {
	opts := NewOptions()
	opts.Backend = "cassandra"
	require.Error(t, opts.Validate())
}
