package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "vpcmesh", cmd.Use)
	assert.True(t, cmd.SilenceUsage)
}

func TestRoot_HasSubcommands(t *testing.T) {
	cmd := Root()

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}
	for _, expected := range []string{"init", "plan", "apply", "status", "destroy", "version"} {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), 6)
}

func TestRoot_PersistentFlags(t *testing.T) {
	cmd := Root()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"config", "c"},
		{"verbose", "v"},
		{"metrics-file", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
		})
	}
}

func TestRoot_ParsesSharedOptions(t *testing.T) {
	cmd := Root()
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"-c", "mesh.yaml", "-vv", "--metrics-file", "out.prom"}))

	verbose, err := cmd.PersistentFlags().GetCount("verbose")
	require.NoError(t, err)
	assert.Equal(t, 2, verbose)
	assert.Equal(t, "mesh.yaml", cmd.PersistentFlags().Lookup("config").Value.String())
}
