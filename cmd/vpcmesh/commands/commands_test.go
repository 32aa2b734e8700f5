package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

func TestApply_Flags(t *testing.T) {
	cmd := Apply(&handlers.Options{})

	assert.Equal(t, "apply", cmd.Use)
	require.NotNil(t, cmd.RunE)

	unit := cmd.Flags().Lookup("unit")
	require.NotNil(t, unit)
	assert.Equal(t, "u", unit.Shorthand)
	assert.NotNil(t, cmd.Flags().Lookup("tui"))
	assert.NotNil(t, cmd.Flags().Lookup("with-deps"))

	require.NoError(t, cmd.Flags().Parse([]string{"--unit", "east1", "-u", "east2", "--tui", "--with-deps"}))
	units, err := cmd.Flags().GetStringSlice("unit")
	require.NoError(t, err)
	assert.Equal(t, []string{"east1", "east2"}, units)
	withDeps, err := cmd.Flags().GetBool("with-deps")
	require.NoError(t, err)
	assert.True(t, withDeps)
}

func TestStatus_Flags(t *testing.T) {
	cmd := Status(&handlers.Options{})

	assert.Equal(t, "status", cmd.Use)
	for _, name := range []string{"refresh", "json"} {
		flag := cmd.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "false", flag.DefValue)
	}
}

func TestDestroy_Flags(t *testing.T) {
	cmd := Destroy(&handlers.Options{})

	assert.Equal(t, "destroy", cmd.Use)
	assert.Contains(t, cmd.Long, "irreversible")
	assert.NotNil(t, cmd.Flags().Lookup("unit"))
}

func TestPlan_Command(t *testing.T) {
	cmd := Plan(&handlers.Options{})

	assert.Equal(t, "plan", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestInit_Flags(t *testing.T) {
	cmd := Init()

	output := cmd.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	assert.Equal(t, "vpcmesh.yaml", output.DefValue)
}

func TestVersion_Output(t *testing.T) {
	origVersion, origCommit, origDate := version, commit, date
	t.Cleanup(func() { SetVersionInfo(origVersion, origCommit, origDate) })

	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	cmd := Version()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "vpcmesh 1.2.3")
	assert.Contains(t, out.String(), "commit: abc123")
	assert.Contains(t, out.String(), "built:  2026-01-01")
}
