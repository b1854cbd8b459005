package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	passPlan     = "../../testdata/plans/pass.cue"
	thermalPlan  = "../../testdata/plans/thermal.cue"
	scenariosDir = "../../testdata/scenarios"
)

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeCUE writes content to a plan file in a fresh directory.
func writeCUE(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const invalidPlan = `plan: bad: {
	start:    "2030-01-01T00:00:00Z"
	duration: "1m"
	activities: [
		{id: "w", type: "warp"},
		{id: "c", type: "cool", args: factor: 2.0},
	]
}
`
