package cli

import (
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lace", cmd.Use)
	assert.Contains(t, cmd.Long, ".lace directory")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"evaluate", "health", "validate-config", "pr-summary", "context", "watch", "history"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dirFlag := cmd.PersistentFlags().Lookup("dir")
	require.NotNil(t, dirFlag)
	assert.Equal(t, "C", dirFlag.Shorthand)

	historyFlag := cmd.PersistentFlags().Lookup("history")
	require.NotNil(t, historyFlag)
	assert.Equal(t, "false", historyFlag.DefValue)
}

func TestEvaluateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	evalCmd, _, err := cmd.Find([]string{"evaluate"})
	require.NoError(t, err)

	require.NotNil(t, evalCmd.Flags().Lookup("strict-only"))
	require.NotNil(t, evalCmd.Flags().Lookup("json"))
}

func TestContextCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	ctxCmd, _, err := cmd.Find([]string{"context"})
	require.NoError(t, err)

	for _, name := range []string{"function", "line", "previous", "write", "cursor"} {
		assert.NotNil(t, ctxCmd.Flags().Lookup(name), name)
	}
	modeFlag := ctxCmd.Flags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, "replace", modeFlag.DefValue)
}

func TestHistoryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	historyCmd, _, err := cmd.Find([]string{"history"})
	require.NoError(t, err)

	limitFlag := historyCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate-config"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
