package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lace/internal/config"
)

const advisoryPolicy = `policies:
  - id: RULE-1
    description: No legacy IO
    severity: advisory
    forbidden_imports: ["**/legacy/**"]
`

func TestWatch_ReevaluatesAfterPolicyChange(t *testing.T) {
	dir := legacyProject(t, nil)

	cmd := NewRootCommand()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--dir", dir, "watch", "--delay", "20ms", "src/a.cpp"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Watching ")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, stdout.String(), "Strict violations: 1\n")

	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DirName, config.PoliciesFile), []byte(advisoryPolicy), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Advisory violations: 1\n")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, stderr.String(), "cache invalidated")
}
