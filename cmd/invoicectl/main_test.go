package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestJobsList(t *testing.T) {
	out, err := run(t, "jobs", "list")
	require.NoError(t, err)
	assert.Equal(t, "estimates:expire\nidempotency:cleanup\n", out)
}

func TestJobsTriggerRejectsUnknownType(t *testing.T) {
	_, err := run(t, "jobs", "trigger", "reports:nightly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
}

func TestMigrateListDoesNotConnect(t *testing.T) {
	out, err := run(t, "migrate", "--list", "--dsn", "postgres://invalid:1/none")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "0001\t0001_"))
}

func TestImportRequiresCompany(t *testing.T) {
	_, err := run(t, "import", "items", "items.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--company")

	_, err = run(t, "import", "contacts", "--company", "1", "--kind", "supplier", "x.csv")
	require.Error(t, err)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestPrintStats(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, printStats(cmd, fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}}))
	assert.Contains(t, out.String(), `"pending": 3`)
	assert.Contains(t, out.String(), `"retry": 1`)

	assert.Error(t, printStats(cmd, fakeInspector{err: errors.New("redis down")}))
}
