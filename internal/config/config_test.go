package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[grader]
box_path = "/opt/moe/box"
poll_interval = "250ms"
output_limit_kb = 1024

[storage]
submission_path = "/srv/submissions"
`), 0644))

	t.Setenv("REGRADER_DB_DSN", "postgres://judge@db/contest")
	t.Setenv("REGRADER_HOSTNAME", "judge-3")
	t.Chdir(dir)

	require.NoError(t, Load(path))

	assert.Equal(t, "/opt/moe/box", Grader.BoxPath)
	assert.Equal(t, 250*time.Millisecond, Grader.PollInterval.Duration)
	assert.Equal(t, 30*time.Second, Grader.LeaseTTL.Duration)
	assert.Equal(t, 30*time.Second, Grader.RetryDelay.Duration)
	assert.Equal(t, 5, Grader.MaxAttempts)
	assert.Equal(t, 1024, Grader.OutputLimitKB)
	assert.Equal(t, []string{"-f", "-a3"}, Grader.SyscallFlags)
	assert.Equal(t, "/srv/submissions", Storage.SubmissionPath)
	assert.Equal(t, "./data/testcases", Storage.TestcasePath)
	assert.Equal(t, "postgres://judge@db/contest", Database.DSN)
	assert.Equal(t, "judge-3", Grader.Hostname)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	c := Default()
	c.Grader.Hostname = "box-1"
	c.Grader.LeaseTTL = Duration{45 * time.Second}
	Set(c)

	path := filepath.Join(dir, "saved.toml")
	require.NoError(t, Save(path))

	Set(ConfigStruct{})
	require.NoError(t, Load(path))
	assert.Equal(t, "box-1", Grader.Hostname)
	assert.Equal(t, 45*time.Second, Grader.LeaseTTL.Duration)
}
