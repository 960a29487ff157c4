package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/histogram"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// execute runs the CLI with a config file holding settings, restoring the standard logger afterwards.
func execute(t *testing.T, settings string, args ...string) result {
	t.Helper()
	std := logrus.StandardLogger()
	level, formatter, out := std.Level, std.Formatter, std.Out
	t.Cleanup(func() {
		std.SetLevel(level)
		std.SetFormatter(formatter)
		std.SetOutput(out)
	})

	cfgFile := filepath.Join(t.TempDir(), "cliffbench.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(settings), 0o644))

	var stdout, stderr bytes.Buffer
	root := RootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	code := run(root, append([]string{"--config", cfgFile}, args...))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeHistograms(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	start := time.UnixMilli(1600000000000)
	rec := histogram.NewIntervalRecorder(start, "writes", "reads")
	require.NoError(t, rec.Record("writes", start.Add(100*time.Millisecond), time.Millisecond, 2*time.Millisecond))
	require.NoError(t, rec.Record("reads", start.Add(200*time.Millisecond), time.Millisecond, time.Millisecond))

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, rec.WriteTo(f, time.Second))
	require.NoError(t, f.Close())
	return path
}

func TestExtract_Collapsed(t *testing.T) {
	dir := t.TempDir()
	writeHistograms(t, filepath.Join(dir, "a"), "small-primary-100.hist")
	writeHistograms(t, filepath.Join(dir, "b", "c"), "large-primary-100.hist")

	res := execute(t, "logLevel: warn\n", "extract", filepath.Join(dir, "**", "*.hist"))
	require.Equal(t, bencherrors.ExitOK, res.code, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	assert.Equal(t, "op\tmetric\tpct\ttime", lines[0])
	assert.Contains(t, res.stdout, "all\tprocessing\t")
	assert.Contains(t, res.stdout, "reads\tsojourn\t1\t1\n")
	assert.Contains(t, res.stdout, "writes\tsojourn\t1\t2\n")
	assert.Empty(t, res.stderr)
}

func TestExtract_Timeline(t *testing.T) {
	path := writeHistograms(t, t.TempDir(), "run.hist")

	res := execute(t, "logLevel: warn\n", "extract", "--timeline", path)
	require.Equal(t, bencherrors.ExitOK, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "op\tuntil\tmetric\tmean\tmedian\tp25\tp90\tp95\tp99\tmax\n"))
}

func TestExtract_OperationNames(t *testing.T) {
	path := writeHistograms(t, t.TempDir(), "client0.hist")

	res := execute(t, "logLevel: warn\n", "extract", "--ops", "submits,queries", path)
	require.Equal(t, bencherrors.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "submits\t")
	assert.Contains(t, res.stdout, "queries\t")
	assert.NotContains(t, res.stdout, "writes\t")

	settings := "logLevel: warn\nextract:\n  byFilename:\n    client0: [submits, queries]\n"
	res = execute(t, settings, "extract", path)
	require.Equal(t, bencherrors.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "submits\t")
}

func TestExtract_MissingFile(t *testing.T) {
	res := execute(t, "", "extract", filepath.Join(t.TempDir(), "missing.hist"))
	assert.Equal(t, bencherrors.ExitNotFound, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "error: ")
	assert.Contains(t, res.stderr, "missing.hist")
}

func TestExtract_MalformedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hist")
	require.NoError(t, os.WriteFile(path, []byte("Tag=writes,0.000,1.000,0.000,notbase64\n"), 0o644))

	res := execute(t, "", "extract", path)
	assert.NotEqual(t, bencherrors.ExitOK, res.code)
	assert.Contains(t, res.stderr, "bad.hist")
}

func TestExplore_InvalidCampaign(t *testing.T) {
	campaign := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(campaign, []byte("name: broken\nsense: sideways\n"), 0o644))

	res := execute(t, "", "explore", "--campaign", campaign)
	assert.Equal(t, bencherrors.ExitInvalidArgument, res.code)
	assert.Contains(t, res.stderr, "must be one of min max")
}

func TestExplore_MissingCampaign(t *testing.T) {
	res := execute(t, "", "explore", "--campaign", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, bencherrors.ExitNotFound, res.code)
}

func TestRoot_MissingConfigFile(t *testing.T) {
	root := RootCmd()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetOut(&bytes.Buffer{})
	code := run(root, []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "extract", "x.hist"})
	assert.Equal(t, bencherrors.ExitNotFound, code)
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	res := execute(t, "logLevel: shouty\n", "extract", "x.hist")
	assert.Equal(t, bencherrors.ExitInvalidArgument, res.code)
}
