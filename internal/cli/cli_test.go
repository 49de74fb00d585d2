package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/job"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitClean},
		{"mismatch", &ExitError{Code: ExitMismatch, Err: errors.New("2 mismatches")}, ExitMismatch},
		{"wrapped mismatch", fmt.Errorf("run: %w", &ExitError{Code: ExitMismatch, Err: errors.New("x")}), ExitMismatch},
		{"config", fmt.Errorf("%w: bad", job.ErrConfig), ExitFatal},
		{"other", errors.New("boom"), ExitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("verify")
	require.NoError(t, err)
	assert.Equal(t, "verify", string(m))

	_, err = ParseMode("sync")
	assert.ErrorIs(t, err, job.ErrConfig)
}

type fixture struct {
	dir     string
	src     string
	dest    string
	staging string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		src:     filepath.Join(dir, "src"),
		dest:    filepath.Join(dir, "dest"),
		staging: filepath.Join(dir, "staging"),
	}
	f.write(t, filepath.Join(f.src, "a.txt"), "alpha")
	f.write(t, filepath.Join(f.src, "sub", "b.txt"), "bravo bravo")
	require.NoError(t, os.MkdirAll(filepath.Join(f.src, "empty"), 0o755))
	return f
}

func (f *fixture) write(t *testing.T, name, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(data), 0o644))
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args,
		"--env-file", filepath.Join(f.dir, "missing.env"),
		"--staging-dir", f.staging,
		"--groups", "2",
		"--workers", "2",
		"--log-level", "error",
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCopyThenCompareIsClean(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "copy", f.src, f.dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo bravo", string(data))
	info, err := os.Stat(filepath.Join(f.dest, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	out, err := f.run(t, "compare", f.src, "file://"+f.dest, "--include-dirs")
	assert.NoError(t, err)
	assert.Contains(t, out, "Verified: 2")
}

func TestCompareReportsMismatches(t *testing.T) {
	f := newFixture(t)
	f.write(t, filepath.Join(f.dest, "a.txt"), "alpha")
	f.write(t, filepath.Join(f.dest, "extra.txt"), "x")
	result := filepath.Join(f.dir, "result.json")

	_, err := f.run(t, "compare", f.src, f.dest, "--result-json-file", result)
	require.Error(t, err)
	assert.Equal(t, ExitMismatch, ExitCode(err))

	data, err := os.ReadFile(result)
	require.NoError(t, err)
	var decoded struct {
		Mismatches []job.MismatchRecord `json:"mismatches"`
		Matched    int                  `json:"matched"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.Matched)
	require.Len(t, decoded.Mismatches, 2)
	assert.Equal(t, "extra.txt", decoded.Mismatches[0].Path)
	assert.Equal(t, "sub/b.txt", decoded.Mismatches[1].Path)
}

func TestFatalErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		args []string
	}{
		{"unsupported backend", []string{"compare", "gs://bucket/x", f.dest}},
		{"unreachable source", []string{"compare", filepath.Join(f.dir, "nope"), f.dest}},
		{"bad mode", []string{"plan", f.src, f.dest, "--mode", "sync"}},
		{"bad tunable", []string{"copy", f.src, f.dest, "--queue-depth", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFatal, ExitCode(err))
		})
	}
}

func TestPlanThenRunGroup(t *testing.T) {
	f := newFixture(t)
	seed := filepath.Join(f.dir, "seed.txt")

	out, err := f.run(t, "plan", f.src, f.dest, "--manifest-out", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "3 pairs in 2 groups")

	data, err := os.ReadFile(seed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sub/b.txt 11\n")

	groups, err := filepath.Glob(filepath.Join(f.staging, "*", "group-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, g := range groups {
		_, err := f.run(t, "run-group", g)
		require.NoError(t, err)
	}

	_, err = f.run(t, "compare", f.src, f.dest)
	assert.NoError(t, err)

	// The seed drives a verify pass without walking.
	_, err = f.run(t, "compare", "--manifest", seed)
	assert.NoError(t, err)
}
