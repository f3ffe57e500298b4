package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/snapshot"
)

func TestParseCSV(t *testing.T) {
	in := `content,base_importance,category,kind,source
deployed billing to staging,0.8,events,,slack
restart with systemctl,0.9,,procedural,
`
	rows, err := parseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "deployed billing to staging", rows[0].Content)
	assert.Equal(t, 0.8, rows[0].BaseImportance)
	assert.Equal(t, "events", rows[0].Category)
	assert.Equal(t, memory.Episodic, rows[0].Kind)
	assert.Equal(t, map[string]string{"source": "slack"}, rows[0].Context)

	assert.Equal(t, preloadCategory, rows[1].Category)
	assert.Equal(t, memory.Procedural, rows[1].Kind)
	assert.Nil(t, rows[1].Context)
}

func TestParseCSVAliases(t *testing.T) {
	in := "event_id,emotional_weight\nfirst day at work,0.7\n"
	rows, err := parseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first day at work", rows[0].Content)
	assert.Equal(t, 0.7, rows[0].BaseImportance)
	assert.Equal(t, preloadCategory, rows[0].Category)
}

func TestParseCSVErrors(t *testing.T) {
	rows, err := parseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = parseCSV(strings.NewReader("content,category\nx,y\n"))
	assert.ErrorIs(t, err, memory.ErrInvalidInput)

	_, err = parseCSV(strings.NewReader("content,importance\nx,high\n"))
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")
}

func TestBuildCodec(t *testing.T) {
	key := strings.Repeat("ab", 32)

	tests := []struct {
		name     string
		compress bool
		key      string
		want     string
	}{
		{"identity", false, "", "identity"},
		{"zstd", true, "", "zstd"},
		{"sealed", false, key, "sealed"},
		{"both", true, key, "zstd+sealed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			c.Snapshot.Compress = tt.compress
			c.Snapshot.Key = tt.key

			codec, err := buildCodec(c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codec.Name())

			data := []byte("a memory worth keeping")
			enc, err := codec.Encode(data)
			require.NoError(t, err)
			dec, err := codec.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, data, dec)
		})
	}

	c := config.Default()
	c.Snapshot.Key = "abcd"
	_, err := buildCodec(c)
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

// run executes the root command against an isolated data dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", dir)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{
		"--data-dir", dir,
		"--env-file", filepath.Join(dir, "missing.env"),
	}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCommandsEndToEnd(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "add", "-i", "0.8", "-c", "pets", "-k", "episodic", "the", "cat", "sat", "on", "the", "mat")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, dir, "list", "-c", "")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "the cat sat on the mat")

	out, err = run(t, dir, "recall", "-n", "5", "-c", "", "cat")
	require.NoError(t, err)
	assert.Contains(t, out, "1. [")
	assert.Contains(t, out, "the cat sat on the mat")

	// The reinforcement from recall was persisted.
	out, err = run(t, dir, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"access_count": 1`)

	out, err = run(t, dir, "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, ".msnap")

	out, err = run(t, dir, "decay")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned 1")

	out, err = run(t, dir, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "decay")

	out, err = run(t, dir, "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+id)

	out, err = run(t, dir, "list", "-c", "")
	require.NoError(t, err)
	assert.Contains(t, out, "No memories.")

	_, err = run(t, dir, "get", id)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestImportAndReset(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "preload.csv")
	writeFile(t, csvPath, "content,base_importance\nfirst,0.5\nsecond,0.9\n")

	out, err := run(t, dir, "import", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 memories (2 total)")

	out, err = run(t, dir, "reset", "hard")
	require.NoError(t, err)
	assert.Contains(t, out, "hard reset: evicted 2, 0 remaining")

	_, err = run(t, dir, "reset", "sideways")
	assert.ErrorIs(t, err, memory.ErrInvalidInput)

	// The pre-reset backup can bring the records back.
	mgr := snapshot.NewManager(snapshot.NewDirMedium(filepath.Join(dir, "snapshots")))
	handles, err := mgr.List(t.Context())
	require.NoError(t, err)
	var backup string
	for _, h := range handles {
		info, err := mgr.Inspect(t.Context(), h)
		require.NoError(t, err)
		if info.Records == 2 {
			backup = h.Name
			break
		}
	}
	require.NotEmpty(t, backup)

	out, err = run(t, dir, "snapshot", "restore", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "(2 records)")

	out, err = run(t, dir, "list", "-c", "preload")
	require.NoError(t, err)
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
}

func TestVersionSkipsConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "--config", filepath.Join(dir, "nope.toml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mnemo "+Version)
}
