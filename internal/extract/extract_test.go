package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_WritesFiles(t *testing.T) {
	t.Parallel()

	for _, direct := range []bool{false, true} {
		t.Run(fmt.Sprintf("direct=%v", direct), func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			items := []Item{
				{Path: "gamedata/level00/font.img", Data: []byte("font")},
				{Path: "gamedata/level00/text.dat", Data: []byte("text")},
				{Path: "_hash/0x0badf00d.bin", Data: nil},
			}
			stats, err := NewRunner(WithWorkers(2)).Run(context.Background(), items, NewFileSink(dir, WithDirectWrites(direct)))
			require.NoError(t, err)
			assert.Equal(t, Stats{Files: 3, Bytes: 8}, stats)

			for _, item := range items {
				got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(item.Path)))
				require.NoError(t, err)
				assert.Equal(t, len(item.Data), len(got))
				assert.Equal(t, string(item.Data), string(got))
			}

			leftovers, err := filepath.Glob(filepath.Join(dir, "gamedata", "level00", ".databin-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestRun_SkipsExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("existing"), 0o600))
	items := []Item{
		{Path: "a.bin", Data: []byte("new")},
		{Path: "b.bin", Data: []byte("new")},
	}

	stats, err := NewRunner().Run(context.Background(), items, NewFileSink(dir))
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1, Bytes: 3, Skipped: 1}, stats)

	got, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got))

	stats, err = NewRunner().Run(context.Background(), items, NewFileSink(dir, WithOverwrite(true)))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	got, err = os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestRun_RejectsTraversal(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	dir := filepath.Join(parent, "out")
	require.NoError(t, os.Mkdir(dir, 0o750))

	for _, path := range []string{"../escape.bin", "/abs.bin", "."} {
		_, err := NewRunner(WithWorkers(-1)).Run(context.Background(), []Item{{Path: path, Data: []byte("x")}}, NewFileSink(dir))
		var pathErr *fs.PathError
		require.ErrorAs(t, err, &pathErr, path)
		assert.ErrorIs(t, pathErr.Err, fs.ErrInvalid)
	}
	_, err := os.Stat(filepath.Join(parent, "escape.bin"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

type failingSink struct {
	mu      sync.Mutex
	written []string
	fail    string
}

func (s *failingSink) ShouldProcess(*Item) bool { return true }

func (s *failingSink) Writer(item *Item) (Committer, error) {
	if item.Path == s.fail {
		return nil, errors.New("disk full")
	}
	return &recordingCommitter{sink: s, path: item.Path}, nil
}

type recordingCommitter struct {
	sink *failingSink
	path string
}

func (c *recordingCommitter) Write(p []byte) (int, error) { return len(p), nil }

func (c *recordingCommitter) Commit() error {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()
	c.sink.written = append(c.sink.written, c.path)
	return nil
}

func (c *recordingCommitter) Discard() error { return nil }

func TestRun_StopsOnError(t *testing.T) {
	t.Parallel()

	items := make([]Item, 20)
	for i := range items {
		items[i] = Item{Path: fmt.Sprintf("f%02d", i)}
	}
	sink := &failingSink{fail: "f00"}

	_, err := NewRunner(WithWorkers(-1)).Run(context.Background(), items, sink)
	require.ErrorContains(t, err, "extract f00: disk full")
	assert.Empty(t, sink.written, "serial run stops before later items")
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewRunner().Run(ctx, []Item{{Path: "a"}}, &failingSink{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Files)
}

func TestWorkerCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, NewRunner(WithWorkers(-1)).workerCount(10))
	assert.Equal(t, 4, NewRunner(WithWorkers(4)).workerCount(10))
	assert.Equal(t, 2, NewRunner(WithWorkers(4)).workerCount(2))
	assert.Equal(t, 1, NewRunner(WithWorkers(4)).workerCount(0))
	assert.GreaterOrEqual(t, NewRunner().workerCount(1000), 1)
}
