package fsystest

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
)

var _ fsys.FileSystem = (*Memory)(nil)

func TestConcurrentWritersAndReaders(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.MkdirAll("/out"))

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tmp := fmt.Sprintf("/out/f%d._COPYING_", i)
			w, err := m.Create(tmp)
			if !assert.NoError(t, err) {
				return
			}
			_, err = fmt.Fprintf(w, "data-%d", i)
			assert.NoError(t, err)
			assert.NoError(t, w.Close())
			assert.NoError(t, m.Rename(tmp, fmt.Sprintf("/out/f%d", i)))

			_, err = m.ReadDir("/out")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := m.ReadDir("/out")
	require.NoError(t, err)
	assert.Len(t, entries, n)

	f, err := m.Open("/out/f3")
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data-3", string(data))
}
