package discover

import (
	"errors"
	"sort"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs billy.Filesystem, path string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte("x"), 0o644))
}

func testTree(t *testing.T) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	writeFile(t, fs, "/data/Lee/2024_scan.mda/scan001.mda")
	writeFile(t, fs, "/data/Lee/2024_scan.mda/sub/scan002.mda")
	writeFile(t, fs, "/data/Lee/2024_scan.mda/notes.txt")
	writeFile(t, fs, "/data/Lee/img.dat/img0001.h5")
	writeFile(t, fs, "/data/Lee/nested/sub/other_scan.mda/scan003.mda")
	return fs
}

func collect(t *testing.T, w *Walker, root string) []Dataset {
	t.Helper()
	var out []Dataset
	require.NoError(t, w.Walk(root, func(ds Dataset) error {
		out = append(out, ds)
		return nil
	}))
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func TestWalkClassifiesTerminalDirectories(t *testing.T) {
	w := &Walker{
		FS:             testTree(t),
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       3,
	}
	found := collect(t, w, "/data/Lee")

	require.Len(t, found, 2)
	assert.Equal(t, "/data/Lee/2024_scan.mda", found[0].Path)
	assert.Equal(t, "2024_scan.mda", found[0].Name)
	assert.Equal(t, "/data/Lee/nested/sub/other_scan.mda", found[1].Path)

	// File scan inside a terminal directory is recursive and filters by
	// extension: notes.txt is excluded, the nested scan002 is included.
	var paths []string
	for _, f := range found[0].Files {
		paths = append(paths, f.Path)
		assert.False(t, f.CreatedAt.IsZero())
	}
	sort.Strings(paths)
	assert.Equal(t, []string{
		"/data/Lee/2024_scan.mda/scan001.mda",
		"/data/Lee/2024_scan.mda/sub/scan002.mda",
	}, paths)
}

func TestWalkDepthBound(t *testing.T) {
	w := &Walker{
		FS:             testTree(t),
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       1,
	}
	found := collect(t, w, "/data/Lee")

	// nested (depth 1) is descended, but sub (depth 2) is not, so the
	// terminal under it stays invisible.
	require.Len(t, found, 1)
	assert.Equal(t, "/data/Lee/2024_scan.mda", found[0].Path)
}

func TestWalkSymlinkCycleTerminates(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "/data/a/keep.txt")
	require.NoError(t, fs.Symlink("/data/a", "/data/a/loop"))

	w := &Walker{
		FS:             fs,
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       5,
	}
	// Nothing matches; the point is that the walk returns at all.
	found := collect(t, w, "/data/a")
	assert.Empty(t, found)
}

func TestWalkSymlinkCycleInTerminalDir(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "/data/Lee/2024_scan.mda/scan001.mda")
	// Self-cycle: the scan under the terminal directory must collect
	// scan001.mda exactly once, not once per loop/loop/... path.
	require.NoError(t, fs.Symlink("/data/Lee/2024_scan.mda", "/data/Lee/2024_scan.mda/loop"))

	w := &Walker{
		FS:             fs,
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       2,
	}
	found := collect(t, w, "/data/Lee")

	require.Len(t, found, 1)
	require.Len(t, found[0].Files, 1)
	assert.Equal(t, "/data/Lee/2024_scan.mda/scan001.mda", found[0].Files[0].Path)
}

func TestWalkSymlinkChainInTerminalDir(t *testing.T) {
	fs := memfs.New()
	writeFile(t, fs, "/data/Lee/2024_scan.mda/scan001.mda")
	writeFile(t, fs, "/data/Lee/extra/scan009.mda")
	// A link out of the terminal directory is still followed once.
	require.NoError(t, fs.Symlink("/data/Lee/extra", "/data/Lee/2024_scan.mda/extra"))
	require.NoError(t, fs.Symlink("/data/Lee/2024_scan.mda", "/data/Lee/extra/back"))

	w := &Walker{
		FS:             fs,
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       2,
	}
	found := collect(t, w, "/data/Lee")

	require.Len(t, found, 1)
	var paths []string
	for _, f := range found[0].Files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{
		"/data/Lee/2024_scan.mda/extra/scan009.mda",
		"/data/Lee/2024_scan.mda/scan001.mda",
	}, paths)
}

func TestWalkCallbackErrorStopsWalk(t *testing.T) {
	w := &Walker{
		FS:             testTree(t),
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       3,
	}
	sentinel := errors.New("stop")
	calls := 0
	err := w.Walk("/data/Lee", func(Dataset) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWalkUnreadableRoot(t *testing.T) {
	w := &Walker{FS: memfs.New(), TerminalSuffix: ".mda", MaxDepth: 1}
	err := w.Walk("/nope", func(Dataset) error { return nil })
	require.Error(t, err)
}
