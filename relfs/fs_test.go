package relfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/crateclip/relfs"
)

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in  string
		out string
	}{
		{`Some / Artist: "Title"?`, `Some _ Artist_ _Title__`},
		{"  padded  ", "padded"},
		{"plain", "plain"},
	}
	for _, test := range tests {
		assert.Equal(t, test.out, relfs.SanitizeFileName(test.in))
	}
}

func TestReleaseDirPaths(t *testing.T) {
	t.Parallel()

	dir := relfs.From("/out").Release("Midnight Dubs")
	assert.Equal(t, filepath.Join("/out", "Midnight Dubs"), dir.Path)
	assert.Equal(t, filepath.Join("/out", "Midnight Dubs", "release.txt"), dir.TxtPath)
	assert.Equal(t, filepath.Join("/out", "Midnight Dubs", "cover.jpg"), dir.CoverPath)
	assert.Equal(t, filepath.Join("/out", "Midnight Dubs", "A1 Opening Dub.mp4"), dir.TrackVideoPath("A1", "Opening Dub"))
	assert.Equal(t, filepath.Join("/out", "Midnight Dubs", "Opening Dub.mp3"), dir.TrackAudioPath("", "Opening Dub"))
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o0644))
}

func TestList(t *testing.T) {
	t.Parallel()

	t.Run("splits ready and incomplete", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()

		readyDir := filepath.Join(root, "Ready Release")
		require.NoError(t, os.Mkdir(readyDir, 0o0755))
		writeFile(t, filepath.Join(readyDir, "release.txt"))
		writeFile(t, filepath.Join(readyDir, "cover.jpg"))
		writeFile(t, filepath.Join(readyDir, "B1 Second.mp4"))
		writeFile(t, filepath.Join(readyDir, "A1 First.mp4"))

		noTxtDir := filepath.Join(root, "No Text File")
		require.NoError(t, os.Mkdir(noTxtDir, 0o0755))
		writeFile(t, filepath.Join(noTxtDir, "A1 First.mp4"))

		noVideosDir := filepath.Join(root, "No Videos")
		require.NoError(t, os.Mkdir(noVideosDir, 0o0755))
		writeFile(t, filepath.Join(noVideosDir, "release.txt"))

		// Loose files at the root never count as folders.
		writeFile(t, filepath.Join(root, "published.yaml"))

		ready, incomplete, err := relfs.List(root)
		require.NoError(t, err)

		require.Len(t, ready, 1)
		assert.Equal(t, "Ready Release", ready[0].Name)
		assert.Equal(t, filepath.Join(readyDir, "release.txt"), ready[0].TxtPath)
		assert.Equal(t,
			[]string{filepath.Join(readyDir, "A1 First.mp4"), filepath.Join(readyDir, "B1 Second.mp4")},
			ready[0].Videos,
		)

		require.Len(t, incomplete, 2)
		for _, folder := range incomplete {
			assert.False(t, folder.Ready())
		}
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()

		_, _, err := relfs.List(filepath.Join(t.TempDir(), "missing"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
