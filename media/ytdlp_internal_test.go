package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadedAudio(t *testing.T) {
	t.Parallel()

	t.Run("matches titles with bracket characters", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		stem := filepath.Join(dir, "A2 Dub [Version]")
		require.NoError(t, os.WriteFile(stem+".m4a", []byte("audio"), 0o0644))

		got, err := downloadedAudio(stem)
		require.NoError(t, err)
		assert.Equal(t, stem+".m4a", got)
	})

	t.Run("ignores other tracks in the directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "A1 Opening Dub.m4a"), []byte("audio"), 0o0644))

		got, err := downloadedAudio(filepath.Join(dir, "B1 Closing Dub"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
