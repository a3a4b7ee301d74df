package storage_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/storage"
)

func testStorageConfig(endpoint string) config.Storage {
	return config.Storage{
		Bucket:       "clips",
		Prefix:       "discogs-posts",
		Endpoint:     endpoint,
		Region:       "us-east-1",
		SignedURLTTL: 60,
	}
}

func TestUpload(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")

	t.Run("puts object and presigns", func(t *testing.T) {
		var putPath, putContentType string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			putPath = r.URL.Path
			putContentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		videoPath := filepath.Join(t.TempDir(), "A1 Opening Dub.mp4")
		require.NoError(t, os.WriteFile(videoPath, []byte("video"), 0o0644))

		uploader, err := storage.New(testStorageConfig(srv.URL))
		require.NoError(t, err)

		signedURL, err := uploader.Upload(t.Context(), videoPath, "Midnight Dubs")
		require.NoError(t, err)

		assert.Equal(t, "/clips/discogs-posts/Midnight Dubs/A1 Opening Dub.mp4", putPath)
		assert.Equal(t, "video/mp4", putContentType)
		assert.Contains(t, signedURL, "X-Amz-Signature=")
		assert.Contains(t, signedURL, "response-content-disposition=")
	})

	t.Run("missing file", func(t *testing.T) {
		uploader, err := storage.New(testStorageConfig("http://localhost:1"))
		require.NoError(t, err)

		_, err = uploader.Upload(t.Context(), filepath.Join(t.TempDir(), "missing.mp4"), "")
		uploadErr := new(storage.UploadError)
		assert.ErrorAs(t, err, &uploadErr)
	})
}
