package instagram_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/instagram"
)

func testPublishConfig() config.Publish {
	return config.Publish{ContainerTimeoutSec: 3, PollIntervalSec: 1, MaxCarouselItems: 10}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *instagram.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return instagram.NewClientWithBaseURL(srv.URL, "17840000000000000", "test-token", testPublishConfig(), zerolog.Nop())
}

func TestCreateContainers(t *testing.T) {
	t.Parallel()

	t.Run("reel container", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/17840000000000000/media", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "REELS", r.PostForm.Get("media_type"))
			assert.Equal(t, "https://cdn.example.com/a.mp4", r.PostForm.Get("video_url"))
			assert.Equal(t, "A caption", r.PostForm.Get("caption"))
			assert.Equal(t, "test-token", r.PostForm.Get("access_token"))
			fmt.Fprint(w, `{"id": "111"}`)
		})

		id, err := client.CreateReelContainer(t.Context(), "https://cdn.example.com/a.mp4", "A caption")
		require.NoError(t, err)
		assert.Equal(t, "111", id)
	})

	t.Run("carousel child and parent", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			switch calls.Add(1) {
			case 1:
				assert.Equal(t, "VIDEO", r.PostForm.Get("media_type"))
				assert.Equal(t, "true", r.PostForm.Get("is_carousel_item"))
				fmt.Fprint(w, `{"id": "201"}`)
			case 2:
				assert.Equal(t, "CAROUSEL", r.PostForm.Get("media_type"))
				assert.Equal(t, "201,202", r.PostForm.Get("children"))
				fmt.Fprint(w, `{"id": "300"}`)
			default:
				t.Error("unexpected extra request")
			}
		})

		childID, err := client.CreateCarouselChild(t.Context(), "https://cdn.example.com/a.mp4")
		require.NoError(t, err)
		assert.Equal(t, "201", childID)

		parentID, err := client.CreateCarouselParent(t.Context(), []string{"201", "202"}, "A caption")
		require.NoError(t, err)
		assert.Equal(t, "300", parentID)
	})

	t.Run("graph error response", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": {"message": "Invalid parameter", "type": "OAuthException", "code": 100, "error_subcode": 2207026}}`)
		})

		_, err := client.CreateReelContainer(t.Context(), "https://cdn.example.com/a.mp4", "")
		apiErr := new(instagram.APIError)
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, 100, apiErr.Code)
		assert.Equal(t, 2207026, apiErr.Subcode)
		assert.Equal(t, "Invalid parameter", apiErr.Message)
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"message": "Application request limit reached", "code": 4}}`)
		})

		_, err := client.CreateReelContainer(t.Context(), "https://cdn.example.com/a.mp4", "")
		assert.ErrorIs(t, err, instagram.ErrTooManyRequests)
	})
}

func TestWaitFinished(t *testing.T) {
	t.Parallel()

	t.Run("in progress then finished", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/555", r.URL.Path)
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			if calls.Add(1) < 3 {
				fmt.Fprint(w, `{"status_code": "IN_PROGRESS", "id": "555"}`)
				return
			}
			fmt.Fprint(w, `{"status_code": "FINISHED", "id": "555"}`)
		})

		require.NoError(t, client.WaitFinished(t.Context(), "555"))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("error status aborts", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"status_code": "ERROR", "id": "555"}`)
		})

		err := client.WaitFinished(t.Context(), "555")
		containerErr := new(instagram.ContainerError)
		require.ErrorAs(t, err, &containerErr)
		assert.Equal(t, "555", containerErr.ContainerID)
		assert.Equal(t, "ERROR", containerErr.StatusCode)
	})

	t.Run("stuck container times out", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"status_code": "IN_PROGRESS", "id": "555"}`)
		})

		err := client.WaitFinished(t.Context(), "555")
		assert.ErrorIs(t, err, instagram.ErrProcessingTimeout)
	})
}

func TestPublish(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/17840000000000000/media_publish", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "300", r.PostForm.Get("creation_id"))
		fmt.Fprint(w, `{"id": "9000"}`)
	})

	mediaID, err := client.Publish(t.Context(), "300")
	require.NoError(t, err)
	assert.Equal(t, "9000", mediaID)
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/accounts", r.URL.Path)
		fmt.Fprint(w, `{"data": [
			{"id": "1", "name": "Crate Shop", "instagram_business_account": {"id": "17840000000000001"}},
			{"id": "2", "name": "Side Page"}
		]}`)
	})

	accounts, err := client.Accounts(t.Context())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Crate Shop", accounts[0].PageName)
	assert.Equal(t, "17840000000000001", accounts[0].IGUserID)
	assert.Empty(t, accounts[1].IGUserID)
}
