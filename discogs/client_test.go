package discogs_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/crateclip/discogs"
)

const releaseBody = `{
	"title": "Midnight Dubs",
	"artists": [{"name": "Deep Artist", "join": ""}],
	"year": 1997,
	"country": "Germany",
	"labels": [{"name": "White Label Records"}],
	"images": [{"uri": "https://img.example.com/full.jpg", "uri150": "https://img.example.com/thumb.jpg"}],
	"tracklist": [
		{"type_": "heading", "position": "", "title": "This Side", "duration": ""},
		{"type_": "track", "position": "A1", "title": "Opening Dub", "duration": "6:12"},
		{"type_": "track", "position": "", "title": "That Side", "duration": ""},
		{"type_": "track", "position": "B1", "title": "Closing Dub", "duration": "7:03", "artists": [{"name": "Guest Artist", "join": ""}]}
	]
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *discogs.Client {
	t.Helper()
	client := discogs.NewClientWithBaseURL(t.Context(), baseURL, "test-token", "crateclip-test/1.0", zerolog.Nop())
	t.Cleanup(client.Close)
	return client
}

func TestRelease(t *testing.T) {
	t.Parallel()

	t.Run("filters side headings", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/releases/249504":
				assert.Equal(t, "Discogs token=test-token", r.Header.Get("Authorization"))
				assert.Equal(t, "crateclip-test/1.0", r.Header.Get("User-Agent"))
				fmt.Fprint(w, releaseBody)
			default:
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{}`)
			}
		})

		release, err := newTestClient(t, srv.URL).Release(t.Context(), 249504)
		require.NoError(t, err)

		assert.Equal(t, "Midnight Dubs", release.Title)
		assert.Equal(t, 1997, release.Year)
		assert.Equal(t, "Germany", release.Country)
		assert.Equal(t, []string{"White Label Records"}, release.Labels)
		require.Len(t, release.Tracks, 2)
		assert.Equal(t, "A1", release.Tracks[0].Position)
		assert.Equal(t, "Opening Dub", release.Tracks[0].Title)
		assert.Equal(t, "B1", release.Tracks[1].Position)
		assert.Equal(t, "Guest Artist", release.TrackArtists(release.Tracks[1]))
		assert.Equal(t, "Deep Artist", release.TrackArtists(release.Tracks[0]))
	})

	t.Run("empty user agent falls back to the default", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, discogs.DefaultUserAgent, r.Header.Get("User-Agent"))
			fmt.Fprint(w, releaseBody)
		})

		client := discogs.NewClientWithBaseURL(t.Context(), srv.URL, "test-token", "", zerolog.Nop())
		t.Cleanup(client.Close)

		_, err := client.Release(t.Context(), 249504)
		require.NoError(t, err)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Release not found."}`)
		})

		_, err := newTestClient(t, srv.URL).Release(t.Context(), 1)
		assert.ErrorIs(t, err, discogs.ErrNotFound)
	})

	t.Run("too many requests", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message": "You are making requests too quickly."}`)
		})

		_, err := newTestClient(t, srv.URL).Release(t.Context(), 1)
		assert.ErrorIs(t, err, discogs.ErrTooManyRequests)
	})

	t.Run("price suggestions fill missing stats", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/releases/42":
				fmt.Fprint(w, releaseBody)
			case "/marketplace/stats/42":
				fmt.Fprint(w, `{"lowest_price": {"currency": "USD", "value": 9.5}, "num_for_sale": 3}`)
			case "/marketplace/price_suggestions/42":
				fmt.Fprint(w, `{
					"Mint (M)": {"currency": "USD", "value": 30},
					"Very Good (VG)": {"currency": "USD", "value": 12},
					"Good (G)": {"currency": "USD", "value": 6}
				}`)
			default:
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{}`)
			}
		})

		release, err := newTestClient(t, srv.URL).Release(t.Context(), 42)
		require.NoError(t, err)

		require.NotNil(t, release.Prices.Min)
		assert.InDelta(t, 9.5, *release.Prices.Min, 0.001)
		require.NotNil(t, release.Prices.Median)
		assert.InDelta(t, 12, *release.Prices.Median, 0.001)
		require.NotNil(t, release.Prices.Max)
		assert.InDelta(t, 30, *release.Prices.Max, 0.001)
	})

	t.Run("price lookups never fail the fetch", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/releases/43":
				fmt.Fprint(w, releaseBody)
			default:
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{}`)
			}
		})

		release, err := newTestClient(t, srv.URL).Release(t.Context(), 43)
		require.NoError(t, err)
		assert.True(t, release.Prices.Empty())
	})
}

func TestMaster(t *testing.T) {
	t.Parallel()

	t.Run("resolves through main release", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/masters/777":
				fmt.Fprint(w, `{"id": 777, "main_release": 249504}`)
			case "/releases/249504":
				fmt.Fprint(w, releaseBody)
			default:
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{}`)
			}
		})

		release, err := newTestClient(t, srv.URL).Master(t.Context(), 777)
		require.NoError(t, err)
		assert.Equal(t, int64(249504), release.ID)
		assert.Equal(t, "Midnight Dubs", release.Title)
	})

	t.Run("master without main release", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"id": 777}`)
		})

		_, err := newTestClient(t, srv.URL).Master(t.Context(), 777)
		assert.Error(t, err)
	})
}
