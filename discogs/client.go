package discogs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/httputil"
	"github.com/xeptore/crateclip/must"
	"github.com/xeptore/crateclip/ratelimit"
	"github.com/xeptore/crateclip/waitqueue"
)

const (
	DefaultBaseURL = "https://api.discogs.com"

	// DefaultUserAgent identifies requests when DISCOGS_USER_AGENT is unset.
	DefaultUserAgent = "crateclip/1.0"
)

var (
	ErrNotFound        = errors.New("release not found")
	ErrTooManyRequests = errors.New("too many requests")
)

type Client struct {
	baseURL   string
	token     string
	userAgent string
	currency  string
	wq        *waitqueue.WaitQueue
	logger    zerolog.Logger
}

func NewClient(ctx context.Context, token, userAgent string, logger zerolog.Logger) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		baseURL:   DefaultBaseURL,
		token:     token,
		userAgent: userAgent,
		currency:  "USD",
		wq:        waitqueue.New(ctx, time.Minute, ratelimit.DiscogsRequestsPerMinute, time.Second),
		logger:    logger,
	}
}

// NewClientWithBaseURL exists for tests pointing at a local server.
func NewClientWithBaseURL(ctx context.Context, baseURL, token, userAgent string, logger zerolog.Logger) *Client {
	c := NewClient(ctx, token, userAgent, logger)
	c.baseURL = baseURL
	return c
}

func (c *Client) Close() {
	c.wq.Close()
}

// Fetch resolves a parsed link to a Release. Masters resolve through their
// main release.
func (c *Client) Fetch(ctx context.Context, kind LinkKind, id int64) (*Release, error) {
	switch kind {
	case LinkKindRelease:
		return c.Release(ctx, id)
	case LinkKindMaster:
		return c.Master(ctx, id)
	default:
		panic(fmt.Sprintf("unsupported link kind %q", kind))
	}
}

func (c *Client) Master(ctx context.Context, id int64) (*Release, error) {
	status, respBytes, err := c.get(ctx, fmt.Sprintf("/masters/%d", id), nil, config.ReleaseMetaRequestTimeout)
	if nil != err {
		return nil, err
	}
	flawP := flaw.P{"master_id": id}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, c.tooManyRequests(respBytes)
	default:
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected status code: %d", status)).Append(flawP)
	}

	mainRelease := gjson.GetBytes(respBytes, "main_release")
	if !mainRelease.Exists() || mainRelease.Int() == 0 {
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(errors.New("master has no main release")).Append(flawP)
	}
	return c.Release(ctx, mainRelease.Int())
}

func (c *Client) Release(ctx context.Context, id int64) (*Release, error) {
	status, respBytes, err := c.get(ctx, fmt.Sprintf("/releases/%d", id), url.Values{"curr_abbr": []string{c.currency}}, config.ReleaseMetaRequestTimeout)
	if nil != err {
		return nil, err
	}
	flawP := flaw.P{"release_id": id}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, c.tooManyRequests(respBytes)
	default:
		flawP["response_body"] = string(respBytes)
		return nil, flaw.From(fmt.Errorf("unexpected status code: %d", status)).Append(flawP)
	}

	var respBody releaseResponse
	if err := json.Unmarshal(respBytes, &respBody); nil != err {
		flawP["response_body"] = string(respBytes)
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to decode release response: %v", err)).Append(flawP)
	}

	release := respBody.toRelease(id)
	if gaps := releaseSchemaGaps(release); len(gaps) > 0 {
		c.logger.Warn().Int64("release_id", id).Strs("missing_fields", gaps).Msg("Release response is missing expected fields. Continuing with partial data")
	}

	release.Prices = c.fetchPrices(ctx, id)
	return release, nil
}

// fetchPrices fills marketplace prices from the stats endpoint and completes
// missing median/max figures from price suggestions. Price lookups never fail
// a fetch; the release just carries no prices.
func (c *Client) fetchPrices(ctx context.Context, id int64) Prices {
	prices := Prices{Currency: c.currency, Min: nil, Median: nil, Max: nil}

	if statsPrices, err := c.marketStats(ctx, id); nil != err {
		c.logger.Warn().Int64("release_id", id).Err(err).Msg("Failed to fetch marketplace stats")
	} else {
		prices.Min = statsPrices.Min
		prices.Median = statsPrices.Median
		prices.Max = statsPrices.Max
	}

	if nil == prices.Median || nil == prices.Max {
		if suggested, err := c.priceSuggestions(ctx, id); nil != err {
			c.logger.Warn().Int64("release_id", id).Err(err).Msg("Failed to fetch price suggestions")
		} else {
			if nil == prices.Min {
				prices.Min = suggested.Min
			}
			if nil == prices.Median {
				prices.Median = suggested.Median
			}
			if nil == prices.Max {
				prices.Max = suggested.Max
			}
		}
	}
	return prices
}

func (c *Client) marketStats(ctx context.Context, id int64) (Prices, error) {
	out := Prices{Currency: c.currency, Min: nil, Median: nil, Max: nil}

	status, respBytes, err := c.get(ctx, fmt.Sprintf("/marketplace/stats/%d", id), url.Values{"curr_abbr": []string{c.currency}}, config.MarketStatsRequestTimeout)
	if nil != err {
		return out, err
	}
	if status != http.StatusOK {
		if status == http.StatusTooManyRequests {
			return out, ErrTooManyRequests
		}
		return out, fmt.Errorf("unexpected status code: %d", status)
	}

	out.Min = probePrice(respBytes, "lowest_price.value", "lowest_price")
	out.Median = probePrice(respBytes, "median_price.value", "median_price", "median", "summary.median", "sales.median")
	out.Max = probePrice(respBytes, "highest_price.value", "highest_price", "highest", "summary.highest", "sales.highest")
	return out, nil
}

func (c *Client) priceSuggestions(ctx context.Context, id int64) (Prices, error) {
	out := Prices{Currency: c.currency, Min: nil, Median: nil, Max: nil}

	status, respBytes, err := c.get(ctx, fmt.Sprintf("/marketplace/price_suggestions/%d", id), url.Values{"curr_abbr": []string{c.currency}}, config.PriceSuggestionsRequestTimeout)
	if nil != err {
		return out, err
	}
	if status != http.StatusOK {
		if status == http.StatusTooManyRequests {
			return out, ErrTooManyRequests
		}
		return out, fmt.Errorf("unexpected status code: %d", status)
	}

	var values []float64
	gjson.ParseBytes(respBytes).ForEach(func(_, condition gjson.Result) bool {
		if v := condition.Get("value"); v.Exists() {
			values = append(values, v.Float())
		}
		return true
	})
	if len(values) == 0 {
		return out, nil
	}

	slices.Sort(values)
	out.Min = &values[0]
	out.Max = &values[len(values)-1]
	med := median(values)
	out.Median = &med
	return out, nil
}

// tooManyRequests verifies a 429 body is the documented throttle message.
// Anything else on that status is worth a full report.
func (c *Client) tooManyRequests(respBytes []byte) error {
	ok, err := httputil.IsRateLimitedResponse(respBytes)
	if nil != err {
		return err
	}
	if !ok {
		c.logger.Warn().Str("response_body", string(respBytes)).Msg("429 response carried an unexpected body")
	}
	return ErrTooManyRequests
}

func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func probePrice(b []byte, paths ...string) *float64 {
	for _, path := range paths {
		if v := gjson.GetBytes(b, path); v.Exists() && v.Type == gjson.Number {
			f := v.Float()
			return &f
		}
	}
	return nil
}

func releaseSchemaGaps(r *Release) []string {
	var gaps []string
	if r.Title == "" {
		gaps = append(gaps, "title")
	}
	if len(r.Artists) == 0 {
		gaps = append(gaps, "artists")
	}
	if r.Year == 0 {
		gaps = append(gaps, "year")
	}
	if r.Country == "" {
		gaps = append(gaps, "country")
	}
	if len(r.Tracks) == 0 {
		gaps = append(gaps, "tracklist")
	}
	if len(r.Images) == 0 {
		gaps = append(gaps, "images")
	}
	return gaps
}

func (c *Client) get(ctx context.Context, path string, params url.Values, timeout time.Duration) (status int, body []byte, err error) {
	reqURL, err := url.Parse(c.baseURL + path)
	if nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return 0, nil, flaw.From(fmt.Errorf("failed to parse request URL: %v", err)).Append(flawP)
	}
	if nil != params {
		reqURL.RawQuery = params.Encode()
	}
	flawP := flaw.P{"url": reqURL.String()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return 0, nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return 0, nil, flaw.From(fmt.Errorf("failed to create request: %v", err)).Append(flawP)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.discogs.v2+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	client := http.Client{Timeout: timeout} //nolint:exhaustruct
	var resp *http.Response
	if sendErr := c.wq.SendSingle(ctx, func() error {
		var doErr error
		resp, doErr = client.Do(req)
		return doErr
	}); nil != sendErr {
		switch {
		case errutil.IsContext(ctx):
			return 0, nil, ctx.Err()
		case errors.Is(sendErr, context.DeadlineExceeded):
			return 0, nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(sendErr).FlawP()
			return 0, nil, flaw.From(fmt.Errorf("failed to send request: %v", sendErr)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			closeErr = flaw.From(fmt.Errorf("failed to close response body: %v", closeErr)).Append(flawP)
			switch {
			case nil == err:
				err = closeErr
			case errutil.IsContext(ctx):
				err = flaw.From(errors.New("context was ended")).Join(closeErr)
			case errors.Is(err, context.DeadlineExceeded):
				err = flaw.From(errors.New("timeout has reached")).Join(closeErr)
			case errutil.IsFlaw(err):
				err = must.BeFlaw(err).Join(closeErr)
			default:
				err = errors.Join(err, closeErr)
			}
		}
	}()
	flawP["response"] = errutil.HTTPResponseFlawPayload(resp)

	respBytes, err := httputil.ReadOptionalResponseBody(ctx, resp)
	if nil != err {
		return 0, nil, err
	}
	return resp.StatusCode, respBytes, nil
}

type releaseResponse struct {
	Title   string   `json:"title"`
	Artists []Artist `json:"artists"`
	Year    int      `json:"year"`
	Country string   `json:"country"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Images    []Image `json:"images"`
	Tracklist []struct {
		Type     string   `json:"type_"`
		Position string   `json:"position"`
		Title    string   `json:"title"`
		Duration string   `json:"duration"`
		Artists  []Artist `json:"artists"`
	} `json:"tracklist"`
}

func (r releaseResponse) toRelease(id int64) *Release {
	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		if l.Name != "" {
			labels = append(labels, l.Name)
		}
	}

	tracks := make([]Track, 0, len(r.Tracklist))
	for _, t := range r.Tracklist {
		if isHeading(t.Type, t.Title, t.Duration) {
			continue
		}
		tracks = append(tracks, Track{
			Position: t.Position,
			Title:    t.Title,
			Duration: t.Duration,
			Artists:  t.Artists,
		})
	}

	return &Release{
		ID:      id,
		Title:   r.Title,
		Artists: r.Artists,
		Year:    r.Year,
		Country: r.Country,
		Labels:  labels,
		Tracks:  tracks,
		Images:  r.Images,
		Prices:  Prices{Currency: "", Min: nil, Median: nil, Max: nil},
	}
}
