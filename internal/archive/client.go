package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"geodash/internal/types"
)

// dateFormat is the day-granularity wire format for start_date/end_date.
const dateFormat = "2006-01-02"

// maxResponseSize bounds archive response bodies (4 MB). A month of hourly
// data for three fields is well under 1 MB.
const maxResponseSize = 4 << 20

// Fetcher is the interface the recompute pipeline depends on. Satisfied by
// *Client and by test doubles.
type Fetcher interface {
	Fetch(ctx context.Context, point types.LatLng, start, end time.Time, fields []types.VariableField) (types.WeatherSeries, error)
}

// Client queries the external weather archive for hourly variable series.
//
// The archive has a hard constraint: it never returns data for the current
// day or the future. Fetch clamps requested end dates to yesterday rather
// than letting the archive answer with empty arrays for recent timestamps.
type Client struct {
	baseURL   string
	transport *transport
	clock     types.Clock
	logger    *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      RetryPolicy
	UserAgent  string
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewClient creates an archive client. A nil HTTPClient gets a default with
// an 8-second timeout; a nil Clock gets the real UTC clock.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry.MaxRetries == 0 && retry.MinWait == 0 {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		transport: newTransport(httpClient, retry, opts.UserAgent),
		clock:     clock,
		logger:    logger,
	}
}

// wireResponse mirrors the archive's JSON shape: hourly.time plus one
// index-aligned array per requested field.
type wireResponse struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Hourly    map[string]json.RawMessage `json:"hourly"`
}

// Fetch retrieves the hourly series for a point over an inclusive date
// range. Timestamps inside start/end are truncated to day granularity on
// the wire; the returned series carries every hour of the requested days.
//
// Failures are typed: transport/non-2xx problems surface as
// upstream_archive_unavailable, unexpected response shapes as
// upstream_archive_malformed.
func (c *Client) Fetch(ctx context.Context, point types.LatLng, start, end time.Time, fields []types.VariableField) (types.WeatherSeries, error) {
	if len(fields) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "at least one variable field is required", nil)
	}

	start, end = c.clampRange(start, end)

	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = string(f)
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", point.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", point.Lng))
	q.Set("start_date", start.UTC().Format(dateFormat))
	q.Set("end_date", end.UTC().Format(dateFormat))
	q.Set("hourly", strings.Join(fieldNames, ","))
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build archive request", err)
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamArchive,
			fmt.Sprintf("archive returned status %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamArchive, "failed to read archive response", err)
	}

	return decodeSeries(body, fields)
}

// clampRange normalizes the requested range so it never reaches into what
// the archive cannot serve: end is capped at yesterday, and start is capped
// at end.
func (c *Client) clampRange(start, end time.Time) (time.Time, time.Time) {
	yesterday := c.clock.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	if end.After(yesterday) {
		end = yesterday
	}
	if start.After(end) {
		start = end
	}
	return start, end
}

// decodeSeries converts the archive wire shape into a WeatherSeries. Every
// requested field must be present and index-aligned with hourly.time;
// anything else is a malformed response.
func decodeSeries(body []byte, fields []types.VariableField) (types.WeatherSeries, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamArchiveMalformed, "archive response is not valid JSON", err)
	}
	if wire.Hourly == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamArchiveMalformed, "archive response missing hourly block", nil)
	}

	rawTimes, ok := wire.Hourly["time"]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeUpstreamArchiveMalformed, "archive response missing hourly.time", nil)
	}
	var timeStrings []string
	if err := json.Unmarshal(rawTimes, &timeStrings); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamArchiveMalformed, "archive hourly.time is not a string array", err)
	}

	valuesByField := make(map[types.VariableField][]*float64, len(fields))
	for _, f := range fields {
		raw, ok := wire.Hourly[string(f)]
		if !ok {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamArchiveMalformed,
				fmt.Sprintf("archive response missing hourly.%s", f),
				nil,
			)
		}
		// Null entries mark hours the archive has no reading for.
		var vals []*float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamArchiveMalformed,
				fmt.Sprintf("archive hourly.%s is not a number array", f),
				err,
			)
		}
		if len(vals) != len(timeStrings) {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamArchiveMalformed,
				fmt.Sprintf("archive hourly.%s has %d entries, expected %d", f, len(vals), len(timeStrings)),
				nil,
			)
		}
		valuesByField[f] = vals
	}

	series := make(types.WeatherSeries, 0, len(timeStrings))
	for i, ts := range timeStrings {
		stamp, err := parseArchiveTime(ts)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamArchiveMalformed,
				fmt.Sprintf("archive timestamp %q is not parseable", ts),
				err,
			)
		}
		values := make(map[types.VariableField]float64, len(fields))
		for _, f := range fields {
			if v := valuesByField[f][i]; v != nil {
				values[f] = *v
			}
		}
		series = append(series, types.WeatherPoint{Timestamp: stamp, Values: values})
	}

	// Downstream reductions rely on ascending timestamps; the archive
	// serves them ordered but the contract is enforced here.
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})

	return series, nil
}

// parseArchiveTime accepts the archive's minute-resolution ISO format
// ("2024-05-01T13:00") and full RFC 3339.
func parseArchiveTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
