package trackapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gpstrack/internal/domain"
)

const (
	// HeaderUpstreamBase carries a caller-chosen tracking API base URL to the proxy
	HeaderUpstreamBase = "X-FastAPI-Base"
	// HeaderDataSource is set to DataSourceMock when the proxy served built-in data
	HeaderDataSource = "X-Data-Source"
	DataSourceMock   = "mock"

	maxBodyBytes = 16 << 20
)

type Client struct {
	baseURL    string
	deviceID   string
	httpClient *http.Client
	now        func() time.Time
}

func New(baseURL, deviceID string) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Fetch retrieves the current tracking snapshot. A non-empty endpointOverride
// is forwarded to the proxy as the upstream base URL.
func (c *Client) Fetch(ctx context.Context, endpointOverride string) (*domain.Snapshot, error) {
	params := url.Values{}
	params.Set("device_id", c.deviceID)
	params.Set("start", "0")
	params.Set("end", "9999999999999")
	params.Set("format", "geojson")
	params.Set("_cb", strconv.FormatInt(c.now().UnixMilli(), 10))

	reqURL := fmt.Sprintf("%s/api/track?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "application/json")
	if endpointOverride != "" {
		req.Header.Set(HeaderUpstreamBase, endpointOverride)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading body: %w", err)}
	}

	snap, err := Decode(body)
	if err != nil {
		return nil, err
	}
	snap.FetchedAt = c.now()
	snap.Synthetic = resp.Header.Get(HeaderDataSource) == DataSourceMock
	return snap, nil
}

// Decode parses a GeoJSON feature collection into a snapshot
func Decode(body []byte) (*domain.Snapshot, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if fc.Type != "FeatureCollection" {
		return nil, &ParseError{Err: fmt.Errorf("unexpected type %q", fc.Type)}
	}

	snap := &domain.Snapshot{Features: make([]domain.Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		if f == nil {
			return nil, &ParseError{Err: errors.New("null feature")}
		}
		snap.Features = append(snap.Features, toDomain(f))
	}
	return snap, nil
}

func toDomain(f *geojson.Feature) domain.Feature {
	out := domain.Feature{Properties: map[string]any(f.Properties)}
	if f.Geometry == nil {
		return out
	}
	out.GeometryType = f.Geometry.GeoJSONType()

	switch g := f.Geometry.(type) {
	case orb.LineString:
		out.Coordinates = pointsToPairs(g)
	case orb.MultiPoint:
		out.Coordinates = pointsToPairs(g)
	case orb.Point:
		out.Coordinates = [][2]float64{{g[0], g[1]}}
	}
	return out
}

func pointsToPairs(pts []orb.Point) [][2]float64 {
	pairs := make([][2]float64, len(pts))
	for i, p := range pts {
		pairs[i] = [2]float64{p[0], p[1]}
	}
	return pairs
}
