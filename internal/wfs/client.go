// Package wfs speaks the remote feature service's wire protocol: GeoJSON
// GetFeature reads, DescribeFeatureType namespace discovery, and WFS-T
// Insert transactions. The service itself is an external collaborator;
// its storage and schema are opaque to this client.
package wfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cityfix/cityfix/internal/models"
)

// Config holds the connection settings for the feature service.
type Config struct {
	// URL is the WFS endpoint, e.g. http://localhost:8080/geoserver/cityfix/wfs.
	URL string
	// TypeName is the qualified feature type, e.g. "cityfix:Münster-Issues".
	TypeName string
	// DefaultNamespace is used when namespace discovery fails.
	DefaultNamespace string
	// Timeout bounds each HTTP call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds WFS HTTP calls when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Client is an HTTP client for one WFS feature type.
type Client struct {
	url       string
	typeName  string
	defaultNS string
	http      *http.Client

	nsMu    sync.Mutex
	ns      string
	nsGroup singleflight.Group
}

// NewClient creates a client for the configured feature service.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ns := cfg.DefaultNamespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return &Client{
		url:       cfg.URL,
		typeName:  cfg.TypeName,
		defaultNS: ns,
		http:      &http.Client{Timeout: timeout},
	}
}

// featureType returns the unqualified feature type name.
func (c *Client) featureType() string {
	if i := strings.Index(c.typeName, ":"); i >= 0 {
		return c.typeName[i+1:]
	}
	return c.typeName
}

// prefix returns the namespace prefix of the feature type.
func (c *Client) prefix() string {
	if i := strings.Index(c.typeName, ":"); i >= 0 {
		return c.typeName[:i]
	}
	return "feature"
}

func (c *Client) getURL(params url.Values) string {
	params.Set("service", "WFS")
	params.Set("version", "1.0.0")
	params.Set("typeName", c.typeName)
	return c.url + "?" + params.Encode()
}

// geoJSON wire types. The external schema's attribute name for the
// description is the truncated spelling "descriptio".
type featureCollection struct {
	Features []struct {
		Geometry struct {
			Coordinates []any `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			ID         any     `json:"id"`
			Category   string  `json:"category"`
			Status     string  `json:"status"`
			Severity   float64 `json:"severity"`
			Descriptio string  `json:"descriptio"`
			Timestamp  string  `json:"timestamp"`
		} `json:"properties"`
	} `json:"features"`
}

// GetFeatures fetches the full feature collection for the type. Geometry
// is passed through raw; the store decides what to skip.
func (c *Client) GetFeatures(ctx context.Context) ([]models.Feature, error) {
	u := c.getURL(url.Values{
		"request":      {"GetFeature"},
		"outputFormat": {"application/json"},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch features: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("WFS request failed: %d", resp.StatusCode)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	feats := make([]models.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		severity := int(f.Properties.Severity)
		if severity == 0 {
			severity = 1
		}
		feats = append(feats, models.Feature{
			Issue: models.Issue{
				ID:          fmt.Sprint(f.Properties.ID),
				Category:    models.Category(f.Properties.Category),
				Status:      models.Status(f.Properties.Status),
				Severity:    severity,
				Description: f.Properties.Descriptio,
				Timestamp:   f.Properties.Timestamp,
			},
			Coords: numericCoords(f.Geometry.Coordinates),
		})
	}
	return feats, nil
}

// numericCoords converts raw JSON coordinates to floats. Any non-numeric
// entry marks the whole geometry malformed (nil).
func numericCoords(raw []any) []float64 {
	coords := make([]float64, 0, len(raw))
	for _, v := range raw {
		n, ok := v.(float64)
		if !ok {
			return nil
		}
		coords = append(coords, n)
	}
	return coords
}

func readBody(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
