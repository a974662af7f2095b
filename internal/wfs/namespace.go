package wfs

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
)

// DefaultNamespace is the fallback when DescribeFeatureType yields no
// usable targetNamespace. It matches the GeoServer workspace URI the
// client was built against.
const DefaultNamespace = "http://localhost:8080/cityfix"

// targetNamespaceRe extracts the namespace attribute from the schema
// document. A substring match is deliberate: the response is not always
// well-formed enough to justify full XML parsing.
var targetNamespaceRe = regexp.MustCompile(`targetNamespace="([^"]+)"`)

// Namespace returns the XML namespace for the feature type, fetching it
// from the service on first use and caching it for the process lifetime.
// Resolution never fails: any problem degrades to the default namespace,
// which is cached like a real result. Concurrent first callers share one
// request.
func (c *Client) Namespace(ctx context.Context) string {
	c.nsMu.Lock()
	if c.ns != "" {
		ns := c.ns
		c.nsMu.Unlock()
		return ns
	}
	c.nsMu.Unlock()

	v, _, _ := c.nsGroup.Do("namespace", func() (any, error) {
		ns := c.fetchNamespace(ctx)
		c.nsMu.Lock()
		c.ns = ns
		c.nsMu.Unlock()
		return ns, nil
	})
	return v.(string)
}

func (c *Client) fetchNamespace(ctx context.Context) string {
	u := c.getURL(url.Values{"request": {"DescribeFeatureType"}})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return c.defaultNS
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("namespace discovery failed, using default", "error", err)
		return c.defaultNS
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("namespace discovery failed, using default", "status", resp.StatusCode)
		return c.defaultNS
	}

	body, err := readBody(resp.Body)
	if err != nil {
		return c.defaultNS
	}

	m := targetNamespaceRe.FindStringSubmatch(body)
	if m == nil {
		slog.Debug("schema document has no targetNamespace, using default")
		return c.defaultNS
	}
	return m[1]
}
