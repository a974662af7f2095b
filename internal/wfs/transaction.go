package wfs

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/cityfix/cityfix/internal/models"
)

// Outcome is the classified result of a submission.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Result is the acknowledgment of one transaction submission.
type Result struct {
	Outcome Outcome
	Message string
}

// OK reports whether the submission was classified a success.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// insertXML is the WFS-T 1.0.0 single-feature Insert body. The attribute
// written for the description is "descriptio", the service schema's
// truncated field name, and the point coordinates are lon,lat.
const insertXML = `<wfs:Transaction service="WFS" version="1.0.0"
  xmlns:wfs="http://www.opengis.net/wfs"
  xmlns:gml="http://www.opengis.net/gml"
  xmlns:{{.Prefix}}="{{.Namespace}}">
  <wfs:Insert>
    <{{.Prefix}}:{{.FeatureType}}>
      <{{.Prefix}}:geom>
        <gml:Point srsName="EPSG:4326">
          <gml:coordinates>{{.Lon}},{{.Lat}}</gml:coordinates>
        </gml:Point>
      </{{.Prefix}}:geom>
      <{{.Prefix}}:id>{{.ID}}</{{.Prefix}}:id>
      <{{.Prefix}}:category>{{.Category}}</{{.Prefix}}:category>
      <{{.Prefix}}:status>{{.Status}}</{{.Prefix}}:status>
      <{{.Prefix}}:severity>{{.Severity}}</{{.Prefix}}:severity>
      <{{.Prefix}}:descriptio>{{.Description}}</{{.Prefix}}:descriptio>
      <{{.Prefix}}:timestamp>{{.Timestamp}}</{{.Prefix}}:timestamp>
    </{{.Prefix}}:{{.FeatureType}}>
  </wfs:Insert>
</wfs:Transaction>`

var insertTemplate = template.Must(template.New("insert").Parse(insertXML))

type insertData struct {
	Prefix      string
	Namespace   string
	FeatureType string
	ID          string
	Category    models.Category
	Status      models.Status
	Severity    int
	Description string
	Timestamp   string
	Lat         float64
	Lon         float64
}

// buildInsert renders the transaction body for one issue in the given
// namespace. The description is truncated to the service field length
// and XML-escaped.
func (c *Client) buildInsert(namespace string, issue models.Issue) (string, error) {
	data := insertData{
		Prefix:      c.prefix(),
		Namespace:   namespace,
		FeatureType: c.featureType(),
		ID:          issue.ID,
		Category:    issue.Category,
		Status:      issue.Status,
		Severity:    issue.Severity,
		Description: xmlEscape(issue.TruncatedDescription()),
		Timestamp:   issue.Timestamp,
		Lat:         issue.Latitude,
		Lon:         issue.Longitude,
	}
	var buf bytes.Buffer
	if err := insertTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render transaction: %w", err)
	}
	return buf.String(), nil
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// Submit sends a single-feature insert for the issue and classifies the
// service's acknowledgment. The namespace is resolved first; the call
// suspends until resolution completes. Transport-level problems come back
// as Failure results carrying the underlying error message.
func (c *Client) Submit(ctx context.Context, issue models.Issue) Result {
	ns := c.Namespace(ctx)

	body, err := c.buildInsert(ns, issue)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeFailure, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Message: fmt.Sprintf("send transaction: %v", err)}
	}
	defer resp.Body.Close()

	text, err := readBody(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Message: fmt.Sprintf("read transaction response: %v", err)}
	}

	return Classify(text)
}

// Classify applies the acknowledgment rules to a raw response body. The
// service gives no machine-checkable success contract, so this is an
// ordered keyword heuristic with an optimistic default.
func Classify(body string) Result {
	switch {
	case strings.Contains(body, `totalInserted="1"`),
		strings.Contains(body, `TotalInserted="1"`),
		strings.Contains(body, "TransactionResponse"):
		return Result{Outcome: OutcomeSuccess, Message: "issue submitted: one feature inserted"}
	case strings.Contains(body, "Exception"), strings.Contains(body, "error"):
		return Result{Outcome: OutcomeFailure, Message: "service rejected the transaction: " + snippet(body)}
	default:
		return Result{Outcome: OutcomeSuccess, Message: "issue submitted"}
	}
}

// snippet trims a response body to a displayable length.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
