package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/report"
	"github.com/cityfix/cityfix/internal/store"
	"github.com/cityfix/cityfix/internal/wfs"
)

// setupTestServer wires the full client stack against a fake WFS backend.
func setupTestServer(t *testing.T, backend http.HandlerFunc) (*Server, store.Store) {
	t.Helper()

	remote := httptest.NewServer(backend)
	t.Cleanup(remote.Close)

	s, err := store.NewSQLiteStore(store.MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	client := wfs.NewClient(wfs.Config{URL: remote.URL, TypeName: "cityfix:Münster-Issues"})
	engine := filter.NewEngine(s, render.NopCanvas{})
	workflow := report.NewWorkflow(s, engine, client)

	return NewServer(s, engine, workflow, client), s
}

// successBackend answers DescribeFeatureType, GetFeature, and transactions.
func successBackend(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			switch r.URL.Query().Get("request") {
			case "DescribeFeatureType":
				w.Write([]byte(`<xsd:schema targetNamespace="http://ns.test/cityfix"/>`))
			case "GetFeature":
				w.Write([]byte(`{"type":"FeatureCollection","features":[
					{"geometry":{"coordinates":[7.62,51.96]},"properties":{"id":"srv_1","category":"broken_light","status":"open","severity":4,"descriptio":"lamp out"}},
					{"geometry":{},"properties":{"id":"srv_2","category":"roadwork","status":"open","severity":2}}
				]}`))
			}
			return
		}
		w.Write([]byte(`<wfs:WFS_TransactionResponse totalInserted="1"/>`))
	}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListFeatures_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	w := doJSON(t, srv.Router(), "GET", "/api/v1/features", "")

	assert.Equal(t, http.StatusOK, w.Code)

	var out []featureOut
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Empty(t, out)
}

func TestLoadFeatures(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/features/load", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var counts map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts["loaded"])
	assert.Equal(t, 1, counts["skipped"], "malformed geometry is skipped, not fatal")

	w = doJSON(t, router, "GET", "/api/v1/features", "")
	var out []featureOut
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "srv_1", out[0].ID)
	assert.Equal(t, "severe", out[0].Tier)
	assert.True(t, out[0].Visible)
}

func TestLoadFeatures_BackendDown(t *testing.T) {
	srv, _ := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	w := doJSON(t, srv.Router(), "POST", "/api/v1/features/load", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "could not load features")
}

func TestToggleFilter(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	router := srv.Router()

	require.Equal(t, http.StatusOK, doJSON(t, router, "POST", "/api/v1/features/load", "").Code)

	w := doJSON(t, router, "POST", "/api/v1/filters/category/broken_light", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var st filter.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.NotContains(t, st.Categories, "broken_light")

	w = doJSON(t, router, "GET", "/api/v1/features", "")
	var out []featureOut
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.False(t, out[0].Visible, "disabled category hides the feature")
}

func TestToggleFilter_UnknownTag(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	w := doJSON(t, srv.Router(), "POST", "/api/v1/filters/category/graffiti", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportWorkflow_EndToEnd(t *testing.T) {
	srv, s := setupTestServer(t, successBackend(t))
	router := srv.Router()

	// Arm.
	w := doJSON(t, router, "POST", "/api/v1/report/arm", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Pick location.
	w = doJSON(t, router, "POST", "/api/v1/report/location", `{"lat":51.96,"lon":7.62}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":true`)

	// Draft.
	w = doJSON(t, router, "POST", "/api/v1/report/draft", `{"category":"roadwork","severity":5,"description":"full closure"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Submit.
	w = doJSON(t, router, "POST", "/api/v1/report/submit", "")
	assert.Equal(t, http.StatusCreated, w.Code)

	var created featureOut
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "roadwork", created.Category)
	assert.Equal(t, "open", created.Status)
	assert.Equal(t, 5, created.Severity)
	assert.True(t, created.Visible, "all toggles enabled, new issue is visible")

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "exactly one new issue")

	// Session torn down.
	w = doJSON(t, router, "GET", "/api/v1/report", "")
	assert.Contains(t, w.Body.String(), `"phase":"idle"`)
}

func TestSubmit_WithoutLocation(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	router := srv.Router()

	w := doJSON(t, router, "POST", "/api/v1/report/submit", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no location")
}

func TestSubmit_ServiceException(t *testing.T) {
	srv, s := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`<xsd:schema targetNamespace="http://ns.test/cityfix"/>`))
			return
		}
		w.Write([]byte(`<ows:ExceptionReport><ows:Exception/></ows:ExceptionReport>`))
	})
	router := srv.Router()

	doJSON(t, router, "POST", "/api/v1/report/arm", "")
	doJSON(t, router, "POST", "/api/v1/report/location", `{"lat":51.9,"lon":7.6}`)

	w := doJSON(t, router, "POST", "/api/v1/report/submit", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// Session survives at Located for retry.
	w = doJSON(t, router, "GET", "/api/v1/report", "")
	assert.Contains(t, w.Body.String(), `"phase":"located"`)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPickLocation_IgnoredWhenIdle(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))

	w := doJSON(t, srv.Router(), "POST", "/api/v1/report/location", `{"lat":51.9,"lon":7.6}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":false`)
}

func TestCancel(t *testing.T) {
	srv, _ := setupTestServer(t, successBackend(t))
	router := srv.Router()

	doJSON(t, router, "POST", "/api/v1/report/arm", "")
	doJSON(t, router, "POST", "/api/v1/report/location", `{"lat":51.9,"lon":7.6}`)

	w := doJSON(t, router, "POST", "/api/v1/report/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"idle"`)
	assert.NotContains(t, w.Body.String(), `"location"`)
}
