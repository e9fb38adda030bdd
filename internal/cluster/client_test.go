package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeCluster serves canned responses keyed by "METHOD /path".
type fakeCluster struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	requests  []recordedRequest
}

type fakeResponse struct {
	status int
	body   string
}

func newTestClient(t *testing.T, responses map[string]fakeResponse) (*Client, *fakeCluster) {
	t.Helper()
	fc := &fakeCluster{responses: responses}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client, fc
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	resp, ok := f.responses[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if strings.HasSuffix(r.URL.Path, "/_bulk") && !ok {
		writeBulkResponse(w, string(body))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"type":"not_found","reason":"no route %s %s"},"status":404}`, r.Method, r.URL.Path)
		return
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeCluster) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// writeBulkResponse acknowledges every action line of an NDJSON bulk body.
func writeBulkResponse(w http.ResponseWriter, body string) {
	var items []string
	sc := bufio.NewScanner(strings.NewReader(body))
	action := true
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		if action {
			items = append(items, `{"index":{"status":201}}`)
		}
		action = !action
	}
	fmt.Fprintf(w, `{"took":1,"errors":false,"items":[%s]}`, strings.Join(items, ","))
}

func TestClient_IndexExists(t *testing.T) {
	client, _ := newTestClient(t, map[string]fakeResponse{
		"HEAD /products-1": {status: 200},
	})
	ctx := context.Background()

	exists, err := client.IndexExists(ctx, "products-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.IndexExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_GetSettingsUnwrapsIndexEntry(t *testing.T) {
	client, _ := newTestClient(t, map[string]fakeResponse{
		"GET /products-1/_settings": {status: 200, body: `{"products-1":{"settings":{"index":{"number_of_replicas":"1"}}}}`},
	})

	settings, err := client.GetSettings(context.Background(), "products-1")
	require.NoError(t, err)

	replicas, ok := settings.Path("index", "number_of_replicas")
	require.True(t, ok)
	assert.Equal(t, "1", str(replicas))
}

func TestClient_GetAliasIndicesSorted(t *testing.T) {
	client, _ := newTestClient(t, map[string]fakeResponse{
		"GET /_alias/products": {status: 200, body: `{"products-b":{"aliases":{"products":{}}},"products-a":{"aliases":{"products":{}}}}`},
	})

	indices, err := client.GetAliasIndices(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"products-a", "products-b"}, indices)
}

func TestClient_UpdateAliasesBody(t *testing.T) {
	client, fc := newTestClient(t, map[string]fakeResponse{
		"POST /_aliases": {status: 200, body: `{"acknowledged":true,"errors":false}`},
	})

	result, err := client.UpdateAliases(context.Background(), []models.AliasAction{
		models.RemoveAlias("products-1", "products"),
		models.AddAlias("products-2", "products", true),
	})
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
	assert.False(t, result.Errors)

	var sent struct {
		Actions []map[string]map[string]interface{} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(fc.last().Body), &sent))
	require.Len(t, sent.Actions, 2)
	assert.Equal(t, "products-1", sent.Actions[0]["remove"]["index"])
	_, hasWriteFlag := sent.Actions[0]["remove"]["is_write_index"]
	assert.False(t, hasWriteFlag)
	assert.Equal(t, true, sent.Actions[1]["add"]["is_write_index"])
}

func TestClient_ReindexStartsTask(t *testing.T) {
	client, fc := newTestClient(t, map[string]fakeResponse{
		"POST /_reindex": {status: 200, body: `{"task":"node-1:42"}`},
	})

	result, err := client.Reindex(context.Background(), "products-1", "products-2", "ctx._source.x = 1")
	require.NoError(t, err)
	assert.Equal(t, "node-1:42", result.Task)

	req := fc.last()
	assert.Contains(t, req.Query, "wait_for_completion=false")

	body := jsonv.MustParse(req.Body)
	src, _ := body.Path("source", "index")
	dst, _ := body.Path("dest", "index")
	lang, _ := body.Path("script", "lang")
	assert.Equal(t, "products-1", str(src))
	assert.Equal(t, "products-2", str(dst))
	assert.Equal(t, "painless", str(lang))
}

func TestClient_ReindexOneDocumentLimitsDocs(t *testing.T) {
	client, fc := newTestClient(t, map[string]fakeResponse{
		"POST /_reindex": {status: 200, body: `{"took":3,"total":1,"created":1,"updated":0,"noops":0,"failures":[]}`},
	})

	result, err := client.ReindexOneDocument(context.Background(), "products-1", "products-1-throwaway", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Task)

	req := fc.last()
	assert.Contains(t, req.Query, "wait_for_completion=true")
	body := jsonv.MustParse(req.Body)
	maxDocs, _ := body.Get("max_docs")
	n, _ := maxDocs.AsNumber()
	assert.Equal(t, float64(1), n)
	assert.False(t, body.Has("script"))
}

func TestClient_GetTaskStatusWithFailures(t *testing.T) {
	client, _ := newTestClient(t, map[string]fakeResponse{
		"GET /_tasks/node-1:42": {status: 200, body: `{
			"completed": true,
			"response": {"total": 2, "created": 1, "failures": [
				{"index": "products-2", "id": "7", "status": 400, "cause": {"type": "mapper_parsing_exception"}}
			]}
		}`},
	})

	status, err := client.GetTaskStatus(context.Background(), "node-1:42")
	require.NoError(t, err)
	assert.True(t, status.Completed)
	require.NotNil(t, status.Response)
	require.Len(t, status.Response.Failures, 1)
	assert.Equal(t, "7", status.Response.Failures[0].ID)
	assert.Contains(t, status.Response.Failures[0].Cause, "mapper_parsing_exception")
	assert.Empty(t, status.Error)
}

func TestClient_ErrorStatusIsResponseError(t *testing.T) {
	client, _ := newTestClient(t, map[string]fakeResponse{
		"PUT /products-1": {status: 400, body: `{"error":{"type":"resource_already_exists_exception"},"status":400}`},
	})

	err := client.CreateIndex(context.Background(), "products-1", jsonv.EmptyObject(), jsonv.Null())
	require.Error(t, err)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, 400, respErr.Status)
	assert.Contains(t, respErr.Body, "resource_already_exists_exception")
}

func TestClient_BulkIndex(t *testing.T) {
	client, fc := newTestClient(t, nil)

	err := client.BulkIndex(context.Background(), []models.Document{
		{ID: "1", Body: map[string]interface{}{"name": "a"}},
		{ID: "2", Body: map[string]interface{}{"name": "b"}},
	}, "products-1")
	require.NoError(t, err)

	req := fc.last()
	assert.Equal(t, "/products-1/_bulk", req.Path)
	assert.Contains(t, req.Body, `"name":"a"`)
	assert.Contains(t, req.Body, `"name":"b"`)
}

func TestFetchLiveState(t *testing.T) {
	mock := NewMockClient()
	mock.AddIndex("products-1",
		jsonv.MustParse(`{"number_of_replicas": 1}`),
		jsonv.MustParse(`{"properties": {"name": {"type": "text"}}}`),
		models.Document{ID: "1", Body: map[string]interface{}{"name": "a"}},
		models.Document{ID: "2", Body: map[string]interface{}{"name": "b"}},
	)

	state, err := FetchLiveState(context.Background(), mock, "products-1")
	require.NoError(t, err)
	assert.Equal(t, "products-1", state.Index)
	assert.Equal(t, 2, state.DocCount)

	replicas, ok := state.Settings.Path("index", "number_of_replicas")
	require.True(t, ok)
	assert.Equal(t, "1", str(replicas))
}

func TestFetchLiveState_Error(t *testing.T) {
	mock := NewMockClient()
	_, err := FetchLiveState(context.Background(), mock, "missing")
	require.Error(t, err)
}

func str(v jsonv.Value) string {
	s, _ := v.AsString()
	return s
}

func TestMockClient_UpdateMappingsMergesFieldNamedType(t *testing.T) {
	mock := NewMockClient()
	mock.AddIndex("products-1", jsonv.Null(),
		jsonv.MustParse(`{"properties": {"id": {"type": "keyword"}, "type": {"type": "keyword"}}}`))

	err := mock.UpdateMappings(context.Background(), "products-1",
		jsonv.MustParse(`{"properties": {"price": {"type": "float"}}}`))
	require.NoError(t, err)

	want := jsonv.MustParse(`{"properties": {"id": {"type": "keyword"}, "type": {"type": "keyword"}, "price": {"type": "float"}}}`)
	assert.True(t, mock.Indices["products-1"].Mappings.Equal(want), mock.Indices["products-1"].Mappings.String())
}

func TestMockClient_RejectsNonStringFieldMeta(t *testing.T) {
	mock := NewMockClient()
	mock.AddIndex("products-1", jsonv.Null(), jsonv.MustParse(`{"properties": {}}`))

	err := mock.UpdateMappings(context.Background(), "products-1",
		jsonv.MustParse(`{"properties": {"price": {"type": "float", "meta": {"unit": 100}}}}`))
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, 400, respErr.Status)

	err = mock.CreateIndex(context.Background(), "products-2", jsonv.Null(),
		jsonv.MustParse(`{"properties": {"price": {"type": "float", "meta": {"unit": "100"}}}}`))
	require.NoError(t, err)
}
