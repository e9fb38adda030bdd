// Package cluster provides the client used to talk to an Elasticsearch or
// OpenSearch cluster: index lifecycle, aliases, reindex tasks and bulk writes.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// Config holds connection settings for the cluster
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

// Client wraps the Elasticsearch client with the operations the migrator needs
type Client struct {
	es *elasticsearch.Client
}

// ResponseError is returned when the cluster answers with a non-2xx status.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("cluster error [%d %s]: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// NewClient creates a new cluster client
func NewClient(cfg Config) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	return &Client{es: es}, nil
}

// Ping checks that the cluster is reachable
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	return finish(res, err, "ping cluster", nil)
}

// IndexExists reports whether a concrete index (or alias) with this name exists
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	return existsResult(res, err, fmt.Sprintf("check index %q", name))
}

// CreateIndex creates an index with the given settings and mappings.
// Null settings or mappings are left out of the request body.
func (c *Client) CreateIndex(ctx context.Context, name string, settings, mappings jsonv.Value) error {
	body := jsonv.EmptyObject()
	if !settings.IsNull() {
		body = body.With("settings", settings)
	}
	if !mappings.IsNull() {
		body = body.With("mappings", mappings)
	}
	data, err := body.MarshalJSON()
	if err != nil {
		return fmt.Errorf("building create body for %q: %w", name, err)
	}

	res, err := c.es.Indices.Create(name,
		c.es.Indices.Create.WithBody(bytes.NewReader(data)),
		c.es.Indices.Create.WithContext(ctx),
	)
	return finish(res, err, fmt.Sprintf("create index %q", name), nil)
}

// CloseIndex closes an index; its data stays on disk.
func (c *Client) CloseIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Close([]string{name}, c.es.Indices.Close.WithContext(ctx))
	return finish(res, err, fmt.Sprintf("close index %q", name), nil)
}

// DeleteIndex deletes an index
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	return finish(res, err, fmt.Sprintf("delete index %q", name), nil)
}

// GetSettings returns the settings object of a single index
func (c *Client) GetSettings(ctx context.Context, name string) (jsonv.Value, error) {
	res, err := c.es.Indices.GetSettings(
		c.es.Indices.GetSettings.WithIndex(name),
		c.es.Indices.GetSettings.WithContext(ctx),
	)
	var body map[string]struct {
		Settings jsonv.Value `json:"settings"`
	}
	if err := finish(res, err, fmt.Sprintf("get settings of %q", name), &body); err != nil {
		return jsonv.Null(), err
	}
	for _, entry := range body {
		return entry.Settings, nil
	}
	return jsonv.Null(), fmt.Errorf("get settings of %q: empty response", name)
}

// GetMappings returns the mapping of a single index
func (c *Client) GetMappings(ctx context.Context, name string) (jsonv.Value, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithIndex(name),
		c.es.Indices.GetMapping.WithContext(ctx),
	)
	var body map[string]struct {
		Mappings jsonv.Value `json:"mappings"`
	}
	if err := finish(res, err, fmt.Sprintf("get mappings of %q", name), &body); err != nil {
		return jsonv.Null(), err
	}
	for _, entry := range body {
		return entry.Mappings, nil
	}
	return jsonv.Null(), fmt.Errorf("get mappings of %q: empty response", name)
}

// GetDocCount returns the number of documents in an index
func (c *Client) GetDocCount(ctx context.Context, name string) (int, error) {
	res, err := c.es.Count(c.es.Count.WithIndex(name), c.es.Count.WithContext(ctx))
	var body struct {
		Count int `json:"count"`
	}
	if err := finish(res, err, fmt.Sprintf("count documents in %q", name), &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// UpdateSettings applies a partial settings update to an open index
func (c *Client) UpdateSettings(ctx context.Context, index string, patch jsonv.Value) error {
	data, err := patch.MarshalJSON()
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutSettings(bytes.NewReader(data),
		c.es.Indices.PutSettings.WithIndex(index),
		c.es.Indices.PutSettings.WithContext(ctx),
	)
	return finish(res, err, fmt.Sprintf("update settings of %q", index), nil)
}

// UpdateMappings applies a partial mapping update
func (c *Client) UpdateMappings(ctx context.Context, index string, patch jsonv.Value) error {
	data, err := patch.MarshalJSON()
	if err != nil {
		return err
	}
	res, err := c.es.Indices.PutMapping([]string{index}, bytes.NewReader(data),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	return finish(res, err, fmt.Sprintf("update mappings of %q", index), nil)
}

// AliasExists reports whether an alias with this name exists
func (c *Client) AliasExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.ExistsAlias([]string{name}, c.es.Indices.ExistsAlias.WithContext(ctx))
	return existsResult(res, err, fmt.Sprintf("check alias %q", name))
}

// GetAliasIndices returns the concrete indices an alias points to, sorted
func (c *Client) GetAliasIndices(ctx context.Context, name string) ([]string, error) {
	res, err := c.es.Indices.GetAlias(
		c.es.Indices.GetAlias.WithName(name),
		c.es.Indices.GetAlias.WithContext(ctx),
	)
	var body map[string]json.RawMessage
	if err := finish(res, err, fmt.Sprintf("get alias %q", name), &body); err != nil {
		return nil, err
	}
	indices := make([]string, 0, len(body))
	for index := range body {
		indices = append(indices, index)
	}
	sort.Strings(indices)
	return indices, nil
}

type aliasActionBody struct {
	Index        string `json:"index"`
	Alias        string `json:"alias"`
	IsWriteIndex *bool  `json:"is_write_index,omitempty"`
}

// UpdateAliases applies a list of alias actions atomically
func (c *Client) UpdateAliases(ctx context.Context, actions []models.AliasAction) (*models.AliasUpdateResult, error) {
	wire := make([]map[string]aliasActionBody, 0, len(actions))
	for _, a := range actions {
		entry := aliasActionBody{Index: a.Index, Alias: a.Alias}
		if a.Type == models.AliasAdd {
			entry.IsWriteIndex = a.IsWriteIndex
		}
		wire = append(wire, map[string]aliasActionBody{string(a.Type): entry})
	}
	data, err := json.Marshal(map[string]interface{}{"actions": wire})
	if err != nil {
		return nil, fmt.Errorf("building alias actions: %w", err)
	}

	res, err := c.es.Indices.UpdateAliases(bytes.NewReader(data), c.es.Indices.UpdateAliases.WithContext(ctx))
	var result models.AliasUpdateResult
	if err := finish(res, err, "update aliases", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// wireReindexResponse is the reindex response body as the cluster sends it
type wireReindexResponse struct {
	Task     string `json:"task"`
	Took     int64  `json:"took"`
	TimedOut bool   `json:"timed_out"`
	Total    int    `json:"total"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Noops    int    `json:"noops"`
	Failures []struct {
		Index  string          `json:"index"`
		ID     string          `json:"id"`
		Status int             `json:"status"`
		Cause  json.RawMessage `json:"cause"`
	} `json:"failures"`
}

func (w *wireReindexResponse) toResult() *models.ReindexResult {
	r := &models.ReindexResult{
		Task:     w.Task,
		Took:     w.Took,
		TimedOut: w.TimedOut,
		Total:    w.Total,
		Created:  w.Created,
		Updated:  w.Updated,
		Noops:    w.Noops,
	}
	for _, f := range w.Failures {
		r.Failures = append(r.Failures, models.ReindexFailure{
			Index:  f.Index,
			ID:     f.ID,
			Status: f.Status,
			Cause:  string(f.Cause),
		})
	}
	return r
}

func reindexBody(source, dest, script string, maxDocs int) ([]byte, error) {
	body := map[string]interface{}{
		"source": map[string]interface{}{"index": source},
		"dest":   map[string]interface{}{"index": dest},
	}
	if script != "" {
		body["script"] = map[string]interface{}{"source": script, "lang": "painless"}
	}
	if maxDocs > 0 {
		body["max_docs"] = maxDocs
	}
	return json.Marshal(body)
}

// Reindex starts an asynchronous copy of every document from source to dest.
// The returned result carries the task handle to poll.
func (c *Client) Reindex(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	data, err := reindexBody(source, dest, script, 0)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Reindex(bytes.NewReader(data),
		c.es.Reindex.WithWaitForCompletion(false),
		c.es.Reindex.WithRefresh(true),
		c.es.Reindex.WithContext(ctx),
	)
	var body wireReindexResponse
	if err := finish(res, err, fmt.Sprintf("reindex %q into %q", source, dest), &body); err != nil {
		return nil, err
	}
	return body.toResult(), nil
}

// ReindexOneDocument synchronously copies at most one document
func (c *Client) ReindexOneDocument(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	data, err := reindexBody(source, dest, script, 1)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Reindex(bytes.NewReader(data),
		c.es.Reindex.WithWaitForCompletion(true),
		c.es.Reindex.WithRefresh(true),
		c.es.Reindex.WithContext(ctx),
	)
	var body wireReindexResponse
	if err := finish(res, err, fmt.Sprintf("reindex one document from %q into %q", source, dest), &body); err != nil {
		return nil, err
	}
	return body.toResult(), nil
}

// GetTaskStatus fetches the state of an asynchronous task
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	res, err := c.es.Tasks.Get(taskID, c.es.Tasks.Get.WithContext(ctx))
	var body struct {
		Completed bool                 `json:"completed"`
		Response  *wireReindexResponse `json:"response"`
		Error     json.RawMessage      `json:"error"`
	}
	if err := finish(res, err, fmt.Sprintf("get task %q", taskID), &body); err != nil {
		return nil, err
	}
	status := &models.TaskStatus{Completed: body.Completed}
	if body.Response != nil {
		status.Response = body.Response.toResult()
	}
	if len(body.Error) > 0 && string(body.Error) != "null" {
		status.Error = string(body.Error)
	}
	return status, nil
}

// BulkIndex inserts documents into an index using the BulkIndexer.
func (c *Client) BulkIndex(ctx context.Context, docs []models.Document, index string) error {
	if len(docs) == 0 {
		return nil
	}

	indexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: c.es,
		Index:  index,
	})
	if err != nil {
		return fmt.Errorf("creating bulk indexer for %q: %w", index, err)
	}

	var (
		mu         sync.Mutex
		bulkErrors []string
	)
	for _, doc := range docs {
		body, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("marshaling document: %w", err)
		}

		item := esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					bulkErrors = append(bulkErrors, err.Error())
				} else {
					bulkErrors = append(bulkErrors, fmt.Sprintf("[%d] %s: %s", res.Status, res.Error.Type, res.Error.Reason))
				}
			},
		}
		if err := indexer.Add(ctx, item); err != nil {
			return fmt.Errorf("adding document to bulk indexer: %w", err)
		}
	}

	if err := indexer.Close(ctx); err != nil {
		return fmt.Errorf("closing bulk indexer for %q: %w", index, err)
	}
	if len(bulkErrors) > 0 {
		return fmt.Errorf("bulk insert errors for %q: %s", index, strings.Join(bulkErrors, "; "))
	}
	if stats := indexer.Stats(); stats.NumFailed > 0 {
		return fmt.Errorf("bulk insert for %q: %d documents failed", index, stats.NumFailed)
	}
	return nil
}

// finish closes the response, maps error statuses to *ResponseError and
// decodes the body into out when out is non-nil.
func finish(res *esapi.Response, err error, op string, out interface{}) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if err := checkResponse(res); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func existsResult(res *esapi.Response, err error, op string) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		if err := checkResponse(res); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return false, fmt.Errorf("%s: unexpected status %d", op, res.StatusCode)
	}
}

// checkResponse checks an API response for errors.
func checkResponse(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	return &ResponseError{Status: res.StatusCode, Body: string(body)}
}
