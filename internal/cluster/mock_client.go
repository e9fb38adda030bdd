package cluster

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// MockIndex is one index held by MockClient
type MockIndex struct {
	Settings jsonv.Value
	Mappings jsonv.Value
	Docs     map[string]map[string]interface{}
	Closed   bool
}

// MockClient is an in-memory cluster implementing ClientInterface for tests.
type MockClient struct {
	// Indices stores indices by name
	Indices map[string]*MockIndex
	// Aliases maps alias name -> index name -> is_write_index
	Aliases map[string]map[string]bool
	// Tasks stores asynchronous reindex tasks by id
	Tasks map[string]*models.TaskStatus
	// Calls records every operation in order, e.g. "CreateIndex products-1"
	Calls []string
	// AliasUpdates records each accepted UpdateAliases call
	AliasUpdates [][]models.AliasAction
	// Err can be set to make every method return an error
	Err error
	// FailOn is consulted before every operation; a non-nil error fails it.
	// args are the operation's name arguments (index, alias, source/dest).
	FailOn func(op string, args ...string) error
	// Transform, when set, is applied to each document copied by a reindex
	// that carries a script.
	Transform func(script string, doc map[string]interface{}) (map[string]interface{}, error)
	// SyncReindex makes Reindex complete inside the request without a task
	SyncReindex bool
	// PendingPolls is how many status polls report a task as still running
	PendingPolls int
	// AliasErrors makes UpdateAliases report errors=true
	AliasErrors bool

	mu      sync.Mutex
	taskSeq int
	polls   map[string]int
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		Indices: make(map[string]*MockIndex),
		Aliases: make(map[string]map[string]bool),
		Tasks:   make(map[string]*models.TaskStatus),
		polls:   make(map[string]int),
	}
}

// AddIndex registers an index directly, bypassing CreateIndex bookkeeping.
func (m *MockClient) AddIndex(name string, settings, mappings jsonv.Value, docs ...models.Document) {
	idx := &MockIndex{
		Settings: storedSettings(name, settings),
		Mappings: mappings,
		Docs:     make(map[string]map[string]interface{}),
	}
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		idx.Docs[id] = d.Body
	}
	m.Indices[name] = idx
}

// AddAlias points alias at index.
func (m *MockClient) AddAlias(alias, index string, isWriteIndex bool) {
	if m.Aliases[alias] == nil {
		m.Aliases[alias] = make(map[string]bool)
	}
	m.Aliases[alias][index] = isWriteIndex
}

// WriteIndex resolves where a write through alias would land. It mirrors the
// cluster rule: an explicit write index wins, a single-index alias writes to
// that index, and anything else rejects writes.
func (m *MockClient) WriteIndex(alias string) (string, error) {
	members, ok := m.Aliases[alias]
	if !ok {
		if _, isIndex := m.Indices[alias]; isIndex {
			return alias, nil
		}
		return "", fmt.Errorf("no such index or alias [%s]", alias)
	}
	for index, isWrite := range members {
		if isWrite {
			return index, nil
		}
	}
	if len(members) == 1 {
		for index := range members {
			return index, nil
		}
	}
	return "", fmt.Errorf("no write index is defined for alias [%s]", alias)
}

// IndexDocument writes a document through an alias or directly to an index,
// the way application traffic would.
func (m *MockClient) IndexDocument(target, id string, body map[string]interface{}) error {
	index, err := m.WriteIndex(target)
	if err != nil {
		return err
	}
	idx := m.Indices[index]
	if idx == nil || idx.Closed {
		return fmt.Errorf("index [%s] is missing or closed", index)
	}
	idx.Docs[id] = body
	return nil
}

func (m *MockClient) record(op string, args ...string) error {
	call := op
	for _, a := range args {
		call += " " + a
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.FailOn != nil {
		return m.FailOn(op, args...)
	}
	return nil
}

func (m *MockClient) openIndex(name string) (*MockIndex, error) {
	idx, ok := m.Indices[name]
	if !ok {
		return nil, &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", name)}
	}
	if idx.Closed {
		return nil, &ResponseError{Status: 400, Body: fmt.Sprintf("index_closed_exception [%s]", name)}
	}
	return idx, nil
}

// IndexExists reports whether the index exists.
func (m *MockClient) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := m.record("IndexExists", name); err != nil {
		return false, err
	}
	_, ok := m.Indices[name]
	return ok, nil
}

// CreateIndex adds an empty index.
func (m *MockClient) CreateIndex(ctx context.Context, name string, settings, mappings jsonv.Value) error {
	if err := m.record("CreateIndex", name); err != nil {
		return err
	}
	if _, ok := m.Indices[name]; ok {
		return &ResponseError{Status: 400, Body: fmt.Sprintf("resource_already_exists_exception [%s]", name)}
	}
	if err := checkFieldMeta(mappings); err != nil {
		return err
	}
	m.AddIndex(name, settings, mappings)
	return nil
}

// CloseIndex marks an index closed.
func (m *MockClient) CloseIndex(ctx context.Context, name string) error {
	if err := m.record("CloseIndex", name); err != nil {
		return err
	}
	idx, ok := m.Indices[name]
	if !ok {
		return &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", name)}
	}
	idx.Closed = true
	return nil
}

// DeleteIndex removes an index and any alias pointers to it.
func (m *MockClient) DeleteIndex(ctx context.Context, name string) error {
	if err := m.record("DeleteIndex", name); err != nil {
		return err
	}
	if _, ok := m.Indices[name]; !ok {
		return &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", name)}
	}
	delete(m.Indices, name)
	for alias, members := range m.Aliases {
		delete(members, name)
		if len(members) == 0 {
			delete(m.Aliases, alias)
		}
	}
	return nil
}

// GetSettings returns the stored settings.
func (m *MockClient) GetSettings(ctx context.Context, name string) (jsonv.Value, error) {
	if err := m.record("GetSettings", name); err != nil {
		return jsonv.Null(), err
	}
	idx, ok := m.Indices[name]
	if !ok {
		return jsonv.Null(), &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", name)}
	}
	return idx.Settings, nil
}

// GetMappings returns the stored mappings.
func (m *MockClient) GetMappings(ctx context.Context, name string) (jsonv.Value, error) {
	if err := m.record("GetMappings", name); err != nil {
		return jsonv.Null(), err
	}
	idx, ok := m.Indices[name]
	if !ok {
		return jsonv.Null(), &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", name)}
	}
	if idx.Mappings.IsNull() {
		return jsonv.EmptyObject(), nil
	}
	return idx.Mappings, nil
}

// GetDocCount returns the number of documents in an open index.
func (m *MockClient) GetDocCount(ctx context.Context, name string) (int, error) {
	if err := m.record("GetDocCount", name); err != nil {
		return 0, err
	}
	idx, err := m.openIndex(name)
	if err != nil {
		return 0, err
	}
	return len(idx.Docs), nil
}

// UpdateSettings merges a settings patch.
func (m *MockClient) UpdateSettings(ctx context.Context, index string, patch jsonv.Value) error {
	if err := m.record("UpdateSettings", index); err != nil {
		return err
	}
	idx, err := m.openIndex(index)
	if err != nil {
		return err
	}
	idx.Settings = jsonv.Merge(idx.Settings, stringify(patch))
	return nil
}

// UpdateMappings merges a mapping patch.
func (m *MockClient) UpdateMappings(ctx context.Context, index string, patch jsonv.Value) error {
	if err := m.record("UpdateMappings", index); err != nil {
		return err
	}
	idx, err := m.openIndex(index)
	if err != nil {
		return err
	}
	if err := checkFieldMeta(patch); err != nil {
		return err
	}
	base := idx.Mappings
	if base.IsNull() {
		base = jsonv.EmptyObject()
	}
	// field definitions are replaced wholesale, like the cluster does
	idx.Mappings = jsonv.MergeReplacing(base, patch, isFieldDefinition)
	return nil
}

func isFieldDefinition(v jsonv.Value) bool {
	t, ok := v.Get("type")
	return ok && t.IsString()
}

// checkFieldMeta rejects field meta values that are not strings.
func checkFieldMeta(v jsonv.Value) error {
	if meta, ok := v.Get("meta"); ok && isFieldDefinition(v) {
		for _, k := range meta.Keys() {
			if mv, _ := meta.Get(k); !mv.IsString() {
				return &ResponseError{Status: 400, Body: fmt.Sprintf("mapper_parsing_exception [meta] values can only be strings, but got %s for field [%s]", mv.Kind(), k)}
			}
		}
	}
	for _, k := range v.Keys() {
		member, _ := v.Get(k)
		if err := checkFieldMeta(member); err != nil {
			return err
		}
	}
	return nil
}

// AliasExists reports whether the alias exists.
func (m *MockClient) AliasExists(ctx context.Context, name string) (bool, error) {
	if err := m.record("AliasExists", name); err != nil {
		return false, err
	}
	_, ok := m.Aliases[name]
	return ok, nil
}

// GetAliasIndices returns the sorted indices behind an alias.
func (m *MockClient) GetAliasIndices(ctx context.Context, name string) ([]string, error) {
	if err := m.record("GetAliasIndices", name); err != nil {
		return nil, err
	}
	members, ok := m.Aliases[name]
	if !ok {
		return nil, &ResponseError{Status: 404, Body: fmt.Sprintf("alias [%s] missing", name)}
	}
	return sortedKeys(members), nil
}

// UpdateAliases applies actions atomically: either all apply or none do.
func (m *MockClient) UpdateAliases(ctx context.Context, actions []models.AliasAction) (*models.AliasUpdateResult, error) {
	if err := m.record("UpdateAliases"); err != nil {
		return nil, err
	}
	if m.AliasErrors {
		return &models.AliasUpdateResult{Acknowledged: true, Errors: true}, nil
	}

	next := make(map[string]map[string]bool, len(m.Aliases))
	for alias, members := range m.Aliases {
		cp := make(map[string]bool, len(members))
		for k, v := range members {
			cp[k] = v
		}
		next[alias] = cp
	}

	for _, a := range actions {
		if _, ok := m.Indices[a.Index]; !ok {
			return nil, &ResponseError{Status: 404, Body: fmt.Sprintf("index_not_found_exception [%s]", a.Index)}
		}
		switch a.Type {
		case models.AliasAdd:
			if next[a.Alias] == nil {
				next[a.Alias] = make(map[string]bool)
			}
			next[a.Alias][a.Index] = a.IsWriteIndex != nil && *a.IsWriteIndex
		case models.AliasRemove:
			if _, ok := next[a.Alias][a.Index]; !ok {
				return nil, &ResponseError{Status: 404, Body: fmt.Sprintf("aliases_not_found_exception [%s] on [%s]", a.Alias, a.Index)}
			}
			delete(next[a.Alias], a.Index)
			if len(next[a.Alias]) == 0 {
				delete(next, a.Alias)
			}
		default:
			return nil, fmt.Errorf("unknown alias action %q", a.Type)
		}
	}

	for alias, members := range next {
		writers := 0
		for _, w := range members {
			if w {
				writers++
			}
		}
		if writers > 1 {
			return nil, &ResponseError{Status: 400, Body: fmt.Sprintf("alias [%s] has more than one write index", alias)}
		}
	}

	m.Aliases = next
	m.AliasUpdates = append(m.AliasUpdates, append([]models.AliasAction(nil), actions...))
	return &models.AliasUpdateResult{Acknowledged: true}, nil
}

// copyDocs copies up to limit documents (all when limit <= 0) in id order.
func (m *MockClient) copyDocs(source, dest, script string, limit int) (*models.ReindexResult, error) {
	src, err := m.openIndex(source)
	if err != nil {
		return nil, err
	}
	dst, err := m.openIndex(dest)
	if err != nil {
		return nil, err
	}

	result := &models.ReindexResult{}
	for _, id := range sortedKeys(src.Docs) {
		if limit > 0 && result.Total >= limit {
			break
		}
		result.Total++
		body := src.Docs[id]
		if script != "" && m.Transform != nil {
			transformed, err := m.Transform(script, body)
			if err != nil {
				result.Failures = append(result.Failures, models.ReindexFailure{Index: dest, ID: id, Status: 400, Cause: err.Error()})
				continue
			}
			body = transformed
		}
		if _, exists := dst.Docs[id]; exists {
			result.Updated++
		} else {
			result.Created++
		}
		dst.Docs[id] = body
	}
	return result, nil
}

// Reindex copies all documents and, unless SyncReindex is set, reports the
// outcome through a task.
func (m *MockClient) Reindex(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	if err := m.record("Reindex", source, dest); err != nil {
		return nil, err
	}
	result, err := m.copyDocs(source, dest, script, 0)
	if err != nil {
		return nil, err
	}
	if m.SyncReindex {
		return result, nil
	}
	m.taskSeq++
	taskID := fmt.Sprintf("mock-node:%d", m.taskSeq)
	m.Tasks[taskID] = &models.TaskStatus{Completed: true, Response: result}
	return &models.ReindexResult{Task: taskID}, nil
}

// ReindexOneDocument copies the first document synchronously.
func (m *MockClient) ReindexOneDocument(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	if err := m.record("ReindexOneDocument", source, dest); err != nil {
		return nil, err
	}
	return m.copyDocs(source, dest, script, 1)
}

// GetTaskStatus reports a task as running for PendingPolls polls, then done.
func (m *MockClient) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	if err := m.record("GetTaskStatus", taskID); err != nil {
		return nil, err
	}
	status, ok := m.Tasks[taskID]
	if !ok {
		return nil, &ResponseError{Status: 404, Body: fmt.Sprintf("task [%s] isn't running and hasn't stored its results", taskID)}
	}
	m.polls[taskID]++
	if m.polls[taskID] <= m.PendingPolls {
		return &models.TaskStatus{Completed: false}, nil
	}
	return status, nil
}

// BulkIndex stores documents directly in the named index.
func (m *MockClient) BulkIndex(ctx context.Context, docs []models.Document, index string) error {
	if err := m.record("BulkIndex", index); err != nil {
		return err
	}
	if _, ok := m.Aliases[index]; ok {
		w, err := m.WriteIndex(index)
		if err != nil {
			return err
		}
		index = w
	}
	idx, err := m.openIndex(index)
	if err != nil {
		return err
	}
	for _, d := range docs {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("auto-%d", len(idx.Docs)+1)
		}
		idx.Docs[id] = d.Body
	}
	return nil
}

// storedSettings mimics how the cluster echoes settings: nested under
// "index", scalars as strings, plus server-managed keys.
func storedSettings(name string, settings jsonv.Value) jsonv.Value {
	inner := jsonv.EmptyObject()
	for _, k := range settings.Keys() {
		member, _ := settings.Get(k)
		if k == "index" && member.IsObject() {
			inner = jsonv.Merge(inner, expandSettingKeys(member))
			continue
		}
		inner = jsonv.Merge(inner, expandSettingKeys(jsonv.EmptyObject().With(strings.TrimPrefix(k, "index."), member)))
	}
	inner = inner.
		With("provided_name", jsonv.String(name)).
		With("uuid", jsonv.String("mock-uuid-"+name)).
		With("creation_date", jsonv.String("1704067200000"))
	return jsonv.EmptyObject().With("index", stringify(inner))
}

// expandSettingKeys nests dotted setting names the way the cluster stores them.
func expandSettingKeys(v jsonv.Value) jsonv.Value {
	if !v.IsObject() {
		return v
	}
	out := jsonv.EmptyObject()
	for _, k := range v.Keys() {
		member, _ := v.Get(k)
		nested := expandSettingKeys(member)
		parts := strings.Split(k, ".")
		for i := len(parts) - 1; i >= 0; i-- {
			nested = jsonv.EmptyObject().With(parts[i], nested)
		}
		out = jsonv.Merge(out, nested)
	}
	return out
}

func stringify(v jsonv.Value) jsonv.Value {
	switch v.Kind() {
	case jsonv.KindBool, jsonv.KindNumber:
		return jsonv.String(v.String())
	case jsonv.KindArray:
		elems := make([]jsonv.Value, 0, v.Len())
		for _, e := range v.Elems() {
			elems = append(elems, stringify(e))
		}
		return jsonv.Array(elems...)
	case jsonv.KindObject:
		out := jsonv.EmptyObject()
		for _, k := range v.Keys() {
			member, _ := v.Get(k)
			out = out.With(k, stringify(member))
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Verify MockClient implements ClientInterface
var _ ClientInterface = (*MockClient)(nil)
