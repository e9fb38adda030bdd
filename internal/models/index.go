package models

import "github.com/kilupskalvis/aliasmig/internal/jsonv"

// LiveIndexState is the current state of one concrete index on the cluster
type LiveIndexState struct {
	Index    string
	Settings jsonv.Value
	Mappings jsonv.Value
	DocCount int
}

// AliasActionType is the verb of an alias update action
type AliasActionType string

const (
	AliasAdd    AliasActionType = "add"
	AliasRemove AliasActionType = "remove"
)

// AliasAction is one entry of an atomic alias update.
// IsWriteIndex is only meaningful for add actions; nil leaves it unset.
type AliasAction struct {
	Type         AliasActionType
	Index        string
	Alias        string
	IsWriteIndex *bool
}

// AddAlias builds an add action with an explicit write flag.
func AddAlias(index, alias string, isWriteIndex bool) AliasAction {
	w := isWriteIndex
	return AliasAction{Type: AliasAdd, Index: index, Alias: alias, IsWriteIndex: &w}
}

// RemoveAlias builds a remove action.
func RemoveAlias(index, alias string) AliasAction {
	return AliasAction{Type: AliasRemove, Index: index, Alias: alias}
}

// AliasUpdateResult is the cluster's answer to an alias update
type AliasUpdateResult struct {
	Acknowledged bool `json:"acknowledged"`
	Errors       bool `json:"errors"`
}

// ReindexFailure describes one document that could not be copied
type ReindexFailure struct {
	Index  string `json:"index,omitempty"`
	ID     string `json:"id,omitempty"`
	Status int    `json:"status,omitempty"`
	Cause  string `json:"cause,omitempty"`
}

// ReindexResult is the response to a reindex request. Task is set when the
// job runs asynchronously; otherwise the counters describe the finished job.
type ReindexResult struct {
	Task     string           `json:"task,omitempty"`
	Took     int64            `json:"took,omitempty"`
	TimedOut bool             `json:"timed_out,omitempty"`
	Total    int              `json:"total"`
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Noops    int              `json:"noops"`
	Failures []ReindexFailure `json:"failures,omitempty"`
}

// TaskStatus is the state of an asynchronous cluster task
type TaskStatus struct {
	Completed bool
	Response  *ReindexResult
	Error     string
}

// Document is a single document for bulk indexing. ID may be empty for
// cluster-generated identifiers.
type Document struct {
	ID   string
	Body map[string]interface{}
}
