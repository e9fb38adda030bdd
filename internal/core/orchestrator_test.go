package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
)

func breakingSchemas() memSchemas {
	return memSchemas{testAlias: definition(`{}`, `{"properties": {"id": {"type": "text"}}}`)}
}

func stepNames(mock *cluster.MockClient) []string {
	var steps []string
	for _, doc := range mock.Indices[logIndex].Docs {
		msg, _ := doc["message"].(string)
		if strings.HasPrefix(msg, "INFO completed STEP") {
			steps = append(steps, strings.Fields(msg)[2])
		}
	}
	return steps
}

func TestOrchestrator_FullRun(t *testing.T) {
	mock := newTestCluster(t)
	log := &recordLogger{}
	orch := NewOrchestrator(mock, breakingSchemas(), log, testOptions())

	plan, err := orch.Run(context.Background(), testAlias)
	require.NoError(t, err)

	assert.Equal(t, testIndex, plan.CurrentIndex)
	assert.Equal(t, newIndex, plan.NewIndex)
	assert.Equal(t, catchup1Index, plan.Catchup1Index)
	assert.Equal(t, catchup2Index, plan.Catchup2Index)
	assert.Equal(t, throwaway, plan.ThrowawayTestIndex)
	assert.Equal(t, logIndex, plan.MigrationLogIndex)
	assert.NotEmpty(t, plan.ID)
	assert.Empty(t, orch.Plan().MigrationLogIndex)

	// alias resolves to the new index only
	assert.Equal(t, map[string]bool{newIndex: true}, aliasState(mock, testAlias))

	idType, ok := mock.Indices[newIndex].Mappings.Path("properties", "id", "type")
	require.True(t, ok)
	assert.Equal(t, `"text"`, idType.String())
	assert.Len(t, mock.Indices[newIndex].Docs, 3)

	// old, catchup and log indices are closed, not deleted
	for _, name := range []string{testIndex, catchup1Index, catchup2Index, logIndex} {
		require.Contains(t, mock.Indices, name)
		assert.True(t, mock.Indices[name].Closed, name)
	}
	assert.NotContains(t, mock.Indices, throwaway)
	assert.Equal(t, 0, orch.Rollbacks())

	for i := 0; i <= 10; i++ {
		assert.True(t, log.contains(fmt.Sprintf("completed STEP%d ", i)), "STEP%d", i)
	}
	assert.True(t, log.contains("verification passed"))
}

func TestOrchestrator_AliasSequence(t *testing.T) {
	mock := newTestCluster(t)
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.NoError(t, err)
	require.Len(t, mock.AliasUpdates, 4)

	type entry struct {
		typ   string
		index string
		write bool
	}
	summarize := func(i int) []entry {
		var out []entry
		for _, a := range mock.AliasUpdates[i] {
			e := entry{typ: string(a.Type), index: a.Index}
			if a.IsWriteIndex != nil {
				e.write = *a.IsWriteIndex
			}
			out = append(out, e)
		}
		return out
	}

	assert.Equal(t, []entry{{"add", testIndex, false}, {"add", catchup1Index, true}}, summarize(0))
	assert.Equal(t, []entry{{"add", testIndex, false}, {"add", catchup1Index, false}, {"add", catchup2Index, true}}, summarize(1))
	assert.Equal(t, []entry{{"add", testIndex, false}, {"add", catchup1Index, false}, {"add", catchup2Index, false}}, summarize(2))
	assert.Equal(t, []entry{
		{"remove", testIndex, false},
		{"remove", catchup1Index, false},
		{"remove", catchup2Index, false},
		{"add", newIndex, true},
	}, summarize(3))
}

func TestOrchestrator_WritesDuringMigrationReachNewIndex(t *testing.T) {
	mock := newTestCluster(t)
	mock.FailOn = func(op string, args ...string) error {
		if op != "Reindex" {
			return nil
		}
		switch args[0] {
		case testIndex:
			// bulk copy running: writes land in catchup-1
			return mock.IndexDocument(testAlias, "written-during-copy", map[string]interface{}{"id": "a"})
		case catchup1Index:
			// catchup-1 merge running: writes land in catchup-2
			return mock.IndexDocument(testAlias, "written-during-merge", map[string]interface{}{"id": "b"})
		case catchup2Index:
			// final merge: writes are rejected
			if err := mock.IndexDocument(testAlias, "rejected", map[string]interface{}{"id": "c"}); err == nil {
				return errors.New("write accepted while writes should be stopped")
			}
		}
		return nil
	}
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.NoError(t, err)

	docs := mock.Indices[newIndex].Docs
	assert.Len(t, docs, 5)
	assert.Contains(t, docs, "written-during-copy")
	assert.Contains(t, docs, "written-during-merge")
	assert.NotContains(t, docs, "rejected")
}

func TestOrchestrator_Step3FailureRollsBack(t *testing.T) {
	mock := newTestCluster(t)
	boom := errors.New("reindex rejected")
	mock.FailOn = func(op string, args ...string) error {
		if op == "Reindex" && args[0] == testIndex && args[1] == newIndex {
			return boom
		}
		return nil
	}
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "STEP3", stepErr.Step)
	assert.True(t, stepErr.RolledBack)
	assert.NoError(t, stepErr.RollbackErr)
	assert.Equal(t, newIndex, stepErr.Plan.NewIndex)
	assert.Equal(t, 1, orch.Rollbacks())

	assert.Equal(t, map[string]bool{testIndex: true}, aliasState(mock, testAlias))
	assert.NotContains(t, mock.Indices, catchup1Index)
	assert.NotContains(t, mock.Indices, newIndex)
	assert.False(t, mock.Indices[testIndex].Closed)

	// plan stays populated for diagnostics
	assert.Equal(t, logIndex, orch.Plan().MigrationLogIndex)
}

func TestOrchestrator_RollbackCopiesCatchupDocumentsBack(t *testing.T) {
	mock := newTestCluster(t)
	mock.FailOn = func(op string, args ...string) error {
		if op == "Reindex" && args[0] == testIndex && args[1] == newIndex {
			if err := mock.IndexDocument(testAlias, "late", map[string]interface{}{"id": "late"}); err != nil {
				return err
			}
			return errors.New("out of disk")
		}
		return nil
	}
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.Error(t, err)

	assert.Contains(t, mock.Calls, "Reindex "+catchup1Index+" "+testIndex)
	assert.Contains(t, mock.Indices[testIndex].Docs, "late")
	assert.Len(t, mock.Indices[testIndex].Docs, 4)
}

func TestOrchestrator_RollbackRunsOnce(t *testing.T) {
	mock := newTestCluster(t)
	mock.FailOn = func(op string, args ...string) error {
		if op == "Reindex" && args[1] == newIndex {
			return errors.New("reindex rejected")
		}
		return nil
	}
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.Error(t, err)
	require.NoError(t, orch.rollback(context.Background()))

	assert.Equal(t, 1, orch.Rollbacks())
	deletes := 0
	for _, call := range mock.Calls {
		if call == "DeleteIndex "+catchup1Index {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes)
}

func TestOrchestrator_RollbackFailureKeepsOriginalError(t *testing.T) {
	mock := newTestCluster(t)
	original := errors.New("reindex rejected")
	aliasUpdates := 0
	mock.FailOn = func(op string, args ...string) error {
		switch {
		case op == "Reindex" && args[1] == newIndex:
			return original
		case op == "UpdateAliases":
			aliasUpdates++
			if aliasUpdates > 1 {
				return errors.New("cluster unavailable")
			}
		}
		return nil
	}
	log := &recordLogger{}
	orch := NewOrchestrator(mock, breakingSchemas(), log, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.ErrorIs(t, err, original)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.False(t, stepErr.RolledBack)
	require.Error(t, stepErr.RollbackErr)
	assert.Contains(t, stepErr.RollbackErr.Error(), "cluster unavailable")

	assert.True(t, log.contains("rollback failed"))
	assert.True(t, log.contains(`POST /_aliases {"actions":[{"remove":{"index":"`+catchup1Index+`","alias":"products"}}`))
	assert.True(t, log.contains("DELETE /"+newIndex))
}

func TestOrchestrator_NoRollbackOutsideStep3(t *testing.T) {
	tests := []struct {
		name   string
		step   string
		failOn func(op string, args ...string) bool
	}{
		{"catchup-2 creation", "STEP4", func(op string, args ...string) bool {
			return op == "CreateIndex" && args[0] == catchup2Index
		}},
		{"catchup-1 merge", "STEP6", func(op string, args ...string) bool {
			return op == "Reindex" && args[0] == catchup1Index
		}},
		{"final merge", "STEP8", func(op string, args ...string) bool {
			return op == "Reindex" && args[0] == catchup2Index
		}},
		{"close", "STEP10", func(op string, args ...string) bool {
			return op == "CloseIndex"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newTestCluster(t)
			boom := errors.New("boom")
			mock.FailOn = func(op string, args ...string) error {
				if tt.failOn(op, args...) {
					return boom
				}
				return nil
			}
			orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

			_, err := orch.Run(context.Background(), testAlias)
			require.ErrorIs(t, err, boom)

			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, tt.step, stepErr.Step)
			assert.False(t, stepErr.RolledBack)
			assert.Equal(t, 0, orch.Rollbacks())
			assert.Contains(t, mock.Indices, newIndex)
		})
	}
}

func TestOrchestrator_Step0FailureDropsThrowaway(t *testing.T) {
	mock := newTestCluster(t)
	mock.Transform = func(script string, doc map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("compile error in script")
	}
	schemas := breakingSchemas()
	def := schemas[testAlias]
	def.TransformScript = "ctx._source.id = ctx._source.missing.trim()"
	schemas[testAlias] = def

	orch := NewOrchestrator(mock, schemas, nil, testOptions())
	_, err := orch.Run(context.Background(), testAlias)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "STEP0", stepErr.Step)
	assert.Contains(t, err.Error(), "compile error in script")

	assert.NotContains(t, mock.Indices, throwaway)
	assert.NotContains(t, mock.Indices, catchup1Index)
	assert.Equal(t, map[string]bool{testIndex: true}, aliasState(mock, testAlias))
}

func TestOrchestrator_TransformScriptApplied(t *testing.T) {
	mock := newTestCluster(t)
	mock.Transform = func(script string, doc map[string]interface{}) (map[string]interface{}, error) {
		out := map[string]interface{}{}
		for k, v := range doc {
			out[k] = v
		}
		out["migrated"] = true
		return out, nil
	}
	schemas := breakingSchemas()
	def := schemas[testAlias]
	def.TransformScript = "ctx._source.migrated = true"
	schemas[testAlias] = def

	orch := NewOrchestrator(mock, schemas, nil, testOptions())
	_, err := orch.Run(context.Background(), testAlias)
	require.NoError(t, err)

	for id, doc := range mock.Indices[newIndex].Docs {
		assert.Equal(t, true, doc["migrated"], id)
	}
}

func TestOrchestrator_MigrationLogIndex(t *testing.T) {
	mock := newTestCluster(t)
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.NoError(t, err)

	logged := stepNames(mock)
	for _, step := range []string{"STEP0", "STEP1", "STEP2", "STEP3", "STEP4", "STEP5", "STEP6", "STEP7", "STEP8", "STEP9"} {
		assert.Contains(t, logged, step)
	}
	// the log index is detached before it is closed
	assert.NotContains(t, logged, "STEP10")

	for _, doc := range mock.Indices[logIndex].Docs {
		assert.Contains(t, doc, "timestamp")
		assert.Contains(t, doc, "message")
	}
}

func TestOrchestrator_VerificationFailure(t *testing.T) {
	mock := newTestCluster(t)
	// the new index silently loses the id field
	mock.FailOn = func(op string, args ...string) error {
		if op == "Reindex" && args[0] == catchup2Index {
			mock.Indices[newIndex].Mappings = mustJSON(`{"properties": {}}`)
		}
		return nil
	}
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, newIndex, verr.Index)
	assert.Contains(t, verr.Diff(), "ADDED mappings.properties.id")

	// the new index stays live
	assert.Equal(t, map[string]bool{newIndex: true}, aliasState(mock, testAlias))
}

func TestOrchestrator_PreconditionErrors(t *testing.T) {
	mock := cluster.NewMockClient()
	orch := NewOrchestrator(mock, breakingSchemas(), nil, testOptions())

	_, err := orch.Run(context.Background(), testAlias)
	require.ErrorIs(t, err, ErrAliasNotFound)
	assert.Nil(t, orch.Plan())
}
