package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilupskalvis/aliasmig/internal/cluster"
	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// logIndexMappings is the mapping of the per-migration log index
var logIndexMappings = jsonv.MustParse(`{"properties":{"timestamp":{"type":"date"},"message":{"type":"text"}}}`)

// Orchestrator migrates an alias to a rebuilt index while it keeps serving
// traffic. Writes are diverted to catchup indices during the bulk copy and
// merged into the new index before the alias is switched over.
//
// An Orchestrator runs one migration; it is not safe for concurrent use and
// takes no lock against other migrations of the same alias.
type Orchestrator struct {
	client  cluster.ClientInterface
	schemas SchemaSource
	log     Logger
	opts    Options

	// logger is log, teed into the migration log index while it is open
	logger      Logger
	plan        *models.MigrationPlan
	rollbacks   int
	stepStarted time.Time
}

// NewOrchestrator creates an Orchestrator. A nil logger discards output.
func NewOrchestrator(client cluster.ClientInterface, schemas SchemaSource, log Logger, opts Options) *Orchestrator {
	if log == nil {
		log = NopLogger{}
	}
	return &Orchestrator{client: client, schemas: schemas, log: log, logger: log, opts: opts.withDefaults()}
}

// Plan returns the plan of the current or last run. After a failure it still
// names every index involved.
func (o *Orchestrator) Plan() *models.MigrationPlan {
	return o.plan
}

// Rollbacks returns how many times a rollback was started.
func (o *Orchestrator) Rollbacks() int {
	return o.rollbacks
}

// Run performs the full reindex migration of alias and verifies the result.
// On success it returns the completed plan.
func (o *Orchestrator) Run(ctx context.Context, alias string) (*models.MigrationPlan, error) {
	if err := o.setup(ctx, alias); err != nil {
		return nil, err
	}
	if err := o.runSteps(ctx, o.steps()); err != nil {
		return nil, err
	}

	if err := verify(ctx, o.client, o.schemas, o.log, alias); err != nil {
		return nil, &StepError{Step: "VERIFY", Plan: *o.plan, Err: err}
	}

	done := *o.plan
	o.plan.MigrationLogIndex = ""
	o.log.Info("migration completed", "migration", done.ID, "alias", alias, "index", done.NewIndex)
	return &done, nil
}

// setup resolves the alias, loads both schemas, derives every index name
// from one timestamp and opens the migration log index.
func (o *Orchestrator) setup(ctx context.Context, alias string) error {
	current, err := resolveAlias(ctx, o.client, alias)
	if err != nil {
		return err
	}
	def, err := loadDefinition(o.schemas, alias)
	if err != nil {
		return err
	}
	currentSettings, err := o.client.GetSettings(ctx, current)
	if err != nil {
		return fmt.Errorf("get settings of %s: %w", current, err)
	}
	currentMappings, err := o.client.GetMappings(ctx, current)
	if err != nil {
		return fmt.Errorf("get mappings of %s: %w", current, err)
	}

	base := alias + "-" + o.opts.timestamp()
	o.plan = &models.MigrationPlan{
		ID:                 uuid.NewString(),
		StartedAt:          o.opts.Now(),
		AliasName:          alias,
		CurrentIndex:       current,
		NewIndex:           base,
		Catchup1Index:      base + "-catchup-1",
		Catchup2Index:      base + "-catchup-2",
		ThrowawayTestIndex: base + "-throwaway",
		MigrationLogIndex:  base + "-migration-log",
		CurrentSettings:    CreatableSettings(currentSettings),
		CurrentMappings:    mappingsShape(currentMappings),
		NewSettings:        def.Settings,
		NewMappings:        def.Mappings,
		TransformScript:    def.TransformScript,
	}

	if err := o.client.CreateIndex(ctx, o.plan.MigrationLogIndex, jsonv.Null(), logIndexMappings); err != nil {
		return &StepError{Step: "SETUP", Plan: *o.plan, Err: fmt.Errorf("create migration log index: %w", err)}
	}
	o.logger = newIndexLogger(ctx, o.log, o.client, o.plan.MigrationLogIndex, o.opts.Now)
	o.logger.Info("migration planned", "migration", o.plan.ID, "alias", alias,
		"current", current, "new", o.plan.NewIndex)
	return nil
}

// steps lists the migration in execution order.
func (o *Orchestrator) steps() []Step {
	p := o.plan
	copyStep := o.step("STEP3", "create the new index and copy all documents into it", o.copyAll)
	copyStep.RollbackOnFailure = true

	return []Step{
		o.step("STEP0", "reindex one document through a throwaway index", o.testReindex),
		o.step("STEP1", "create catchup-1 with the current schema", func(ctx context.Context) error {
			return o.createIndex(ctx, p.Catchup1Index, p.CurrentSettings, p.CurrentMappings)
		}),
		o.step("STEP2", "send writes to catchup-1", func(ctx context.Context) error {
			return updateAliases(ctx, o.client,
				models.AddAlias(p.CurrentIndex, p.AliasName, false),
				models.AddAlias(p.Catchup1Index, p.AliasName, true),
			)
		}),
		copyStep,
		o.step("STEP4", "create catchup-2 with the current schema", func(ctx context.Context) error {
			return o.createIndex(ctx, p.Catchup2Index, p.CurrentSettings, p.CurrentMappings)
		}),
		o.step("STEP5", "send writes to catchup-2", func(ctx context.Context) error {
			return updateAliases(ctx, o.client,
				models.AddAlias(p.CurrentIndex, p.AliasName, false),
				models.AddAlias(p.Catchup1Index, p.AliasName, false),
				models.AddAlias(p.Catchup2Index, p.AliasName, true),
			)
		}),
		o.step("STEP6", "merge catchup-1 into the new index", func(ctx context.Context) error {
			_, err := o.reindex(ctx, p.Catchup1Index, p.NewIndex, p.TransformScript)
			return err
		}),
		o.step("STEP7", "stop writes for the final merge", func(ctx context.Context) error {
			return updateAliases(ctx, o.client,
				models.AddAlias(p.CurrentIndex, p.AliasName, false),
				models.AddAlias(p.Catchup1Index, p.AliasName, false),
				models.AddAlias(p.Catchup2Index, p.AliasName, false),
			)
		}),
		o.step("STEP8", "merge catchup-2 into the new index", func(ctx context.Context) error {
			_, err := o.reindex(ctx, p.Catchup2Index, p.NewIndex, p.TransformScript)
			return err
		}),
		o.step("STEP9", "point the alias at the new index only", func(ctx context.Context) error {
			return updateAliases(ctx, o.client,
				models.RemoveAlias(p.CurrentIndex, p.AliasName),
				models.RemoveAlias(p.Catchup1Index, p.AliasName),
				models.RemoveAlias(p.Catchup2Index, p.AliasName),
				models.AddAlias(p.NewIndex, p.AliasName, true),
			)
		}),
		o.step("STEP10", "close the old, catchup and log indices", o.closeOldIndices),
	}
}

// testReindex fails fast on a script or mapping the new index rejects. The
// throwaway index is removed whatever the outcome.
func (o *Orchestrator) testReindex(ctx context.Context) error {
	p := o.plan
	defer o.dropIfExists(ctx, p.ThrowawayTestIndex)

	if err := o.createIndex(ctx, p.ThrowawayTestIndex, p.NewSettings, p.NewMappings); err != nil {
		return err
	}
	result, err := o.client.ReindexOneDocument(ctx, p.CurrentIndex, p.ThrowawayTestIndex, p.TransformScript)
	if err != nil {
		return fmt.Errorf("test reindex into %s: %w", p.ThrowawayTestIndex, err)
	}
	if err := checkReindexResult(result); err != nil {
		return fmt.Errorf("test reindex into %s: %w", p.ThrowawayTestIndex, err)
	}
	o.logger.Info("test reindex succeeded", "documents", result.Total)
	return nil
}

func (o *Orchestrator) copyAll(ctx context.Context) error {
	p := o.plan
	if err := o.createIndex(ctx, p.NewIndex, p.NewSettings, p.NewMappings); err != nil {
		return err
	}
	_, err := o.reindex(ctx, p.CurrentIndex, p.NewIndex, p.TransformScript)
	return err
}

func (o *Orchestrator) closeOldIndices(ctx context.Context) error {
	p := o.plan
	for _, name := range []string{p.CurrentIndex, p.Catchup1Index, p.Catchup2Index} {
		if err := o.client.CloseIndex(ctx, name); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
	}
	// nothing may be written to the log index once it is closed
	o.logger.Info("closing migration log index", "index", p.MigrationLogIndex)
	o.logger = o.log
	if err := o.client.CloseIndex(ctx, p.MigrationLogIndex); err != nil {
		return fmt.Errorf("close %s: %w", p.MigrationLogIndex, err)
	}
	return nil
}

func (o *Orchestrator) createIndex(ctx context.Context, name string, settings, mappings jsonv.Value) error {
	if err := o.client.CreateIndex(ctx, name, settings, mappings); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	return nil
}

func (o *Orchestrator) reindex(ctx context.Context, source, dest, script string) (*models.ReindexResult, error) {
	r := &reindexer{client: o.client, log: o.logger, interval: o.opts.PollInterval, timeout: o.opts.ReindexTimeout}
	return r.run(ctx, source, dest, script)
}

// dropIfExists deletes an index that may not exist. Failures are logged only.
func (o *Orchestrator) dropIfExists(ctx context.Context, name string) {
	if err := o.deleteIfExists(ctx, name); err != nil {
		o.logger.Warn("could not delete index", "index", name, "error", err)
	}
}

func (o *Orchestrator) deleteIfExists(ctx context.Context, name string) error {
	exists, err := o.client.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return o.client.DeleteIndex(ctx, name)
}
