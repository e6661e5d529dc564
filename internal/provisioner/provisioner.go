// Where: cli/internal/provisioner/provisioner.go
// What: Idempotent provisioning of a schema definition against a SchemaStore.
// Why: Bring a remote target to the declared schema from any prior state, including a half-finished run.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

// Provisioner ensures databases, buckets, collections, attributes and indexes.
// It never retries and sets no timeouts of its own; the store call and the
// caller's context bound every step.
type Provisioner struct {
	Store  store.SchemaStore
	Out    io.Writer
	Logger *zap.Logger
}

func New(s store.SchemaStore) *Provisioner {
	return &Provisioner{Store: s, Out: os.Stdout}
}

type run struct {
	ctx     context.Context
	store   store.SchemaStore
	console *ui.Console
	nested  *ui.Console
	logger  *zap.Logger
	report  *Report
}

// Provision walks the definition in dependency order: database, buckets,
// then each collection with its attributes followed by its indexes.
//
// A database failure aborts the run. Bucket and collection failures are
// isolated; within a collection the first failure skips the rest of that
// collection. Cancellation is honoured between top-level objects only.
func (p *Provisioner) Provision(ctx context.Context, def schema.Definition) Report {
	report := Report{Database: def.Database.ID}
	if p == nil || p.Store == nil {
		report.add(Result{Kind: KindDatabase, ID: def.Database.ID, Outcome: Failed, Err: errors.New("schema store is not configured")})
		report.Aborted = true
		return report
	}
	if ctx == nil {
		ctx = context.Background()
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	console := ui.New(out)
	r := &run{
		ctx:     ctx,
		store:   p.Store,
		console: console,
		nested:  console.Nested(),
		logger:  logging.OrNop(p.Logger),
		report:  &report,
	}
	r.logger.Debug("provisioning started",
		zap.String("database", def.Database.ID),
		zap.Int("buckets", len(def.Buckets)),
		zap.Int("collections", len(def.Collections)),
	)

	console.Header("🗄️", "Provisioning database "+def.Database.ID)
	if err := ctx.Err(); err != nil {
		r.skipTopLevel(def, 0, 0, err)
		return report
	}
	if res := r.ensureDatabase(def.Database); res.Outcome == Failed {
		report.Aborted = true
		r.logger.Debug("provisioning aborted", zap.Error(res.Err))
		return report
	}

	if len(def.Buckets) > 0 {
		console.BlockStart("🪣", "Creating storage buckets...")
	}
	for i, b := range def.Buckets {
		if err := ctx.Err(); err != nil {
			r.skipTopLevel(def, i, 0, err)
			return report
		}
		r.ensureBucket(b)
	}

	if len(def.Collections) > 0 {
		console.BlockStart("📋", "Creating collections...")
	}
	for i, c := range def.Collections {
		if err := ctx.Err(); err != nil {
			r.skipTopLevel(def, len(def.Buckets), i, err)
			return report
		}
		r.ensureCollection(def.Database.ID, c)
	}

	counts := report.Counts()
	r.logger.Debug("provisioning finished",
		zap.Bool("success", report.Success()),
		zap.Int("created", counts.Created),
		zap.Int("already_exists", counts.AlreadyExists),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped),
	)
	return report
}

// createOrFetch runs create; on conflict it fetches the existing object so
// that an unreadable "existing" object is not reported as present.
func createOrFetch(create, fetch func() error) (Outcome, error) {
	err := create()
	if err == nil {
		return Created, nil
	}
	if !store.IsConflict(err) {
		return Failed, err
	}
	if err := fetch(); err != nil {
		return Failed, fmt.Errorf("exists but could not be fetched: %w", err)
	}
	return AlreadyExists, nil
}

func createOnly(create func() error) (Outcome, error) {
	err := create()
	switch {
	case err == nil:
		return Created, nil
	case store.IsConflict(err):
		return AlreadyExists, nil
	default:
		return Failed, err
	}
}

func (r *run) ensureDatabase(spec schema.DatabaseSpec) Result {
	outcome, err := createOrFetch(
		func() error {
			_, err := r.store.CreateDatabase(r.ctx, spec.ID, spec.Name)
			return err
		},
		func() error {
			_, err := r.store.GetDatabase(r.ctx, spec.ID)
			return err
		},
	)
	return r.record(r.console, Result{Kind: KindDatabase, ID: spec.ID, Outcome: outcome, Err: err})
}

func (r *run) ensureBucket(spec schema.Bucket) Result {
	outcome, err := createOrFetch(
		func() error {
			_, err := r.store.CreateBucket(r.ctx, spec)
			return err
		},
		func() error {
			_, err := r.store.GetBucket(r.ctx, spec.ID)
			return err
		},
	)
	return r.record(r.nested, Result{Kind: KindBucket, ID: spec.ID, Outcome: outcome, Err: err})
}

// ensureCollection provisions the collection, then gap-fills its attributes
// and indexes even when the collection already existed. Once started, a
// collection runs to completion: its calls ignore cancellation of the run.
func (r *run) ensureCollection(databaseID string, c schema.Collection) {
	ctx := context.WithoutCancel(r.ctx)
	outcome, err := createOrFetch(
		func() error {
			_, err := r.store.CreateCollection(ctx, databaseID, c)
			return err
		},
		func() error {
			_, err := r.store.GetCollection(ctx, databaseID, c.ID)
			return err
		},
	)
	res := r.record(r.console, Result{Kind: KindCollection, ID: c.ID, Outcome: outcome, Err: err})
	if res.Outcome == Failed {
		r.skipChildren(c, 0, 0, res)
		return
	}

	for i, attr := range c.Attributes {
		outcome, err := createOnly(func() error {
			_, err := r.store.CreateAttribute(ctx, databaseID, c.ID, attr)
			return err
		})
		res := r.record(r.nested, Result{Kind: KindAttribute, ID: attr.Key, Parent: c.ID, Outcome: outcome, Err: err})
		if res.Outcome == Failed {
			r.skipChildren(c, i+1, 0, res)
			return
		}
	}

	for i, idx := range c.Indexes {
		var res Result
		if err := schema.CheckIndex(c, idx); err != nil {
			res = r.record(r.nested, Result{Kind: KindIndex, ID: idx.Key, Parent: c.ID, Outcome: Failed, Err: err})
		} else {
			outcome, err := createOnly(func() error {
				_, err := r.store.CreateIndex(ctx, databaseID, c.ID, idx)
				return err
			})
			res = r.record(r.nested, Result{Kind: KindIndex, ID: idx.Key, Parent: c.ID, Outcome: outcome, Err: err})
		}
		if res.Outcome == Failed {
			r.skipChildren(c, len(c.Attributes), i+1, res)
			return
		}
	}
}

// skipChildren records the attributes from attrFrom and indexes from
// idxFrom as Skipped because of cause.
func (r *run) skipChildren(c schema.Collection, attrFrom, idxFrom int, cause Result) {
	err := fmt.Errorf("%w: %s %s", ErrSkipped, cause.Kind, cause.Path())
	for _, attr := range c.Attributes[min(attrFrom, len(c.Attributes)):] {
		r.record(r.nested, Result{Kind: KindAttribute, ID: attr.Key, Parent: c.ID, Outcome: Skipped, Err: err})
	}
	for _, idx := range c.Indexes[min(idxFrom, len(c.Indexes)):] {
		r.record(r.nested, Result{Kind: KindIndex, ID: idx.Key, Parent: c.ID, Outcome: Skipped, Err: err})
	}
}

// skipTopLevel records every top-level object not yet attempted when the
// run stops early. Attributes and indexes of unattempted collections are
// not listed.
func (r *run) skipTopLevel(def schema.Definition, bucketFrom, collectionFrom int, cause error) {
	if len(r.report.Results) == 0 {
		r.record(r.console, Result{Kind: KindDatabase, ID: def.Database.ID, Outcome: Skipped, Err: cause})
	}
	for _, b := range def.Buckets[min(bucketFrom, len(def.Buckets)):] {
		r.record(r.nested, Result{Kind: KindBucket, ID: b.ID, Outcome: Skipped, Err: cause})
	}
	for _, c := range def.Collections[min(collectionFrom, len(def.Collections)):] {
		r.record(r.console, Result{Kind: KindCollection, ID: c.ID, Outcome: Skipped, Err: cause})
	}
	r.logger.Debug("provisioning stopped", zap.Error(cause))
}

func (r *run) record(console *ui.Console, res Result) Result {
	r.report.add(res)
	label := fmt.Sprintf("%s %s", res.Kind, res.Path())
	switch res.Outcome {
	case Created:
		console.Success("Created " + label)
	case AlreadyExists:
		console.Exists(label + " already exists")
	case Failed:
		console.Fail(fmt.Sprintf("Failed %s: %v", label, res.Err))
	case Skipped:
		console.Warn(fmt.Sprintf("Skipped %s: %v", label, res.Err))
	}
	fields := []zap.Field{
		zap.String("kind", string(res.Kind)),
		zap.String("id", res.Path()),
		zap.String("outcome", string(res.Outcome)),
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err), zap.String("error_kind", string(store.KindOf(res.Err))))
	}
	r.logger.Debug("object ensured", fields...)
	return res
}
