package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/fragment"
	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/internal/schema"
	"github.com/yourorg/ramldoc/internal/snippet"
	"github.com/yourorg/ramldoc/internal/store"
	"github.com/yourorg/ramldoc/pkg/types"
)

// Run statuses.
const (
	StatusOpen       = "open"
	StatusDocumented = "documented"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// ProgressFunc reports documentation progress.
type ProgressFunc func(stage string)

// Entry pairs a recorded operation with its descriptors.
type Entry struct {
	Operation  types.Operation
	Parameters types.Parameters
}

// Failure records why one entry was not documented.
type Failure struct {
	Operation string
	Err       error
}

// Result summarizes a DocumentAll call.
type Result struct {
	Outputs  []*fragment.Output
	Failures []Failure
}

// Documenter documents operations into a run. Fragments already stored for
// the run are the starting state, so documenting is incremental.
type Documenter struct {
	Store          store.Store
	Writer         *snippet.Writer
	Logger         *slog.Logger
	VerifyExamples bool
	Workers        int

	locks keyedMutex
}

// New builds a Documenter from config.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) *Documenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Documenter{
		Store:          st,
		Writer:         snippet.NewWriter(cfg.Output.Dir, logger),
		Logger:         logger,
		VerifyExamples: cfg.Output.VerifyExamples,
		Workers:        cfg.Workers,
	}
}

// Document assembles one operation on top of the run's stored fragment for
// its path, writes the operation directory and persists the method. Other
// operation directories of the path get the merged fragment too.
func (d *Documenter) Document(ctx context.Context, runID string, op *types.Operation, params types.Parameters) (*fragment.Output, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if op == nil {
		return nil, errors.New("operation is nil")
	}
	if _, err := d.Store.GetRun(runID); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	key := pathtmpl.Normalize(op.PathTemplate).Path
	unlock := d.locks.lock(key)
	defer unlock()

	acc := fragment.Fragments{}
	prior, err := d.Store.GetResource(runID, key)
	if err != nil {
		return nil, fmt.Errorf("load fragment %s: %w", key, err)
	}
	if prior != nil {
		acc[key] = prior
	}

	next, out, err := fragment.Assemble(acc, op, params)
	if err != nil {
		return nil, err
	}
	res := next[out.Path]
	if err := d.write(ctx, out); err != nil {
		return nil, err
	}
	if err := d.Store.SaveMethod(runID, res.Path, res.Segments, out.Method); err != nil {
		return nil, err
	}
	d.refresh(ctx, res, map[string]struct{}{out.Operation: {}})
	d.log().Info("operation documented", "run", runID, "operation", out.Operation, "method", out.Method.Method, "path", out.Path)
	return out, nil
}

// DocumentAll builds entries concurrently, merges them in entry order and
// writes every operation directory. An entry that fails validation or
// writing is reported in the result; the others are still documented and
// never reference its files.
func (d *Documenter) DocumentAll(ctx context.Context, runID string, entries []Entry, onProgress ProgressFunc) (*Result, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if _, err := d.Store.GetRun(runID); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	logger := d.log()

	report(onProgress, fmt.Sprintf("building %d operations", len(entries)))
	built := make([]*fragment.Built, len(entries))
	errs := make([]error, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.Workers, 1))
	for i := range entries {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := fragment.Build(&entries[i].Operation, entries[i].Parameters)
			built[i], errs[i] = b, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var ok []*fragment.Built
	for i, b := range built {
		if errs[i] != nil {
			logger.Warn("operation rejected", "run", runID, "operation", entries[i].Operation.Name, "error", errs[i])
			res.Failures = append(res.Failures, Failure{Operation: entries[i].Operation.Name, Err: errs[i]})
			continue
		}
		ok = append(ok, b)
	}

	groups := GroupByPath(ok)
	keys := make([]string, len(groups))
	for i, grp := range groups {
		keys[i] = grp.Path
	}
	unlock := d.locks.lock(keys...)
	defer unlock()

	stored, err := d.Store.ListResources(runID)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}
	failed := make(map[*fragment.Built]bool)
	acc := mergeBuilt(stored, ok, failed)

	var order []*fragment.Built
	for _, grp := range groups {
		order = append(order, grp.Built...)
	}
	written := make(map[*fragment.Built]*fragment.Output, len(order))
	pending := order
	for round := 0; len(pending) > 0; round++ {
		if round > 0 {
			report(onProgress, fmt.Sprintf("rewriting %d operations after failures", len(pending)))
		}
		dirty := make(map[string]bool)
		last := ""
		for _, b := range pending {
			if round == 0 && b.Path.Path != last {
				last = b.Path.Path
				report(onProgress, fmt.Sprintf("resource %s", last))
			}
			out, err := fragment.Finish(acc, b)
			if err == nil {
				err = d.write(ctx, out)
			}
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				logger.Error("operation not written", "run", runID, "operation", b.Operation, "error", err)
				res.Failures = append(res.Failures, Failure{Operation: b.Operation, Err: err})
				failed[b] = true
				delete(written, b)
				dirty[b.Path.Path] = true
				continue
			}
			written[b] = out
		}
		if len(dirty) == 0 {
			break
		}
		// Drop failed methods and render their siblings again.
		acc = mergeBuilt(stored, ok, failed)
		pending = nil
		for _, b := range order {
			if written[b] != nil && dirty[b.Path.Path] {
				pending = append(pending, b)
			}
		}
	}

	// Entry order, so the store keeps the same last write as acc.
	for _, b := range ok {
		if written[b] == nil {
			continue
		}
		r := acc[b.Path.Path]
		if err := d.Store.SaveMethod(runID, r.Path, r.Segments, b.Method); err != nil {
			return res, err
		}
	}
	done := make(map[string]struct{}, len(written))
	for _, b := range order {
		if out := written[b]; out != nil {
			res.Outputs = append(res.Outputs, out)
			done[b.Operation] = struct{}{}
		}
	}
	for _, grp := range groups {
		if r, found := acc[grp.Path]; found {
			d.refresh(ctx, r, done)
		}
	}

	status := StatusDocumented
	switch {
	case len(res.Outputs) == 0 && len(res.Failures) > 0:
		status = StatusFailed
	case len(res.Failures) > 0:
		status = StatusPartial
	}
	if err := d.Store.UpdateRunStatus(runID, status); err != nil {
		return res, err
	}
	return res, nil
}

// mergeBuilt seeds fragments from the store and merges every built entry
// that has not failed, in order.
func mergeBuilt(stored []*types.ResourceFragment, built []*fragment.Built, failed map[*fragment.Built]bool) fragment.Fragments {
	acc := make(fragment.Fragments, len(stored))
	for _, r := range stored {
		acc[r.Path] = r
	}
	for _, b := range built {
		if !failed[b] {
			acc = fragment.Merge(acc, b.Path, b.Method)
		}
	}
	return acc
}

func (d *Documenter) write(ctx context.Context, out *fragment.Output) error {
	if d.VerifyExamples {
		if err := verify(out); err != nil {
			return err
		}
	}
	return d.Writer.Write(ctx, out.Operation, out.Files)
}

// refresh rewrites resource.raml in the directories of res's other
// operations. Their fragments only gain methods, so a failure leaves an
// older but consistent file and is logged.
func (d *Documenter) refresh(ctx context.Context, res *types.ResourceFragment, skip map[string]struct{}) {
	for _, m := range fragment.SortedMethods(res) {
		op := res.Methods[m].Operation
		if _, ok := skip[op]; ok {
			continue
		}
		if _, err := os.Stat(d.Writer.Dir(op)); err != nil {
			continue
		}
		raml, err := fragment.Render(res, op)
		if err == nil {
			err = d.Writer.Write(ctx, op, []fragment.File{{Name: fragment.ResourceFile, Data: raml}})
		}
		if err != nil {
			d.log().Warn("fragment not refreshed", "operation", op, "path", res.Path, "error", err)
		}
	}
}

func (d *Documenter) check() error {
	if d.Store == nil {
		return errors.New("store is nil")
	}
	if d.Writer == nil {
		return errors.New("writer is nil")
	}
	return nil
}

func (d *Documenter) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// verify checks each written example against its derived schema.
func verify(out *fragment.Output) error {
	files := make(map[string][]byte, len(out.Files))
	for _, f := range out.Files {
		files[f.Name] = f.Data
	}
	for _, ref := range []*types.BodyRef{out.Method.Request, out.Method.Response} {
		if ref == nil || ref.Schema == "" {
			continue
		}
		if err := schema.Validate(files[ref.Schema], files[ref.Example]); err != nil {
			return fmt.Errorf("operation %s: example %s does not match schema: %w", out.Operation, ref.Example, err)
		}
	}
	return nil
}

func report(fn ProgressFunc, msg string) {
	if fn != nil {
		fn(msg)
	}
}

// keyedMutex serializes work per resource path.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the locks for keys in sorted order and returns the release.
func (k *keyedMutex) lock(keys ...string) func() {
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	var held []*sync.Mutex
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		m := k.get(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}
