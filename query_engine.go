package orchard

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Query is a live view over the archetypes matching a filter. The matched set
// follows archetype creation, so a query built once stays correct for the
// lifetime of the world.
type Query struct {
	world           *World
	filter          QueryNode
	write           bool
	includeDisabled bool

	mu         sync.RWMutex
	matched    []*Archetype
	matchedIDs *intmap.Set[uint32]

	created   Signal[createdCall]
	deleted   Signal[EntityId]
	dispMu    sync.Mutex
	disposers *intmap.Map[EntityId, []func()]

	unsubscribe []func()
	closed      atomic.Bool
}

type createdCall struct {
	row *Row
}

type QueryOption func(*Query)

// IncludeDisabled makes iteration visit disabled entities as well
func IncludeDisabled() QueryOption {
	return func(q *Query) { q.includeDisabled = true }
}

// Exclusive forces exclusive row locks regardless of the filter's parameters
func Exclusive() QueryOption {
	return func(q *Query) { q.write = true }
}

// Query builds a live query over filter. A nil filter matches every archetype.
func (w *World) Query(filter QueryNode, opts ...QueryOption) *Query {
	if filter == nil {
		filter = newLeafNode(nil)
	}
	q := &Query{
		world:      w,
		filter:     filter,
		write:      filter.Writes(),
		matchedIDs: intmap.NewSet[uint32](16),
		disposers:  intmap.New[EntityId, []func()](16),
	}
	for _, opt := range opts {
		opt(q)
	}

	// subscribing under the read lock keeps the snapshot and the
	// notifications gap free
	w.mu.RLock()
	q.resync(w.storage.archetypes)
	q.unsubscribe = append(q.unsubscribe,
		w.storage.OnArchetypeCreated.Subscribe(q.archetypeCreated),
		w.storage.OnArchetypesReallocated.Subscribe(q.resync),
	)
	w.mu.RUnlock()

	q.unsubscribe = append(q.unsubscribe,
		w.onCreated.Subscribe(q.entityCreated),
		w.onDeleted.Subscribe(q.entityDeleted),
		w.onMoved.Subscribe(q.entityMoved),
	)
	return q
}

func (q *Query) archetypeCreated(arch *Archetype) {
	if !q.filter.Evaluate(arch) {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.matchedIDs.Add(arch.ID()) {
		q.matched = append(q.matched, arch)
	}
}

func (q *Query) resync(archetypes []*Archetype) {
	var matched []*Archetype
	for _, arch := range archetypes {
		if q.filter.Evaluate(arch) {
			matched = append(matched, arch)
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.matched = matched
	q.matchedIDs.Clear()
	for _, arch := range matched {
		q.matchedIDs.Add(arch.ID())
	}
}

func (q *Query) archetypes() []*Archetype {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.matched)
}

// Matches reports whether the query holds arch
func (q *Query) Matches(arch *Archetype) bool {
	if arch == nil {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.matchedIDs.Has(arch.ID())
}

// Writes reports whether iteration takes exclusive row locks
func (q *Query) Writes() bool {
	return q.write
}

// ForEach calls fn for every matching row. The row lock is held for the
// duration of fn. Structural changes made from fn must use the Enqueue
// methods of the world; they are applied once no view is open.
func (q *Query) ForEach(fn func(*Row) error) error {
	q.world.beginView()
	defer q.world.endView()

	row := &Row{rowView: rowView{world: q.world}, write: q.write}
	for _, arch := range q.archetypes() {
		if err := q.visit(context.Background(), arch, row, fn); err != nil {
			return err
		}
	}
	return nil
}

// ParallelForEach runs one worker per matching archetype, bounded by
// Config.Parallelism. The first error stops the remaining workers.
func (q *Query) ParallelForEach(fn func(*Row) error) error {
	q.world.beginView()
	defer q.world.endView()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(Config.Parallelism())
	for _, arch := range q.archetypes() {
		if arch.Len() == 0 {
			continue
		}
		g.Go(func() error {
			row := &Row{rowView: rowView{world: q.world}, write: q.write}
			return q.visit(ctx, arch, row, fn)
		})
	}
	return g.Wait()
}

func (q *Query) visit(ctx context.Context, arch *Archetype, row *Row, fn func(*Row) error) error {
	n := arch.Len()
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		lock := arch.locks[i]
		lock.lock(q.write)
		if !q.includeDisabled && !arch.isEnabled(i) {
			lock.unlock(q.write)
			continue
		}
		row.arch, row.index = arch, i
		err := fn(row)
		lock.unlock(q.write)
		if err != nil {
			return eris.Wrapf(err, "query callback failed on entity %d", arch.ids[i])
		}
	}
	return nil
}

// Entities yields the id of every matching entity
func (q *Query) Entities() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		q.world.beginView()
		defer q.world.endView()
		for _, arch := range q.archetypes() {
			for i, id := range arch.ids {
				if !q.includeDisabled && !arch.isEnabled(i) {
					continue
				}
				if !yield(id) {
					return
				}
			}
		}
	}
}

// Count returns the number of matching entities
func (q *Query) Count() int {
	total := 0
	for range q.Entities() {
		total++
	}
	return total
}

// OnCreated calls fn whenever an entity starts matching, either because it
// was created or because its components changed. fn may return a disposer
// that runs once the entity stops matching or is deleted.
func (q *Query) OnCreated(fn func(*Row) func()) (dispose func()) {
	return q.created.Subscribe(func(c createdCall) {
		if d := fn(c.row); d != nil {
			q.addDisposer(c.row.ID(), d)
		}
	})
}

// OnDeleted calls fn whenever a matching entity is deleted or stops matching
func (q *Query) OnDeleted(fn func(EntityId)) (dispose func()) {
	return q.deleted.Subscribe(fn)
}

// Close detaches the query from the world
func (q *Query) Close() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	for _, unsub := range q.unsubscribe {
		unsub()
	}
	q.dispMu.Lock()
	q.disposers.Clear()
	q.dispMu.Unlock()
}

func (q *Query) addDisposer(id EntityId, d func()) {
	q.dispMu.Lock()
	defer q.dispMu.Unlock()
	existing, _ := q.disposers.Get(id)
	q.disposers.Put(id, append(existing, d))
}

func (q *Query) entityCreated(ev entityEvent) {
	if q.Matches(ev.to) {
		q.fireCreated(ev.id)
	}
}

func (q *Query) entityDeleted(ev entityEvent) {
	if q.Matches(ev.from) {
		q.fireDeleted(ev.id)
	}
}

func (q *Query) entityMoved(ev entityEvent) {
	before, after := q.Matches(ev.from), q.Matches(ev.to)
	switch {
	case before && !after:
		q.fireDeleted(ev.id)
	case !before && after:
		q.fireCreated(ev.id)
	}
}

func (q *Query) fireCreated(id EntityId) {
	if q.created.Len() == 0 {
		return
	}
	w := q.world
	w.beginView()
	defer w.endView()
	loc, ok := w.storage.Location(id)
	if !ok || !q.Matches(loc.archetype) {
		return
	}
	lock := loc.archetype.locks[loc.row]
	lock.lock(q.write)
	defer lock.unlock(q.write)
	q.created.Notify(createdCall{row: &Row{
		rowView: rowView{world: w, arch: loc.archetype, index: loc.row},
		write:   q.write,
	}})
}

func (q *Query) fireDeleted(id EntityId) {
	q.dispMu.Lock()
	disposers, _ := q.disposers.Get(id)
	q.disposers.Del(id)
	q.dispMu.Unlock()
	for _, d := range disposers {
		d()
	}
	q.deleted.Notify(id)
}
