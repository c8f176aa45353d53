package listing

import (
	"sort"
	"sync"

	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/task"
)

// Enumerator knows how to list one category. Query returns the raw keys,
// Compare orders them and Build turns one key into a row.
type Enumerator[K, T any] interface {
	Category() string
	Query() ([]K, error)
	Compare(a, b K) int
	Build(key K) (Row[T], error)
}

// Options configures a Lister.
type Options struct {
	// Quit is the application-wide quit signal.
	Quit   *task.Signal
	Logger *logging.Logger
	// OnError is the error display; it is called once per failed query.
	OnError func(category string, err error)
	// Notify is called after each row is added, outside the store lock.
	Notify func(count int)
}

// Refresh is one run of an enumeration job.
type Refresh struct {
	cancel *task.Signal
	done   *task.Signal
}

// Cancel asks the job to stop before the next row.
func (r *Refresh) Cancel() {
	r.cancel.Signal()
}

func (r *Refresh) Done() <-chan struct{} {
	return r.done.Done()
}

func (r *Refresh) Wait() {
	r.done.Wait()
}

// Lister repopulates one store in the background. A newer refresh preempts
// the running one at row granularity.
type Lister[K, T any] struct {
	store *Store[T]
	enum  Enumerator[K, T]
	opts  Options
	log   *logging.Logger

	mu      sync.Mutex
	current *Refresh
}

func NewLister[K, T any](store *Store[T], enum Enumerator[K, T], opts Options) *Lister[K, T] {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Lister[K, T]{
		store: store,
		enum:  enum,
		opts:  opts,
		log:   log.With("category", enum.Category()),
	}
}

func (l *Lister[K, T]) Store() *Store[T] {
	return l.store
}

// Refresh starts a new enumeration, cancelling any running one. The new job
// joins the old one before it touches the store.
func (l *Lister[K, T]) Refresh() *Refresh {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.current
	if prev != nil {
		prev.Cancel()
	}

	r := &Refresh{cancel: task.NewSignal(), done: task.NewSignal()}
	l.current = r
	go func() {
		defer r.done.Signal()
		if prev != nil {
			prev.Wait()
		}
		l.scan(r)
	}()
	return r
}

// EnsurePopulated starts a refresh if the store is not populated and none
// is running.
func (l *Lister[K, T]) EnsurePopulated() {
	l.mu.Lock()
	running := l.current != nil && !l.current.done.IsSignaled()
	l.mu.Unlock()

	if !running && !l.store.Populated() {
		l.Refresh()
	}
}

// Wait joins the latest refresh, if any.
func (l *Lister[K, T]) Wait() {
	l.mu.Lock()
	r := l.current
	l.mu.Unlock()
	if r != nil {
		r.Wait()
	}
}

// Close cancels and joins the latest refresh and releases all rows.
func (l *Lister[K, T]) Close() {
	l.mu.Lock()
	r := l.current
	l.mu.Unlock()
	if r != nil {
		r.Cancel()
		r.Wait()
	}
	l.store.clear()
}

func (l *Lister[K, T]) stopped(r *Refresh) bool {
	if r.cancel.IsSignaled() {
		return true
	}
	return l.opts.Quit != nil && l.opts.Quit.IsSignaled()
}

func (l *Lister[K, T]) scan(r *Refresh) {
	complete := false
	l.store.begin()
	defer func() { l.store.end(complete) }()

	l.store.clear()
	if l.stopped(r) {
		return
	}

	keys, err := l.enum.Query()
	if err != nil {
		l.log.Error().Err(err).Msg("query failed")
		if l.opts.OnError != nil {
			l.opts.OnError(l.enum.Category(), err)
		}
		return
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return l.enum.Compare(keys[i], keys[j]) < 0
	})

	added := 0
	for _, key := range keys {
		if l.stopped(r) {
			l.log.Debug().Int("rows", added).Msg("enumeration preempted")
			return
		}

		row, err := l.enum.Build(key)
		if err != nil {
			l.log.Warn().Err(err).Msg("skipping row")
			continue
		}

		count, ok := l.store.add(row)
		if !ok {
			if row.Icon != nil {
				row.Icon.Release()
			}
			l.log.Warn().Int("capacity", l.store.Cap()).Msg("listing full")
			complete = true
			return
		}
		added = count
		if l.opts.Notify != nil {
			l.opts.Notify(count)
		}
	}
	complete = true
	l.log.Debug().Int("rows", added).Msg("enumeration finished")
}
