// Package tracker keeps per-account snapshots of enrollments, completions
// and course progress as recorded on the ledger. Snapshots are recomputed
// lazily after any change that may affect them.
package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"golang.org/x/sync/errgroup"
)

type Snapshot struct {
	Account   ledger.AccountID
	Enrolled  []uint64
	Completed []uint64

	// Progress holds the ledger-recorded percentage per enrolled course.
	Progress map[uint64]uint64

	TakenAt time.Time
}

func (s *Snapshot) IsEnrolled(course uint64) bool {
	return contains(s.Enrolled, course)
}

func (s *Snapshot) IsCompleted(course uint64) bool {
	return contains(s.Completed, course)
}

func contains(ids []uint64, id uint64) bool {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	return i < len(ids) && ids[i] == id
}

type Tracker struct {
	agg   *aggregate.Aggregator
	limit int

	mu        sync.Mutex
	snapshots map[ledger.AccountID]*entry

	// gen counts the changes seen per account. A snapshot is current only
	// while it was taken at the latest generation.
	gen map[ledger.AccountID]uint64

	unsubscribe []func()
}

// New returns a tracker. With a non-nil hub, snapshots are marked dirty on
// identity changes and on confirmed writes touching enrollments, progress
// or quizzes.
func New(agg *aggregate.Aggregator, hub *events.Hub) *Tracker {
	t := &Tracker{
		agg:       agg,
		limit:     conf.GetFanOutLimit(),
		snapshots: make(map[ledger.AccountID]*entry),
		gen:       make(map[ledger.AccountID]uint64),
	}

	if t.limit <= 0 {
		t.limit = 1
	}

	if hub != nil {
		t.unsubscribe = append(t.unsubscribe,
			hub.Subscribe(nil, func(e *events.IdentityChanged) bool {
				t.Refresh(e.Previous)
				t.Refresh(e.Current)

				return true
			}),
			hub.Subscribe(nil, func(m *events.Mutation) bool {
				if m.Touches(events.KindEnrollment, events.KindProgress, events.KindQuiz) {
					t.Refresh(m.Account)
				}

				return true
			}),
		)
	}

	return t
}

func (t *Tracker) Close() {
	for _, fn := range t.unsubscribe {
		fn()
	}
}

type entry struct {
	snapshot *Snapshot
	gen      uint64
}

// Refresh marks the snapshot of account dirty, including one still being
// computed.
func (t *Tracker) Refresh(account ledger.AccountID) {
	if account.IsZero() {
		return
	}

	t.mu.Lock()
	t.gen[account]++
	t.mu.Unlock()
}

// Snapshot returns the last snapshot of account, recomputing it when it
// is missing or dirty.
func (t *Tracker) Snapshot(ctx context.Context, account ledger.AccountID) (*Snapshot, error) {
	t.mu.Lock()
	e, ok := t.snapshots[account]
	current := ok && e.gen == t.gen[account]
	t.mu.Unlock()

	if current {
		return e.snapshot, nil
	}

	return t.Recompute(ctx, account)
}

// Recompute reads enrollments, completions and progress of account from
// the ledger.
func (t *Tracker) Recompute(ctx context.Context, account ledger.AccountID) (*Snapshot, error) {
	reader := t.agg.Reader()

	t.mu.Lock()
	gen := t.gen[account]
	t.mu.Unlock()

	enrolled, err := reader.EnrolledCourseIDs(ctx, account)
	if err != nil {
		return nil, t.failed(account, err)
	}

	completed, err := reader.CompletedCourseIDs(ctx, account)
	if err != nil {
		return nil, t.failed(account, err)
	}

	progress := make([]uint64, len(enrolled))

	var g errgroup.Group
	g.SetLimit(t.limit)

	for i, id := range enrolled {
		i, id := i, id

		g.Go(func() (err error) {
			progress[i], err = reader.Progress(ctx, account, id)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, t.failed(account, err)
	}

	s := &Snapshot{
		Account:   account,
		Enrolled:  sorted(enrolled),
		Completed: sorted(completed),
		Progress:  make(map[uint64]uint64, len(enrolled)),
		TakenAt:   time.Now(),
	}

	for i, id := range enrolled {
		s.Progress[id] = progress[i]
	}

	// A slower recompute that started earlier never replaces a newer one.
	// Changes seen during the reads leave the stored snapshot dirty.
	t.mu.Lock()
	if e, ok := t.snapshots[account]; !ok || e.gen <= gen {
		t.snapshots[account] = &entry{snapshot: s, gen: gen}
	}
	t.mu.Unlock()

	logger := log.Tracker("recompute")
	logger.Debug().
		Str("account", account.Short()).
		Int("enrolled", len(s.Enrolled)).
		Int("completed", len(s.Completed)).
		Msg("Recomputed enrollment snapshot.")

	return s, nil
}

func (t *Tracker) failed(account ledger.AccountID, err error) error {
	t.Refresh(account)
	return err
}

func sorted(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// LessonCounts reports how many of a course's active lessons account has
// completed. It decides when a quiz may be generated and is never a
// substitute for the ledger's progress value.
func (t *Tracker) LessonCounts(ctx context.Context, account ledger.AccountID, course uint64) (completed, total int, err error) {
	view, report, err := t.agg.Course(ctx, course)
	if err != nil {
		return 0, 0, err
	}

	if report.Partial() {
		return 0, 0, report.Warning()
	}

	done, err := t.agg.Reader().CompletedLessonIDs(ctx, account, course)
	if err != nil {
		return 0, 0, err
	}

	lessons := sorted(view.LessonIDs())

	for _, id := range done {
		if contains(lessons, id) {
			completed++
		}
	}

	return completed, len(lessons), nil
}
