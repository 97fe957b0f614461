// Package aggregate assembles composite view models from independent ledger
// reads. Children are fetched concurrently and sorted by their order index
// afterwards. A child that cannot be fetched is left out and reported; only
// a failure to list the children fails the composite.
package aggregate

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	childCourse      = "course"
	childModule      = "module"
	childLesson      = "lesson"
	childQuestion    = "question"
	childReview      = "review"
	childCertificate = "certificate"
	childAchievement = "achievement"
)

type Aggregator struct {
	reader  *ledger.Reader
	limit   int
	metrics *metrics.Metrics
}

type Option func(*Aggregator)

// WithFanOutLimit bounds the number of in-flight child fetches of a single
// fan-out.
func WithFanOutLimit(n int) Option {
	return func(a *Aggregator) {
		a.limit = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

func New(reader *ledger.Reader, opts ...Option) *Aggregator {
	a := &Aggregator{reader: reader, limit: conf.GetFanOutLimit()}

	for _, opt := range opts {
		opt(a)
	}

	if a.limit <= 0 {
		a.limit = 1
	}

	return a
}

func (a *Aggregator) Reader() *ledger.Reader {
	return a.reader
}

// fanOut calls fetch once per ID, at most a.limit at a time. fetch stores
// its result at index i. Failed IDs are logged and reported.
func (a *Aggregator) fanOut(ctx context.Context, kind string, ids []uint64, fetch func(ctx context.Context, i int, id uint64) (Report, error)) (Report, error) {
	report := Report{Requested: len(ids)}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(a.limit)

	for i, id := range ids {
		i, id := i, id

		g.Go(func() error {
			nested, err := fetch(ctx, i, id)

			mu.Lock()
			defer mu.Unlock()

			report.merge(nested)

			if err != nil {
				report.exclude(kind, id, err)

				logger := log.Aggregate("exclude")
				logger.Warn().
					Err(err).
					Str("kind", kind).
					Uint64("id", id).
					Msg("Excluded a child from a composite.")
			}

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, errs.Wrap(errs.KindCancelled, "aggregate "+kind, err)
	}

	report.sortFailures()

	return report, nil
}

func (a *Aggregator) finish(op string, report Report) {
	if !report.Partial() {
		return
	}

	a.metrics.MarkPartial(report.Excluded)

	logger := log.Aggregate("partial")
	logger.Info().
		Str("op", op).
		Int("requested", report.Requested).
		Int("excluded", report.Excluded).
		Msg("Returning a partial composite.")
}

// Course assembles a course with its modules and lessons.
func (a *Aggregator) Course(ctx context.Context, id uint64) (*CourseView, Report, error) {
	course, err := a.reader.Course(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	moduleIDs, err := a.reader.CourseModuleIDs(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	modules := make([]*ModuleView, len(moduleIDs))

	report, err := a.fanOut(ctx, childModule, moduleIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		m, nested, err := a.module(ctx, id)
		if err != nil {
			return nested, err
		}

		modules[i] = m

		return nested, nil
	})

	if err != nil {
		return nil, report, err
	}

	view := &CourseView{Course: course, Modules: make([]*ModuleView, 0, len(modules))}

	for _, m := range modules {
		if m != nil && m.Active {
			view.Modules = append(view.Modules, m)
		}
	}

	sort.SliceStable(view.Modules, func(i, j int) bool {
		return byOrder(view.Modules[i].Order, view.Modules[i].ID, view.Modules[j].Order, view.Modules[j].ID)
	})

	a.finish("course", report)

	return view, report, nil
}

func (a *Aggregator) module(ctx context.Context, id uint64) (*ModuleView, Report, error) {
	m, err := a.reader.Module(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	lessonIDs, err := a.reader.ModuleLessonIDs(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	lessons := make([]*ledger.Lesson, len(lessonIDs))

	report, err := a.fanOut(ctx, childLesson, lessonIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		l, err := a.reader.Lesson(ctx, id)
		lessons[i] = l

		return Report{}, err
	})

	if err != nil {
		return nil, report, err
	}

	view := &ModuleView{Module: m, Lessons: make([]*ledger.Lesson, 0, len(lessons))}

	for _, l := range lessons {
		if l != nil && l.Active {
			view.Lessons = append(view.Lessons, l)
		}
	}

	sort.SliceStable(view.Lessons, func(i, j int) bool {
		return byOrder(view.Lessons[i].Order, view.Lessons[i].ID, view.Lessons[j].Order, view.Lessons[j].ID)
	})

	return view, report, nil
}

func byOrder(orderA, idA, orderB, idB uint64) bool {
	if orderA != orderB {
		return orderA < orderB
	}

	return idA < idB
}

// Courses fetches course records in the order of ids, leaving out those
// that fail.
func (a *Aggregator) Courses(ctx context.Context, ids []uint64) ([]*ledger.Course, Report, error) {
	courses := make([]*ledger.Course, len(ids))

	report, err := a.fanOut(ctx, childCourse, ids, func(ctx context.Context, i int, id uint64) (Report, error) {
		c, err := a.reader.Course(ctx, id)
		courses[i] = c

		return Report{}, err
	})

	if err != nil {
		return nil, report, err
	}

	a.finish("courses", report)

	return compactCourses(courses), report, nil
}

// Catalog lists every course on the marketplace.
func (a *Aggregator) Catalog(ctx context.Context) ([]*ledger.Course, Report, error) {
	count, err := a.reader.CourseCount(ctx)
	if err != nil {
		return nil, Report{}, err
	}

	ids := make([]uint64, 0, count)
	for id := uint64(1); id <= count; id++ {
		ids = append(ids, id)
	}

	return a.Courses(ctx, ids)
}

func compactCourses(courses []*ledger.Course) []*ledger.Course {
	out := courses[:0]

	for _, c := range courses {
		if c != nil {
			out = append(out, c)
		}
	}

	return out
}

// Quiz assembles a quiz with its questions.
func (a *Aggregator) Quiz(ctx context.Context, id uint64) (*QuizView, Report, error) {
	quiz, err := a.reader.Quiz(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	questionIDs, err := a.reader.QuizQuestionIDs(ctx, id)
	if err != nil {
		return nil, Report{}, err
	}

	questions := make([]*ledger.Question, len(questionIDs))

	report, err := a.fanOut(ctx, childQuestion, questionIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		q, err := a.reader.Question(ctx, id)
		questions[i] = q

		return Report{}, err
	})

	if err != nil {
		return nil, report, err
	}

	view := &QuizView{Quiz: quiz, Questions: make([]*ledger.Question, 0, len(questions))}

	// Slots already follow the quiz's own order.
	for _, q := range questions {
		if q != nil {
			view.Questions = append(view.Questions, q)
		}
	}

	a.finish("quiz", report)

	return view, report, nil
}

// Instructor assembles an instructor's courses and reviews.
func (a *Aggregator) Instructor(ctx context.Context, account ledger.AccountID) (*InstructorView, Report, error) {
	courseIDs, err := a.reader.InstructorCourseIDs(ctx, account)
	if err != nil {
		return nil, Report{}, err
	}

	reviewIDs, err := a.reader.InstructorReviewIDs(ctx, account)
	if err != nil {
		return nil, Report{}, err
	}

	courses, report, err := a.Courses(ctx, courseIDs)
	if err != nil {
		return nil, report, err
	}

	reviews := make([]*ledger.Review, len(reviewIDs))

	nested, err := a.fanOut(ctx, childReview, reviewIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		r, err := a.reader.Review(ctx, id)
		reviews[i] = r

		return Report{}, err
	})

	report.merge(nested)

	if err != nil {
		return nil, report, err
	}

	view := &InstructorView{Account: account, Courses: courses}

	var total uint64

	for _, r := range reviews {
		if r != nil {
			view.Reviews = append(view.Reviews, r)
			total += r.Rating
		}
	}

	sort.SliceStable(view.Reviews, func(i, j int) bool { return view.Reviews[i].ID < view.Reviews[j].ID })

	if len(view.Reviews) > 0 {
		view.AverageRating = float64(total) / float64(len(view.Reviews))
	}

	a.finish("instructor", nested)

	return view, report, nil
}

// Profile assembles an account's balance, certificates and achievements.
func (a *Aggregator) Profile(ctx context.Context, account ledger.AccountID) (*ProfileView, Report, error) {
	balance, err := a.reader.Balance(ctx, account)
	if err != nil {
		return nil, Report{}, err
	}

	certificateIDs, err := a.reader.CertificateIDs(ctx, account)
	if err != nil {
		return nil, Report{}, err
	}

	achievementIDs, err := a.reader.AchievementIDs(ctx)
	if err != nil {
		return nil, Report{}, err
	}

	certificates := make([]*ledger.Certificate, len(certificateIDs))

	report, err := a.fanOut(ctx, childCertificate, certificateIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		c, err := a.reader.Certificate(ctx, id)
		certificates[i] = c

		return Report{}, err
	})

	if err != nil {
		return nil, report, err
	}

	achievements := make([]*AchievementView, len(achievementIDs))

	nested, err := a.fanOut(ctx, childAchievement, achievementIDs, func(ctx context.Context, i int, id uint64) (Report, error) {
		ach, err := a.reader.Achievement(ctx, id)
		if err != nil {
			return Report{}, err
		}

		earned, err := a.reader.HasAchievement(ctx, account, id)
		if err != nil {
			return Report{}, err
		}

		achievements[i] = &AchievementView{Achievement: ach, Earned: earned}

		return Report{}, nil
	})

	report.merge(nested)

	if err != nil {
		return nil, report, err
	}

	view := &ProfileView{Account: account, Balance: balance}

	for _, c := range certificates {
		if c != nil {
			view.Certificates = append(view.Certificates, c)
		}
	}

	for _, ach := range achievements {
		if ach != nil {
			view.Achievements = append(view.Achievements, ach)
		}
	}

	a.finish("profile", report)

	return view, report, nil
}

func uitoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
