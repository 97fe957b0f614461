// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package orchestrator sequences ledger writes. Each write runs as a
// pipeline of named steps; spends are preceded by an allowance grant that
// must be confirmed before the spend is submitted. Writes of one account
// never overlap.
package orchestrator

import (
	"context"
	"unicode/utf8"

	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/events"
	"github.com/perlin-network/academy/internal/worker"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/sys"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Orchestrator struct {
	facade *ledger.Facade
	reader *ledger.Reader
	hub    *events.Hub
	queue  *worker.Keyed
	tracer trace.Tracer
}

type Option func(*Orchestrator)

// WithHub publishes an events.Mutation for every confirmed write.
func WithHub(hub *events.Hub) Option {
	return func(o *Orchestrator) {
		o.hub = hub
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer("github.com/perlin-network/academy/orchestrator")
	}
}

func New(reader *ledger.Reader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		facade: reader.Facade,
		reader: reader,
		queue:  worker.NewKeyed(),
		tracer: otel.Tracer("github.com/perlin-network/academy/orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Close stops the per-account write queues.
func (o *Orchestrator) Close() {
	o.queue.Stop()
}

func targets(ts ...events.Target) func(*State) []events.Target {
	return func(*State) []events.Target {
		return ts
	}
}

func invalid(op, format string, args ...interface{}) error {
	return errs.Errorf(errs.KindValidation, op, format, args...)
}

// Enroll enrolls the connected account in a course, paying its price.
func (o *Orchestrator) Enroll(ctx context.Context, courseID uint64) Outcome {
	const op = "enroll"

	p := &Pipeline{Op: op, Targets: func(st *State) []events.Target {
		return []events.Target{
			{Kind: events.KindEnrollment},
			{Kind: events.KindProgress, ID: courseID},
			{Kind: events.KindCourse, ID: courseID},
			{Kind: events.KindCatalog},
			{Kind: events.KindBalance},
		}
	}}

	p.Then(o.network(), Step{Name: StepPrice, Run: func(ctx context.Context, st *State) error {
		c, err := o.reader.Course(ctx, courseID)
		if err != nil {
			return err
		}

		if !c.Open() {
			return invalid(op, "course %d is not open for enrollment", courseID)
		}

		st.Amount = c.Price
		st.ID = courseID

		return nil
	}})

	p.Then(o.spend(op)...)
	p.Then(o.submit(sys.MethodEnroll, args(courseID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.Enrolled) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.Enrolled).CourseID
	}))

	return o.run(ctx, p)
}

// BatchEnroll enrolls in several courses with a single allowance grant
// covering their summed price.
func (o *Orchestrator) BatchEnroll(ctx context.Context, courseIDs []uint64) Outcome {
	const op = "batch enroll"

	p := &Pipeline{Op: op, Targets: func(*State) []events.Target {
		ts := []events.Target{{Kind: events.KindEnrollment}, {Kind: events.KindCatalog}, {Kind: events.KindBalance}}
		for _, id := range courseIDs {
			ts = append(ts, events.Target{Kind: events.KindCourse, ID: id}, events.Target{Kind: events.KindProgress, ID: id})
		}

		return ts
	}}

	p.Then(validate(func() error {
		if len(courseIDs) == 0 {
			return invalid(op, "no courses given")
		}

		seen := make(map[uint64]struct{}, len(courseIDs))

		for _, id := range courseIDs {
			if _, dup := seen[id]; dup {
				return invalid(op, "course %d is listed twice", id)
			}

			seen[id] = struct{}{}
		}

		return nil
	}))

	p.Then(o.network(), Step{Name: StepPrice, Run: func(ctx context.Context, st *State) error {
		for _, id := range courseIDs {
			c, err := o.reader.Course(ctx, id)
			if err != nil {
				return err
			}

			if !c.Open() {
				return invalid(op, "course %d is not open for enrollment", id)
			}

			st.Amount += c.Price
		}

		return nil
	}})

	p.Then(o.spend(op)...)
	p.Then(o.submit(sys.MethodBatchEnroll, args(courseIDs))...)
	p.Then(Step{Name: StepDecode, Run: func(_ context.Context, st *State) error {
		enrolled, err := st.Receipt.ExpectAll(func() ledger.Event { return new(ledger.Enrolled) })
		if err != nil {
			return err
		}

		st.Events = append(st.Events, enrolled...)

		if len(st.Events) != len(courseIDs) {
			return errs.Errorf(errs.KindMissingExpectedEvent, op,
				"expected %d enrollments, transaction %s emitted %d", len(courseIDs), st.Receipt.TxID, len(st.Events))
		}

		return nil
	}})

	return o.run(ctx, p)
}

// FundRewardPool moves amount reward tokens into the marketplace's pool.
func (o *Orchestrator) FundRewardPool(ctx context.Context, amount uint64) Outcome {
	const op = "fund reward pool"

	p := &Pipeline{Op: op, Targets: targets(events.Target{Kind: events.KindBalance})}

	p.Then(validate(func() error {
		if amount == 0 {
			return invalid(op, "amount must be positive")
		}

		return nil
	}))

	p.Then(o.network(), Step{Name: StepPrice, Run: func(_ context.Context, st *State) error {
		st.Amount = amount
		return nil
	}})

	p.Then(o.spend(op)...)
	p.Then(o.submit(sys.MethodFundRewardPool, args(amount))...)
	p.Then(expect(func() ledger.Event { return new(ledger.RewardPoolFunded) }, nil))

	return o.run(ctx, p)
}

type CourseDraft struct {
	Title         string
	Description   string
	Price         uint64
	Duration      uint64
	XPReward      uint64
	TokenReward   uint64
	Prerequisites []uint64
	Tags          []string
}

func validTitle(op, title string) error {
	if title == "" {
		return invalid(op, "title is empty")
	}

	if utf8.RuneCountInString(title) > sys.MaxTitleLen {
		return invalid(op, "title is longer than %d characters", sys.MaxTitleLen)
	}

	return nil
}

// CreateCourse creates a course and reads it back from the ledger.
func (o *Orchestrator) CreateCourse(ctx context.Context, d CourseDraft) (*ledger.Course, Outcome) {
	const op = "create course"

	if d.Prerequisites == nil {
		d.Prerequisites = []uint64{}
	}

	if d.Tags == nil {
		d.Tags = []string{}
	}

	var course *ledger.Course

	p := &Pipeline{Op: op, Targets: func(st *State) []events.Target {
		return []events.Target{{Kind: events.KindCatalog}, {Kind: events.KindInstructor}, {Kind: events.KindCourse, ID: st.ID}}
	}}

	p.Then(validate(func() error { return validTitle(op, d.Title) }))
	p.Then(o.submit(sys.MethodCreateCourse, args(d.Title, d.Description, d.Price, d.Duration,
		d.XPReward, d.TokenReward, d.Prerequisites, d.Tags))...)
	p.Then(expect(func() ledger.Event { return new(ledger.CourseCreated) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.CourseCreated).CourseID
	}))
	p.Then(Step{Name: StepReadBack, Run: func(ctx context.Context, st *State) (err error) {
		course, err = o.reader.Course(ctx, st.ID)
		return err
	}})

	out := o.run(ctx, p)

	return course, out
}

func (o *Orchestrator) UpdateCourse(ctx context.Context, id uint64, title, description string, price uint64) Outcome {
	const op = "update course"

	p := &Pipeline{Op: op, Targets: targets(events.Target{Kind: events.KindCourse, ID: id}, events.Target{Kind: events.KindCatalog})}

	p.Then(validate(func() error { return validTitle(op, title) }))
	p.Then(o.submit(sys.MethodUpdateCourse, args(id, title, description, price))...)
	p.Then(expect(func() ledger.Event { return new(ledger.CourseUpdated) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.CourseUpdated).CourseID
	}))

	return o.run(ctx, p)
}

func (o *Orchestrator) SetCoursePaused(ctx context.Context, id uint64, paused bool) Outcome {
	p := &Pipeline{Op: "set course paused", Targets: targets(events.Target{Kind: events.KindCourse, ID: id}, events.Target{Kind: events.KindCatalog})}

	p.Then(o.submit(sys.MethodSetCoursePaused, args(id, paused))...)
	p.Then(expect(func() ledger.Event { return new(ledger.CourseStatusChanged) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.CourseStatusChanged).CourseID
	}))

	return o.run(ctx, p)
}

type ModuleDraft struct {
	Title       string
	Description string
	Order       uint64
}

func (o *Orchestrator) AddModule(ctx context.Context, courseID uint64, d ModuleDraft) Outcome {
	const op = "add module"

	p := &Pipeline{Op: op, Targets: targets(events.Target{Kind: events.KindCourse, ID: courseID})}

	p.Then(validate(func() error { return validTitle(op, d.Title) }))
	p.Then(o.submit(sys.MethodAddModule, args(courseID, d.Title, d.Description, d.Order))...)
	p.Then(expect(func() ledger.Event { return new(ledger.ModuleAdded) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.ModuleAdded).ModuleID
	}))

	return o.run(ctx, p)
}

type LessonDraft struct {
	Title       string
	Description string
	ContentType string
	ContentURI  string
	Duration    uint64
	Order       uint64
}

// AddLesson adds a lesson to a module. The owning course is invalidated as
// a whole since the module does not name it.
func (o *Orchestrator) AddLesson(ctx context.Context, moduleID uint64, d LessonDraft) Outcome {
	const op = "add lesson"

	p := &Pipeline{Op: op, Targets: targets(events.Target{Kind: events.KindCourse})}

	p.Then(validate(func() error {
		if err := validTitle(op, d.Title); err != nil {
			return err
		}

		if _, ok := sys.ContentTypes[d.ContentType]; !ok {
			return invalid(op, "unknown content type %q", d.ContentType)
		}

		return nil
	}))
	p.Then(o.submit(sys.MethodAddLesson, args(moduleID, d.Title, d.Description, d.ContentType,
		d.ContentURI, d.Duration, d.Order))...)
	p.Then(expect(func() ledger.Event { return new(ledger.LessonAdded) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.LessonAdded).LessonID
	}))

	return o.run(ctx, p)
}

func (o *Orchestrator) CompleteLesson(ctx context.Context, courseID, lessonID uint64) Outcome {
	p := &Pipeline{Op: "complete lesson", Targets: targets(
		events.Target{Kind: events.KindProgress, ID: courseID},
		events.Target{Kind: events.KindEnrollment},
	)}

	p.Then(o.network())
	p.Then(o.submit(sys.MethodCompleteLesson, args(courseID, lessonID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.LessonCompleted) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.LessonCompleted).LessonID
	}))

	return o.run(ctx, p)
}

// UpdateProgress records an explicit progress percentage. The ledger only
// accepts values that do not go backwards.
func (o *Orchestrator) UpdateProgress(ctx context.Context, courseID, progress uint64) Outcome {
	const op = "update progress"

	p := &Pipeline{Op: op, Targets: targets(
		events.Target{Kind: events.KindProgress, ID: courseID},
		events.Target{Kind: events.KindEnrollment},
	)}

	p.Then(validate(func() error {
		if progress > sys.MaxProgress {
			return invalid(op, "progress %d exceeds %d", progress, sys.MaxProgress)
		}

		return nil
	}))
	p.Then(o.submit(sys.MethodUpdateProgress, args(courseID, progress))...)
	p.Then(expect(func() ledger.Event { return new(ledger.ProgressUpdated) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.ProgressUpdated).CourseID
	}))

	return o.run(ctx, p)
}

// GenerateQuiz requests a quiz for a course. The quiz itself appears later;
// the outcome carries the request ID.
func (o *Orchestrator) GenerateQuiz(ctx context.Context, courseID uint64) Outcome {
	p := &Pipeline{Op: "generate quiz", Targets: targets(events.Target{Kind: events.KindQuiz, ID: courseID})}

	p.Then(o.network())
	p.Then(o.submit(sys.MethodGenerateQuiz, args(courseID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.QuizRequested) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.QuizRequested).RequestID
	}))

	return o.run(ctx, p)
}

// SubmitQuiz submits one answer per question, in question order. The
// outcome's first event is the ledger's *ledger.QuizSubmitted verdict.
func (o *Orchestrator) SubmitQuiz(ctx context.Context, courseID, quizID uint64, answers []uint64) Outcome {
	const op = "submit quiz"

	p := &Pipeline{Op: op, Targets: targets(
		events.Target{Kind: events.KindQuiz, ID: courseID},
		events.Target{Kind: events.KindProgress, ID: courseID},
		events.Target{Kind: events.KindEnrollment},
		events.Target{Kind: events.KindCourse, ID: courseID},
	)}

	p.Then(validate(func() error {
		if len(answers) == 0 {
			return invalid(op, "no answers given")
		}

		return nil
	}))
	p.Then(o.submit(sys.MethodSubmitQuiz, args(quizID, answers))...)
	p.Then(expect(func() ledger.Event { return new(ledger.QuizSubmitted) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.QuizSubmitted).QuizID
	}))

	return o.run(ctx, p)
}

func (o *Orchestrator) ClaimCertificate(ctx context.Context, courseID uint64) Outcome {
	p := &Pipeline{Op: "claim certificate", Targets: targets(
		events.Target{Kind: events.KindCertificate},
		events.Target{Kind: events.KindProfile},
	)}

	p.Then(o.submit(sys.MethodClaimCertificate, args(courseID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.CertificateIssued) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.CertificateIssued).CertificateID
	}))

	return o.run(ctx, p)
}

func (o *Orchestrator) RevokeCertificate(ctx context.Context, certificateID uint64) Outcome {
	p := &Pipeline{Op: "revoke certificate", Targets: targets(
		events.Target{Kind: events.KindCertificate, ID: certificateID},
		events.Target{Kind: events.KindProfile},
	)}

	p.Then(o.submit(sys.MethodRevokeCertificate, args(certificateID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.CertificateRevoked) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.CertificateRevoked).CertificateID
	}))

	return o.run(ctx, p)
}

// SubmitReview reviews an instructor's course. Ratings outside 1 to 5 are
// rejected without a network call.
func (o *Orchestrator) SubmitReview(ctx context.Context, instructor ledger.AccountID, courseID, rating uint64, comment string) Outcome {
	const op = "submit review"

	p := &Pipeline{Op: op, Targets: targets(
		events.Target{Kind: events.KindReview},
		events.Target{Kind: events.KindInstructor},
	)}

	p.Then(validate(func() error {
		if rating < sys.MinRating || rating > sys.MaxRating {
			return invalid(op, "rating %d is outside %d..%d", rating, sys.MinRating, sys.MaxRating)
		}

		if utf8.RuneCountInString(comment) > sys.MaxReviewCommentLen {
			return invalid(op, "comment is longer than %d characters", sys.MaxReviewCommentLen)
		}

		if instructor.IsZero() {
			return invalid(op, "no instructor given")
		}

		return nil
	}))
	p.Then(o.submit(sys.MethodSubmitReview, args(instructor, courseID, rating, comment))...)
	p.Then(expect(func() ledger.Event { return new(ledger.ReviewSubmitted) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.ReviewSubmitted).ReviewID
	}))

	return o.run(ctx, p)
}

func (o *Orchestrator) ClaimAchievement(ctx context.Context, achievementID uint64) Outcome {
	p := &Pipeline{Op: "claim achievement", Targets: targets(
		events.Target{Kind: events.KindAchievement},
		events.Target{Kind: events.KindProfile},
		events.Target{Kind: events.KindBalance},
	)}

	p.Then(o.submit(sys.MethodClaimAchievement, args(achievementID))...)
	p.Then(expect(func() ledger.Event { return new(ledger.AchievementEarned) }, func(ev ledger.Event) uint64 {
		return ev.(*ledger.AchievementEarned).AchievementID
	}))

	return o.run(ctx, p)
}
