// Package quiz drives the quiz workflow of one account in one course: lesson
// completion, quiz generation, waiting for the quiz to appear, answering,
// submission and retakes.
package quiz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
	"github.com/perlin-network/academy/orchestrator"
)

type State uint8

const (
	StateNoQuiz State = iota
	StateLessonsInProgress
	StateAllLessonsComplete
	StateQuizPending
	StateQuizAvailable
	StateSubmitted
	StateRetaking
)

var stateNames = [...]string{
	StateNoQuiz:             "NoQuiz",
	StateLessonsInProgress:  "LessonsInProgress",
	StateAllLessonsComplete: "AllLessonsComplete",
	StateQuizPending:        "QuizPending",
	StateQuizAvailable:      "QuizAvailable",
	StateSubmitted:          "Submitted",
	StateRetaking:           "Retaking",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "Unknown"
}

// Result is the ledger's verdict on a submitted quiz.
type Result struct {
	QuizID uint64
	Score  uint64
	Passed bool
}

// Status is a consistent copy of the controller's state.
type Status struct {
	State State

	CompletedLessons int
	TotalLessons     int

	Quiz    *aggregate.QuizView
	Answers map[uint64]uint64
	Result  *Result
}

// Answered reports whether every question of the current quiz has an
// answer.
func (s Status) Answered() bool {
	if s.Quiz == nil {
		return false
	}

	for _, q := range s.Quiz.Questions {
		if _, ok := s.Answers[q.ID]; !ok {
			return false
		}
	}

	return true
}

type Controller struct {
	agg     *aggregate.Aggregator
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics

	course   uint64
	interval time.Duration
	timeout  time.Duration
	passing  uint64

	mu        sync.Mutex
	state     State
	lessons   []uint64
	completed map[uint64]struct{}
	quiz      *aggregate.QuizView
	answers   map[uint64]uint64
	result    *Result
	task      *PollTask

	// generating guards the submission of a generation request.
	generating bool

	// requested is set while a confirmed generation request has not yet
	// produced a quiz. previous is the current quiz when it was made; only
	// a different one fulfils it.
	requested bool
	previous  uint64
}

type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.interval = d
	}
}

func WithPollTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

func WithPassingScore(score uint64) Option {
	return func(c *Controller) {
		c.passing = score
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New returns a controller for the connected account's progress in course.
// Call Refresh to load its state.
func New(agg *aggregate.Aggregator, orch *orchestrator.Orchestrator, course uint64, opts ...Option) *Controller {
	c := &Controller{
		agg:       agg,
		orch:      orch,
		course:    course,
		interval:  conf.GetQuizPollInterval(),
		timeout:   conf.GetQuizPollTimeout(),
		passing:   conf.GetPassingScore(),
		completed: make(map[uint64]struct{}),
		answers:   make(map[uint64]uint64),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) CourseID() uint64 {
	return c.course
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:            c.state,
		CompletedLessons: len(c.completed),
		TotalLessons:     len(c.lessons),
		Quiz:             c.quiz,
		Answers:          make(map[uint64]uint64, len(c.answers)),
	}

	for q, a := range c.answers {
		s.Answers[q] = a
	}

	if c.result != nil {
		r := *c.result
		s.Result = &r
	}

	return s
}

// Task returns the poll task in flight, if any.
func (c *Controller) Task() *PollTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.task
}

func (c *Controller) reader() *ledger.Reader {
	return c.agg.Reader()
}

func (c *Controller) account() ledger.AccountID {
	return c.reader().Account()
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}

	logger := log.Quiz("state")
	logger.Debug().
		Uint64("course_id", c.course).
		Str("from", c.state.String()).
		Str("to", s.String()).
		Msg("Quiz state changed.")

	c.state = s
}

// Refresh derives the state from the ledger. While a requested quiz has
// not appeared the controller stays QuizPending. A requested quiz found
// here also finishes the poll task waiting for it.
func (c *Controller) Refresh(ctx context.Context) error {
	view, report, err := c.agg.Course(ctx, c.course)
	if err != nil {
		return err
	}

	// A partial lesson list would make the course look finished too early.
	if report.Partial() {
		return report.Warning()
	}

	account := c.account()

	completed, err := c.reader().CompletedLessonIDs(ctx, account, c.course)
	if err != nil {
		return err
	}

	current, err := c.reader().CurrentQuizID(ctx, account, c.course)
	if err != nil {
		return err
	}

	var (
		quiz   *aggregate.QuizView
		result *Result
	)

	if current != 0 {
		if quiz, report, err = c.agg.Quiz(ctx, current); err != nil {
			return err
		}

		if report.Partial() {
			return report.Warning()
		}

		if quiz.Submitted {
			result = &Result{QuizID: quiz.ID, Score: quiz.Score, Passed: quiz.Passed}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lessons = view.LessonIDs()
	c.completed = make(map[uint64]struct{}, len(completed))

	for _, id := range completed {
		c.completed[id] = struct{}{}
	}

	fresh := current != 0 && current != c.previous && (result != nil || len(quiz.Questions) > 0)

	if c.requested && !fresh {
		if c.task == nil {
			c.setState(StateQuizPending)
		}

		return nil
	}

	if c.task != nil {
		c.task.settle(quiz)
		c.metrics.MarkQuizReady(time.Since(c.task.Started))
		c.task = nil
	}

	c.requested = false

	switch {
	case result != nil:
		c.quiz, c.result = quiz, result
		c.setState(StateSubmitted)
	case quiz != nil:
		if c.quiz == nil || c.quiz.ID != quiz.ID {
			c.answers = make(map[uint64]uint64)
		}

		c.quiz, c.result = quiz, nil
		c.setState(StateQuizAvailable)
	default:
		c.quiz, c.result = nil, nil
		c.setState(c.lessonState())
	}

	return nil
}

func (c *Controller) lessonState() State {
	switch {
	case len(c.completed) == 0:
		return StateNoQuiz
	case len(c.lessons) > 0 && c.allLessonsComplete():
		return StateAllLessonsComplete
	}

	return StateLessonsInProgress
}

func (c *Controller) allLessonsComplete() bool {
	for _, id := range c.lessons {
		if _, ok := c.completed[id]; !ok {
			return false
		}
	}

	return true
}

// CompleteLesson marks a lesson complete. Completing the last lesson
// requests a quiz and returns the task waiting for it.
func (c *Controller) CompleteLesson(ctx context.Context, lessonID uint64) (*PollTask, orchestrator.Outcome) {
	out := c.orch.CompleteLesson(ctx, c.course, lessonID)
	if !out.Success {
		return nil, out
	}

	c.mu.Lock()
	c.completed[lessonID] = struct{}{}

	trigger := false

	if c.state <= StateAllLessonsComplete {
		c.setState(c.lessonState())
		trigger = c.state == StateAllLessonsComplete
	}
	c.mu.Unlock()

	if !trigger {
		return nil, out
	}

	task, err := c.Generate(ctx)
	if err != nil {
		logger := log.Quiz("generate")
		logger.Warn().
			Err(err).
			Uint64("course_id", c.course).
			Msg("Lessons complete, but the quiz could not be requested.")
	}

	return task, out
}

// Generate requests a quiz and starts waiting for it. It is allowed once
// every lesson is complete, after a timed out or cancelled wait, and
// while retaking. When an earlier request is still unfulfilled it only
// resumes waiting. A controller cannot see requests made before it was
// created; the ledger rejects a second one while the first is pending.
func (c *Controller) Generate(ctx context.Context) (*PollTask, error) {
	const op = "generate quiz"

	c.mu.Lock()

	switch {
	case c.task != nil || c.generating:
		c.mu.Unlock()
		return nil, errs.New(errs.KindValidation, op, "a quiz is already being generated")
	case c.state != StateAllLessonsComplete && c.state != StateQuizPending && c.state != StateRetaking:
		state := c.state
		c.mu.Unlock()
		return nil, errs.Errorf(errs.KindValidation, op, "cannot generate a quiz while %s", state)
	}

	resume := c.requested

	if !resume && c.quiz != nil {
		c.previous = c.quiz.ID
	}

	c.generating = true
	c.mu.Unlock()

	if resume {
		logger := log.Quiz("generate")
		logger.Debug().
			Uint64("course_id", c.course).
			Msg("Quiz was already requested. Waiting for it again.")
	} else if out := c.orch.GenerateQuiz(ctx, c.course); !out.Success {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()

		return nil, out.Err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generating = false
	c.requested = true
	previous := c.previous

	task := startPoll(ctx, c.course, c.interval, c.timeout, func(ctx context.Context) (*aggregate.QuizView, error) {
		return c.probe(ctx, previous)
	}, c.found)

	c.task = task
	c.setState(StateQuizPending)

	go c.release(task)

	return task, nil
}

// release forgets task once it stops without finding a quiz.
func (c *Controller) release(task *PollTask) {
	<-task.Done()

	c.mu.Lock()
	if c.task == task {
		c.task = nil
	}
	c.mu.Unlock()
}

func (c *Controller) probe(ctx context.Context, previous uint64) (*aggregate.QuizView, error) {
	id, err := c.reader().CurrentQuizID(ctx, c.account(), c.course)
	if err != nil || id == 0 || id == previous {
		return nil, err
	}

	view, report, err := c.agg.Quiz(ctx, id)
	if err != nil {
		return nil, err
	}

	if report.Partial() {
		return nil, report.Warning()
	}

	if len(view.Questions) == 0 || view.Submitted {
		return nil, nil
	}

	return view, nil
}

func (c *Controller) found(t *PollTask, view *aggregate.QuizView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task != t {
		return false
	}

	c.task = nil
	c.requested = false

	if c.quiz == nil || c.quiz.ID != view.ID {
		c.answers = make(map[uint64]uint64)
	}

	c.quiz = view
	c.result = nil
	c.setState(StateQuizAvailable)

	c.metrics.MarkQuizReady(time.Since(t.Started))

	return true
}

// Cancel stops waiting for a quiz. The controller stays QuizPending.
func (c *Controller) Cancel() {
	c.mu.Lock()
	t := c.task
	c.task = nil
	c.mu.Unlock()

	if t != nil {
		t.Cancel()
	}
}

// Answer records option as the answer to a question of the current quiz.
func (c *Controller) Answer(questionID, option uint64) error {
	const op = "answer"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateQuizAvailable {
		return errs.Errorf(errs.KindValidation, op, "no quiz to answer while %s", c.state)
	}

	for _, q := range c.quiz.Questions {
		if q.ID != questionID {
			continue
		}

		if option >= uint64(len(q.Options)) {
			return errs.Errorf(errs.KindValidation, op, "question %d has no option %d", questionID, option)
		}

		c.answers[questionID] = option

		return nil
	}

	return errs.Errorf(errs.KindValidation, op, "question %d is not part of quiz %d", questionID, c.quiz.ID)
}

// Submit sends the recorded answers. A quiz with unanswered questions is
// rejected without a network call.
func (c *Controller) Submit(ctx context.Context) (*Result, orchestrator.Outcome) {
	const op = "submit quiz"

	c.mu.Lock()

	if c.state != StateQuizAvailable {
		state := c.state
		c.mu.Unlock()

		return nil, failed(errs.Errorf(errs.KindValidation, op, "no quiz to submit while %s", state))
	}

	quiz := c.quiz
	answers := make([]uint64, 0, len(quiz.Questions))

	var missing []uint64

	for _, q := range quiz.Questions {
		a, ok := c.answers[q.ID]
		if !ok {
			missing = append(missing, q.ID)
			continue
		}

		answers = append(answers, a)
	}

	c.mu.Unlock()

	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return nil, failed(errs.Errorf(errs.KindValidation, op, "questions %v are unanswered", missing))
	}

	out := c.orch.SubmitQuiz(ctx, c.course, quiz.ID, answers)
	if !out.Success {
		return nil, out
	}

	ev := out.Events[0].(*ledger.QuizSubmitted)
	result := &Result{QuizID: ev.QuizID, Score: ev.Score, Passed: ev.Passed}

	if result.Passed != (result.Score >= c.passing) {
		logger := log.Quiz("submit")
		logger.Warn().
			Uint64("quiz_id", ev.QuizID).
			Uint64("score", ev.Score).
			Uint64("passing_score", c.passing).
			Bool("passed", ev.Passed).
			Msg("Ledger verdict disagrees with the configured passing score.")
	}

	c.mu.Lock()
	c.result = result
	c.setState(StateSubmitted)
	c.mu.Unlock()

	return result, out
}

// Retake requests a new quiz after a failed one.
func (c *Controller) Retake(ctx context.Context) (*PollTask, error) {
	const op = "retake quiz"

	c.mu.Lock()

	if c.state != StateSubmitted || c.result == nil || c.result.Passed {
		c.mu.Unlock()
		return nil, errs.New(errs.KindValidation, op, "only a failed quiz can be retaken")
	}

	c.setState(StateRetaking)
	c.mu.Unlock()

	task, err := c.Generate(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == StateRetaking {
			c.setState(StateSubmitted)
		}
		c.mu.Unlock()
	}

	return task, err
}

func failed(err error) orchestrator.Outcome {
	return orchestrator.Outcome{Kind: errs.KindOf(err), Err: err}
}
