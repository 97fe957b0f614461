package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perlin-network/academy/aggregate"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/log"
	"github.com/pkg/errors"
)

// PollTask is a running wait for a requested quiz to appear. It finishes
// once the quiz is retrievable, when its timeout passes, or when it is
// cancelled. Finishing never advances the controller unless a quiz was
// found.
type PollTask struct {
	ID       uuid.UUID
	CourseID uint64
	Started  time.Time

	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	quiz *aggregate.QuizView
	err  error

	mu      sync.Mutex
	settled *aggregate.QuizView
}

// probe looks for the new quiz once. A nil view without an error means
// it is not there yet.
type probe func(ctx context.Context) (*aggregate.QuizView, error)

func startPoll(ctx context.Context, courseID uint64, interval, timeout time.Duration, check probe, found func(*PollTask, *aggregate.QuizView) bool) *PollTask {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	t := &PollTask{
		ID:       uuid.New(),
		CourseID: courseID,
		Started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go t.run(ctx, interval, check, found)

	return t
}

func (t *PollTask) run(ctx context.Context, interval time.Duration, check probe, found func(*PollTask, *aggregate.QuizView) bool) {
	defer close(t.done)
	defer t.cancel()

	logger := log.Quiz("poll")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		view, err := check(ctx)

		switch {
		case err != nil && ctx.Err() == nil:
			logger.Debug().
				Err(err).
				Str("task", t.ID.String()).
				Int("attempt", attempt).
				Msg("Quiz is not retrievable yet.")
		case view != nil:
			// A cancellation racing the last probe wins.
			if ctx.Err() == nil && found(t, view) {
				t.quiz = view

				logger.Info().
					Str("task", t.ID.String()).
					Uint64("quiz_id", view.ID).
					Int("attempt", attempt).
					Dur("waited", time.Since(t.Started)).
					Msg("Quiz is available.")

				return
			}
		}

		select {
		case <-ctx.Done():
			if view := t.settledQuiz(); view != nil {
				t.quiz = view

				logger.Info().
					Str("task", t.ID.String()).
					Uint64("quiz_id", view.ID).
					Dur("waited", time.Since(t.Started)).
					Msg("Quiz is available.")

				return
			}

			t.err = t.stopped(ctx.Err())

			logger.Warn().
				Err(t.err).
				Str("task", t.ID.String()).
				Int("attempts", attempt).
				Msg("Stopped waiting for quiz.")

			return
		case <-ticker.C:
		}
	}
}

func (t *PollTask) stopped(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Errorf(errs.KindQuizGenerationTimeout, "poll quiz",
			"no quiz for course %d after %s", t.CourseID, time.Since(t.Started).Round(time.Millisecond))
	}

	return errs.Wrap(errs.KindCancelled, "poll quiz", err)
}

// Wait blocks until the task finishes or ctx is done. Giving up on ctx
// does not cancel the task.
func (t *PollTask) Wait(ctx context.Context) (*aggregate.QuizView, error) {
	select {
	case <-t.done:
		return t.quiz, t.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindCancelled, "wait quiz", ctx.Err())
	}
}

// settle finishes the task with a quiz found outside of it. It does not
// wait for the task to stop.
func (t *PollTask) settle(view *aggregate.QuizView) {
	t.once.Do(func() {
		t.mu.Lock()
		t.settled = view
		t.mu.Unlock()

		t.cancel()
	})
}

func (t *PollTask) settledQuiz() *aggregate.QuizView {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.settled
}

// Cancel stops the task. It is safe to call more than once and after the
// task finished.
func (t *PollTask) Cancel() {
	t.once.Do(t.cancel)
	<-t.done
}

func (t *PollTask) Done() <-chan struct{} {
	return t.done
}
