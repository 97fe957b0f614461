package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/quiz"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

const (
	vtRed   = "\033[31m"
	vtReset = "\033[39m"
	prompt  = "»»»"
)

// shell drives a quiz controller from a readline prompt.
type shell struct {
	app    *cli.App
	rl     *readline.Instance
	ctrl   *quiz.Controller
	logger zerolog.Logger

	ctx context.Context
}

func quizShell(stdin io.ReadCloser, stdout io.Writer) func(*cli.Context, *session) error {
	return func(c *cli.Context, s *session) error {
		courseID, err := argUint(c, 0, "course ID")
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ctrl, err := s.client.Quiz(ctx, courseID)
		if err := warn(s.logger, err); err != nil {
			return err
		}

		sh, err := newShell(ctx, ctrl, stdin, stdout)
		if err != nil {
			return err
		}

		sh.showStatus(nil)
		sh.Start()

		return nil
	}
}

func newShell(ctx context.Context, ctrl *quiz.Controller, stdin io.ReadCloser, stdout io.Writer) (*shell, error) {
	sh := &shell{
		app:    cli.NewApp(),
		ctrl:   ctrl,
		logger: log.CLI("quiz"),
		ctx:    ctx,
	}

	sh.app.Name = "quiz"
	sh.app.HideVersion = true
	sh.app.UsageText = "command [arguments...]"
	sh.app.Writer = stdout
	sh.app.CommandNotFound = func(ctx *cli.Context, s string) {
		sh.logger.Error().Msg("Unknown command: " + s)
	}

	sh.app.Commands = []cli.Command{
		{
			Name:        "status",
			Aliases:     []string{"s"},
			Action:      a(sh.showStatus),
			Description: "print the lesson and quiz state of the course",
		},
		{
			Name:        "refresh",
			Aliases:     []string{"r"},
			Action:      a(sh.refresh),
			Description: "reload the state from the ledger",
		},
		{
			Name:        "complete",
			Aliases:     []string{"c"},
			Usage:       "LESSON_ID",
			Action:      a(sh.complete),
			Description: "mark a lesson as completed",
		},
		{
			Name:        "generate",
			Aliases:     []string{"g"},
			Action:      a(sh.generate),
			Description: "request a quiz once every lesson is completed",
		},
		{
			Name:        "show",
			Action:      a(sh.show),
			Description: "print the questions of the available quiz",
		},
		{
			Name:        "answer",
			Aliases:     []string{"a"},
			Usage:       "QUESTION OPTION",
			Action:      a(sh.answer),
			Description: "select an option for a question",
		},
		{
			Name:        "submit",
			Action:      a(sh.submit),
			Description: "submit the answers of the quiz",
		},
		{
			Name:        "retake",
			Action:      a(sh.retake),
			Description: "request a new quiz after failing one",
		},
		{
			Name:        "cancel",
			Action:      a(sh.cancelPoll),
			Description: "stop waiting for a requested quiz",
		},
		{
			Name:    "exit",
			Aliases: []string{"quit", ":q"},
			Action:  a(sh.exit),
		},
	}

	// Generate the help message
	s := strings.Builder{}
	s.WriteString("Commands:\n")
	w := tabwriter.NewWriter(&s, 0, 0, 1, ' ', 0)

	for _, c := range sh.app.VisibleCommands() {
		_, err := fmt.Fprintf(w,
			"    %s (%s) %s\t%s\n",
			c.Name, strings.Join(c.Aliases, ", "), c.Usage,
			c.Description,
		)
		if err != nil {
			return nil, err
		}
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}

	sh.app.CustomAppHelpTemplate = s.String()

	completers := make([]readline.PrefixCompleterInterface, 0, len(sh.app.Commands)*2)

	for _, cmd := range sh.app.Commands {
		completers = append(completers, readline.PcItem(cmd.Name))

		for _, alias := range cmd.Aliases {
			completers = append(completers, readline.PcItem(alias))
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            vtRed + prompt + vtReset + " ",
		AutoComplete:      readline.NewPrefixCompleter(completers...),
		HistoryFile:       filepath.Join(os.TempDir(), "academyctl-history.tmp"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             stdin,
		Stdout:            stdout,
	})
	if err != nil {
		return nil, err
	}

	sh.rl = rl

	log.SetWriter(log.LoggerAcademy, log.NewConsoleWriter(rl.Stdout(), false))

	return sh, nil
}

func (sh *shell) Start() {
ReadLoop:
	for {
		line, err := sh.rl.Readline()
		switch err {
		case readline.ErrInterrupt:
			if len(line) == 0 {
				break ReadLoop
			}

			continue ReadLoop

		case io.EOF:
			break ReadLoop
		}

		r := csv.NewReader(strings.NewReader(line))
		r.Comma = ' '

		s, err := r.Read()
		if err != nil {
			s = strings.Fields(line)
		}

		// Add an app name as $0
		s = append([]string{sh.app.Name}, s...)

		if err := sh.app.Run(s); err != nil {
			sh.logger.Error().Err(err).Msg("Failed to run command.")
		}
	}

	sh.ctrl.Cancel()
	_ = sh.rl.Close()
}

// await reports the outcome of a poll task in the background.
func (sh *shell) await(task *quiz.PollTask) {
	if task == nil {
		return
	}

	sh.logger.Info().Str("task", task.ID.String()).Msg("Waiting for the quiz to be generated...")

	go func() {
		view, err := task.Wait(sh.ctx)
		if err != nil {
			sh.logger.Warn().Err(err).Str("task", task.ID.String()).Msg("Stopped waiting for the quiz.")
			return
		}

		sh.logger.Info().
			Uint64("quiz_id", view.ID).
			Int("questions", len(view.Questions)).
			Msg("Your quiz is ready. Type `show` to see it.")
	}()
}

func (sh *shell) showStatus(ctx *cli.Context) {
	st := sh.ctrl.Status()

	ev := sh.logger.Info().
		Uint64("course_id", sh.ctrl.CourseID()).
		Str("state", st.State.String()).
		Int("lessons_completed", st.CompletedLessons).
		Int("lessons_total", st.TotalLessons)

	if st.Quiz != nil {
		ev = ev.Uint64("quiz_id", st.Quiz.ID).
			Int("questions", len(st.Quiz.Questions)).
			Int("answered", len(st.Answers))
	}

	if st.Result != nil {
		ev = ev.Uint64("score", st.Result.Score).Bool("passed", st.Result.Passed)
	}

	ev.Msg("Quiz status.")
}

func (sh *shell) refresh(ctx *cli.Context) {
	if err := sh.ctrl.Refresh(sh.ctx); err != nil {
		sh.logger.Error().Err(err).Msg("Failed to refresh.")
		return
	}

	sh.showStatus(ctx)
}

func (sh *shell) complete(ctx *cli.Context) {
	id, err := argUint(ctx, 0, "lesson ID")
	if err != nil {
		sh.logger.Error().Err(err).Msg("")
		return
	}

	task, out := sh.ctrl.CompleteLesson(sh.ctx, id)
	if err := report(sh.logger, out); err != nil {
		return
	}

	sh.await(task)
}

func (sh *shell) generate(ctx *cli.Context) {
	task, err := sh.ctrl.Generate(sh.ctx)
	if err != nil {
		sh.logger.Error().Err(err).Msg("Failed to request a quiz.")
		return
	}

	sh.await(task)
}

func (sh *shell) show(ctx *cli.Context) {
	st := sh.ctrl.Status()
	if st.Quiz == nil {
		sh.logger.Warn().Str("state", st.State.String()).Msg("No quiz is available.")
		return
	}

	var b strings.Builder

	for i, q := range st.Quiz.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q.Text)

		for j, option := range q.Options {
			marker := " "
			if a, ok := st.Answers[q.ID]; ok && a == uint64(j) {
				marker = "*"
			}

			fmt.Fprintf(&b, "   %s %d) %s\n", marker, j, option)
		}
	}

	_, _ = io.WriteString(sh.rl.Stdout(), b.String())
}

func (sh *shell) answer(ctx *cli.Context) {
	if err := sh.doAnswer(ctx); err != nil {
		sh.logger.Error().Err(err).Msg("Failed to record the answer.")
	}
}

func (sh *shell) doAnswer(ctx *cli.Context) error {
	st := sh.ctrl.Status()
	if st.Quiz == nil {
		return errors.New("no quiz is available")
	}

	number, err := argUint(ctx, 0, "question number")
	if err != nil {
		return err
	}

	if number == 0 || number > uint64(len(st.Quiz.Questions)) {
		return errors.Errorf("question number must be between 1 and %d", len(st.Quiz.Questions))
	}

	option, err := strconv.ParseUint(ctx.Args().Get(1), 10, 64)
	if err != nil {
		return errors.Wrap(err, "invalid option")
	}

	return sh.ctrl.Answer(st.Quiz.Questions[number-1].ID, option)
}

func (sh *shell) submit(ctx *cli.Context) {
	result, out := sh.ctrl.Submit(sh.ctx)
	if err := report(sh.logger, out); err != nil {
		return
	}

	msg := "You did not pass. Type `retake` to request a new quiz."
	if result.Passed {
		msg = "You passed! Claim your certificate with `academyctl certificate claim`."
	}

	sh.logger.Info().Uint64("score", result.Score).Bool("passed", result.Passed).Msg(msg)
}

func (sh *shell) retake(ctx *cli.Context) {
	task, err := sh.ctrl.Retake(sh.ctx)
	if err != nil {
		sh.logger.Error().Err(err).Msg("Failed to request a new quiz.")
		return
	}

	sh.await(task)
}

func (sh *shell) cancelPoll(ctx *cli.Context) {
	sh.ctrl.Cancel()
	sh.showStatus(ctx)
}

func (sh *shell) exit(ctx *cli.Context) {
	_ = sh.rl.Close()
}

func a(f func(*cli.Context)) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		f(ctx)
		return nil
	}
}
