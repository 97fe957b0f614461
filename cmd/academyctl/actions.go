package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/perlin-network/academy"
	"github.com/perlin-network/academy/errs"
	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/metrics"
	"github.com/perlin-network/academy/orchestrator"
	"github.com/perlin-network/academy/wallet"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

type session struct {
	client *academy.Client
	logger zerolog.Logger

	metrics *metrics.Metrics
	cancel  context.CancelFunc
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close the local store.")
	}

	s.metrics.Stop()
	s.cancel()
}

// withSession dials the configured node before running fn. With
// needIdentity, a key file must be given.
func withSession(needIdentity bool, fn func(*cli.Context, *session) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithCancel(context.Background())

		s := &session{logger: log.CLI(c.Command.Name), cancel: cancel}

		if interval := c.GlobalDuration("metrics"); interval > 0 {
			s.metrics = metrics.NewMetrics(ctx, interval)
		}

		client, err := academy.Dial(c.GlobalString("store"), academy.WithMetrics(s.metrics))
		if err != nil {
			cancel()
			return err
		}

		s.client = client
		defer s.close()

		if path := c.GlobalString("keystore"); path != "" {
			keys, err := wallet.Load(path, c.GlobalString("password"))
			if err != nil {
				return errors.Wrapf(err, "failed to load the key file %q", path)
			}

			client.ConnectIdentity(keys)
		} else if needIdentity {
			return errs.New(errs.KindNoIdentity, c.Command.Name, "pass a key file with --keystore")
		}

		return fn(c, s)
	}
}

func argUint(c *cli.Context, i int, name string) (uint64, error) {
	if c.NArg() <= i {
		return 0, errors.Errorf("missing %s argument", name)
	}

	n, err := strconv.ParseUint(c.Args().Get(i), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", name, c.Args().Get(i))
	}

	return n, nil
}

func argAccount(c *cli.Context, i int, name string) (ledger.AccountID, error) {
	if c.NArg() <= i {
		return ledger.ZeroAccountID, errors.Errorf("missing %s argument", name)
	}

	return ledger.ParseAccountID(c.Args().Get(i))
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))

	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			if field == "" {
				continue
			}

			id, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid course ID %q", field)
			}

			ids = append(ids, id)
		}
	}

	return ids, nil
}

// warn logs a partial aggregation and swallows it. Any other error is
// returned.
func warn(logger zerolog.Logger, err error) error {
	if err == nil {
		return nil
	}

	if errs.Is(err, errs.KindPartialAggregationFailure) {
		logger.Warn().Err(err).Msg("Some records could not be loaded and were left out.")
		return nil
	}

	return err
}

func report(logger zerolog.Logger, out orchestrator.Outcome) error {
	if !out.Success {
		logger.Error().
			Str("kind", out.Kind.String()).
			Strs("steps", out.Steps).
			Err(out.Err).
			Msg("Transaction failed.")

		return out.Err
	}

	for _, ev := range out.Events {
		log.Info(&logger, ev)
	}

	logger.Info().
		Uint64("id", out.ID).
		Str("tx_id", out.TxID).
		Strs("steps", out.Steps).
		Msg("Transaction confirmed.")

	return nil
}

func status(c *cli.Context, s *session) error {
	ctx := context.Background()

	if err := s.client.CheckNetwork(ctx); err != nil {
		return err
	}

	ev := s.logger.Info().
		Uint64("chain_id", s.client.Facade().ExpectedChainID()).
		Str("market", s.client.Reader().Market.String()).
		Str("token", s.client.Reader().Token.String())

	if account := s.client.Account(); !account.IsZero() {
		balance, err := s.client.Reader().Balance(ctx, account)
		if err != nil {
			return err
		}

		ev = ev.Str("account", account.String()).Uint64("balance", balance)
	}

	ev.Msg("Connected to the ledger.")

	return nil
}

func catalog(c *cli.Context, s *session) error {
	courses, err := s.client.Catalog(context.Background())
	if err := warn(s.logger, err); err != nil {
		return err
	}

	for _, course := range courses {
		s.logger.Info().
			Uint64("id", course.ID).
			Str("title", course.Title).
			Uint64("price", course.Price).
			Uint64("enrollments", course.Enrollments).
			Bool("open", course.Open()).
			Strs("tags", course.Tags).
			Msg("")
	}

	s.logger.Info().Int("count", len(courses)).Msg("Listed the catalog.")

	return nil
}

func course(c *cli.Context, s *session) error {
	id, err := argUint(c, 0, "course ID")
	if err != nil {
		return err
	}

	view, err := s.client.ViewCourse(context.Background(), id)
	if err := warn(s.logger, err); err != nil {
		return err
	}

	log.Info(&s.logger, view.Course)

	for _, m := range view.Modules {
		s.logger.Info().Uint64("module_id", m.ID).Uint64("order", m.Order).Msg(m.Title)

		for _, l := range m.Lessons {
			s.logger.Info().
				Uint64("lesson_id", l.ID).
				Uint64("order", l.Order).
				Str("type", l.ContentType).
				Dur("duration", time.Duration(l.Duration)*time.Second).
				Msg("  " + l.Title)
		}
	}

	return nil
}

func instructor(c *cli.Context, s *session) error {
	account, err := argAccount(c, 0, "instructor address")
	if err != nil {
		return err
	}

	view, err := s.client.Instructor(context.Background(), account)
	if err := warn(s.logger, err); err != nil {
		return err
	}

	for _, course := range view.Courses {
		log.Info(&s.logger, course)
	}

	for _, r := range view.Reviews {
		s.logger.Info().
			Uint64("course_id", r.CourseID).
			Uint64("rating", r.Rating).
			Bool("verified", r.Verified).
			Msg(r.Comment)
	}

	s.logger.Info().
		Int("courses", len(view.Courses)).
		Int("reviews", len(view.Reviews)).
		Float64("average_rating", view.AverageRating).
		Msg("Instructor " + account.Short())

	return nil
}

func profile(c *cli.Context, s *session) error {
	var account ledger.AccountID

	if c.NArg() > 0 {
		var err error
		if account, err = argAccount(c, 0, "address"); err != nil {
			return err
		}
	}

	view, err := s.client.Profile(context.Background(), account)
	if err := warn(s.logger, err); err != nil {
		return err
	}

	shared, err := s.client.SharedCertificates(view.Account)
	if err != nil {
		return err
	}

	for _, cert := range view.Certificates {
		s.logger.Info().
			Uint64("certificate_id", cert.ID).
			Uint64("course_id", cert.CourseID).
			Bool("revoked", cert.Revoked).
			Bool("shared", contains(shared, cert.ID)).
			Time("issued_at", cert.IssuedAt).
			Msg("Certificate")
	}

	for _, a := range view.Achievements {
		s.logger.Info().
			Uint64("achievement_id", a.ID).
			Bool("earned", a.Earned).
			Uint64("xp", a.XPReward).
			Msg(a.Title)
	}

	s.logger.Info().
		Str("account", view.Account.String()).
		Uint64("balance", view.Balance).
		Msg("Profile")

	return nil
}

func contains(ids []uint64, id uint64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}

	return false
}

func progress(c *cli.Context, s *session) error {
	snapshot, err := s.client.Progress(context.Background())
	if err != nil {
		return err
	}

	for _, id := range snapshot.Enrolled {
		s.logger.Info().
			Uint64("course_id", id).
			Uint64("progress", snapshot.Progress[id]).
			Bool("completed", snapshot.IsCompleted(id)).
			Msg("")
	}

	last, err := s.client.LastViewedCourse()
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("enrolled", len(snapshot.Enrolled)).
		Int("completed", len(snapshot.Completed)).
		Uint64("last_viewed", last).
		Msg("Progress of " + snapshot.Account.Short())

	return nil
}

func enroll(c *cli.Context, s *session) error {
	id, err := argUint(c, 0, "course ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.Enroll(context.Background(), id))
}

func batchEnroll(c *cli.Context, s *session) error {
	ids, err := parseIDs(c.Args())
	if err != nil {
		return err
	}

	return report(s.logger, s.client.BatchEnroll(context.Background(), ids))
}

func fund(c *cli.Context, s *session) error {
	amount, err := argUint(c, 0, "amount")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.FundRewardPool(context.Background(), amount))
}

func review(c *cli.Context, s *session) error {
	instructor, err := argAccount(c, 0, "instructor address")
	if err != nil {
		return err
	}

	courseID, err := argUint(c, 1, "course ID")
	if err != nil {
		return err
	}

	rating, err := argUint(c, 2, "rating")
	if err != nil {
		return err
	}

	comment := strings.Join(c.Args().Tail()[2:], " ")

	return report(s.logger, s.client.SubmitReview(context.Background(), instructor, courseID, rating, comment))
}

func claimCertificate(c *cli.Context, s *session) error {
	id, err := argUint(c, 0, "course ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.ClaimCertificate(context.Background(), id))
}

func shareCertificate(shared bool) func(*cli.Context, *session) error {
	return func(c *cli.Context, s *session) error {
		id, err := argUint(c, 0, "certificate ID")
		if err != nil {
			return err
		}

		if err := s.client.ShareCertificate(context.Background(), id, shared); err != nil {
			return err
		}

		s.logger.Info().Uint64("certificate_id", id).Bool("shared", shared).Msg("Updated certificate visibility.")

		return nil
	}
}

func revokeCertificate(c *cli.Context, s *session) error {
	id, err := argUint(c, 0, "certificate ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.RevokeCertificate(context.Background(), id))
}

func claimAchievement(c *cli.Context, s *session) error {
	id, err := argUint(c, 0, "achievement ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.ClaimAchievement(context.Background(), id))
}

func createCourse(c *cli.Context, s *session) error {
	prerequisites, err := parseIDs(c.StringSlice("requires"))
	if err != nil {
		return err
	}

	created, out := s.client.CreateCourse(context.Background(), orchestrator.CourseDraft{
		Title:         c.String("title"),
		Description:   c.String("description"),
		Price:         c.Uint64("price"),
		Duration:      uint64(c.Duration("duration") / time.Second),
		XPReward:      c.Uint64("xp"),
		TokenReward:   c.Uint64("reward"),
		Prerequisites: prerequisites,
		Tags:          c.StringSlice("tag"),
	})

	if err := report(s.logger, out); err != nil {
		return err
	}

	if created != nil {
		log.Info(&s.logger, created)
	}

	return nil
}

func addModule(c *cli.Context, s *session) error {
	courseID, err := argUint(c, 0, "course ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.AddModule(context.Background(), courseID, orchestrator.ModuleDraft{
		Title:       c.String("title"),
		Description: c.String("description"),
		Order:       c.Uint64("order"),
	}))
}

func addLesson(c *cli.Context, s *session) error {
	moduleID, err := argUint(c, 0, "module ID")
	if err != nil {
		return err
	}

	return report(s.logger, s.client.AddLesson(context.Background(), moduleID, orchestrator.LessonDraft{
		Title:       c.String("title"),
		Description: c.String("description"),
		ContentType: c.String("type"),
		ContentURI:  c.String("uri"),
		Duration:    uint64(c.Duration("duration") / time.Second),
		Order:       c.Uint64("order"),
	}))
}

func setPaused(paused bool) func(*cli.Context, *session) error {
	return func(c *cli.Context, s *session) error {
		id, err := argUint(c, 0, "course ID")
		if err != nil {
			return err
		}

		return report(s.logger, s.client.SetCoursePaused(context.Background(), id, paused))
	}
}

func keygen(c *cli.Context) error {
	logger := log.CLI("keygen")

	if c.NArg() == 0 {
		return errors.New("missing key file argument")
	}

	path := c.Args().First()

	keys, err := wallet.GenerateKeypair()
	if err != nil {
		return err
	}

	var key interface{} = wallet.NewPlainTextKey(keys)

	if password := c.GlobalString("password"); password != "" {
		if key, err = wallet.NewEncryptedKey(keys, password); err != nil {
			return err
		}
	}

	if err := wallet.Write(path, key); err != nil {
		return errors.Wrapf(err, "failed to write the key file %q", path)
	}

	logger.Info().
		Str("address", keys.Address().String()).
		Str("path", path).
		Msg("Generated an identity.")

	return nil
}
