package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/perlin-network/academy/ledger"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/sys"
	"github.com/perlin-network/academy/wallet"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func devnet(c *cli.Context) error {
	logger := log.CLI("devnet")

	sim := ledger.NewSim(
		ledger.WithConfirmDelay(c.Duration("confirm.delay")),
		ledger.WithQuizDelay(c.Duration("quiz.delay")),
		ledger.WithQuestionsPerQuiz(c.Int("quiz.questions")),
	)

	for _, addr := range c.StringSlice("mint") {
		account, err := ledger.ParseAccountID(addr)
		if err != nil {
			return errors.Wrapf(err, "invalid --mint address %q", addr)
		}

		sim.Mint(account, c.Uint64("amount"))
	}

	if c.Bool("seed") {
		owner, err := seedCatalog(context.Background(), sim)
		if err != nil {
			return errors.Wrap(err, "failed to seed the catalog")
		}

		logger.Info().Str("owner", owner.String()).Msg("Seeded a sample catalog.")
	}

	srv := ledger.NewServer(sim)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(fmt.Sprintf(":%d", c.Uint("port")))
	}()

	logger.Info().
		Uint("port", c.Uint("port")).
		Str("market", sim.Market().String()).
		Str("token", sim.Token().String()).
		Msg("Devnet is up. Put the contract addresses in your config file.")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-errc:
		return err
	case <-signals:
	}

	logger.Info().Msg("Shutting down the devnet.")

	return srv.Shutdown()
}

type sampleCourse struct {
	title   string
	price   uint64
	tags    []string
	modules [][]string
}

var sampleCatalog = []sampleCourse{
	{
		title: "Introduction to Ledgers",
		tags:  []string{"beginner"},
		modules: [][]string{
			{"What is a ledger", "Accounts and balances"},
			{"Transactions", "Confirmation"},
		},
	},
	{
		title: "Smart Contract Design",
		price: 25,
		tags:  []string{"contracts", "advanced"},
		modules: [][]string{
			{"State and storage", "Events"},
			{"Allowances", "Reentrancy", "Testing"},
		},
	},
}

// seedCatalog creates the sample courses as a freshly generated instructor
// and returns its address.
func seedCatalog(ctx context.Context, sim *ledger.Sim) (ledger.AccountID, error) {
	owner, err := wallet.GenerateKeypair()
	if err != nil {
		return ledger.ZeroAccountID, err
	}

	do := func(method string, args ...interface{}) (*ledger.Receipt, error) {
		h, err := sim.Submit(ctx, ledger.NewCall(sim.Market(), method, args...), owner)
		if err != nil {
			return nil, err
		}

		r, err := sim.AwaitConfirmation(ctx, h)
		if err != nil {
			return nil, err
		}

		if r.Status != ledger.StatusConfirmed {
			return nil, errors.Errorf("%s was rejected: %s", method, r.Reason)
		}

		return r, nil
	}

	for _, sc := range sampleCatalog {
		r, err := do(sys.MethodCreateCourse, sc.title, "", sc.price,
			uint64(3600), uint64(100), uint64(0), []uint64{}, sc.tags)
		if err != nil {
			return ledger.ZeroAccountID, err
		}

		var course ledger.CourseCreated
		if err := r.Expect(&course); err != nil {
			return ledger.ZeroAccountID, err
		}

		for i, lessons := range sc.modules {
			r, err := do(sys.MethodAddModule, course.CourseID, fmt.Sprintf("Module %d", i+1), "", uint64(i+1))
			if err != nil {
				return ledger.ZeroAccountID, err
			}

			var module ledger.ModuleAdded
			if err := r.Expect(&module); err != nil {
				return ledger.ZeroAccountID, err
			}

			for j, title := range lessons {
				if _, err := do(sys.MethodAddLesson, module.ModuleID, title, "",
					sys.ContentText, "", uint64(600), uint64(j+1)); err != nil {
					return ledger.ZeroAccountID, err
				}
			}
		}
	}

	return owner.Address(), nil
}

func watch(c *cli.Context) error {
	logger := log.CLI("watch")

	var sender ledger.AccountID

	if c.NArg() > 0 {
		var err error
		if sender, err = argAccount(c, 0, "address"); err != nil {
			return err
		}
	}

	w := ledger.NewWatcher(ledger.PrimaryHTTPConfig())
	defer w.Close()

	if _, err := w.Transactions(sender, func(r *ledger.Receipt) {
		log.Info(&logger, r)
	}); err != nil {
		return errors.Wrap(err, "failed to connect to the node")
	}

	logger.Info().Msg("Watching transactions. Press Ctrl+C to stop.")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	<-signals

	return nil
}
