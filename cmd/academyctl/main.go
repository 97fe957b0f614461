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

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/perlin-network/academy/conf"
	"github.com/perlin-network/academy/log"
	"github.com/perlin-network/academy/sys"
	"github.com/urfave/cli"
)

func main() {
	app := newApp(os.Stdin, os.Stdout)

	if err := app.Run(os.Args); err != nil {
		logger := log.CLI("exit")
		logger.Fatal().Err(err).Msg("Failed to run command.")
	}
}

func newApp(stdin io.ReadCloser, stdout io.Writer) *cli.App {
	app := cli.NewApp()

	app.Name = "academyctl"
	app.Author = "Perlin Network"
	app.Email = "support@perlin.net"
	app.Version = sys.Version
	app.Usage = "a cli client for the course marketplace ledger"
	app.Writer = stdout

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "YAML, TOML or JSON configuration `FILE`",
			EnvVar: "ACADEMY_CONFIG",
		},
		cli.StringFlag{
			Name:  "keystore, k",
			Usage: "key `FILE` of the identity to sign with",
		},
		cli.StringFlag{
			Name:   "password, p",
			Usage:  "password of an encrypted key file",
			EnvVar: "ACADEMY_PASSWORD",
		},
		cli.StringFlag{
			Name:  "store, s",
			Usage: "`DIR` of the local preferences database; empty keeps them in memory",
		},
		cli.StringFlag{
			Name:  "loglevel, l",
			Value: "info",
			Usage: "minimum log `LEVEL` (debug, info, warn, error)",
		},
		cli.StringFlag{
			Name:  "logfile",
			Usage: "also write JSON logs to `FILE`",
		},
		cli.BoolFlag{
			Name:  "nocolor",
			Usage: "disable colored console output",
		},
		cli.DurationFlag{
			Name:  "metrics",
			Usage: "log client metrics every `INTERVAL`; 0 disables",
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "Version: %s\n", c.App.Version)
		fmt.Fprintf(c.App.Writer, "Go Version: %s\n", sys.GoVersion)
		fmt.Fprintf(c.App.Writer, "Git Commit: %s\n", sys.GitCommit)
		fmt.Fprintf(c.App.Writer, "Built: %s\n", sys.BuiltTime)
	}

	app.Before = func(c *cli.Context) error {
		opts, err := conf.LoadFile(c.String("config"))
		if err != nil {
			return err
		}

		conf.Update(opts...)

		log.SetWriter(log.LoggerAcademy, log.NewConsoleWriter(stdout, c.Bool("nocolor")))
		log.SetLevel(c.String("loglevel"))

		if path := c.String("logfile"); path != "" {
			log.SetWriter(log.LoggerFile, log.NewFileWriter(log.FileConfig{Path: path, MaxBackups: 3}))
		}

		return nil
	}

	app.After = func(c *cli.Context) error {
		if w, ok := log.RemoveWriter(log.LoggerFile).(io.Closer); ok {
			return w.Close()
		}

		return nil
	}

	app.Commands = commands(stdin, stdout)

	return app
}

func commands(stdin io.ReadCloser, stdout io.Writer) []cli.Command {
	return []cli.Command{
		{
			Name:        "status",
			Aliases:     []string{"st"},
			Action:      withSession(false, status),
			Description: "check the network and print the connected account",
		},
		{
			Name:        "catalog",
			Aliases:     []string{"ls"},
			Action:      withSession(false, catalog),
			Description: "list every course on the marketplace",
		},
		{
			Name:        "course",
			ArgsUsage:   "COURSE_ID",
			Action:      withSession(false, course),
			Description: "print a course with its modules and lessons",
		},
		{
			Name:        "instructor",
			ArgsUsage:   "ADDRESS",
			Action:      withSession(false, instructor),
			Description: "print the courses and reviews of an instructor",
		},
		{
			Name:        "profile",
			ArgsUsage:   "[ADDRESS]",
			Action:      withSession(false, profile),
			Description: "print the balance, certificates and achievements of an account",
		},
		{
			Name:        "progress",
			Aliases:     []string{"pr"},
			Action:      withSession(true, progress),
			Description: "print the enrollments and progress of the connected account",
		},
		{
			Name:        "enroll",
			Aliases:     []string{"e"},
			ArgsUsage:   "COURSE_ID",
			Action:      withSession(true, enroll),
			Description: "enroll in a course, paying its price",
		},
		{
			Name:        "batch-enroll",
			Aliases:     []string{"be"},
			ArgsUsage:   "COURSE_ID [COURSE_ID...]",
			Action:      withSession(true, batchEnroll),
			Description: "enroll in several courses with one allowance grant",
		},
		{
			Name:        "fund",
			ArgsUsage:   "AMOUNT",
			Action:      withSession(true, fund),
			Description: "deposit reward tokens into the marketplace reward pool",
		},
		{
			Name:        "quiz",
			Aliases:     []string{"q"},
			ArgsUsage:   "COURSE_ID",
			Action:      withSession(true, quizShell(stdin, stdout)),
			Description: "open an interactive shell to complete lessons and take the course quiz",
		},
		{
			Name:        "review",
			ArgsUsage:   "INSTRUCTOR COURSE_ID RATING [COMMENT...]",
			Action:      withSession(true, review),
			Description: "review the instructor of a course you are enrolled in",
		},
		{
			Name:  "certificate",
			Usage: "claim, share or revoke certificates",
			Subcommands: []cli.Command{
				{
					Name:      "claim",
					ArgsUsage: "COURSE_ID",
					Action:    withSession(true, claimCertificate),
				},
				{
					Name:      "share",
					ArgsUsage: "CERTIFICATE_ID",
					Action:    withSession(true, shareCertificate(true)),
				},
				{
					Name:      "unshare",
					ArgsUsage: "CERTIFICATE_ID",
					Action:    withSession(true, shareCertificate(false)),
				},
				{
					Name:      "revoke",
					ArgsUsage: "CERTIFICATE_ID",
					Action:    withSession(true, revokeCertificate),
				},
			},
		},
		{
			Name:        "achievement",
			ArgsUsage:   "ACHIEVEMENT_ID",
			Action:      withSession(true, claimAchievement),
			Description: "claim an achievement the connected account qualifies for",
		},
		{
			Name:  "author",
			Usage: "create and edit courses you own",
			Subcommands: []cli.Command{
				{
					Name:   "create",
					Action: withSession(true, createCourse),
					Flags: []cli.Flag{
						cli.StringFlag{Name: "title"},
						cli.StringFlag{Name: "description"},
						cli.Uint64Flag{Name: "price"},
						cli.DurationFlag{Name: "duration", Value: time.Hour},
						cli.Uint64Flag{Name: "xp"},
						cli.Uint64Flag{Name: "reward"},
						cli.StringSliceFlag{Name: "tag"},
						cli.StringSliceFlag{Name: "requires", Usage: "prerequisite course IDs"},
					},
				},
				{
					Name:      "module",
					ArgsUsage: "COURSE_ID",
					Action:    withSession(true, addModule),
					Flags: []cli.Flag{
						cli.StringFlag{Name: "title"},
						cli.StringFlag{Name: "description"},
						cli.Uint64Flag{Name: "order"},
					},
				},
				{
					Name:      "lesson",
					ArgsUsage: "MODULE_ID",
					Action:    withSession(true, addLesson),
					Flags: []cli.Flag{
						cli.StringFlag{Name: "title"},
						cli.StringFlag{Name: "description"},
						cli.StringFlag{Name: "type", Value: "text"},
						cli.StringFlag{Name: "uri"},
						cli.DurationFlag{Name: "duration", Value: 10 * time.Minute},
						cli.Uint64Flag{Name: "order"},
					},
				},
				{
					Name:      "pause",
					ArgsUsage: "COURSE_ID",
					Action:    withSession(true, setPaused(true)),
				},
				{
					Name:      "resume",
					ArgsUsage: "COURSE_ID",
					Action:    withSession(true, setPaused(false)),
				},
			},
		},
		{
			Name:        "watch",
			Aliases:     []string{"w"},
			ArgsUsage:   "[ADDRESS]",
			Action:      watch,
			Description: "stream transaction receipts from the node, optionally for one sender",
		},
		{
			Name:        "devnet",
			Action:      devnet,
			Description: "serve an in-memory ledger over the node HTTP API for local development",
			Flags: []cli.Flag{
				cli.UintFlag{Name: "port", Value: uint(conf.GetAPIPort())},
				cli.DurationFlag{Name: "confirm.delay", Value: 500 * time.Millisecond},
				cli.DurationFlag{Name: "quiz.delay", Value: 3 * time.Second},
				cli.IntFlag{Name: "quiz.questions", Value: 5},
				cli.BoolFlag{Name: "seed", Usage: "create a sample catalog"},
				cli.StringSliceFlag{Name: "mint", Usage: "`ADDRESS` to credit with reward tokens"},
				cli.Uint64Flag{Name: "amount", Value: 1000, Usage: "tokens credited to each --mint address"},
			},
		},
		{
			Name:        "keygen",
			ArgsUsage:   "FILE",
			Action:      keygen,
			Description: "generate an identity and write it to a key file, encrypted if a password is given",
		},
	}
}
