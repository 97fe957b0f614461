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

package log

import (
	"io"

	"github.com/rs/zerolog"
)

var (
	output = &multiWriter{
		writers: make(map[string]io.Writer),
	}
	logger = zerolog.New(output).With().Timestamp().Logger()

	ledger    zerolog.Logger
	aggregate zerolog.Logger
	tx        zerolog.Logger
	quiz      zerolog.Logger
	tracker   zerolog.Logger
	cache     zerolog.Logger
	store     zerolog.Logger
	wallet    zerolog.Logger
	metrics   zerolog.Logger
	cli       zerolog.Logger
)

const (
	LoggerAcademy = "academy"
	LoggerFile    = "file"

	KeyModule = "mod"
	KeyEvent  = "event"

	ModuleLedger    = "ledger"
	ModuleAggregate = "aggregate"
	ModuleTX        = "tx"
	ModuleQuiz      = "quiz"
	ModuleTracker   = "tracker"
	ModuleCache     = "cache"
	ModuleStore     = "store"
	ModuleWallet    = "wallet"
	ModuleMetrics   = "metrics"
	ModuleCLI       = "cli"
)

func setupChildLoggers() {
	ledger = logger.With().Str(KeyModule, ModuleLedger).Logger()
	aggregate = logger.With().Str(KeyModule, ModuleAggregate).Logger()
	tx = logger.With().Str(KeyModule, ModuleTX).Logger()
	quiz = logger.With().Str(KeyModule, ModuleQuiz).Logger()
	tracker = logger.With().Str(KeyModule, ModuleTracker).Logger()
	cache = logger.With().Str(KeyModule, ModuleCache).Logger()
	store = logger.With().Str(KeyModule, ModuleStore).Logger()
	wallet = logger.With().Str(KeyModule, ModuleWallet).Logger()
	metrics = logger.With().Str(KeyModule, ModuleMetrics).Logger()
	cli = logger.With().Str(KeyModule, ModuleCLI).Logger()
}

// SetLevel applies a level such as "debug" or "warn" to every module logger.
// Unknown levels are ignored.
func SetLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return
	}

	logger = logger.Level(l)
	setupChildLoggers()
}

func SetWriter(key string, writer io.Writer) {
	output.Set(key, writer)
}

func RemoveWriter(key string) io.Writer {
	return output.Remove(key)
}

func Ledger(event string) zerolog.Logger {
	return ledger.With().Str(KeyEvent, event).Logger()
}

func Aggregate(event string) zerolog.Logger {
	return aggregate.With().Str(KeyEvent, event).Logger()
}

func TX(event string) zerolog.Logger {
	return tx.With().Str(KeyEvent, event).Logger()
}

func Quiz(event string) zerolog.Logger {
	return quiz.With().Str(KeyEvent, event).Logger()
}

func Tracker(event string) zerolog.Logger {
	return tracker.With().Str(KeyEvent, event).Logger()
}

func Cache(event string) zerolog.Logger {
	return cache.With().Str(KeyEvent, event).Logger()
}

func Store() zerolog.Logger {
	return store
}

func Wallet(event string) zerolog.Logger {
	return wallet.With().Str(KeyEvent, event).Logger()
}

func Metrics() zerolog.Logger {
	return metrics
}

func CLI(event string) zerolog.Logger {
	return cli.With().Str(KeyEvent, event).Logger()
}
