package log

import (
	"github.com/rs/zerolog"
)

func init() { // nolint:gochecknoinits
	zerolog.MessageFieldName = "message"
	zerolog.LevelFieldName = "level"
	zerolog.ErrorFieldName = "error"

	setupChildLoggers()
}

// MarshalableEvent is implemented by values that know how to describe
// themselves on a log event.
type MarshalableEvent interface {
	// MarshalEvent sends the event as well.
	MarshalEvent(ev *zerolog.Event)
}

func LoggableTo(to *zerolog.Logger, level zerolog.Level, loggable MarshalableEvent) {
	EventTo(to.WithLevel(level), loggable)
}

func EventTo(ev *zerolog.Event, loggable MarshalableEvent) {
	loggable.MarshalEvent(ev)
}

func Info(logger *zerolog.Logger, loggable MarshalableEvent) {
	EventTo(logger.Info(), loggable)
}

func Debug(logger *zerolog.Logger, loggable MarshalableEvent) {
	EventTo(logger.Debug(), loggable)
}
