package autosplit

import (
	"time"

	"github.com/sirupsen/logrus"
)

// EvaluatorLogEvent describes an evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Split    string
	Duration time.Duration
	Result   bool
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// LogrusEvaluatorLogger writes evaluations at trace level and failures at
// warn level.
type LogrusEvaluatorLogger struct {
	Log logrus.FieldLogger
}

// LogEvaluation implements EvaluatorLogger.
func (l LogrusEvaluatorLogger) LogEvaluation(event EvaluatorLogEvent) {
	if l.Log == nil {
		return
	}
	entry := l.Log.WithFields(logrus.Fields{
		"engine":   event.Engine,
		"split":    event.Split,
		"expr":     event.Expr,
		"duration": event.Duration,
	})
	if event.Err != nil {
		entry.WithError(event.Err).Warn("condition evaluation failed")
		return
	}
	entry.WithField("result", event.Result).Trace("condition evaluated")
}
