// Package log provides the structured logging port used by the master,
// the workers and the mwcontrol command.
//
// Components depend on the Logger interface only. The zerolog adapter is
// the production implementation; NoopLogger is used in tests and by
// library callers that do not want output.
//
//	logger := log.NewZerologAdapter(log.WithLevel(log.LevelDebug))
//	logger = logger.With(log.String("role", "worker"), log.String("host", host))
//	logger.Info("announced", log.Int32s("work_types", info.WorkTypes))
//
// The adapter's level can be changed while running with SetLevel, which is
// how a configuration reload takes effect.
package log
