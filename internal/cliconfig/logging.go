package cliconfig

import (
	"io"

	"github.com/bft-labs/mwdispatch/pkg/log"
)

// Logger builds the process logger from cfg. An invalid level falls back to
// info; Validate reports it.
func Logger(cfg Config, w io.Writer) *log.ZerologAdapter {
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = log.LevelInfo
	}
	opts := []log.Option{log.WithLevel(lvl)}
	if w != nil {
		opts = append(opts, log.WithWriter(w))
	}
	if cfg.LogJSON {
		opts = append(opts, log.WithJSON())
	}
	return log.NewZerologAdapter(opts...)
}
