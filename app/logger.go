package riverchat

import (
	"io"
	"log/slog"
	"path/filepath"
)

// NewLogger builds the application logger. Dev mode logs text with the
// source file, prod mode and format=json log JSON.
func NewLogger(w io.Writer, config *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.Mode == DevMode,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}

	if config.Log.Format == "json" || config.Mode == ProdMode {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
