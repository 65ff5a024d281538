package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler used by New.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Deployment environments understood by WithEnvironment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type profile struct {
	level  slog.Level
	format Format
}

var profiles = map[string]profile{
	EnvDevelopment: {level: slog.LevelDebug, format: FormatText},
	EnvStaging:     {level: slog.LevelInfo, format: FormatJSON},
	EnvProduction:  {level: slog.LevelInfo, format: FormatJSON},
}

var envAliases = map[string]string{
	"dev":   EnvDevelopment,
	"local": EnvDevelopment,
	"stage": EnvStaging,
	"prod":  EnvProduction,
}

// Option configures New.
type Option func(*settings)

type settings struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(s *settings) { s.level = l }
}

// WithFormat panics on anything other than FormatJSON or FormatText.
func WithFormat(f Format) Option {
	if f != FormatJSON && f != FormatText {
		panic(fmt.Errorf("logger: unknown format %q", f))
	}
	return func(s *settings) { s.format = f }
}

// WithOutput redirects records. A nil writer keeps stdout.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

// WithAttr attaches attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(s *settings) { s.attrs = append(s.attrs, attrs...) }
}

// WithContextExtractors registers extractors evaluated on every record.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(s *settings) {
		for _, ex := range extractors {
			if ex != nil {
				s.extractors = append(s.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies the level and format preset of env and tags records
// with the service and normalized environment names. Unknown environments fall
// back to development.
func WithEnvironment(env, service string) Option {
	env = NormalizeEnv(env)
	p := profiles[env]
	return func(s *settings) {
		s.level = p.level
		s.format = p.format
		if service != "" {
			s.attrs = append(s.attrs, slog.String("service", service))
		}
		s.attrs = append(s.attrs, slog.String("env", env))
	}
}

// NormalizeEnv maps aliases such as "prod" to the canonical environment name.
func NormalizeEnv(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if alias, ok := envAliases[env]; ok {
		return alias
	}
	if _, ok := profiles[env]; ok {
		return env
	}
	return EnvDevelopment
}

// ParseLevel maps a LOG_LEVEL value to slog.Level, falling back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// New builds a logger. Without options it writes JSON at info level to stdout.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := &slog.HandlerOptions{Level: s.level}
	var h slog.Handler
	if s.format == FormatText {
		h = slog.NewTextHandler(s.output, handlerOpts)
	} else {
		h = slog.NewJSONHandler(s.output, handlerOpts)
	}
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}
	if len(s.extractors) > 0 {
		h = &contextHandler{Handler: h, extractors: s.extractors}
	}
	return slog.New(h)
}
