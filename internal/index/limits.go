package index

import "github.com/rs/zerolog"

// Default resource caps. They bound the work done on oversized or corrupt
// databases.
const (
	DefaultMaxSymbols     = 5000
	DefaultMaxMatches     = 200
	DefaultMaxStructNames = 1000
	DefaultMaxMembers     = 100
)

// Limits caps how many records an enumeration retains.
type Limits struct {
	// MaxSymbols caps BuildFull and Preload.
	MaxSymbols int `yaml:"max_symbols" env:"PDBSCOPE_MAX_SYMBOLS"`
	// MaxMatches caps pattern search results.
	MaxMatches int `yaml:"max_matches" env:"PDBSCOPE_MAX_MATCHES"`
	// MaxStructNames caps the structure name listing.
	MaxStructNames int `yaml:"max_struct_names" env:"PDBSCOPE_MAX_STRUCT_NAMES"`
	// MaxMembers caps the members kept per structure.
	MaxMembers int `yaml:"max_members" env:"PDBSCOPE_MAX_MEMBERS"`
}

// DefaultLimits returns the default caps.
func DefaultLimits() Limits {
	return Limits{
		MaxSymbols:     DefaultMaxSymbols,
		MaxMatches:     DefaultMaxMatches,
		MaxStructNames: DefaultMaxStructNames,
		MaxMembers:     DefaultMaxMembers,
	}
}

// withDefaults replaces non-positive caps with their defaults.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxSymbols <= 0 {
		l.MaxSymbols = d.MaxSymbols
	}
	if l.MaxMatches <= 0 {
		l.MaxMatches = d.MaxMatches
	}
	if l.MaxStructNames <= 0 {
		l.MaxStructNames = d.MaxStructNames
	}
	if l.MaxMembers <= 0 {
		l.MaxMembers = d.MaxMembers
	}
	return l
}

type options struct {
	limits Limits
	logger zerolog.Logger
}

// Option configures a SymbolIndex or StructIndex.
type Option func(*options)

// WithLimits sets the resource caps. Non-positive fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(o *options) {
		o.limits = l.withDefaults()
	}
}

// WithLogger sets the logger used for skipped-record diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		limits: DefaultLimits(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
