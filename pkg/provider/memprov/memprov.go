// Package memprov is an in-memory debug-info provider. It backs tests and
// lets callers index records that were decoded elsewhere.
package memprov

import (
	"errors"
	"iter"

	"github.com/jtang613/pdbscope/pkg/provider"
)

// ErrMalformed is yielded in place of records marked Bad.
var ErrMalformed = errors.New("malformed record")

// Symbol is a public symbol entry. Bad entries are yielded as decode errors.
type Symbol struct {
	provider.RawSymbol
	Bad bool
}

// Member is a struct member entry. Bad entries are yielded as decode errors.
type Member struct {
	provider.RawMember
	Bad bool
}

// Type is a user-defined type entry.
type Type struct {
	TypeName string
	TypeSize uint64
	Fields   []Member
	Bad      bool
}

// Name implements provider.UDT.
func (t *Type) Name() string { return t.TypeName }

// Size implements provider.UDT.
func (t *Type) Size() uint64 { return t.TypeSize }

// Members implements provider.UDT.
func (t *Type) Members() iter.Seq2[provider.RawMember, error] {
	return func(yield func(provider.RawMember, error) bool) {
		for _, f := range t.Fields {
			var err error
			if f.Bad {
				err = ErrMalformed
			}
			if !yield(f.RawMember, err) {
				return
			}
		}
	}
}

// Database is the content of one in-memory session.
type Database struct {
	Machine provider.MachineType
	Symbols []Symbol
	Types   []*Type
}

// Session serves a Database. It counts enumerations so tests can observe
// cache behavior.
type Session struct {
	path   string
	db     *Database
	closed bool

	SymbolScans int
	TypeScans   int
}

// NewSession returns a session over db.
func NewSession(path string, db *Database) *Session {
	if db == nil {
		db = &Database{}
	}
	return &Session{path: path, db: db}
}

// Path implements provider.Session.
func (s *Session) Path() string { return s.path }

// MachineType implements provider.Session.
func (s *Session) MachineType() provider.MachineType { return s.db.Machine }

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed }

// PublicSymbols implements provider.Session.
func (s *Session) PublicSymbols() iter.Seq2[provider.RawSymbol, error] {
	return func(yield func(provider.RawSymbol, error) bool) {
		s.SymbolScans++
		for _, sym := range s.db.Symbols {
			var err error
			if sym.Bad {
				err = ErrMalformed
			}
			if !yield(sym.RawSymbol, err) {
				return
			}
		}
	}
}

// UserDefinedTypes implements provider.Session.
func (s *Session) UserDefinedTypes() iter.Seq2[provider.UDT, error] {
	return func(yield func(provider.UDT, error) bool) {
		s.TypeScans++
		for _, t := range s.db.Types {
			if t.Bad {
				if !yield(nil, ErrMalformed) {
					return
				}
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}

// Close implements provider.Session.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// Provider opens sessions from a fixed path → database table. Paths missing
// from the table fail with provider.ErrUnavailable.
type Provider struct {
	Databases map[string]*Database
}

// Open implements provider.Provider.
func (p *Provider) Open(path string) (provider.Session, error) {
	db, ok := p.Databases[path]
	if !ok {
		return nil, provider.Unavailable(path, errors.New("no such database"))
	}
	return NewSession(path, db), nil
}

// Sym is shorthand for a well-formed symbol.
func Sym(name string, rva uint64) Symbol {
	return Symbol{RawSymbol: provider.RawSymbol{Name: name, RVA: rva}}
}

// Field is shorthand for a well-formed member.
func Field(name string, offset int64, size uint64) Member {
	return Member{RawMember: provider.RawMember{Name: name, Offset: offset, Size: size}}
}
