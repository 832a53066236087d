// Package provider defines the debug-info provider contract consumed by the
// symbol and structure indexes.
package provider

import (
	"errors"
	"fmt"
	"iter"
)

// ErrUnavailable is wrapped by every Open failure: the database could not be
// opened or the decoding engine could not be initialized.
var ErrUnavailable = errors.New("debug info provider unavailable")

// MachineType is the target CPU recorded in the database. Values match the
// PE IMAGE_FILE_MACHINE_* constants.
type MachineType uint16

// Machine types
const (
	MachineUnknown MachineType = 0x0000
	MachineX86     MachineType = 0x014c
	MachineIA64    MachineType = 0x0200
	MachineARM     MachineType = 0x01c0
	MachineX64     MachineType = 0x8664
	MachineARM64   MachineType = 0xAA64
)

// String returns the short architecture name.
func (m MachineType) String() string {
	switch m {
	case MachineX86:
		return "x86"
	case MachineX64:
		return "x64"
	case MachineARM:
		return "ARM"
	case MachineARM64:
		return "ARM64"
	case MachineIA64:
		return "IA64"
	default:
		return "Unknown"
	}
}

// Description returns the human-readable label used in reports.
func (m MachineType) Description() string {
	switch m {
	case MachineX86:
		return "x86 (32-bit)"
	case MachineX64:
		return "x64 (64-bit)"
	case MachineUnknown:
		return "Unknown"
	default:
		if m.String() == "Unknown" {
			return fmt.Sprintf("Unknown (0x%04x)", uint16(m))
		}
		return m.String()
	}
}

// RawSymbol is a public symbol as yielded by a session.
type RawSymbol struct {
	Name   string
	RVA    uint64
	Size   uint64
	TypeID uint32
}

// RawMember is a data member of a user-defined type. Offset is signed as
// stored; consumers clamp negative values.
type RawMember struct {
	Name   string
	Offset int64
	Size   uint64
	TypeID uint32
}

// UDT is a user-defined type record (struct, class or union).
type UDT interface {
	Name() string
	Size() uint64
	// Members yields the type's data members in declaration order.
	Members() iter.Seq2[RawMember, error]
}

// Session is an opened debug database.
//
// Sequences are lazy, finite and restartable: every call starts a fresh walk.
// A non-nil error in a yielded pair marks a single malformed record; the walk
// continues with the next record.
type Session interface {
	Path() string
	MachineType() MachineType
	PublicSymbols() iter.Seq2[RawSymbol, error]
	UserDefinedTypes() iter.Seq2[UDT, error]
	Close() error
}

// Provider opens debug databases.
type Provider interface {
	Open(path string) (Session, error)
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(path string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, path)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
}
