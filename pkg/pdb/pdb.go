package pdb

import (
	"debug/pe"
	"fmt"
	"iter"
	"sync"

	"fortio.org/safecast"

	"github.com/jtang613/pdbscope/pkg/pdb/codeview"
	"github.com/jtang613/pdbscope/pkg/pdb/msf"
	"github.com/jtang613/pdbscope/pkg/pdb/streams"
	"github.com/jtang613/pdbscope/pkg/provider"
)

// Stream indices
const (
	StreamPDB = 1 // PDB info stream
	StreamTPI = 2 // Type info stream
	StreamDBI = 3 // Debug info stream
)

// PDB is an opened PDB file. It implements provider.Session.
type PDB struct {
	path     string
	msf      *msf.File
	pdbInfo  *streams.PDBInfo
	dbi      *streams.DBI
	tpi      *streams.TPI
	types    *codeview.TypeTable
	sections []pe.SectionHeader32

	symOnce sync.Once
	symData []byte
	symErr  error

	procOnce sync.Once
	procs    map[uint64]procInfo
}

type procInfo struct {
	size      uint64
	typeIndex uint32
}

var _ provider.Session = (*PDB)(nil)

// Open opens a PDB file and decodes its info, DBI and type streams.
func Open(path string) (*PDB, error) {
	m, err := msf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}
	p, err := load(path, m)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return p, nil
}

func load(path string, m *msf.File) (*PDB, error) {
	p := &PDB{path: path, msf: m}

	data, err := m.ReadStream(StreamPDB)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDB info stream: %w", err)
	}
	if p.pdbInfo, err = streams.ReadPDBInfo(data); err != nil {
		return nil, err
	}

	if data, err = m.ReadStream(StreamDBI); err != nil {
		return nil, fmt.Errorf("failed to read DBI stream: %w", err)
	}
	if p.dbi, err = streams.ReadDBI(data); err != nil {
		return nil, err
	}

	if data, err = m.ReadStream(StreamTPI); err != nil {
		return nil, fmt.Errorf("failed to read TPI stream: %w", err)
	}
	if p.tpi, err = streams.ReadTPI(data); err != nil {
		return nil, err
	}
	p.types = codeview.NewTypeTable(p.tpi)

	// without section headers, symbol offsets stand in for RVAs
	if idx, ok := p.dbi.SectionHeaderStream(); ok {
		if data, err := m.ReadStream(idx); err == nil {
			p.sections, _ = streams.ReadSectionHeaders(data)
		}
	}
	return p, nil
}

// Close closes the PDB file.
func (p *PDB) Close() error {
	if p.msf != nil {
		return p.msf.Close()
	}
	return nil
}

// Path returns the path the file was opened from.
func (p *PDB) Path() string { return p.path }

// MachineType returns the target CPU recorded in the DBI header.
func (p *PDB) MachineType() provider.MachineType {
	return provider.MachineType(p.dbi.Header.Machine)
}

// Info returns basic PDB file information.
func (p *PDB) Info() *Info {
	info := &Info{
		GUID:         p.pdbInfo.GUID,
		Age:          p.pdbInfo.Age,
		Signature:    p.pdbInfo.Signature,
		Version:      p.pdbInfo.Version,
		Machine:      p.MachineType(),
		Streams:      p.msf.NumStreams(),
		BlockSize:    p.msf.BlockSize(),
		NamedStreams: p.pdbInfo.NamedStreams,
		Types:        len(p.tpi.Records),
	}
	for _, mod := range p.dbi.Modules {
		info.Modules = append(info.Modules, Module{
			Name:         mod.ModuleName,
			ObjectFile:   mod.ObjFileName,
			SymbolStream: mod.ModuleSymStream,
			SymbolSize:   mod.SymByteSize,
		})
	}
	for i, sh := range p.sections {
		info.Sections = append(info.Sections, Section{
			Index:  uint16(i + 1),
			Name:   sectionName(sh.Name),
			RVA:    sh.VirtualAddress,
			Length: sh.VirtualSize,
		})
	}
	return info
}

// rva maps a segment:offset address to a relative virtual address.
func (p *PDB) rva(seg uint16, off uint32) (uint64, error) {
	if len(p.sections) == 0 {
		return uint64(off), nil
	}
	if seg == 0 || int(seg) > len(p.sections) {
		return 0, fmt.Errorf("segment %d out of range [1, %d]", seg, len(p.sections))
	}
	return uint64(p.sections[seg-1].VirtualAddress) + uint64(off), nil
}

func (p *PDB) symbolRecords() ([]byte, error) {
	p.symOnce.Do(func() {
		idx := p.dbi.Header.SymRecordStream
		if idx == streams.NoStream {
			return
		}
		p.symData, p.symErr = p.msf.ReadStream(int(idx))
		if p.symErr != nil {
			p.symErr = fmt.Errorf("failed to read symbol record stream: %w", p.symErr)
		}
	})
	return p.symData, p.symErr
}

// procedures indexes procedure records of every module by RVA. The first
// record at an address wins.
func (p *PDB) procedures() map[uint64]procInfo {
	p.procOnce.Do(func() {
		p.procs = make(map[uint64]procInfo)
		for _, mod := range p.dbi.Modules {
			if !mod.HasSymbols() {
				continue
			}
			data, err := p.msf.ReadStream(int(mod.ModuleSymStream))
			if err != nil {
				continue
			}
			for rec, err := range codeview.ModuleRecords(data, mod.SymByteSize) {
				if err != nil {
					break
				}
				if !codeview.IsProcSymbol(rec.Kind) {
					continue
				}
				proc, err := codeview.ParseProcSym(rec.Data)
				if err != nil {
					continue
				}
				addr, err := p.rva(proc.Segment, proc.Offset)
				if err != nil {
					continue
				}
				if _, seen := p.procs[addr]; !seen {
					p.procs[addr] = procInfo{size: uint64(proc.Length), typeIndex: proc.TypeIndex}
				}
			}
		}
	})
	return p.procs
}

// PublicSymbols yields the S_PUB32 records of the symbol record stream with
// undecorated names. Size and type come from the procedure at the same RVA.
func (p *PDB) PublicSymbols() iter.Seq2[provider.RawSymbol, error] {
	return func(yield func(provider.RawSymbol, error) bool) {
		data, err := p.symbolRecords()
		if err != nil {
			yield(provider.RawSymbol{}, err)
			return
		}
		procs := p.procedures()

		for rec, err := range codeview.Records(data) {
			if err != nil {
				yield(provider.RawSymbol{}, err)
				return
			}
			if rec.Kind != codeview.S_PUB32 {
				continue
			}
			pub, err := codeview.ParsePubSym(rec.Data)
			if err != nil {
				if !yield(provider.RawSymbol{}, err) {
					return
				}
				continue
			}
			addr, err := p.rva(pub.Segment, pub.Offset)
			if err != nil {
				if !yield(provider.RawSymbol{}, fmt.Errorf("public symbol %q: %w", pub.Name, err)) {
					return
				}
				continue
			}
			sym := provider.RawSymbol{Name: Undecorate(pub.Name), RVA: addr}
			if proc, ok := procs[addr]; ok {
				sym.Size = proc.size
				sym.TypeID = proc.typeIndex
			}
			if !yield(sym, nil) {
				return
			}
		}
	}
}

// UserDefinedTypes yields the complete class, structure and union records.
// Forward references and unnamed types are skipped.
func (p *PDB) UserDefinedTypes() iter.Seq2[provider.UDT, error] {
	return func(yield func(provider.UDT, error) bool) {
		for u, err := range p.types.UDTs() {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if u.ForwardRef || u.Name == "" {
				continue
			}
			if !yield(&udt{table: p.types, rec: u}, nil) {
				return
			}
		}
	}
}

type udt struct {
	table *codeview.TypeTable
	rec   *codeview.UDT
}

func (u *udt) Name() string { return u.rec.Name }

func (u *udt) Size() uint64 { return u.rec.Size }

func (u *udt) Members() iter.Seq2[provider.RawMember, error] {
	return func(yield func(provider.RawMember, error) bool) {
		for m, err := range u.table.Members(u.rec.FieldList) {
			if err != nil {
				if !yield(provider.RawMember{}, fmt.Errorf("%s: %w", u.rec.Name, err)) {
					return
				}
				continue
			}
			off, err := safecast.Conv[int64](m.Offset)
			if err != nil {
				if !yield(provider.RawMember{}, fmt.Errorf("%s.%s: offset: %w", u.rec.Name, m.Name, err)) {
					return
				}
				continue
			}
			rm := provider.RawMember{
				Name:   m.Name,
				Offset: off,
				Size:   u.table.TypeSize(m.TypeIndex),
				TypeID: m.TypeIndex,
			}
			if !yield(rm, nil) {
				return
			}
		}
	}
}

// Provider opens PDB files from disk.
type Provider struct{}

// Open implements provider.Provider.
func (Provider) Open(path string) (provider.Session, error) {
	p, err := Open(path)
	if err != nil {
		return nil, provider.Unavailable(path, err)
	}
	return p, nil
}
