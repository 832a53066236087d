package cli

import (
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jtang613/pdbscope/internal/index"
	"github.com/jtang613/pdbscope/internal/locator"
	"github.com/jtang613/pdbscope/internal/snapshot"
	"github.com/jtang613/pdbscope/pkg/pdb"
	"github.com/jtang613/pdbscope/pkg/provider"
)

var errExportFailed = errors.New("export failed")

// analysis bundles an open session with its indexes and the report writer.
type analysis struct {
	app     *app
	session provider.Session
	symbols *index.SymbolIndex
	structs *index.StructIndex
	out     reporter
}

func (a *app) analyze(cmd *cobra.Command, path string, fn func(*analysis) error) error {
	return a.withSession(path, func(s provider.Session) error {
		opts := a.indexOptions()
		return fn(&analysis{
			app:     a,
			session: s,
			symbols: index.NewSymbolIndex(s, opts...),
			structs: index.NewStructIndex(s, opts...),
			out:     reporter{w: cmd.OutOrStdout()},
		})
	})
}

func (x *analysis) basicInfo() {
	x.out.header("PDB Basic Information")
	x.out.printf("PDB Path: %s\n", x.session.Path())
	x.out.printf("Machine Type: %s\n", x.session.MachineType().Description())

	native, ok := x.session.(interface{ Info() *pdb.Info })
	if !ok {
		return
	}
	info := native.Info()
	id := locator.Identity{
		PDBName: filepath.Base(x.session.Path()),
		GUID:    locator.GUIDFromBytes(info.GUID),
		Age:     info.Age,
	}
	x.out.printf("GUID: %s\n", id.GUID)
	x.out.printf("Age: %d\n", id.Age)
	x.out.printf("Symbol store key: %s\n", id.Key())
	x.out.printf("Streams: %d (block size %d)\n", info.Streams, info.BlockSize)
	x.out.printf("Type records: %d\n", info.Types)
	x.out.printf("Modules: %d\n", len(info.Modules))
	for _, s := range info.Sections {
		x.out.printf("  [%d] %-8s 0x%08x %08x\n", s.Index, s.Name, s.RVA, s.Length)
	}
}

func (x *analysis) symbolReport(rows int) {
	x.out.header("Symbol Analysis")
	start := time.Now()
	symbols := x.symbols.BuildFull()
	x.out.printf("Found %d symbols in %s\n\n", len(symbols), time.Since(start))
	x.out.symbolTable(symbols, rows)
}

func (x *analysis) lookup(name string) bool {
	x.out.header("Symbol Lookup")
	start := time.Now()
	rva, ok := x.symbols.Lookup(name)
	elapsed := time.Since(start)

	x.out.printf("Searching for: %s\n", name)
	x.out.printf("Lookup time: %s\n", elapsed)
	if ok {
		x.out.printf("Found at RVA: 0x%x\n", rva)
	} else {
		x.out.printf("Symbol not found\n")
	}
	return ok
}

func (x *analysis) structure(name string) bool {
	x.out.header("Structure Analysis")
	rec, ok := x.structs.GetStruct(name)
	if !ok {
		x.out.printf("Structure '%s' not found\n", name)
		return false
	}
	x.out.structure(rec)
	return true
}

func (x *analysis) member(structName, memberName string) bool {
	x.out.header("Structure Member Lookup")
	x.out.printf("Struct: %s, Member: %s\n", structName, memberName)
	off, ok := x.structs.GetMemberOffset(structName, memberName)
	if ok {
		x.out.printf("Member offset: +0x%x\n", off)
	} else {
		x.out.printf("Member not found\n")
	}
	return ok
}

func (x *analysis) search(pattern string, rows int) error {
	x.out.header("Pattern Search")
	x.out.printf("Pattern: %s\n", pattern)

	start := time.Now()
	res, err := x.symbols.Search(pattern)
	if err != nil {
		return err
	}
	x.out.printf("Found %d matches in %s\n", len(res.Matches), time.Since(start))
	if res.Truncated {
		x.out.printf("Stopped at the %d match cap\n", len(res.Matches))
	}
	x.out.printf("\n")
	x.out.symbolTable(res.Matches, rows)
	return nil
}

func (x *analysis) listStructures(rows int) {
	x.out.header("Available Structures")
	x.out.nameList(x.structs.Names(), rows)
}

func (x *analysis) perf() {
	x.out.header("Performance Test")

	start := time.Now()
	symbols := x.symbols.BuildFull()
	cold := time.Since(start)
	x.out.printf("Cold symbol enumeration: %s\n", cold)

	start = time.Now()
	x.symbols.Preload()
	x.out.printf("Symbol preload time: %s\n", time.Since(start))
	x.out.printf("Cached symbols: %d\n", x.symbols.CacheLen())

	if len(symbols) > 0 {
		sample := symbols[len(symbols)/2].Name
		start = time.Now()
		x.symbols.Lookup(sample)
		hot := time.Since(start)
		x.out.printf("Hot symbol lookup: %s\n", hot)
		if hot > 0 {
			x.out.printf("Speedup factor: %.1fx\n", float64(cold)/float64(hot))
		}
	}
	x.indexCounters()
}

// indexCounters prints the process-wide index cache counters.
func (x *analysis) indexCounters() {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		x.app.logger.Debug().Err(err).Msg("failed to gather metrics")
		return
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "pdbscope_index_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			lines = append(lines, mf.GetName()+"{"+strings.Join(labels, ",")+"} "+
				strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		x.out.printf("%s\n", l)
	}
}

func (x *analysis) export(path string) error {
	x.out.header("Export Results")
	x.out.printf("Exporting to: %s\n", path)
	snap := snapshot.Capture(x.session, x.symbols, x.structs)
	if !snap.Export(path, x.app.logger) {
		x.out.printf("Export failed\n")
		return errExportFailed
	}
	x.out.printf("Export successful\n")
	return nil
}
