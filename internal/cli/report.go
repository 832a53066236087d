package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jtang613/pdbscope/internal/index"
)

// Rows shown by default in listings.
const (
	defaultSymbolRows = 50
	defaultMatchRows  = 20
	defaultStructRows = 30
)

// kernelSymbols are resolved by --kernel.
var kernelSymbols = []string{
	"WmipSMBiosTableLength",
	"PsEnumProcesses",
	"PspInsertProcess",
	"PspTerminateProcess",
	"MmQueryVirtualMemory",
	"NtResumeThread",
	"BgpFwQueryBootGraphicsInformation",
	"PsEnumProcessThreads",
	"KeResumeThread",
	"PspCreateThread",
	"PspSetQuotaLimits",
	"MmQueryWorkingSetInformation",
	"MmAdjustWorkingSetSizeEx",
	"MiAllocateVirtualMemoryPrepare",
	"ExpBootEnvironmentInformation",
	"PspRundownSingleProcess",
	"PspGetContextThreadInternal",
	"WmipSMBiosTablePhysicalAddress",
	"WmipQueryAllData",
	"PiDDBLock",
	"PiDDBCacheTable",
	"PspInsertThread",
	"ZwSetInformationProcess",
	"PsQueryFullProcessImageName",
	"KiNmiInterruptStart",
	"WmipSMBiosVersionInfo",
}

// reporter writes the human-readable report sections.
type reporter struct {
	w io.Writer
}

func (r reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r reporter) header(title string) {
	rule := strings.Repeat("=", 60)
	r.printf("\n%s\n  %s\n%s\n", rule, title, rule)
}

func (r reporter) symbolTable(symbols []index.SymbolRecord, rows int) {
	r.printf("RVA        | Size     | Symbol Name\n%s\n", strings.Repeat("-", 60))
	for i, sym := range symbols {
		if i == rows {
			r.printf("... and %d more\n", len(symbols)-rows)
			break
		}
		r.printf("0x%08x | %08x | %s\n", sym.RVA, sym.Size, sym.Name)
	}
}

func (r reporter) structure(rec index.StructRecord) {
	r.printf("Structure: %s (Size: %d bytes)\nMembers:\n", rec.Name, rec.Size)
	for _, m := range rec.Members {
		r.printf("  +0x%04x | %08x | %s\n", m.Offset, m.Size, m.Name)
	}
}

func (r reporter) nameList(names []string, rows int) {
	r.printf("Found %d structures\n\n", len(names))
	for i, name := range names {
		if i == rows {
			r.printf("... and %d more\n", len(names)-rows)
			break
		}
		r.printf("%s\n", name)
	}
}

// kernel resolves the kernel preset and reports whether every symbol was
// found.
func (r reporter) kernel(symbols *index.SymbolIndex) bool {
	r.header("Kernel Symbol Resolution")

	rvas := make([]uint64, len(kernelSymbols))
	all := true
	for i, name := range kernelSymbols {
		rva, ok := symbols.Lookup(name)
		rvas[i] = rva
		all = all && ok
	}
	if all {
		r.printf("[+] All kernel symbols resolved!\n")
	} else {
		r.printf("[-] Some kernel symbols not found!\n")
	}

	r.printf("\nKernel Symbol Offsets:\n")
	for i, name := range kernelSymbols {
		r.printf("%s = 0x%x\n", name, rvas[i])
	}
	return all
}
