package diff

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

func newColor(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// Print writes one line per entry followed by a summary line.
func Print(w io.Writer, entries []Entry, useColor bool) error {
	addedColor := newColor(useColor, color.FgGreen)
	removedColor := newColor(useColor, color.FgRed)
	changedColor := newColor(useColor, color.FgYellow)

	for _, e := range entries {
		var err error
		switch e.Kind {
		case Added:
			_, err = addedColor.Fprintf(w, "[+] ADDED: %s at 0x%x\n", e.Name, e.NewRVA)
		case Removed:
			_, err = removedColor.Fprintf(w, "[-] REMOVED: %s (was at 0x%x)\n", e.Name, e.OldRVA)
		case Changed:
			_, err = changedColor.Fprintf(w, "[~] CHANGED: %s 0x%x -> 0x%x\n", e.Name, e.OldRVA, e.NewRVA)
		}
		if err != nil {
			return err
		}
	}

	s := Summarize(entries)
	_, err := fmt.Fprintf(w, "\nSummary: %d added, %d removed, %d changed\n", s.Added, s.Removed, s.Changed)
	return err
}
