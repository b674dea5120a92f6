package databin

import (
	"bufio"
	"fmt"
	"io"
)

// WriteFileList writes a human-readable listing of every entry followed by
// the global name table.
func (a *Archive) WriteFileList(w io.Writer) error {
	bw := bufio.NewWriter(w)

	named := 0
	for _, e := range a.entries {
		if e.HasPath() {
			named++
		}
	}
	fmt.Fprintf(bw, "File List [%d, %d named]:\n", len(a.entries), named)

	for _, e := range a.entries {
		fmt.Fprintf(bw, " - File #%04d: %08x, %s", e.id, e.nameHash, e.Kind())
		if e.HasPath() {
			fmt.Fprintf(bw, ", %s, %s", e.path, e.FileID())
		}
		if e.collision {
			bw.WriteString(" (Collision)")
		}
		if e.compressed {
			bw.WriteString(", Compressed")
		}
		bw.WriteByte('\n')
	}

	bw.WriteString("\nGlobal Paths:\n")
	for _, p := range a.globalPaths {
		fmt.Fprintf(bw, " - %s\n", p)
	}
	return bw.Flush()
}
