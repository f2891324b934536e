package asm

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xcalcc/llvm-project/internal/machine"
)

// Print writes mod as a normalized listing: .file table, then every function
// with its blocks in layout order. Blocks that are branch targets but carry
// no name get a generated local label. A .loc line precedes each instruction
// whose location differs from the previous one.
func Print(w io.Writer, mod *machine.Module) error {
	bw := bufio.NewWriter(w)

	nums := make([]uint32, 0, len(mod.Files))
	for n := range mod.Files {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	for _, n := range nums {
		fmt.Fprintf(bw, "\t.file\t%d %q\n", n, mod.Files[n])
	}

	for i, f := range mod.Funcs {
		printFunc(bw, f, i)
	}
	return bw.Flush()
}

// PrintFunc writes a single function.
func PrintFunc(w io.Writer, f *machine.Func) error {
	bw := bufio.NewWriter(w)
	printFunc(bw, f, 0)
	return bw.Flush()
}

// String renders a function; handy in tests and trace output.
func String(f *machine.Func) string {
	var sb strings.Builder
	_ = PrintFunc(&sb, f)
	return sb.String()
}

func printFunc(w *bufio.Writer, f *machine.Func, index int) {
	targeted := make([]bool, len(f.Blocks))
	for i := range f.Blocks {
		if last := f.Blocks[i].Back(); last != nil {
			if t, ok := last.Target(); ok && f.Valid(t) {
				targeted[t] = true
			}
		}
	}
	label := func(id machine.BlockID) string {
		if bb := f.Block(id); bb != nil && bb.Name != "" {
			return bb.Name
		}
		return fmt.Sprintf(".Lxp%d_%d", index, id)
	}

	fmt.Fprintf(w, "%s:\n", f.Name)
	var loc machine.DebugLoc
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if bb.Name != "" || targeted[i] {
			fmt.Fprintf(w, "%s:\n", label(bb.ID))
		}
		for j := range bb.Instrs {
			in := &bb.Instrs[j]
			if in.Loc != loc && !in.Loc.IsZero() {
				if in.Loc.Col != 0 {
					fmt.Fprintf(w, "\t.loc\t%d %d %d\n", in.Loc.File, in.Loc.Line, in.Loc.Col)
				} else {
					fmt.Fprintf(w, "\t.loc\t%d %d\n", in.Loc.File, in.Loc.Line)
				}
				loc = in.Loc
			}
			w.WriteString("\t")
			w.WriteString(formatInstr(in, label))
			w.WriteString("\n")
		}
	}
	fmt.Fprintf(w, ".Lfunc_end%d:\n", index)
}

func formatInstr(in *machine.Instr, label func(machine.BlockID) string) string {
	if len(in.Args) == 0 {
		return in.Mnemonic()
	}
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		if a.Kind == machine.OperandBlock {
			parts[i] = label(a.Block)
			continue
		}
		parts[i] = a.String()
	}
	return in.Mnemonic() + "\t" + strings.Join(parts, ", ")
}
