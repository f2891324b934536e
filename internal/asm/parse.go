// Package asm reads and writes RISC-V assembly listings as machine CFGs.
//
// The reader understands the subset of GNU as syntax LLVM emits for a
// function body: global labels open a function, local labels (".L" prefix)
// open blocks, .file/.loc directives attach debug locations, and every
// other directive is dropped. Instructions the peephole stage does not
// model are kept verbatim as opaque instructions.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/xcalcc/llvm-project/internal/machine"
)

// Error is a parse error at a listing line.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ParseString parses a listing held in memory.
func ParseString(name, src string) (*machine.Module, error) {
	return Parse(name, strings.NewReader(src))
}

// Parse reads a listing and builds one machine.Func per global label.
// Predecessor lists are computed from the resulting branch and fallthrough
// edges.
func Parse(name string, r io.Reader) (*machine.Module, error) {
	p := &parser{
		file: name,
		mod:  &machine.Module{Name: name, Files: make(map[uint32]string)},
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		p.parseLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: read: %w", name, err)
	}
	p.finishFunc()

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	p.markAddressTaken()
	return p.mod, nil
}

type pendingTarget struct {
	block machine.BlockID
	instr int
	label string
	line  int
}

type parser struct {
	file string
	line int
	errs []error

	mod *machine.Module
	fn  *machine.Func
	cur machine.BlockID // block receiving instructions, NoBlockID after a terminator
	loc machine.DebugLoc

	pending []pendingTarget
	refs    map[string]bool // local labels used outside branch operands
}

func (p *parser) errorf(format string, args ...any) {
	p.errs = append(p.errs, &Error{File: p.file, Line: p.line, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) parseLine(raw string) {
	text := strings.TrimSpace(stripComment(raw))
	if text == "" {
		return
	}

	/* labels, possibly followed by an instruction on the same line */
	for {
		i := strings.IndexByte(text, ':')
		if i <= 0 || !isLabel(text[:i]) {
			break
		}
		p.label(text[:i])
		text = strings.TrimSpace(text[i+1:])
		if text == "" {
			return
		}
	}

	if text[0] == '.' {
		p.directive(text)
		return
	}
	p.instr(text)
}

func stripComment(s string) string {
	inStr := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '#', c == ';':
			return s[:i]
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			return s[:i]
		}
	}
	return s
}

func isLabel(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || c == '.' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			continue
		}
		return false
	}
	return s != ""
}

func isLocalLabel(s string) bool {
	return strings.HasPrefix(s, ".L")
}

func (p *parser) label(name string) {
	switch {
	case strings.HasPrefix(name, ".Lfunc_end"):
		p.finishFunc()
	case strings.HasPrefix(name, ".Ltmp"), strings.HasPrefix(name, ".Lpcrel_hi"),
		strings.HasPrefix(name, ".Lfunc_begin"), strings.HasPrefix(name, ".LJTI"):
		// debug, relocation and jump table anchors, not block boundaries
	case !isLocalLabel(name):
		p.finishFunc()
		p.fn = &machine.Func{Name: name}
		p.fn.Entry = p.fn.NewBlock("")
		p.cur = p.fn.Entry
	case p.fn == nil:
		// data and debug section labels
	default:
		if _, dup := p.fn.BlockByName(name); dup {
			p.errorf("duplicate label %s", name)
			return
		}
		if bb := p.fn.Block(p.cur); bb != nil && bb.Empty() && bb.Name == "" {
			bb.Name = name
			return
		}
		p.cur = p.fn.NewBlock(name)
	}
}

func (p *parser) directive(text string) {
	fields := strings.Fields(text)
	name, fields := fields[0], fields[1:]

	switch name {
	case ".file":
		// .file 1 "dir" "name" or .file 1 "name"; the numberless form names the unit only
		if len(fields) < 2 {
			return
		}
		n, err := parseUint32(fields[0])
		if err != nil {
			return
		}
		p.mod.Files[n] = strings.Trim(fields[len(fields)-1], `"`)

	case ".loc":
		if len(fields) < 2 {
			p.errorf(".loc needs a file and a line")
			return
		}
		var loc machine.DebugLoc
		var err error
		if loc.File, err = parseUint32(fields[0]); err != nil {
			p.errorf(".loc file: %v", err)
			return
		}
		if loc.Line, err = parseUint32(fields[1]); err != nil {
			p.errorf(".loc line: %v", err)
			return
		}
		if len(fields) > 2 {
			if loc.Col, err = parseUint32(fields[2]); err != nil {
				p.errorf(".loc column: %v", err)
				return
			}
		}
		p.loc = loc

	case ".word", ".half", ".2byte", ".4byte", ".8byte", ".long", ".quad", ".dword":
		// jump tables; these usually follow the function they index
		p.noteRefs(strings.Join(fields, " "))
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return safecast.Conv[uint32](v)
}

func (p *parser) instr(text string) {
	if p.fn == nil {
		p.errorf("instruction outside of a function: %s", text)
		return
	}

	mnemonic, rest := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		mnemonic, rest = text[:i], text[i+1:]
	}
	mnemonic = strings.ToLower(mnemonic)
	args := splitOperands(rest)

	in, label, err := decode(mnemonic, args)
	if err != nil {
		p.errorf("%s: %v", mnemonic, err)
		return
	}
	in.Loc = p.loc
	if in.Op == machine.OpOther {
		p.noteRefs(rest)
	}

	if p.cur == machine.NoBlockID {
		p.cur = p.fn.NewBlock("")
	}
	bb := p.fn.Block(p.cur)
	bb.Append(in)
	if label != "" {
		p.pending = append(p.pending, pendingTarget{block: p.cur, instr: bb.Len() - 1, label: label, line: p.line})
	}
	if in.IsTerminator() || in.EndsFlow() {
		p.cur = machine.NoBlockID
	}
}

// noteRefs records every local label mentioned in s.
func (p *parser) noteRefs(s string) {
	for {
		i := strings.Index(s, ".L")
		if i < 0 {
			return
		}
		s = s[i:]
		end := 2
		for end < len(s) && isLabel(s[end:end+1]) && s[end] != '.' {
			end++
		}
		if p.refs == nil {
			p.refs = make(map[string]bool)
		}
		p.refs[s[:end]] = true
		s = s[end:]
	}
}

// markAddressTaken flags blocks whose labels escape into data or opaque
// instructions. Such blocks may be entered along edges the CFG does not
// record.
func (p *parser) markAddressTaken() {
	if len(p.refs) == 0 {
		return
	}
	for _, f := range p.mod.Funcs {
		for i := range f.Blocks {
			if bb := &f.Blocks[i]; bb.Name != "" && p.refs[bb.Name] {
				bb.AddressTaken = true
			}
		}
	}
}

func splitOperands(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func (p *parser) finishFunc() {
	if p.fn == nil {
		return
	}
	for _, pt := range p.pending {
		id, ok := p.fn.BlockByName(pt.label)
		if !ok {
			p.errs = append(p.errs, &Error{File: p.file, Line: pt.line, Msg: fmt.Sprintf("undefined label %s", pt.label)})
			continue
		}
		p.fn.Blocks[pt.block].Instrs[pt.instr].SetTarget(id)
	}
	p.fn.RebuildPreds()
	p.mod.Funcs = append(p.mod.Funcs, p.fn)
	p.fn = nil
	p.pending = nil
	p.cur = machine.NoBlockID
}
