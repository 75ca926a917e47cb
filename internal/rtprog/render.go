package rtprog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteTo renders the program as indented text.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "program %s {\n", p.Name)
	for _, v := range p.Vars {
		fmt.Fprintf(&buf, "  declare %s %s\n", v.Ref, v.Type)
	}
	for _, a := range p.Arrays {
		vals := make([]string, len(a.Values))
		for i, x := range a.Values {
			vals[i] = formatFloat(x)
		}
		fmt.Fprintf(&buf, "  declare %s %s [%s]\n", a.Ref, a.Type, strings.Join(vals, ", "))
	}
	for _, s := range p.InputStreams {
		fmt.Fprintf(&buf, "  declare_input_stream %s %s %q size=%d\n", s.Ref, s.Type, s.Name, s.Size)
	}
	for _, s := range p.ResultStreams {
		fmt.Fprintf(&buf, "  declare_stream %s\n", s.Ref)
	}
	writeStmts(&buf, p.Body, 1)
	if len(p.StreamProcessing) > 0 {
		buf.WriteString("  stream_processing {\n")
		writeStmts(&buf, p.StreamProcessing, 2)
		buf.WriteString("  }\n")
	}
	buf.WriteString("}\n")
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writeStmts(buf *bytes.Buffer, stmts []*Stmt, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range stmts {
		buf.WriteString(indent)
		buf.WriteString(s.Op)
		for _, a := range s.Args {
			buf.WriteByte(' ')
			buf.WriteString(a)
		}
		if s.Op == OpFor || s.Op == OpForEach {
			buf.WriteString(" {\n")
			writeStmts(buf, s.Body, depth+1)
			buf.WriteString(indent)
			buf.WriteString("}")
		}
		buf.WriteByte('\n')
	}
}

// String returns the text rendering of the program.
func (p *Program) String() string {
	var sb strings.Builder
	p.WriteTo(&sb)
	return sb.String()
}

// MarshalIndent returns the JSON description of the program.
func (p *Program) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Walk calls fn for every statement of the body in program order, passing
// the loop depth of the statement.
func (p *Program) Walk(fn func(s *Stmt, depth int)) {
	var walk func(stmts []*Stmt, depth int)
	walk = func(stmts []*Stmt, depth int) {
		for _, s := range stmts {
			fn(s, depth)
			walk(s.Body, depth+1)
		}
	}
	walk(p.Body, 0)
}
