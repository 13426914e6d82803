package extract

import (
	"cmp"
	"slices"
)

// maxObjectDepth bounds the open-object stack. Braces nested deeper than this
// are balanced but their contents are not inspected.
const maxObjectDepth = 64

// record is one object's own top-level text. Nested objects are collapsed
// to "{}" so their fields never leak into the enclosing record.
type record struct {
	start int
	text  string
}

type objectFrame struct {
	start int
	own   []byte
	over  bool
}

func (f *objectFrame) append(b ...byte) {
	if f.over {
		return
	}
	if len(f.own)+len(b) > MaxRecordWindow+2 {
		f.over = true
		f.own = nil
		return
	}
	f.own = append(f.own, b...)
}

// objectRecords returns every object whose own text, braces included, fits
// in MaxRecordWindow+2 bytes, ordered by where the object opens. The scan is
// a single pass; unmatched braces are ignored.
func objectRecords(text string) []record {
	var (
		stack   []*objectFrame
		skipped int
		out     []record
	)

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && skipped == 0 && len(stack) < maxObjectDepth:
			frame := &objectFrame{start: i}
			frame.append('{')
			stack = append(stack, frame)
		case c == '{':
			skipped++
		case c == '}' && skipped > 0:
			skipped--
		case c == '}' && len(stack) > 0:
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			frame.append('}')
			if !frame.over {
				out = append(out, record{start: frame.start, text: string(frame.own)})
			}
			if len(stack) > 0 {
				stack[len(stack)-1].append('{', '}')
			}
		case skipped == 0 && len(stack) > 0:
			stack[len(stack)-1].append(c)
		}
	}

	slices.SortFunc(out, func(a, b record) int { return cmp.Compare(a.start, b.start) })
	return out
}
