package resource

// span is a half-open byte range [start, end). The zero span is empty.
type span struct {
	start, end uint64
}

func (s span) empty() bool { return s.end <= s.start }

// union returns the smallest span covering s and o.
func (s span) union(o span) span {
	switch {
	case o.empty():
		return s
	case s.empty():
		return o
	}
	return span{start: min(s.start, o.start), end: max(s.end, o.end)}
}
