package delivery

import (
	"strconv"
	"strings"
)

// ByteRange is an inclusive byte window into a file.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// Full reports whether the range covers the whole file of the given size.
func (r ByteRange) Full(size int64) bool {
	return r.Start == 0 && r.End == size-1
}

// Partial reports whether the response needs partial-content semantics.
// The 1-byte probe case counts as partial even though it starts at zero.
func (r ByteRange) Partial(size int64) bool {
	return r.Start > 0 || r.IsProbe()
}

// IsProbe detects the capability probe some mobile clients send before a
// media request: a range ending at byte 1 with no meaningful start. The
// response is a single byte and the streaming engine is never engaged.
func (r ByteRange) IsProbe() bool {
	return r.Start == 0 && r.End == 1
}

// NegotiateRange turns an HTTP Range header value into an inclusive byte
// window over a file of the given size. An absent or unparseable spec
// falls back to the full file rather than erroring. Out-of-window values
// are clamped so the resulting Content-Length is never negative.
func NegotiateRange(rangeHeader string, size int64) ByteRange {
	full := ByteRange{Start: 0, End: size - 1}
	if size <= 0 {
		return ByteRange{Start: 0, End: -1}
	}

	spec, ok := strings.CutPrefix(rangeHeader, "bytes=")
	if !ok {
		return full
	}

	left, right, found := strings.Cut(spec, "-")
	if !found {
		return full
	}

	r := full
	if v, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64); err == nil && v > 0 {
		r.Start = v
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64); err == nil && v > 0 {
		r.End = v
	}

	// Clamp to the valid window.
	if r.Start >= size {
		r.Start = size - 1
	}
	if r.End >= size {
		r.End = size - 1
	}
	if r.End < r.Start {
		r.End = size - 1
		if r.End < r.Start {
			return full
		}
	}

	return r
}
