package runner

import "strconv"

// Range is one chunk of images handed to a single depth map invocation.
type Range struct {
	Start int
	Size  int
}

// Args returns the range options appended to the depth map command line.
func (r Range) Args() []string {
	return []string{"--rangeStart", strconv.Itoa(r.Start), "--rangeSize", strconv.Itoa(r.Size)}
}

// Ranges splits n images into ceil(n/size) consecutive chunks. The last
// chunk holds the remainder. n <= 0 yields no chunks.
func Ranges(n, size int) []Range {
	if n <= 0 || size <= 0 {
		return nil
	}
	groups := (n + size - 1) / size
	out := make([]Range, 0, groups)
	for i := range groups {
		start := i * size
		out = append(out, Range{Start: start, Size: min(size, n-start)})
	}
	return out
}
