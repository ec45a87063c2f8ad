package sequence

// MoreRecent reports whether 16-bit sequence number a was issued after
// b, accounting for wraparound. Two numbers more than half the sequence
// space apart are assumed to have wrapped.
func MoreRecent(a, b uint16) bool {
	return ((a > b) && (a-b <= 32768)) || ((a < b) && (b-a > 32768))
}

// Older reports whether a was issued before b.
func Older(a, b uint16) bool {
	return MoreRecent(b, a)
}
