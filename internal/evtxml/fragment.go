package evtxml

import "bytes"

var (
	eventOpen  = []byte("<Event")
	eventClose = []byte("</Event>")
)

// NextFragment locates the first complete <Event>...</Event> element in buf.
// It returns the element bounds and true, or false when buf holds no
// complete element yet. Bytes before start are not part of any event.
func NextFragment(buf []byte) (start, end int, ok bool) {
	start = findEventOpen(buf, 0)
	if start < 0 {
		return 0, 0, false
	}
	rel := bytes.Index(buf[start:], eventClose)
	if rel < 0 {
		return start, 0, false
	}
	return start, start + rel + len(eventClose), true
}

// findEventOpen finds "<Event" followed by whitespace, '>' or '/', skipping
// <Events>, <EventData>, <EventID> and friends.
func findEventOpen(buf []byte, from int) int {
	for from < len(buf) {
		i := bytes.Index(buf[from:], eventOpen)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(eventOpen)
		if next >= len(buf) {
			return -1
		}
		switch buf[next] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return i
		}
		from = next
	}
	return -1
}
