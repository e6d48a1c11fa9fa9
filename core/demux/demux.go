// Package demux splits a streamed model reply into its visible answer and
// the reasoning the model wrapped in <think> markers.
package demux

import (
	"strings"
)

const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"
)

// Demuxer consumes reply fragments in order. A marker split across
// fragments is still recognized: a trailing piece that could start a
// marker is held back until the next fragment decides it.
type Demuxer struct {
	holdback   string
	inThinking bool
	answer     strings.Builder
	span       strings.Builder
	committed  []string
}

func New() *Demuxer {
	return &Demuxer{}
}

// Feed consumes the next fragment. A marker that does not change state,
// such as a closing marker outside a span, is dropped.
func (d *Demuxer) Feed(fragment string) {
	buf := d.holdback + fragment
	d.holdback = ""

	for {
		i, marker := nextMarker(buf)
		if i < 0 {
			keep := max(partialSuffix(buf, OpenMarker), partialSuffix(buf, CloseMarker))
			d.write(buf[:len(buf)-keep])
			d.holdback = buf[len(buf)-keep:]
			return
		}

		d.write(buf[:i])
		if (marker == OpenMarker) != d.inThinking {
			d.toggle()
		}
		buf = buf[i+len(marker):]
	}
}

// nextMarker returns the position of the first marker in buf and which one
// it is, or -1.
func nextMarker(buf string) (int, string) {
	openAt := strings.Index(buf, OpenMarker)
	closeAt := strings.Index(buf, CloseMarker)
	switch {
	case openAt < 0 && closeAt < 0:
		return -1, ""
	case closeAt < 0 || (openAt >= 0 && openAt < closeAt):
		return openAt, OpenMarker
	}
	return closeAt, CloseMarker
}

// Close flushes held back text. A span that was never closed stays
// visible through Thinking but is not committed.
func (d *Demuxer) Close() {
	d.write(d.holdback)
	d.holdback = ""
}

func (d *Demuxer) InThinking() bool {
	return d.inThinking
}

func (d *Demuxer) Answer() string {
	return d.answer.String()
}

// Thinking returns all reasoning seen so far, including an open span.
func (d *Demuxer) Thinking() string {
	parts := append([]string(nil), d.committed...)
	if live := strings.TrimSpace(d.span.String()); live != "" {
		parts = append(parts, live)
	}
	return strings.Join(parts, "\n\n")
}

// Committed returns the closed reasoning spans, trimmed and separated by a
// blank line.
func (d *Demuxer) Committed() string {
	return strings.Join(d.committed, "\n\n")
}

func (d *Demuxer) write(s string) {
	if s == "" {
		return
	}
	if d.inThinking {
		d.span.WriteString(s)
		return
	}
	d.answer.WriteString(s)
}

func (d *Demuxer) toggle() {
	if d.inThinking {
		if span := strings.TrimSpace(d.span.String()); span != "" {
			d.committed = append(d.committed, span)
		}
		d.span.Reset()
	}
	d.inThinking = !d.inThinking
}

// partialSuffix returns the length of the longest proper prefix of marker
// that buf ends with.
func partialSuffix(buf, marker string) int {
	n := len(marker) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(buf, marker[:n]) {
			return n
		}
	}
	return 0
}
