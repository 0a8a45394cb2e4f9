// Package tokenize implements the buffered sentence/word token stream that
// sits between an LLM's streaming text and a TTS stream's push_text API
// (spec.md §4.4): it emits tokens large enough for good prosody but small
// enough to keep synthesis latency low.
package tokenize

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
)

// TokenData is one emitted token, tagged with the segment it belongs to.
// A segment_id is stable across emissions within one push_text/flush cycle
// and rotates on every explicit Flush.
type TokenData struct {
	Text      string
	SegmentID string
}

// segmentFunc advances buf by exactly one grammatical unit (sentence or
// word), mirroring uniseg's First*InString family: it returns the first
// unit, the remainder, and carry-over state for the next call. An empty
// rest means buf held at most one unit.
type segmentFunc func(buf string, state int) (unit, rest string, newState int)

// Stream is the buffered token state machine described in spec.md §4.4.
// PushText, Flush and EndInput may be called from multiple goroutines:
// each call holds mu for its whole duration, so calls are serialized.
type Stream struct {
	mu sync.Mutex

	segment     segmentFunc
	skipBlank   bool // true for the word stream: whitespace-only units aren't tokens
	minTokenLen int
	minCtxLen   int

	inBuf     string
	outBuf    string
	state     int
	segmentID string

	out    chan TokenData
	closed bool
}

func newStream(seg segmentFunc, skipBlank bool, minTokenLen, minCtxLen int) *Stream {
	return &Stream{
		segment:     seg,
		skipBlank:   skipBlank,
		minTokenLen: minTokenLen,
		minCtxLen:   minCtxLen,
		segmentID:   uuid.NewString(),
		out:         make(chan TokenData, 16),
	}
}

// NewSentenceStream returns a Stream that flushes on sentence boundaries.
// min_token_len/min_ctx_len follow spec.md §4.4; sensible defaults for
// English prosody are ~20 and ~60 characters respectively.
func NewSentenceStream(minTokenLen, minCtxLen int) *Stream {
	return newStream(firstSentence, false, minTokenLen, minCtxLen)
}

// NewWordStream returns a Stream that flushes on word boundaries.
// retainPunctuation keeps attached punctuation runs glued to the preceding
// word instead of emitting them as their own token.
func NewWordStream(minTokenLen, minCtxLen int, retainPunctuation bool) *Stream {
	seg := firstWord
	if retainPunctuation {
		seg = firstWordKeepPunct
	}
	return newStream(seg, true, minTokenLen, minCtxLen)
}

// PushText feeds incoming text into the buffer, emitting zero or more
// tokens as enough stable context accumulates.
func (s *Stream) PushText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pushTextLocked(text)
}

func (s *Stream) pushTextLocked(text string) {
	// A period is the strongest flush signal: split at the first one and
	// force-process everything up to and including it, then recurse on
	// the remainder.
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		s.inBuf += text[:idx+1]
		s.process(true)
		s.pushTextLocked(text[idx+1:])
		return
	}

	s.inBuf += text
	if len(s.inBuf) < s.minCtxLen {
		return
	}
	s.process(false)
}

// process consumes whole units out of inBuf into outBuf, emitting outBuf
// whenever it contains sentence-ending punctuation or has grown past
// minTokenLen. When force is true the final, otherwise-incomplete unit is
// emitted too and inBuf is drained.
func (s *Stream) process(force bool) {
	for {
		unit, rest, newState := s.segment(s.inBuf, s.state)
		if rest == "" {
			// At most one unit left in the buffer.
			if force {
				if unit != "" && !(s.skipBlank && isBlank(unit)) {
					s.appendOut(unit)
				}
				if s.outBuf != "" {
					s.emit()
				}
				s.inBuf = ""
				s.state = 0
			}
			return
		}

		s.state = newState
		s.inBuf = rest
		if !(s.skipBlank && isBlank(unit)) {
			s.appendOut(unit)
		}

		if strings.ContainsAny(s.outBuf, ".!?") || len(s.outBuf) >= s.minTokenLen {
			s.emit()
		}
	}
}

// appendOut adds a consumed unit to outBuf, separated from any text
// already there by a single space (word units arrive trimmed, so word mode
// needs the separator as much as sentence mode does).
func (s *Stream) appendOut(unit string) {
	if s.outBuf != "" {
		s.outBuf += " "
	}
	s.outBuf += unit
}

// emit sends the accumulated outBuf downstream and resets it.
func (s *Stream) emit() {
	if s.outBuf == "" {
		return
	}
	select {
	case s.out <- TokenData{Text: s.outBuf, SegmentID: s.segmentID}:
	default:
		// Backpressure: block until the consumer catches up. The
		// buffered fast path above is just an optimization.
		s.out <- TokenData{Text: s.outBuf, SegmentID: s.segmentID}
	}
	s.outBuf = ""
}

// Flush tokenizes and emits whatever remains, then rotates the segment id.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.process(true)
	s.segmentID = uuid.NewString()
	s.inBuf = ""
	s.outBuf = ""
	s.state = 0
}

// EndInput flushes any remainder and closes the output channel. No further
// PushText/Flush calls are permitted afterward.
func (s *Stream) EndInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.process(true)
	s.closed = true
	close(s.out)
}

// Tokens yields TokenData in source order.
func (s *Stream) Tokens() <-chan TokenData {
	return s.out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func firstSentence(buf string, state int) (string, string, int) {
	if buf == "" {
		return "", "", state
	}
	sentence, rest, newState := uniseg.FirstSentenceInString(buf, state)
	return sentence, rest, newState
}

func firstWord(buf string, state int) (string, string, int) {
	if buf == "" {
		return "", "", state
	}
	word, rest, newState := uniseg.FirstWordInString(buf, state)
	return strings.TrimSpace(word), rest, newState
}

// firstWordKeepPunct behaves like firstWord but glues a directly
// following punctuation-only unit onto the word before returning it, so
// "hello," stays one token instead of splitting into "hello" + ",".
func firstWordKeepPunct(buf string, state int) (string, string, int) {
	if buf == "" {
		return "", "", state
	}
	word, rest, newState := uniseg.FirstWordInString(buf, state)
	trimmed := strings.TrimSpace(word)
	if trimmed == "" || rest == "" {
		return trimmed, rest, newState
	}
	next, rest2, state2 := uniseg.FirstWordInString(rest, newState)
	if isPunctRun(next) {
		return trimmed + strings.TrimRight(next, " \t\n"), rest2, state2
	}
	return trimmed, rest, newState
}

func isPunctRun(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return false
	}
	for _, r := range t {
		if !strings.ContainsRune(".,!?;:", r) {
			return false
		}
	}
	return true
}
