// Package jsonstream incrementally parses a streamed LLM response so that
// one designated "live" field (the narrative text) can be surfaced to the
// player while the rest of the JSON payload is still arriving. The
// incremental parse is a UX optimization only: the accumulated text is
// re-parsed authoritatively when the stream ends, and a mid-stream parser
// failure never aborts the turn.
package jsonstream

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/jsonrepair"
)

const (
	stateSearching = iota
	stateInJSON
	stateDone
)

// pendingTail is how many trailing characters of unmatched prefix text are
// retained between chunks, so a start marker split across a chunk boundary
// is still found.
const pendingTail = 8

const fencedMarker = "```json"

// Projector consumes text chunks from a model stream and emits partial
// values for the live field through its callback.
type Projector struct {
	liveField string
	onLive    func(text string, complete bool)
	logger    *slog.Logger

	state   int
	pending string
	raw     strings.Builder

	parser     liveParser
	parseValid bool
}

// NewProjector creates a projector that watches liveField and reports its
// (possibly partial) value through onLive.
func NewProjector(liveField string, onLive func(text string, complete bool), logger *slog.Logger) *Projector {
	return &Projector{
		liveField:  liveField,
		onLive:     onLive,
		logger:     logger,
		state:      stateSearching,
		parseValid: true,
	}
}

// Write feeds the next chunk of streamed text into the projector.
func (p *Projector) Write(chunk string) {
	switch p.state {
	case stateDone:
		return
	case stateSearching:
		p.pending += chunk
		start := findJSONStart(p.pending)
		if start == -1 {
			if len(p.pending) > pendingTail {
				p.pending = p.pending[len(p.pending)-pendingTail:]
			}
			return
		}
		rest := p.pending[start:]
		p.pending = ""
		p.state = stateInJSON
		p.consume(rest)
	case stateInJSON:
		p.consume(chunk)
	}
}

// End finishes the stream, performs the authoritative parse, and invokes
// the callback one final time with the complete live value.
func (p *Projector) End() (map[string]any, error) {
	if p.state == stateSearching {
		// No JSON ever started. Terminate UI loading states anyway.
		if p.onLive != nil {
			p.onLive("", true)
		}
		return nil, nil
	}

	text := strings.TrimSpace(p.raw.String())
	text = strings.TrimSuffix(text, "```")

	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		if err := jsonrepair.ExtractInto(text, &result); err != nil {
			return nil, err
		}
	}

	live := ""
	if v, ok := result[p.liveField].(string); ok {
		live = v
	}
	if p.onLive != nil {
		p.onLive(live, true)
	}
	return result, nil
}

// consume accumulates JSON text and advances the incremental parser.
func (p *Projector) consume(chunk string) {
	p.raw.WriteString(chunk)

	if !p.parseValid {
		return
	}
	changed, closed, err := p.parser.feed(chunk, p.liveField)
	if err != nil {
		// Incremental parsing is best-effort; the final parse decides.
		p.parseValid = false
		if p.logger != nil {
			p.logger.Debug("incremental parse abandoned", "error", err)
		}
		return
	}
	if p.parser.done {
		p.state = stateDone
	}
	if p.onLive == nil {
		return
	}
	if closed {
		p.onLive(p.parser.live.String(), true)
	} else if changed {
		p.onLive(p.parser.live.String(), false)
	}
}

// findJSONStart returns the index where JSON content begins, or -1.
// A fenced ```json opening takes precedence over a bare bracket.
func findJSONStart(s string) int {
	if idx := strings.Index(s, fencedMarker); idx != -1 {
		rest := s[idx+len(fencedMarker):]
		if bracket := strings.IndexAny(rest, "{["); bracket != -1 {
			return idx + len(fencedMarker) + bracket
		}
		return -1
	}
	if idx := strings.IndexAny(s, "{["); idx != -1 {
		return idx
	}
	return -1
}

// liveParser is a minimal push parser that tracks just enough JSON
// structure to stream the root-level live field's string value as it
// arrives. It is escape-aware, including escapes split across chunks.
type liveParser struct {
	started  bool
	done     bool
	rootObj  bool
	depth    int
	inString bool

	// escape state: 0 none, 1 after backslash, 2-5 collecting \u hex digits
	escState int
	hexBuf   [4]byte
	hexLen   int

	expectKey  bool
	capturing  bool // capturing a root-level key
	keyBuf     strings.Builder
	currentKey string
	afterColon bool
	inLive     bool
	live       strings.Builder
}

type parseError string

func (e parseError) Error() string { return string(e) }

// feed processes one chunk. It reports whether the live value grew and
// whether the live value's closing quote was seen in this chunk.
func (lp *liveParser) feed(chunk, liveField string) (changed, closed bool, err error) {
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if !lp.started {
			switch c {
			case '{':
				lp.started, lp.rootObj = true, true
				lp.depth = 1
				lp.expectKey = true
			case '[':
				lp.started = true
				lp.depth = 1
			default:
				// leading whitespace before the bracket
			}
			continue
		}

		if lp.inString {
			before := lp.live.Len()
			strClosed := lp.stringByte(c)
			if lp.live.Len() != before {
				changed = true
			}
			if strClosed && lp.inLive {
				lp.inLive = false
				closed = true
			}
			continue
		}

		switch c {
		case '"':
			lp.inString = true
			switch {
			case lp.rootObj && lp.depth == 1 && lp.expectKey:
				lp.capturing = true
				lp.keyBuf.Reset()
			case lp.rootObj && lp.depth == 1 && lp.afterColon && lp.currentKey == liveField:
				lp.inLive = true
				lp.afterColon = false
			default:
				lp.afterColon = false
			}
		case '{', '[':
			lp.depth++
			lp.afterColon = false
		case '}', ']':
			lp.depth--
			if lp.depth < 0 {
				return changed, closed, parseError("unbalanced brackets")
			}
			if lp.depth == 0 {
				lp.done = true
				return changed, closed, nil
			}
		case ':':
			if lp.rootObj && lp.depth == 1 {
				lp.afterColon = true
			}
		case ',':
			if lp.rootObj && lp.depth == 1 {
				lp.expectKey = true
				lp.afterColon = false
				lp.currentKey = ""
			}
		}
	}
	return changed, closed, nil
}

// stringByte advances through a string literal and reports whether the
// string's closing quote was seen.
func (lp *liveParser) stringByte(c byte) (strClosed bool) {
	switch lp.escState {
	case 1: // after backslash
		lp.escState = 0
		switch c {
		case 'u':
			lp.escState = 2
			lp.hexLen = 0
		case 'n':
			lp.appendRune('\n')
		case 't':
			lp.appendRune('\t')
		case 'r':
			lp.appendRune('\r')
		case 'b':
			lp.appendRune('\b')
		case 'f':
			lp.appendRune('\f')
		default: // \" \\ \/ and anything else passes through
			lp.appendByte(c)
		}
		return false
	case 2, 3, 4, 5:
		lp.hexBuf[lp.hexLen] = c
		lp.hexLen++
		if lp.hexLen == 4 {
			lp.escState = 0
			if v, err := strconv.ParseUint(string(lp.hexBuf[:]), 16, 32); err == nil {
				lp.appendRune(rune(v))
			}
		} else {
			lp.escState++
		}
		return false
	}

	switch c {
	case '\\':
		lp.escState = 1
		return false
	case '"':
		lp.inString = false
		if lp.capturing {
			lp.capturing = false
			lp.currentKey = lp.keyBuf.String()
			lp.expectKey = false
		}
		return true
	default:
		lp.appendByte(c)
		return false
	}
}

func (lp *liveParser) appendRune(r rune) {
	if lp.capturing {
		lp.keyBuf.WriteRune(r)
	} else if lp.inLive {
		lp.live.WriteRune(r)
	}
}

// appendByte preserves raw UTF-8 bytes; multibyte runes arrive byte by
// byte and must not be widened to runes individually.
func (lp *liveParser) appendByte(c byte) {
	if lp.capturing {
		lp.keyBuf.WriteByte(c)
	} else if lp.inLive {
		lp.live.WriteByte(c)
	}
}
