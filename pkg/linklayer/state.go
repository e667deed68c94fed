package linklayer

import "github.com/hsfernandes/rcomlink/internal/ringbuf"

// State is the byte-at-a-time receiver state. It maps directly onto the
// states in the protocol's own description rather than a generic
// "parsing" vocabulary, so a transition table reads the same as the
// design it implements.
type State uint8

const (
	StateStart State = iota
	StateFlagRcv
	StateARcv
	StateCRcv
	StateBCCOk
	StateData
	StateStop
)

// Parser recognizes one specific frame shape at a time (SET, UA, DISC, an
// I-frame, or an RR/REJ supervisory reply). ExpectA and AcceptC are
// supplied by the caller because "expected A" and "accepted C" are
// context-dependent: the same byte stream position means something
// different to llopen than it does to llwrite.
type Parser struct {
	ExpectA func(byte) bool
	AcceptC func(byte) bool
	IsInfo  func(byte) bool

	state State
	a, c  byte
	data  *ringbuf.Buffer
}

// NewParser builds a Parser ready to recognize frames matching expectA/acceptC.
// isInfo reports whether an accepted control byte denotes an I-frame (and
// therefore has a DATA region) rather than a supervisory frame.
func NewParser(expectA, acceptC, isInfo func(byte) bool) *Parser {
	return &Parser{
		ExpectA: expectA,
		AcceptC: acceptC,
		IsInfo:  isInfo,
		state:   StateStart,
		data:    ringbuf.New(256),
	}
}

// Reset returns the parser to StateStart, discarding any partial frame.
func (p *Parser) Reset() {
	p.state = StateStart
	p.a, p.c = 0, 0
	p.data.Reset()
}

// State reports the parser's current state.
func (p *Parser) State() State {
	return p.state
}

// A returns the address captured for the frame currently being parsed.
func (p *Parser) A() byte { return p.a }

// C returns the control field captured for the frame currently being parsed.
func (p *Parser) C() byte { return p.c }

// RawData returns the raw (still stuffed) bytes accumulated while in
// StateData. It is only meaningful once Step has returned true for an
// I-frame.
func (p *Parser) RawData() []byte { return p.data.Bytes() }

// Step feeds one byte to the parser and reports whether the frame is
// complete (StateStop reached). In BCC_OK and DATA a FLAG closes the
// frame; every earlier state reacts to FLAG by re-entering FLAG_RCV,
// discarding any partial frame in progress — this is how the parser
// resynchronizes after garbage on the line.
func (p *Parser) Step(b byte) (done bool) {
	switch p.state {
	case StateStart:
		if b == flagByte {
			p.state = StateFlagRcv
		}

	case StateFlagRcv:
		switch {
		case b == flagByte:
			// stay
		case p.ExpectA(b):
			p.a = b
			p.state = StateARcv
		default:
			p.state = StateStart
		}

	case StateARcv:
		switch {
		case b == flagByte:
			p.state = StateFlagRcv
		case p.AcceptC(b):
			p.c = b
			p.state = StateCRcv
		default:
			p.state = StateStart
		}

	case StateCRcv:
		switch {
		case b == flagByte:
			p.state = StateFlagRcv
		case b == BCC1(p.a, p.c):
			if p.IsInfo(p.c) {
				// I-frames carry a payload: go straight to
				// accumulating it instead of waiting in BCC_OK for a
				// FLAG that won't come next.
				p.state = StateData
				p.data.Reset()
			} else {
				p.state = StateBCCOk
			}
		default:
			p.state = StateStart
		}

	case StateBCCOk:
		if b == flagByte {
			p.state = StateStop
			return true
		}
		p.state = StateStart

	case StateData:
		if b == flagByte {
			p.state = StateStop
			return true
		}
		p.data.WriteByte(b)
	}
	return false
}
