// Package linklayer implements the data-link layer: framed, stop-and-wait,
// error-controlled delivery of opaque byte payloads over a serial port.
// It is the hard part of the system — correctness here is dominated by a
// state machine that must tolerate byte loss, corruption, duplication,
// spurious bytes, and out-of-order timer wake-ups, not by any single
// clever algorithm.
package linklayer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hsfernandes/rcomlink/pkg/serialport"
	log "github.com/sirupsen/logrus"
)

// Role is fixed for a session at Open time.
type Role uint8

const (
	Transmitter Role = iota
	Receiver
)

func (r Role) String() string {
	if r == Transmitter {
		return "transmitter"
	}
	return "receiver"
}

// Params are the session parameters, immutable after Open.
type Params struct {
	Role               Role
	SerialPortName     string
	BaudRate           int
	Timeout            time.Duration
	MaxRetransmissions int
}

// sessionOpen enforces the "at most one session open process-wide"
// invariant. It is the one piece of process-wide state the signal/timer
// design notes call for — everything else protocol-related lives on
// Session.
var sessionOpen atomic.Bool

// Session holds everything that exists only while the link is open:
// the device handle, the alternating sequence bit, and per-operation
// retry bookkeeping. It is created by Open and destroyed by Close.
type Session struct {
	params Params
	port   serialport.Port
	timer  *Timer

	// seq is tx_sequence_bit for a Transmitter session (the next
	// sequence number it will send) and rx_expected_bit for a Receiver
	// session (the sequence number it next expects). Both are a single
	// alternating bit, toggled after each accepted/delivered I-frame.
	seq bool

	stats stats
}

type stats struct {
	sent, resent, rejected, accepted int
}

// openPort is overridable in tests so Open can be exercised against an
// in-memory serialport.Endpoint instead of a real device.
var openPort = func(cfg serialport.Config) (serialport.Port, error) {
	return serialport.Open(cfg)
}

// newSession builds a Session around an already-open Port, skipping the
// device-open step and the process-wide single-session guard. Tests use
// this to drive the handshake/exchange logic against an in-memory
// serialport.Endpoint without going through Open.
func newSession(params Params, port serialport.Port) *Session {
	return &Session{
		params: params,
		port:   port,
		timer:  NewTimer(params.Timeout, params.MaxRetransmissions),
	}
}

// Open performs the handshake that establishes a session, per role: the
// transmitter sends SET and waits for UA; the receiver waits for SET and
// replies UA.
func Open(params Params) (*Session, error) {
	if !sessionOpen.CompareAndSwap(false, true) {
		return nil, ErrSessionAlreadyOpen
	}

	port, err := openPort(serialport.Config{Device: params.SerialPortName, Baud: params.BaudRate})
	if err != nil {
		sessionOpen.Store(false)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s := newSession(params, port)

	if err := s.handshakeOpen(); err != nil {
		port.Close()
		sessionOpen.Store(false)
		return nil, err
	}

	log.Infof("[LINK][%v] session open on %v", params.Role, params.SerialPortName)
	return s, nil
}

func (s *Session) handshakeOpen() error {
	if s.params.Role == Transmitter {
		frame := encodeSupervisory(AddrTx, CtrlSET)
		parser := NewParser(
			func(a byte) bool { return a == AddrTx },
			func(c byte) bool { return c == CtrlUA },
			func(byte) bool { return false },
		)
		return s.exchangeSupervisory(frame, parser)
	}

	parser := NewParser(
		func(a byte) bool { return a == AddrTx },
		func(c byte) bool { return c == CtrlSET },
		func(byte) bool { return false },
	)
	if err := s.awaitSupervisory(parser); err != nil {
		return err
	}
	if err := s.port.Write(encodeSupervisory(AddrTx, CtrlUA)); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceIO, err)
	}
	return nil
}

// exchangeSupervisory sends frame, then drives the timer/retry loop
// until parser reaches StateStop or retries are exhausted.
func (s *Session) exchangeSupervisory(frame []byte, parser *Parser) error {
	s.timer.Reset()
	for {
		if err := s.port.Write(frame); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceIO, err)
		}
		s.timer.Arm()
		parser.Reset()

		for {
			if s.timer.Expired() {
				if !s.timer.NextRetry() {
					s.timer.Disarm()
					return ErrTimeoutExceeded
				}
				break // re-send frame unchanged
			}
			b, ok, err := s.port.ReadByte(deadline(s.params.Timeout))
			if err != nil {
				s.timer.Disarm()
				return fmt.Errorf("%w: %v", ErrDeviceIO, err)
			}
			if !ok {
				continue
			}
			if parser.Step(b) {
				s.timer.Disarm()
				return nil
			}
		}
	}
}

// awaitSupervisory waits, with no transmission of its own, for parser to
// reach StateStop. Used by the receiver side of llopen/llclose, which
// does not retransmit — it simply keeps listening.
func (s *Session) awaitSupervisory(parser *Parser) error {
	parser.Reset()
	for {
		b, ok, err := s.port.ReadByte(time.Now().Add(24 * time.Hour))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceIO, err)
		}
		if !ok {
			continue
		}
		if parser.Step(b) {
			return nil
		}
	}
}

func deadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}

// Close runs the DISC/UA termination exchange and releases the device.
// reportStatistics, when true, logs a summary of frames sent, resent,
// rejected and accepted; it has no other effect.
func (s *Session) Close(reportStatistics bool) error {
	defer func() {
		s.port.Close()
		sessionOpen.Store(false)
	}()

	err := s.handshakeClose()

	if reportStatistics {
		log.Infof("[LINK][%v] session closed | sent %v, resent %v, rejected %v, accepted %v",
			s.params.Role, s.stats.sent, s.stats.resent, s.stats.rejected, s.stats.accepted)
	}
	return err
}

func (s *Session) handshakeClose() error {
	if s.params.Role == Transmitter {
		// send (A=03,C=DISC); await (A=01,C=DISC); send (A=01,C=UA)
		discFrame := encodeSupervisory(AddrTx, CtrlDISC)
		parser := NewParser(
			func(a byte) bool { return a == AddrRx },
			func(c byte) bool { return c == CtrlDISC },
			func(byte) bool { return false },
		)
		err := s.exchangeSupervisory(discFrame, parser)
		if err != nil {
			// The peer's DISC never came (or the device failed): the
			// error is reported, and Close still releases the device.
			return err
		}
		if err := s.port.Write(encodeSupervisory(AddrRx, CtrlUA)); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceIO, err)
		}
		return nil
	}

	// Receiver: await (A=03,C=DISC); send (A=01,C=DISC); await (A=01,C=UA)
	discParser := NewParser(
		func(a byte) bool { return a == AddrTx },
		func(c byte) bool { return c == CtrlDISC },
		func(byte) bool { return false },
	)
	if err := s.awaitSupervisory(discParser); err != nil {
		return err
	}

	uaParser := NewParser(
		func(a byte) bool { return a == AddrRx },
		func(c byte) bool { return c == CtrlUA },
		func(byte) bool { return false },
	)
	err := s.exchangeSupervisory(encodeSupervisory(AddrRx, CtrlDISC), uaParser)
	if err == ErrTimeoutExceeded {
		// Disconnection is best-effort on this last step: the peer's
		// final UA may never arrive, but the device still closes.
		return nil
	}
	return err
}
