package linklayer

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Send implements llwrite: build an I-frame from payload, send it, and
// retry under the timer/retry driver until the receiver's RR(¬seq)
// accepts it, a REJ asks for a retransmission, or retries are exhausted.
func (s *Session) Send(payload []byte) (int, error) {
	if s.params.Role != Transmitter {
		return 0, fmt.Errorf("Send called on a %s session", s.params.Role)
	}

	frame := encodeInformation(AddrTx, CtrlI(s.seq), payload)
	parser := NewParser(
		func(a byte) bool { return a == AddrTx },
		func(c byte) bool {
			if _, ok := SeqOfRR(c); ok {
				return true
			}
			_, ok := SeqOfREJ(c)
			return ok
		},
		func(byte) bool { return false },
	)

	s.timer.Reset()
	for {
		if err := s.port.Write(frame); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDeviceIO, err)
		}
		if s.timer.Retries() == 0 {
			s.stats.sent++
		} else {
			s.stats.resent++
		}
		s.timer.Arm()
		parser.Reset()

		accepted, rejected, timedOut, err := s.awaitResponse(parser)
		if err != nil {
			s.timer.Disarm()
			return 0, err
		}
		if timedOut {
			if !s.timer.NextRetry() {
				s.timer.Disarm()
				return 0, ErrTimeoutExceeded
			}
			continue // retransmit the same frame, unchanged
		}
		if rejected {
			s.stats.rejected++
			if !s.timer.NextRetry() {
				s.timer.Disarm()
				return 0, ErrTimeoutExceeded
			}
			continue
		}
		if accepted {
			s.timer.Disarm()
			s.stats.accepted++
			s.seq = !s.seq
			return len(payload), nil
		}
	}
}

// awaitResponse drives byte reads into parser until it recognizes an
// RR/REJ with the expected address, the timer expires, or a device error
// occurs.
func (s *Session) awaitResponse(parser *Parser) (accepted, rejected, timedOut bool, err error) {
	for {
		if s.timer.Expired() {
			return false, false, true, nil
		}
		b, ok, rerr := s.port.ReadByte(deadline(s.params.Timeout))
		if rerr != nil {
			return false, false, false, fmt.Errorf("%w: %v", ErrDeviceIO, rerr)
		}
		if !ok {
			continue
		}
		if !parser.Step(b) {
			continue
		}
		c := parser.C()
		if seq, ok := SeqOfRR(c); ok {
			// Acceptance rule: the frame is accepted iff the response
			// is RR(¬tx_sequence_bit).
			if seq == !s.seq {
				return true, false, false, nil
			}
			// RR confirming the bit we just sent (a stray duplicate ack)
			// is neither an accept nor a reject; keep waiting.
			parser.Reset()
			continue
		}
		if _, ok := SeqOfREJ(c); ok {
			return false, true, false, nil
		}
		parser.Reset()
	}
}

// Receive implements llread: run the byte-at-a-time parser in I-frame
// mode, verify BCC2, and reply RR or REJ. Unlike an error, a BCC2
// mismatch is handled locally (a REJ is sent) and reported to the
// caller as zero bytes with a nil error, since the transmitter will
// retransmit.
func (s *Session) Receive(buf []byte) (int, error) {
	if s.params.Role != Receiver {
		return 0, fmt.Errorf("Receive called on a %s session", s.params.Role)
	}

	parser := NewParser(
		func(a byte) bool { return a == AddrTx },
		func(c byte) bool { _, ok := SeqOfI(c); return ok },
		func(c byte) bool { _, ok := SeqOfI(c); return ok },
	)

	for {
		b, ok, err := s.port.ReadByte(time.Now().Add(24 * time.Hour))
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDeviceIO, err)
		}
		if !ok {
			continue
		}
		if !parser.Step(b) {
			continue
		}

		receivedSeq, _ := SeqOfI(parser.C())
		unstuffed, derr := destuff(parser.RawData())
		if derr != nil {
			// Malformed escape sequence: drop the frame silently and
			// keep listening. No ack is sent; the transmitter will
			// eventually time out and retransmit.
			log.Warnf("[LINK][%v][RX][seq %v] malformed I-frame dropped : %v", s.params.Role, receivedSeq, derr)
			parser.Reset()
			continue
		}
		if len(unstuffed) == 0 {
			parser.Reset()
			continue
		}
		payload := unstuffed[:len(unstuffed)-1]
		gotBCC2 := unstuffed[len(unstuffed)-1]

		if BCC2(payload) != gotBCC2 {
			s.port.Write(encodeSupervisory(AddrTx, CtrlREJ(receivedSeq)))
			s.stats.rejected++
			return 0, nil
		}

		// Always acknowledge readiness for the other sequence number,
		// even for a duplicate, to unblock a transmitter that never
		// saw our previous RR.
		s.port.Write(encodeSupervisory(AddrTx, CtrlRR(!receivedSeq)))
		s.stats.accepted++

		if receivedSeq != s.seq {
			// Retransmission of the frame we already delivered: ack
			// again but do not deliver the payload upward a second time.
			parser.Reset()
			continue
		}

		n := copy(buf, payload)
		s.seq = !s.seq
		return n, nil
	}
}
