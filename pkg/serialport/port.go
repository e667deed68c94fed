// Package serialport is the serial-port adaptation layer: the one
// external collaborator the link layer depends on for raw byte I/O. Its
// only contract is open/read-one/write/close, with the device configured
// raw, 8-bit, no-parity, no-flow-control, exactly as the teacher's
// amken3d-gopper/host/serial package wraps github.com/tarm/serial.
package serialport

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is what the link layer needs from a serial device: a deadline-aware
// single-byte read, a blocking write, and a close. Deadline-aware reads
// replace the original alarm-driven non-canonical read: both give a poll
// loop a byte read that never blocks past the caller's timeout.
type Port interface {
	// ReadByte returns the next byte off the wire, or ok=false if none
	// arrived before deadline. It returns promptly on each internal
	// poll quantum, the same non-blocking semantics the protocol
	// requires of non-canonical serial reads.
	ReadByte(deadline time.Time) (b byte, ok bool, err error)
	Write(p []byte) error
	Close() error
}

// Config describes how to open a physical serial device.
type Config struct {
	Device string
	Baud   int
}

// pollQuantum bounds how long a single underlying Read call may block;
// ReadByte loops internally across quanta until the caller's deadline.
const pollQuantum = 50 * time.Millisecond

// Native is the production Port, backed by github.com/tarm/serial.
type Native struct {
	port *serial.Port
}

// Open opens the named device at the given baud rate in raw, 8-bit,
// no-parity, no-flow-control mode, clearing the input/output queues.
func Open(cfg Config) (*Native, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: pollQuantum,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	// tarm/serial does not expose a queue-flush call; OpenPort already
	// starts the device with empty OS-level buffers.
	return &Native{port: port}, nil
}

// ReadByte implements Port.
func (n *Native) ReadByte(deadline time.Time) (byte, bool, error) {
	var buf [1]byte
	for time.Now().Before(deadline) {
		read, err := n.port.Read(buf[:])
		if err == io.EOF {
			// A read that times out with no byte is reported as EOF.
			continue
		}
		if err != nil {
			return 0, false, err
		}
		if read == 1 {
			return buf[0], true, nil
		}
	}
	return 0, false, nil
}

// Write implements Port.
func (n *Native) Write(p []byte) error {
	_, err := n.port.Write(p)
	return err
}

// Close implements Port, restoring the device's original settings.
func (n *Native) Close() error {
	return n.port.Close()
}
