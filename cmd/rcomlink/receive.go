package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/hsfernandes/rcomlink/pkg/appframer"
	"github.com/hsfernandes/rcomlink/pkg/linklayer"
	log "github.com/sirupsen/logrus"
)

// runReceiver drives the file-receive side: wait for a Start control
// packet, write Data packets to the file it names, then stop once the
// matching End control packet arrives.
func runReceiver(session *linklayer.Session, outputHint string) error {
	buf := make([]byte, appframer.MaxChunkSize+16)

	var (
		out      *os.File
		writer   *bufio.Writer
		started  *appframer.ControlInfo
		received uint64
	)
	defer func() {
		if writer != nil {
			writer.Flush()
		}
		if out != nil {
			out.Close()
		}
	}()

	for {
		n, err := session.Receive(buf)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		if n == 0 {
			// A REJ was sent for a corrupted frame; the transmitter
			// will retransmit. Nothing to do but keep listening.
			continue
		}

		kind, control, data, perr := appframer.Parse(buf[:n])
		if perr != nil {
			log.Warnf("[RX] dropping unparsable application packet : %v", perr)
			continue
		}

		switch kind {
		case appframer.KindStart:
			started = control
			name := control.Filename
			if name == "" {
				name = outputHint
			}
			out, err = os.Create(name)
			if err != nil {
				return fmt.Errorf("create %s: %w", name, err)
			}
			writer = bufio.NewWriter(out)
			log.Infof("[RX] transfer starting | %v | %v bytes", name, control.FileSize)

		case appframer.KindData:
			if writer == nil {
				return fmt.Errorf("data packet received before start packet")
			}
			if _, err := writer.Write(data.Payload); err != nil {
				return fmt.Errorf("write %s: %w", out.Name(), err)
			}
			received += uint64(len(data.Payload))

		case appframer.KindEnd:
			if started != nil && (control.FileSize != started.FileSize || control.Filename != started.Filename) {
				log.Warnf("[RX] end packet does not match start packet, keeping received data")
			}
			if writer != nil {
				if err := writer.Flush(); err != nil {
					return fmt.Errorf("flush %s: %w", out.Name(), err)
				}
			}
			log.Infof("[RX] transfer complete | %v bytes", received)
			return nil
		}
	}
}
