package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hsfernandes/rcomlink/pkg/appframer"
	"github.com/hsfernandes/rcomlink/pkg/linklayer"
	log "github.com/sirupsen/logrus"
)

// runTransmitter drives the file-send side: a Start control packet, the
// file split into appframer.MaxChunkSize-byte Data packets, then an End
// control packet whose fileSize/filename echo the Start packet's.
func runTransmitter(session *linklayer.Session, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filename, err)
	}
	fileSize := uint64(info.Size())
	baseName := filepath.Base(filename)

	if _, err := session.Send(appframer.EncodeStart(fileSize, baseName)); err != nil {
		return fmt.Errorf("send start packet: %w", err)
	}

	chunk := make([]byte, appframer.MaxChunkSize)
	seq := 0
	var sent uint64
	for {
		n, rerr := f.Read(chunk)
		if n > 0 {
			if _, err := session.Send(appframer.EncodeData(seq, chunk[:n])); err != nil {
				return fmt.Errorf("send data packet %d: %w", seq, err)
			}
			seq++
			sent += uint64(n)
			log.Debugf("[TX][x%x] chunk sent | %v/%v bytes", seq, sent, fileSize)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read %s: %w", filename, rerr)
		}
	}

	if _, err := session.Send(appframer.EncodeEnd(fileSize, baseName)); err != nil {
		return fmt.Errorf("send end packet: %w", err)
	}

	log.Infof("[TX] transfer complete | %v | %v bytes", filename, sent)
	return nil
}
