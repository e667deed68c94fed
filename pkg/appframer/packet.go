// Package appframer is the application framer: the thin collaborator
// that builds and parses the three application-layer packet kinds
// carried as opaque payloads over the link layer's send/receive
// operations. It holds no reference to the serial device or the frame
// parser, keeping the link-layer/application boundary the protocol
// requires.
package appframer

import (
	"encoding/binary"
	"errors"
)

// MaxChunkSize is the largest data-packet payload the application framer
// produces; the link layer itself imposes no such limit.
const MaxChunkSize = 1000

// Control field values for the three packet kinds.
const (
	ctrlStart byte = 1
	ctrlData  byte = 2
	ctrlEnd   byte = 3

	fieldFileSize byte = 0
	fieldFileName byte = 1
)

var (
	ErrShortPacket   = errors.New("appframer: packet too short")
	ErrUnknownPacket = errors.New("appframer: unrecognized control field")
)

// Kind discriminates a parsed packet.
type Kind uint8

const (
	KindStart Kind = iota
	KindData
	KindEnd
)

// ControlInfo is the payload of a Start or End packet.
type ControlInfo struct {
	FileSize uint64
	Filename string
}

// DataInfo is the payload of a Data packet.
type DataInfo struct {
	Seq     int
	Payload []byte
}

// EncodeStart builds a Start control packet: `01 00 L1 <fileSize LE> 01 L2 <filename>`.
func EncodeStart(fileSize uint64, filename string) []byte {
	return encodeControl(ctrlStart, fileSize, filename)
}

// EncodeEnd builds an End control packet, identical in layout to Start
// but with control field 3; fileSize and filename must match the Start
// packet sent earlier in the same transfer.
func EncodeEnd(fileSize uint64, filename string) []byte {
	return encodeControl(ctrlEnd, fileSize, filename)
}

func encodeControl(ctrl byte, fileSize uint64, filename string) []byte {
	const l1 = 8 // fileSize is carried as a fixed 8-byte little-endian field
	l2 := len(filename)

	buf := make([]byte, 0, 3+l1+2+l2)
	buf = append(buf, ctrl, fieldFileSize, byte(l1))
	sizeBytes := make([]byte, l1)
	binary.LittleEndian.PutUint64(sizeBytes, fileSize)
	buf = append(buf, sizeBytes...)
	buf = append(buf, fieldFileName, byte(l2))
	buf = append(buf, filename...)
	return buf
}

// EncodeData builds a Data packet: `02 <seq mod 256> <len hi> <len lo> <payload>`.
func EncodeData(seq int, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	buf[0] = ctrlData
	buf[1] = byte(seq % 256)
	buf[2] = byte(len(payload) >> 8)
	buf[3] = byte(len(payload) & 0xFF)
	copy(buf[4:], payload)
	return buf
}

// Parse recognizes a packet's kind and decodes it. For KindStart/KindEnd
// it returns a *ControlInfo; for KindData, a *DataInfo.
func Parse(raw []byte) (Kind, *ControlInfo, *DataInfo, error) {
	if len(raw) == 0 {
		return 0, nil, nil, ErrShortPacket
	}
	switch raw[0] {
	case ctrlStart, ctrlEnd:
		info, err := parseControl(raw)
		if err != nil {
			return 0, nil, nil, err
		}
		if raw[0] == ctrlStart {
			return KindStart, info, nil, nil
		}
		return KindEnd, info, nil, nil
	case ctrlData:
		info, err := parseData(raw)
		if err != nil {
			return 0, nil, nil, err
		}
		return KindData, nil, info, nil
	default:
		return 0, nil, nil, ErrUnknownPacket
	}
}

func parseControl(raw []byte) (*ControlInfo, error) {
	if len(raw) < 3 {
		return nil, ErrShortPacket
	}
	if raw[1] != fieldFileSize {
		return nil, ErrUnknownPacket
	}
	l1 := int(raw[2])
	if len(raw) < 3+l1+2 {
		return nil, ErrShortPacket
	}
	sizeBytes := make([]byte, 8)
	copy(sizeBytes, raw[3:3+l1])
	fileSize := binary.LittleEndian.Uint64(sizeBytes)

	off := 3 + l1
	if raw[off] != fieldFileName {
		return nil, ErrUnknownPacket
	}
	l2 := int(raw[off+1])
	nameStart := off + 2
	if len(raw) < nameStart+l2 {
		return nil, ErrShortPacket
	}
	filename := string(raw[nameStart : nameStart+l2])

	return &ControlInfo{FileSize: fileSize, Filename: filename}, nil
}

func parseData(raw []byte) (*DataInfo, error) {
	if len(raw) < 4 {
		return nil, ErrShortPacket
	}
	seq := int(raw[1])
	length := int(raw[2])<<8 | int(raw[3])
	if len(raw) < 4+length {
		return nil, ErrShortPacket
	}
	payload := make([]byte, length)
	copy(payload, raw[4:4+length])
	return &DataInfo{Seq: seq, Payload: payload}, nil
}
