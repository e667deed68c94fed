package linklayer

import "errors"

// The first three are the only device and protocol errors that cross the
// package boundary, per the protocol's recovery policy: everything else
// (bad BCC1, a bad escape sequence, a frame with the wrong address/control
// for the current operation) is absorbed by the state machine and the
// retry driver. Open can also return ErrSessionAlreadyOpen, and Send or
// Receive called on a session of the other role return a plain error.
var (
	ErrDeviceUnavailable = errors.New("serial device unavailable")
	ErrDeviceIO          = errors.New("serial device I/O failure")
	ErrTimeoutExceeded   = errors.New("retransmission limit exceeded")

	// ErrSessionAlreadyOpen guards the "at most one session open
	// process-wide" invariant.
	ErrSessionAlreadyOpen = errors.New("a link-layer session is already open")
)

// errMalformedFrame and errProtocolViolation never leave this package:
// they are recovered locally by discarding bytes up to the next FLAG and
// resuming the state machine, or (for errProtocolViolation) simply
// ignored so the retry loop keeps waiting for a valid response.
var (
	errMalformedFrame    = errors.New("malformed frame")
	errProtocolViolation = errors.New("unexpected frame for current operation")
)
