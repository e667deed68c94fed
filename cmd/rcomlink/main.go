package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hsfernandes/rcomlink/pkg/linklayer"
	log "github.com/sirupsen/logrus"
)

const usage = "usage: rcomlink <serial_port> <tx|rx> <baud_rate> <n_retransmissions> <timeout_seconds> <filename>"

func main() {
	log.SetLevel(log.InfoLevel)

	if len(os.Args) != 7 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	serialPort := os.Args[1]
	roleArg := os.Args[2]
	filename := os.Args[6]

	baud, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid baud rate %q: %v\n", os.Args[3], err)
		os.Exit(1)
	}
	retries, err := strconv.Atoi(os.Args[4])
	if err != nil || retries < 0 {
		fmt.Fprintf(os.Stderr, "invalid retransmission count %q\n", os.Args[4])
		os.Exit(1)
	}
	timeoutSeconds, err := strconv.Atoi(os.Args[5])
	if err != nil || timeoutSeconds <= 0 {
		fmt.Fprintf(os.Stderr, "invalid timeout %q\n", os.Args[5])
		os.Exit(1)
	}

	var role linklayer.Role
	switch roleArg {
	case "tx":
		role = linklayer.Transmitter
	case "rx":
		role = linklayer.Receiver
	default:
		fmt.Fprintf(os.Stderr, "invalid role %q, want tx or rx\n", roleArg)
		os.Exit(1)
	}

	params := linklayer.Params{
		Role:               role,
		SerialPortName:     serialPort,
		BaudRate:           baud,
		Timeout:            time.Duration(timeoutSeconds) * time.Second,
		MaxRetransmissions: retries,
	}

	session, err := linklayer.Open(params)
	if err != nil {
		fmt.Printf("could not open link session on %v : %v\n", serialPort, err)
		os.Exit(1)
	}

	var runErr error
	if role == linklayer.Transmitter {
		runErr = runTransmitter(session, filename)
	} else {
		runErr = runReceiver(session, filename)
	}

	if closeErr := session.Close(true); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	if runErr != nil {
		fmt.Printf("file transfer failed : %v\n", runErr)
		os.Exit(1)
	}
}
