package pn532

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// serialPort is the subset of go.bug.st/serial.Port the transport needs.
// Narrowing it to an interface lets tests inject a fake UART without
// opening a real device.
type serialPort interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// openSerialPort opens the named device at 115200 8-N-1, no flow control,
// matching spec.md §6's serial configuration (dsrdtr=false, rtscts=false).
func openSerialPort(name string, baud int) (serialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	// DTR is repurposed as the PN532's RSTPDN line; it must start
	// deasserted so Open's reset pulse is a clean transition.
	if err := port.SetDTR(false); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
