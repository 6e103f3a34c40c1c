package exception

import (
	"errors"
	"fmt"
)

// ErrInvalidTargetSpec returned when a target string cannot be parsed
var ErrInvalidTargetSpec = errors.New("invalid target spec")

// ErrNoSuitableInterface returned when no interface can be used for scanning
var ErrNoSuitableInterface = errors.New("no suitable network interface")

// ErrPermissionDenied returned when raw socket creation is refused by the OS
var ErrPermissionDenied = errors.New("permission denied: raw sockets require elevated privileges")

// ErrPacketDecode returned when an inbound frame cannot be decoded
var ErrPacketDecode = errors.New("packet decode error")

// ErrUnsupportedProtocol returned for protocol names we do not know
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// DecodeError describes why a single frame was rejected
type DecodeError struct {
	Protocol string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrPacketDecode, e.Protocol, e.Reason)
}

// Unwrap allows errors.Is(err, ErrPacketDecode)
func (e *DecodeError) Unwrap() error {
	return ErrPacketDecode
}

// NewDecodeError returns a DecodeError for protocol with formatted reason
func NewDecodeError(protocol string, format string, args ...any) error {
	return &DecodeError{
		Protocol: protocol,
		Reason:   fmt.Sprintf(format, args...),
	}
}
