package domain

import "errors"

var (
	ErrInvalidState      = errors.New("operation not allowed in current signaling state")
	ErrInvalidTransition = errors.New("invalid signaling transition")
	ErrInvalidSDP        = errors.New("malformed session description")
	ErrUnsupportedCodec  = errors.New("unsupported codec")
	ErrClosed            = errors.New("peer connection is closed")
	ErrPeerNotFound      = errors.New("peer not found")
)
