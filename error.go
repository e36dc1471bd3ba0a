package godali

import "errors"

var (
	ErrNilTransport        = errors.New("transport is nil")
	ErrInvalidFrameLength  = errors.New("invalid frame length")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrBusBusy             = errors.New("bus busy, query already outstanding")
	ErrLinkDown            = errors.New("link down")
	ErrEncodingUnsupported = errors.New("frame length not supported by hardware")
	ErrClosed              = errors.New("interface closed")
	ErrDroppedFrame        = errors.New("transport incoming channel full")
	ErrSendTimeout         = errors.New("timeout waiting for send completion")
)
