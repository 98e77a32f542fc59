package chatclient

import "errors"

var (
	ErrSessionClosed   = errors.New("chat session closed")
	ErrNoGroupSelected = errors.New("no group selected")
	ErrStaleSelection  = errors.New("group selection changed during the request")
	ErrNotConfirmed    = errors.New("message is not confirmed yet")
)
