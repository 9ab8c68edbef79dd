package errors

import "errors"

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrTransport      = errors.New("transport error")
	ErrAuthentication = errors.New("authentication failed")
	ErrDecryption     = errors.New("decryption failed")
	ErrIO             = errors.New("filesystem i/o failed")
)
