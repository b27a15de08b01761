package parity

import "errors"

var errNotSupported = errors.New("parity: handler does not support this operation")
