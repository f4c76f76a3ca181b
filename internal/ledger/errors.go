package ledger

import "errors"

var (
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrMalformedParams    = errors.New("malformed instruction params")
)
