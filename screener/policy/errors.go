package policy

import "errors"

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidState  = errors.New("invalid screening state")
	ErrPersistence   = errors.New("saving server policies")
)
