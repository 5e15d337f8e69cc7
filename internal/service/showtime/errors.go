package showtime

import "errors"

var (
	ErrShowNotFound  = errors.New("show not found")
	ErrBadTransition = errors.New("show cannot take this action now")
	ErrBadShow       = errors.New("invalid show definition")
)
