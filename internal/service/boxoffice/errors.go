package boxoffice

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrShowNotFound   = errors.New("show not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrNotSelling     = errors.New("show is not selling tickets")
	ErrRateLimited    = errors.New("too many reservation attempts")
	ErrInProgress     = errors.New("request is already in progress")
	ErrBadTransition  = errors.New("ticket cannot take this action now")
	ErrBadFeedback    = errors.New("feedback rating must be between 1 and 5")
	ErrNoDispute      = errors.New("ticket has no open dispute")
)

type TicketNotFoundError struct {
	TicketID uuid.UUID
}

func (e TicketNotFoundError) Error() string {
	return fmt.Sprintf("ticket not found: %s", e.TicketID)
}
