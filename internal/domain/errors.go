package domain

import "errors"

var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrAlreadyOpen             = errors.New("register session already open")
	ErrNotOpen                 = errors.New("no open register session")
	ErrAccessDenied            = errors.New("access denied")
	ErrRoleNotPermitted        = errors.New("role not permitted")
	ErrIncompleteFunding       = errors.New("incomplete funding")
	ErrCourtesyConflict        = errors.New("courtesy cannot be combined with other tenders")
	ErrStockAdjustmentFailed   = errors.New("stock adjustment failed")
	ErrPersistenceFailure      = errors.New("persistence failure")
	ErrPendingOrderUnavailable = errors.New("pending order already settled or voided")
)
