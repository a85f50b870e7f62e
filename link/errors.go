package link

import "errors"

// Sentinel errors for the synchronous half of the API (the async
// operations never return a Go error; results travel through the Observer
// per spec.md §7 — "nothing is thrown").
var (
	ErrNoFreeSlot     = errors.New("link: no free session slot")
	ErrInvalidChannel = errors.New("link: start channel out of range 1..512")
	ErrFileUnavailable = errors.New("link: firmware file could not be opened")
	ErrAlreadyBound   = errors.New("link: device already has a session in flight")
)

// Result codes delivered through Observer callbacks, matching spec.md §4.6's
// "0 = success, -1 = timeout/failure, -2 = invalid channel" taxonomy.
const (
	ResultOK            = 0
	ResultFailed         = -1
	ResultInvalidChannel = -2
	ResultFileError      = -3
)
