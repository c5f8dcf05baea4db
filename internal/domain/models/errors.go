package models

import "errors"

// ErrValidation indicates the caller supplied out-of-range or malformed input.
var ErrValidation = errors.New("validation failed")

// ErrDuplicateSlot indicates an active measurement already occupies the
// (subject, date, time-of-day) slot.
var ErrDuplicateSlot = errors.New("active measurement already exists for this date and time")

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrGoalNotActive indicates a lifecycle action was attempted on a goal that is
// not in a state allowing it.
var ErrGoalNotActive = errors.New("goal is not in an actionable state")
