package guard

import "errors"

// ErrUserNotFound is returned when writing a quota row that does not exist.
var ErrUserNotFound = errors.New("guard: user quota not found")
