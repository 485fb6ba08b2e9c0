package reshape

import "errors"

// ErrDuplicatePair is returned when the long table holds the same
// (device name, label) pair more than once.
var ErrDuplicatePair = errors.New("reshape: duplicate device/label pair")
