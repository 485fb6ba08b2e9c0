package directory

import "errors"

var (
	// ErrNilSource is returned when a Builder is created without a source.
	ErrNilSource = errors.New("directory: source is required")

	// ErrEmptyDeviceType is returned when filtering by an empty type tag.
	ErrEmptyDeviceType = errors.New("directory: device type is required")
)
