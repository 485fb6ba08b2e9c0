package directory

import (
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
)

// Builder builds directories from a Source.
type Builder struct {
	src    Source
	logger Logger
}

// NewBuilder creates a Builder. A nil logger discards output.
func NewBuilder(src Source, logger Logger) (*Builder, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{src: src, logger: logger}, nil
}
