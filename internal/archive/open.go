package archive

import (
	"context"
	"fmt"
)

// Options selects and configures a driver for Open.
type Options struct {
	Driver Driver
	Dir    string
	S3     S3Config
}

// Open returns the Store named by opts.Driver. An empty driver means no
// archive; Open then returns (nil, nil).
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "":
		return nil, nil
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(opts.Dir)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", opts.Driver)
	}
}
