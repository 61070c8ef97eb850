// Package compress provides the codecs used for document state and
// snapshot blobs at rest. The codec name is persisted next to the blob so
// records written under one codec stay readable after the default changes.
package compress

import "fmt"

type Compress interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// FromName returns the codec recorded for a stored blob. An empty name
// means the blob was written uncompressed.
func FromName(name string) (Compress, error) {
	switch name {
	case "", "nop":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec %q", name)
	}
}
