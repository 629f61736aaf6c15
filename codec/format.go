// Package codec reads and writes models in the COLMAP text and binary layouts.
package codec

import (
	"strings"

	"github.com/pkg/errors"
)

// Format is a model file encoding.
type Format int

// Supported formats.
const (
	Text Format = iota
	Binary
)

// ErrUnknownFormat is returned for unrecognized format names and directories holding no model.
var ErrUnknownFormat = errors.New("unknown model format")

// Entity file base names, in the order they are written.
const (
	CamerasFile  = "cameras"
	ImagesFile   = "images"
	Points3DFile = "points3D"
)

// String returns the format's configuration name.
func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	if f == Binary {
		return ".bin"
	}
	return ".txt"
}

// FileNames returns the three file names of a model in this format.
func (f Format) FileNames() []string {
	return []string{CamerasFile + f.Ext(), ImagesFile + f.Ext(), Points3DFile + f.Ext()}
}

// ParseFormat parses "text" or "binary". The extensions "txt" and "bin" are accepted as well.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "text", "txt":
		return Text, nil
	case "binary", "bin":
		return Binary, nil
	default:
		return 0, errors.Wrapf(ErrUnknownFormat, "%q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if f != Text && f != Binary {
		return nil, errors.Wrapf(ErrUnknownFormat, "%d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	parsed, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
