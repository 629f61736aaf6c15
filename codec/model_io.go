package codec

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/model"
	"github.com/viam-labs/sfm-export/utils"
)

type entityCodec struct {
	name   string
	encode [2]func(*model.Record) ([]byte, error)
	decode [2]func([]byte, *model.Record) error
}

// entityCodecs are indexed by Format and listed in write order.
var entityCodecs = []entityCodec{
	{
		name:   CamerasFile,
		encode: [2]func(*model.Record) ([]byte, error){Text: encodeCamerasText, Binary: encodeCamerasBinary},
		decode: [2]func([]byte, *model.Record) error{Text: decodeCamerasText, Binary: decodeCamerasBinary},
	},
	{
		name:   ImagesFile,
		encode: [2]func(*model.Record) ([]byte, error){Text: encodeImagesText, Binary: encodeImagesBinary},
		decode: [2]func([]byte, *model.Record) error{Text: decodeImagesText, Binary: decodeImagesBinary},
	},
	{
		name:   Points3DFile,
		encode: [2]func(*model.Record) ([]byte, error){Text: encodePoints3DText, Binary: encodePoints3DBinary},
		decode: [2]func([]byte, *model.Record) error{Text: decodePoints3DText, Binary: decodePoints3DBinary},
	},
}

func checkFormat(format Format) error {
	if format != Text && format != Binary {
		return errors.Wrapf(ErrUnknownFormat, "%d", int(format))
	}
	return nil
}

// EncodedFile is one encoded model file.
type EncodedFile struct {
	Name string
	Data []byte
}

// Encode validates rec and encodes its three files in memory, in write order.
func Encode(rec *model.Record, format Format) ([]EncodedFile, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model")
	}
	files := make([]EncodedFile, 0, len(entityCodecs))
	for _, ec := range entityCodecs {
		data, err := ec.encode[format](rec)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s", ec.name)
		}
		files = append(files, EncodedFile{Name: ec.name + format.Ext(), Data: data})
	}
	return files, nil
}

// WriteModel writes rec to dir as cameras, images and points3D files, in that order. Every file is
// encoded before any is written and each is replaced atomically, so an encoding error leaves dir
// untouched. It returns the paths written.
func WriteModel(dir string, rec *model.Record, format Format) ([]string, error) {
	files, err := Encode(rec, format)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := utils.WriteFileAtomic(path, f.Data, 0o644); err != nil {
			return paths, errors.Wrapf(err, "failed to write %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Decode decodes a model from the contents of its three files, given in write order.
func Decode(cameras, images, points3D []byte, format Format) (*model.Record, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	rec := model.NewRecord()
	for i, data := range [][]byte{cameras, images, points3D} {
		if err := entityCodecs[i].decode[format](data, rec); err != nil {
			return nil, err
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.Wrap(err, "decoded model is inconsistent")
	}
	return rec, nil
}

// ReadModel reads the model stored in dir.
func ReadModel(dir string, format Format) (*model.Record, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	var contents [3][]byte
	for i, name := range format.FileNames() {
		//nolint:gosec
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", name)
		}
		contents[i] = data
	}
	return Decode(contents[0], contents[1], contents[2], format)
}

// DetectFormat reports which format the model in dir is stored in. All three files must be present.
func DetectFormat(dir string) (Format, error) {
	for _, format := range []Format{Binary, Text} {
		complete := true
		for _, name := range format.FileNames() {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				complete = false
				break
			}
		}
		if complete {
			return format, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownFormat, "no complete model in %q", dir)
}
