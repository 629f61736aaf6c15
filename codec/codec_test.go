package codec

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/sfm-export/model"
)

// recordCmpOptions compares records by content; nil and empty observation lists are equal.
var recordCmpOptions = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmpopts.IgnoreUnexported(model.Record{}),
}

func newTestRecord() *model.Record {
	rec := model.NewRecord()
	rec.AddCamera(&model.Camera{
		Model: model.OpenCV, Width: 1920, Height: 1080,
		Params: []float64{2666.6666666666665, 2666.6666666666665, 960, 540, 0, 0, 0, 0},
	})
	rec.AddCamera(&model.Camera{
		Model: model.OpenCV, Width: 640, Height: 480,
		Params: []float64{500, 500, 320, 240, 0.1, -0.01, 1e-5, 0},
	})
	rec.AddImage(&model.Image{
		Qvec:       quat.Number{Real: 0.7071067811865476, Imag: 0.7071067811865475},
		Tvec:       r3.Vector{X: 0.1, Y: -2.5, Z: 1e-17},
		CameraID:   1,
		Name:       "Camera.jpg",
		Xys:        []r2.Point{{X: 10.5, Y: 20.25}, {X: 1.0 / 3, Y: 7}},
		Point3DIDs: []int{1, model.NoPoint3D},
	})
	rec.AddImage(&model.Image{
		Qvec:     quat.Number{Real: 1},
		CameraID: 2,
		Name:     "Camera 2.jpg",
	})
	rec.AddPoint3D(&model.Point3D{
		XYZ:         r3.Vector{X: 1.5, Y: -0.25, Z: math.Pi},
		RGB:         [3]uint8{255, 0, 128},
		Error:       0.5,
		ImageIDs:    []int{1},
		Point2DIdxs: []int{0},
	})
	rec.AddPoint3D(&model.Point3D{XYZ: r3.Vector{X: 4}, RGB: [3]uint8{128, 128, 128}})
	return rec
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{Text, Binary} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			rec := newTestRecord()

			paths, err := WriteModel(dir, rec, format)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, paths, test.ShouldHaveLength, 3)
			for i, name := range format.FileNames() {
				test.That(t, paths[i], test.ShouldEqual, filepath.Join(dir, name))
			}

			detected, err := DetectFormat(dir)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, detected, test.ShouldEqual, format)

			decoded, err := ReadModel(dir, format)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, cmp.Diff(rec, decoded, recordCmpOptions...), test.ShouldBeEmpty)
		})
	}
}

func TestRoundTripEmpty(t *testing.T) {
	for _, format := range []Format{Text, Binary} {
		dir := t.TempDir()
		_, err := WriteModel(dir, model.NewRecord(), format)
		test.That(t, err, test.ShouldBeNil)
		decoded, err := ReadModel(dir, format)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, decoded.Cameras, test.ShouldBeEmpty)
		test.That(t, decoded.Images, test.ShouldBeEmpty)
		test.That(t, decoded.Points3D, test.ShouldBeEmpty)
	}
}

func TestTextLayout(t *testing.T) {
	rec := model.NewRecord()
	for i, name := range []string{"A.jpg", "B.jpg"} {
		id := rec.AddCamera(&model.Camera{
			Model: model.OpenCV, Width: 1920, Height: 1080,
			Params: []float64{1600, 1600, 960, 540, 0, 0, 0, 0},
		})
		rec.AddImage(&model.Image{Qvec: quat.Number{Real: 1}, Tvec: r3.Vector{Z: float64(i)}, CameraID: id, Name: name})
	}
	dir := t.TempDir()
	_, err := WriteModel(dir, rec, Text)
	test.That(t, err, test.ShouldBeNil)

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		test.That(t, err, test.ShouldBeNil)
		return string(data)
	}

	test.That(t, read("cameras.txt"), test.ShouldEqual, strings.Join([]string{
		"# Camera list with one line of data per camera:",
		"#   CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]",
		"# Number of cameras: 2",
		"1 OPENCV 1920 1080 1600 1600 960 540 0 0 0 0",
		"2 OPENCV 1920 1080 1600 1600 960 540 0 0 0 0",
		"",
	}, "\n"))
	test.That(t, read("images.txt"), test.ShouldEqual, strings.Join([]string{
		"# Image list with two lines of data per image:",
		"#   IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME",
		"#   POINTS2D[] as (X, Y, POINT3D_ID)",
		"# Number of images: 2, mean observations per image: 0",
		"1 1 0 0 0 0 0 0 1 A.jpg",
		"",
		"2 1 0 0 0 0 0 1 2 B.jpg",
		"",
		"",
	}, "\n"))
	test.That(t, read("points3D.txt"), test.ShouldEqual, strings.Join([]string{
		"# 3D point list with one line of data per point:",
		"#   POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)",
		"# Number of points: 0, mean track length: 0",
		"",
	}, "\n"))
}

func TestBinaryLayout(t *testing.T) {
	rec := model.NewRecord()
	rec.AddCamera(&model.Camera{Model: model.OpenCV, Width: 4, Height: 2, Params: make([]float64, 8)})
	data, err := encodeCamerasBinary(rec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data, test.ShouldHaveLength, 8+4+4+8+8+8*8)
	test.That(t, binary.LittleEndian.Uint64(data[0:]), test.ShouldEqual, uint64(1))
	test.That(t, binary.LittleEndian.Uint32(data[8:]), test.ShouldEqual, uint32(1))
	test.That(t, binary.LittleEndian.Uint32(data[12:]), test.ShouldEqual, uint32(4))
	test.That(t, binary.LittleEndian.Uint64(data[16:]), test.ShouldEqual, uint64(4))
	test.That(t, binary.LittleEndian.Uint64(data[24:]), test.ShouldEqual, uint64(2))

	rec.AddImage(&model.Image{Qvec: quat.Number{Real: 1}, CameraID: 1, Name: "a.jpg"})
	data, err = encodeImagesBinary(rec)
	test.That(t, err, test.ShouldBeNil)
	// count, id, qvec, tvec, camera id, name and NUL, observation count
	test.That(t, data, test.ShouldHaveLength, 8+4+4*8+3*8+4+6+8)
	test.That(t, string(data[8+4+7*8+4:][:6]), test.ShouldEqual, "a.jpg\x00")
}

func parseErrorOf(t *testing.T, err error) *ParseError {
	t.Helper()
	test.That(t, err, test.ShouldNotBeNil)
	var perr *ParseError
	test.That(t, errors.As(err, &perr), test.ShouldBeTrue)
	return perr
}

func TestBinaryTruncated(t *testing.T) {
	full, err := encodeCamerasBinary(newTestRecord())
	test.That(t, err, test.ShouldBeNil)

	err = decodeCamerasBinary(full[:len(full)-3], model.NewRecord())
	perr := parseErrorOf(t, err)
	test.That(t, perr.Kind, test.ShouldEqual, CamerasFile)
	test.That(t, errors.Is(err, ErrTruncated), test.ShouldBeTrue)
	// the last param starts 8 bytes before the end
	test.That(t, perr.Offset, test.ShouldEqual, int64(len(full)-8))

	err = decodeCamerasBinary(full[:5], model.NewRecord())
	perr = parseErrorOf(t, err)
	test.That(t, perr.Offset, test.ShouldEqual, int64(0))
}

func TestBinaryCountExceedsData(t *testing.T) {
	var w binaryWriter
	w.u64(1 << 40)
	err := decodePoints3DBinary(w.buf, model.NewRecord())
	test.That(t, errors.Is(err, ErrTruncated), test.ShouldBeTrue)
}

func TestBinaryTrailingData(t *testing.T) {
	full, err := encodePoints3DBinary(newTestRecord())
	test.That(t, err, test.ShouldBeNil)
	err = decodePoints3DBinary(append(full, 0xff), model.NewRecord())
	perr := parseErrorOf(t, err)
	test.That(t, errors.Is(err, ErrTrailingData), test.ShouldBeTrue)
	test.That(t, perr.Offset, test.ShouldEqual, int64(len(full)))
}

func TestBinaryUnknownModel(t *testing.T) {
	var w binaryWriter
	w.u64(1)
	w.i32(1)
	w.i32(99)
	w.u64(10)
	w.u64(10)
	err := decodeCamerasBinary(w.buf, model.NewRecord())
	perr := parseErrorOf(t, err)
	test.That(t, errors.Is(err, model.ErrUnknownCameraModel), test.ShouldBeTrue)
	test.That(t, perr.Offset, test.ShouldEqual, int64(12))
}

func TestBinaryUnterminatedName(t *testing.T) {
	full, err := encodeImagesBinary(newTestRecord())
	test.That(t, err, test.ShouldBeNil)
	cut := strings.Index(string(full), "Camera.jpg") + 4
	err = decodeImagesBinary(full[:cut], model.NewRecord())
	test.That(t, errors.Is(err, ErrTruncated), test.ShouldBeTrue)
}

func TestTextErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		decode func([]byte, *model.Record) error
		input  string
		line   int
		target error
	}{
		{
			name:   "short camera line",
			decode: decodeCamerasText,
			input:  "# comment\n1 OPENCV 10\n",
			line:   2,
			target: ErrTruncated,
		},
		{
			name:   "unknown model",
			decode: decodeCamerasText,
			input:  "1 PINHOLE 10 10 1 1 5 5\n",
			line:   1,
			target: model.ErrUnknownCameraModel,
		},
		{
			name:   "param count",
			decode: decodeCamerasText,
			input:  "\n\n1 OPENCV 10 10 1 1 5 5\n",
			line:   3,
		},
		{
			name:   "bad number",
			decode: decodeCamerasText,
			input:  "1 OPENCV ten 10 1 1 5 5 0 0 0 0\n",
			line:   1,
		},
		{
			name:   "count mismatch",
			decode: decodeCamerasText,
			input:  "# Number of cameras: 2\n1 OPENCV 10 10 1 1 5 5 0 0 0 0\n",
			line:   1,
			target: ErrCountMismatch,
		},
		{
			name:   "missing observation line",
			decode: decodeImagesText,
			input:  "1 1 0 0 0 0 0 0 1 a.jpg",
			line:   2,
			target: ErrTruncated,
		},
		{
			name:   "observation triples",
			decode: decodeImagesText,
			input:  "1 1 0 0 0 0 0 0 1 a.jpg\n1 2\n",
			line:   2,
		},
		{
			name:   "color out of range",
			decode: decodePoints3DText,
			input:  "1 0 0 0 256 0 0 0\n",
			line:   1,
		},
		{
			name:   "track pairs",
			decode: decodePoints3DText,
			input:  "1 0 0 0 1 2 3 0 1\n",
			line:   1,
		},
		{
			name:   "duplicate id",
			decode: decodePoints3DText,
			input:  "1 0 0 0 1 2 3 0\n1 0 0 0 1 2 3 0\n",
			line:   2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode([]byte(tc.input), model.NewRecord())
			perr := parseErrorOf(t, err)
			test.That(t, perr.Line, test.ShouldEqual, tc.line)
			if tc.target != nil {
				test.That(t, errors.Is(err, tc.target), test.ShouldBeTrue)
			}
		})
	}
}

func TestTextNameWithSpaces(t *testing.T) {
	rec := model.NewRecord()
	rec.AddCamera(&model.Camera{Model: model.OpenCV, Width: 2, Height: 2, Params: make([]float64, 8)})
	rec.AddImage(&model.Image{Qvec: quat.Number{Real: 1}, CameraID: 1, Name: "My  Camera.jpg"})
	data, err := encodeImagesText(rec)
	test.That(t, err, test.ShouldBeNil)

	decoded := model.NewRecord()
	test.That(t, decodeImagesText(data, decoded), test.ShouldBeNil)
	test.That(t, decoded.Images[1].Name, test.ShouldEqual, "My  Camera.jpg")

	rec.Images[1].Name = "bad\nname"
	_, err = encodeImagesText(rec)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWriteModelRejectsInvalidRecord(t *testing.T) {
	rec := model.NewRecord()
	rec.AddImage(&model.Image{Qvec: quat.Number{Real: 1}, CameraID: 7, Name: "a.jpg"})
	dir := t.TempDir()
	_, err := WriteModel(dir, rec, Text)
	test.That(t, err, test.ShouldNotBeNil)
	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldBeEmpty)
}

func TestNonUnitQvecRejected(t *testing.T) {
	for _, format := range []Format{Text, Binary} {
		rec := newTestRecord()
		rec.Images[1].Qvec = quat.Number{Real: math.NaN()}
		_, err := Encode(rec, format)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "qvec is not unit norm")
	}

	cameras := []byte("1 OPENCV 640 480 500 500 320 240 0 0 0 0\n")
	_, err := Decode(cameras, []byte("1 nan 0 0 0 0 0 0 1 a.jpg\n\n"), nil, Text)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "qvec is not unit norm")
}

func TestDecodeDetectsInconsistentModel(t *testing.T) {
	_, err := Decode(nil, []byte("1 1 0 0 0 0 0 0 3 a.jpg\n\n"), nil, Text)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera 3 does not exist")
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := DetectFormat(dir)
	test.That(t, errors.Is(err, ErrUnknownFormat), test.ShouldBeTrue)

	test.That(t, os.WriteFile(filepath.Join(dir, "cameras.bin"), nil, 0o600), test.ShouldBeNil)
	_, err = DetectFormat(dir)
	test.That(t, errors.Is(err, ErrUnknownFormat), test.ShouldBeTrue)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"text": Text, "TXT": Text, ".bin": Binary, "binary": Binary} {
		got, err := ParseFormat(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	_, err := ParseFormat("ply")
	test.That(t, errors.Is(err, ErrUnknownFormat), test.ShouldBeTrue)

	var f Format
	test.That(t, f.UnmarshalText([]byte("binary")), test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, Binary)
	out, err := f.MarshalText()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, "binary")
}

func TestEncodeDecodeInMemory(t *testing.T) {
	rec := newTestRecord()
	files, err := Encode(rec, Binary)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files[0].Name, test.ShouldEqual, "cameras.bin")
	decoded, err := Decode(files[0].Data, files[1].Data, files[2].Data, Binary)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(rec.Images, decoded.Images, cmpopts.EquateEmpty()), test.ShouldBeEmpty)
}
