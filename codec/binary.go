package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/sfm-export/model"
)

// binaryWriter appends little-endian fields.
type binaryWriter struct {
	buf []byte
}

func (w *binaryWriter) u8(v uint8) { w.buf = append(w.buf, v) }
func (w *binaryWriter) i32(v int32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v)) }
func (w *binaryWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *binaryWriter) i64(v int64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *binaryWriter) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *binaryWriter) cstring(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func checkInt32(v int, what string) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return errors.Errorf("%s %d does not fit in 32 bits", what, v)
	}
	return nil
}

func encodeCamerasBinary(rec *model.Record) ([]byte, error) {
	var w binaryWriter
	w.u64(uint64(len(rec.Cameras)))
	for _, id := range rec.SortedCameraIDs() {
		c := rec.Cameras[id]
		if err := checkInt32(c.ID, "camera id"); err != nil {
			return nil, err
		}
		w.i32(int32(c.ID))
		w.i32(int32(c.Model.ID()))
		w.u64(uint64(c.Width))
		w.u64(uint64(c.Height))
		for _, p := range c.Params {
			w.f64(p)
		}
	}
	return w.buf, nil
}

func encodeImagesBinary(rec *model.Record) ([]byte, error) {
	var w binaryWriter
	w.u64(uint64(len(rec.Images)))
	for _, id := range rec.SortedImageIDs() {
		img := rec.Images[id]
		if err := checkInt32(img.ID, "image id"); err != nil {
			return nil, err
		}
		if err := checkInt32(img.CameraID, "camera id"); err != nil {
			return nil, err
		}
		if strings.IndexByte(img.Name, 0) >= 0 {
			return nil, errors.Errorf("image %d: name contains a NUL byte", img.ID)
		}
		w.i32(int32(img.ID))
		w.f64(img.Qvec.Real)
		w.f64(img.Qvec.Imag)
		w.f64(img.Qvec.Jmag)
		w.f64(img.Qvec.Kmag)
		w.f64(img.Tvec.X)
		w.f64(img.Tvec.Y)
		w.f64(img.Tvec.Z)
		w.i32(int32(img.CameraID))
		w.cstring(img.Name)
		w.u64(uint64(img.NumObservations()))
		for i, xy := range img.Xys {
			w.f64(xy.X)
			w.f64(xy.Y)
			w.i64(int64(img.Point3DIDs[i]))
		}
	}
	return w.buf, nil
}

func encodePoints3DBinary(rec *model.Record) ([]byte, error) {
	var w binaryWriter
	w.u64(uint64(len(rec.Points3D)))
	for _, id := range rec.SortedPoint3DIDs() {
		p := rec.Points3D[id]
		w.u64(uint64(p.ID))
		w.f64(p.XYZ.X)
		w.f64(p.XYZ.Y)
		w.f64(p.XYZ.Z)
		w.u8(p.RGB[0])
		w.u8(p.RGB[1])
		w.u8(p.RGB[2])
		w.f64(p.Error)
		w.u64(uint64(p.TrackLength()))
		for i, imageID := range p.ImageIDs {
			if err := checkInt32(imageID, "image id"); err != nil {
				return nil, err
			}
			if err := checkInt32(p.Point2DIdxs[i], "point2D index"); err != nil {
				return nil, err
			}
			w.i32(int32(imageID))
			w.i32(int32(p.Point2DIdxs[i]))
		}
	}
	return w.buf, nil
}

// binaryReader reads little-endian fields. The first failure is kept along with the offset of the
// field that caused it; later reads return zero values.
type binaryReader struct {
	kind string
	data []byte
	off  int
	err  error
}

func (r *binaryReader) fail(off int, err error) {
	if r.err == nil {
		r.err = &ParseError{Kind: r.kind, Offset: int64(off), Err: err}
	}
}

func (r *binaryReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data)-r.off < n {
		r.fail(r.off, errors.Wrapf(ErrTruncated, "reading %s", what))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binaryReader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *binaryReader) i32(what string) int {
	if b := r.take(4, what); b != nil {
		return int(int32(binary.LittleEndian.Uint32(b)))
	}
	return 0
}

func (r *binaryReader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *binaryReader) i64(what string) int {
	return int(int64(r.u64(what)))
}

func (r *binaryReader) f64(what string) float64 {
	return math.Float64frombits(r.u64(what))
}

// length reads a u64 count of elements of at least elemSize bytes each, rejecting counts the
// remaining data cannot hold.
func (r *binaryReader) length(what string, elemSize int) int {
	start := r.off
	n := r.u64(what)
	if r.err != nil {
		return 0
	}
	if remaining := uint64(len(r.data) - r.off); n > remaining/uint64(elemSize) {
		r.fail(start, errors.Wrapf(ErrTruncated, "%s %d exceeds remaining data", what, n))
		return 0
	}
	return int(n)
}

func (r *binaryReader) cstring(what string) string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.data[r.off:], 0)
	if end < 0 {
		r.fail(r.off, errors.Wrapf(ErrTruncated, "unterminated %s", what))
		return ""
	}
	s := string(r.data[r.off : r.off+end])
	r.off += end + 1
	return s
}

// finish reports trailing bytes once all entities are read.
func (r *binaryReader) finish() error {
	if r.err == nil && r.off != len(r.data) {
		r.fail(r.off, errors.Wrapf(ErrTrailingData, "%d bytes", len(r.data)-r.off))
	}
	return r.err
}

// Minimum encoded sizes, used to bound declared counts.
const (
	minCameraSize    = 4 + 4 + 8 + 8
	minImageSize     = 4 + 7*8 + 4 + 1 + 8
	minPoint3DSize   = 8 + 3*8 + 3 + 8 + 8
	observationSize  = 8 + 8 + 8
	trackElementSize = 4 + 4
)

func decodeCamerasBinary(data []byte, rec *model.Record) error {
	r := &binaryReader{kind: CamerasFile, data: data}
	n := r.length("camera count", minCameraSize)
	for range n {
		start := r.off
		c := &model.Camera{ID: r.i32("camera id")}
		modelOff := r.off
		modelID := r.i32("model id")
		c.Width = int(r.u64("width"))
		c.Height = int(r.u64("height"))
		if r.err != nil {
			break
		}
		cameraModel, err := model.CameraModelFromID(modelID)
		if err != nil {
			r.fail(modelOff, err)
			break
		}
		c.Model = cameraModel
		c.Params = make([]float64, cameraModel.NumParams())
		for i := range c.Params {
			c.Params[i] = r.f64("param")
		}
		if r.err != nil {
			break
		}
		if err := rec.PutCamera(c); err != nil {
			r.fail(start, err)
		}
	}
	return r.finish()
}

func decodeImagesBinary(data []byte, rec *model.Record) error {
	r := &binaryReader{kind: ImagesFile, data: data}
	n := r.length("image count", minImageSize)
	for range n {
		start := r.off
		img := &model.Image{
			ID: r.i32("image id"),
			Qvec: quat.Number{
				Real: r.f64("qw"), Imag: r.f64("qx"), Jmag: r.f64("qy"), Kmag: r.f64("qz"),
			},
			Tvec:     r3.Vector{X: r.f64("tx"), Y: r.f64("ty"), Z: r.f64("tz")},
			CameraID: r.i32("camera id"),
			Name:     r.cstring("name"),
		}
		numObs := r.length("observation count", observationSize)
		if r.err != nil {
			break
		}
		img.Xys = make([]r2.Point, numObs)
		img.Point3DIDs = make([]int, numObs)
		for i := range numObs {
			img.Xys[i] = r2.Point{X: r.f64("x"), Y: r.f64("y")}
			img.Point3DIDs[i] = r.i64("point3D id")
		}
		if r.err != nil {
			break
		}
		if err := rec.PutImage(img); err != nil {
			r.fail(start, err)
		}
	}
	return r.finish()
}

func decodePoints3DBinary(data []byte, rec *model.Record) error {
	r := &binaryReader{kind: Points3DFile, data: data}
	n := r.length("point count", minPoint3DSize)
	for range n {
		start := r.off
		p := &model.Point3D{
			ID:    int(r.u64("point3D id")),
			XYZ:   r3.Vector{X: r.f64("x"), Y: r.f64("y"), Z: r.f64("z")},
			RGB:   [3]uint8{r.u8("r"), r.u8("g"), r.u8("b")},
			Error: r.f64("error"),
		}
		trackLen := r.length("track length", trackElementSize)
		if r.err != nil {
			break
		}
		p.ImageIDs = make([]int, trackLen)
		p.Point2DIdxs = make([]int, trackLen)
		for i := range trackLen {
			p.ImageIDs[i] = r.i32("image id")
			p.Point2DIdxs[i] = r.i32("point2D index")
		}
		if r.err != nil {
			break
		}
		if err := rec.PutPoint3D(p); err != nil {
			r.fail(start, err)
		}
	}
	return r.finish()
}
