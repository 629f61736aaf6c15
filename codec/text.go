package codec

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-labs/sfm-export/model"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// textWriter accumulates space separated fields, one entity line at a time.
type textWriter struct {
	buf bytes.Buffer
}

func (w *textWriter) comment(line string) {
	w.buf.WriteString("# ")
	w.buf.WriteString(line)
	w.buf.WriteByte('\n')
}

func (w *textWriter) line(fields ...string) {
	w.buf.WriteString(strings.Join(fields, " "))
	w.buf.WriteByte('\n')
}

func encodeCamerasText(rec *model.Record) ([]byte, error) {
	var w textWriter
	w.comment("Camera list with one line of data per camera:")
	w.comment("  CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]")
	w.comment("Number of cameras: " + strconv.Itoa(len(rec.Cameras)))
	for _, id := range rec.SortedCameraIDs() {
		c := rec.Cameras[id]
		fields := []string{strconv.Itoa(c.ID), c.Model.String(), strconv.Itoa(c.Width), strconv.Itoa(c.Height)}
		for _, p := range c.Params {
			fields = append(fields, formatFloat(p))
		}
		w.line(fields...)
	}
	return w.buf.Bytes(), nil
}

func checkTextName(img *model.Image) error {
	name := img.Name
	if name == "" || strings.ContainsAny(name, "\r\n") || strings.TrimSpace(name) != name {
		return errors.Errorf("image %d: name %q cannot be written as text", img.ID, name)
	}
	return nil
}

func encodeImagesText(rec *model.Record) ([]byte, error) {
	var w textWriter
	w.comment("Image list with two lines of data per image:")
	w.comment("  IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME")
	w.comment("  POINTS2D[] as (X, Y, POINT3D_ID)")
	w.comment("Number of images: " + strconv.Itoa(len(rec.Images)) +
		", mean observations per image: " + formatFloat(rec.MeanObservationsPerImage()))
	for _, id := range rec.SortedImageIDs() {
		img := rec.Images[id]
		if err := checkTextName(img); err != nil {
			return nil, err
		}
		w.line(
			strconv.Itoa(img.ID),
			formatFloat(img.Qvec.Real), formatFloat(img.Qvec.Imag), formatFloat(img.Qvec.Jmag), formatFloat(img.Qvec.Kmag),
			formatFloat(img.Tvec.X), formatFloat(img.Tvec.Y), formatFloat(img.Tvec.Z),
			strconv.Itoa(img.CameraID),
			img.Name,
		)
		obs := make([]string, 0, 3*img.NumObservations())
		for i, xy := range img.Xys {
			obs = append(obs, formatFloat(xy.X), formatFloat(xy.Y), strconv.Itoa(img.Point3DIDs[i]))
		}
		w.line(obs...)
	}
	return w.buf.Bytes(), nil
}

func encodePoints3DText(rec *model.Record) ([]byte, error) {
	var w textWriter
	w.comment("3D point list with one line of data per point:")
	w.comment("  POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)")
	w.comment("Number of points: " + strconv.Itoa(len(rec.Points3D)) +
		", mean track length: " + formatFloat(rec.MeanTrackLength()))
	for _, id := range rec.SortedPoint3DIDs() {
		p := rec.Points3D[id]
		fields := []string{
			strconv.Itoa(p.ID),
			formatFloat(p.XYZ.X), formatFloat(p.XYZ.Y), formatFloat(p.XYZ.Z),
			strconv.Itoa(int(p.RGB[0])), strconv.Itoa(int(p.RGB[1])), strconv.Itoa(int(p.RGB[2])),
			formatFloat(p.Error),
		}
		for i, imageID := range p.ImageIDs {
			fields = append(fields, strconv.Itoa(imageID), strconv.Itoa(p.Point2DIdxs[i]))
		}
		w.line(fields...)
	}
	return w.buf.Bytes(), nil
}

// textReader walks the lines of a text model file, tracking line numbers and the count declared in
// the header.
type textReader struct {
	kind  string
	lines []string
	next  int

	declared     int
	declaredLine int
}

func newTextReader(kind string, data []byte) *textReader {
	lines := strings.Split(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return &textReader{kind: kind, lines: lines, declared: -1}
}

// entity returns the next non-blank, non-comment line and its 1-based number.
func (r *textReader) entity() (string, int, bool) {
	for r.next < len(r.lines) {
		line := strings.TrimSpace(r.lines[r.next])
		r.next++
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			r.header(line)
			continue
		}
		return line, r.next, true
	}
	return "", 0, false
}

// raw returns the next line whatever it holds.
func (r *textReader) raw() (string, int, bool) {
	if r.next >= len(r.lines) {
		return "", 0, false
	}
	line := strings.TrimSpace(r.lines[r.next])
	r.next++
	return line, r.next, true
}

func (r *textReader) header(line string) {
	const prefix = "Number of "
	body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	if !strings.HasPrefix(body, prefix) {
		return
	}
	_, rest, ok := strings.Cut(body, ":")
	if !ok {
		return
	}
	countStr, _, _ := strings.Cut(rest, ",")
	n, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil {
		return
	}
	r.declared = n
	r.declaredLine = r.next
}

func (r *textReader) fail(line int, err error) error {
	return &ParseError{Kind: r.kind, Line: line, Err: err}
}

// checkCount compares the number of decoded entities with the header, if there was one.
func (r *textReader) checkCount(n int) error {
	if r.declared >= 0 && r.declared != n {
		return r.fail(r.declaredLine, errors.Wrapf(ErrCountMismatch, "header declares %d, found %d", r.declared, n))
	}
	return nil
}

// fieldParser parses fields of one line, remembering the first failure.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) parseInt(i int, name string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.fields[i])
	if err != nil {
		p.err = errors.Wrapf(err, "invalid %s", name)
	}
	return v
}

func (p *fieldParser) parseFloat(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = errors.Wrapf(err, "invalid %s", name)
	}
	return v
}

func (p *fieldParser) parseByte(i int, name string) uint8 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 10, 8)
	if err != nil {
		p.err = errors.Wrapf(err, "invalid %s", name)
	}
	return uint8(v)
}

func decodeCamerasText(data []byte, rec *model.Record) error {
	r := newTextReader(CamerasFile, data)
	n := 0
	for {
		line, num, ok := r.entity()
		if !ok {
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return r.fail(num, errors.Wrapf(ErrTruncated, "expected at least 4 fields, got %d", len(fields)))
		}
		cameraModel, err := model.CameraModelFromName(fields[1])
		if err != nil {
			return r.fail(num, err)
		}
		if len(fields)-4 != cameraModel.NumParams() {
			return r.fail(num, errors.Errorf("model %s expects %d params, got %d",
				cameraModel, cameraModel.NumParams(), len(fields)-4))
		}
		p := fieldParser{fields: fields}
		c := &model.Camera{
			ID:     p.parseInt(0, "camera id"),
			Model:  cameraModel,
			Width:  p.parseInt(2, "width"),
			Height: p.parseInt(3, "height"),
			Params: make([]float64, cameraModel.NumParams()),
		}
		for i := range c.Params {
			c.Params[i] = p.parseFloat(4+i, "param")
		}
		if p.err != nil {
			return r.fail(num, p.err)
		}
		if err := rec.PutCamera(c); err != nil {
			return r.fail(num, err)
		}
		n++
	}
	return r.checkCount(n)
}

// splitFields returns the first n whitespace separated fields of line and the trimmed remainder.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := line
	for len(fields) < n {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		fields = append(fields, rest[:end])
		rest = rest[end:]
	}
	return fields, strings.TrimSpace(rest)
}

func decodeImagesText(data []byte, rec *model.Record) error {
	r := newTextReader(ImagesFile, data)
	n := 0
	for {
		line, num, ok := r.entity()
		if !ok {
			break
		}
		fields, name := splitFields(line, 9)
		if len(fields) < 9 || name == "" {
			return r.fail(num, errors.Wrap(ErrTruncated, "expected 10 fields"))
		}
		p := fieldParser{fields: fields}
		img := &model.Image{
			ID: p.parseInt(0, "image id"),
			Qvec: quat.Number{
				Real: p.parseFloat(1, "qw"), Imag: p.parseFloat(2, "qx"), Jmag: p.parseFloat(3, "qy"), Kmag: p.parseFloat(4, "qz"),
			},
			Tvec:     r3.Vector{X: p.parseFloat(5, "tx"), Y: p.parseFloat(6, "ty"), Z: p.parseFloat(7, "tz")},
			CameraID: p.parseInt(8, "camera id"),
			Name:     name,
		}
		if p.err != nil {
			return r.fail(num, p.err)
		}

		obsLine, obsNum, ok := r.raw()
		if !ok {
			return r.fail(num+1, errors.Wrapf(ErrTruncated, "image %d has no observation line", img.ID))
		}
		obs := strings.Fields(obsLine)
		if len(obs)%3 != 0 {
			return r.fail(obsNum, errors.Errorf("observation fields must come in triples, got %d", len(obs)))
		}
		p = fieldParser{fields: obs}
		for i := 0; i < len(obs); i += 3 {
			img.Xys = append(img.Xys, r2.Point{X: p.parseFloat(i, "x"), Y: p.parseFloat(i+1, "y")})
			img.Point3DIDs = append(img.Point3DIDs, p.parseInt(i+2, "point3D id"))
		}
		if p.err != nil {
			return r.fail(obsNum, p.err)
		}
		if err := rec.PutImage(img); err != nil {
			return r.fail(num, err)
		}
		n++
	}
	return r.checkCount(n)
}

func decodePoints3DText(data []byte, rec *model.Record) error {
	r := newTextReader(Points3DFile, data)
	n := 0
	for {
		line, num, ok := r.entity()
		if !ok {
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return r.fail(num, errors.Wrapf(ErrTruncated, "expected at least 8 fields, got %d", len(fields)))
		}
		if (len(fields)-8)%2 != 0 {
			return r.fail(num, errors.New("track fields must come in pairs"))
		}
		p := fieldParser{fields: fields}
		pt := &model.Point3D{
			ID:    p.parseInt(0, "point3D id"),
			XYZ:   r3.Vector{X: p.parseFloat(1, "x"), Y: p.parseFloat(2, "y"), Z: p.parseFloat(3, "z")},
			RGB:   [3]uint8{p.parseByte(4, "r"), p.parseByte(5, "g"), p.parseByte(6, "b")},
			Error: p.parseFloat(7, "error"),
		}
		for i := 8; i < len(fields); i += 2 {
			pt.ImageIDs = append(pt.ImageIDs, p.parseInt(i, "image id"))
			pt.Point2DIdxs = append(pt.Point2DIdxs, p.parseInt(i+1, "point2D index"))
		}
		if p.err != nil {
			return r.fail(num, p.err)
		}
		if err := rec.PutPoint3D(pt); err != nil {
			return r.fail(num, err)
		}
		n++
	}
	return r.checkCount(n)
}
