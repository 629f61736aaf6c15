// Package pointcloud writes and reads model points as PCD point cloud files, for previewing an export
// in point cloud viewers.
package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/model"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// Point is a colored point read back from a pcd file.
type Point struct {
	Position r3.Vector
	RGB      [3]uint8
}

func colorToPCDInt(rgb [3]uint8) uint32 {
	return uint32(rgb[0])<<16 | uint32(rgb[1])<<8 | uint32(rgb[2])
}

func pcdIntToColor(c uint32) [3]uint8 {
	return [3]uint8{uint8(0xFF & (c >> 16)), uint8(0xFF & (c >> 8)), uint8(0xFF & c)}
}

// ToPCD writes points, in the given order, as an unorganized colored cloud.
func ToPCD(points []*model.Point3D, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	default:
		return errors.Errorf("unsupported pcd type %d", outputType)
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F U\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		len(points), len(points), data); err != nil {
		return err
	}
	if err := writePCDData(points, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

func writePCDData(points []*model.Point3D, out io.Writer, pcdtype PCDType) error {
	buf := make([]byte, 16)
	for _, p := range points {
		c := colorToPCDInt(p.RGB)
		var err error
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(p.XYZ.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.XYZ.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.XYZ.Z)))
			binary.LittleEndian.PutUint32(buf[12:], c)
			_, err = out.Write(buf)
		case PCDAscii:
			_, err = fmt.Fprintf(out, "%f %f %f %d\n", p.XYZ.X, p.XYZ.Y, p.XYZ.Z, c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type pcdHeader struct {
	width  uint64
	height uint64
	points uint64
	data   PCDType
}

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		if value != "x y z rgb" {
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if value != "4 4 4 4" {
			return errors.Errorf("unsupported pcd sizes %s", value)
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "POINTS":
		header.points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if header.points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", header.points, header.width*header.height)
		}
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		default:
			return errors.Errorf("unsupported pcd data type %s", value)
		}
	}
	return nil
}

// ReadPCD reads a cloud written by ToPCD.
func ReadPCD(inRaw io.Reader) ([]Point, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	if header.data == PCDBinary {
		return readPCDBinary(in, header)
	}
	return readPCDAscii(in, header)
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) ([]Point, error) {
	var points []Point
	for i := uint64(0); i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != 4 {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		var xyz [3]float64
		for j := range xyz {
			if xyz[j], err = strconv.ParseFloat(tokens[j], 64); err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, tokens[j])
			}
		}
		c, err := strconv.ParseUint(tokens[3], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid point %d color %s", i, tokens[3])
		}
		points = append(points, Point{Position: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, RGB: pcdIntToColor(uint32(c))})
	}
	return points, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) ([]Point, error) {
	var points []Point
	buf := make([]byte, 16)
	for i := uint64(0); i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		points = append(points, Point{
			Position: r3.Vector{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))),
			},
			RGB: pcdIntToColor(binary.LittleEndian.Uint32(buf[12:])),
		})
	}
	return points, nil
}
