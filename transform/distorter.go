package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

// OpenCVDistortionType is two radial and two tangential Brown-Conrady terms, as used by the OPENCV camera model.
const OpenCVDistortionType = DistortionType("opencv")

// Distorter defines a Transform that takes an undistorted image and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case OpenCVDistortionType:
		return NewOpenCVDistortion(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

// OpenCVDistortion holds the k1, k2, p1, p2 coefficients of the OPENCV camera model.
type OpenCVDistortion struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewOpenCVDistortion takes in a slice of floats that will be passed into the struct in order.
// Missing trailing values are zero.
func NewOpenCVDistortion(inp []float64) (*OpenCVDistortion, error) {
	if len(inp) > 4 {
		return nil, errors.Errorf("list of parameters too long, expected max 4, got %d", len(inp))
	}
	padded := make([]float64, 4)
	copy(padded, inp)
	return &OpenCVDistortion{padded[0], padded[1], padded[2], padded[3]}, nil
}

// CheckValid checks if the fields for OpenCVDistortion have valid inputs.
func (d *OpenCVDistortion) CheckValid() error {
	if d == nil {
		return InvalidDistortionError("OpenCV shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (d *OpenCVDistortion) ModelType() DistortionType {
	return OpenCVDistortionType
}

// Parameters returns the coefficients in k1, k2, p1, p2 order.
func (d *OpenCVDistortion) Parameters() []float64 {
	if d == nil {
		return []float64{0, 0, 0, 0}
	}
	return []float64{d.RadialK1, d.RadialK2, d.TangentialP1, d.TangentialP2}
}

// Transform distorts normalized image coordinates.
func (d *OpenCVDistortion) Transform(x, y float64) (float64, float64) {
	if d == nil {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1 + d.RadialK1*r2 + d.RadialK2*r2*r2
	xd := x*radial + 2*d.TangentialP1*x*y + d.TangentialP2*(r2+2*x*x)
	yd := y*radial + 2*d.TangentialP2*x*y + d.TangentialP1*(r2+2*y*y)
	return xd, yd
}
