package pascalvoc

import (
	"encoding/xml"
	"io/ioutil"
	"math"

	"github.com/vocprep/vocprep/errors"
)

// clampEpsilon is the tolerance applied to normalized coordinates: values in
// [-clampEpsilon, 1+clampEpsilon] are silently clamped into [0,1], anything
// further out fails with ErrCoordinateOutOfRange. Labeling tools routinely
// emit boxes a fraction of a pixel outside the image.
const clampEpsilon = 1e-3

// The VOC document shape. Fields beyond the ones we consume (folder, source,
// segmented, pose, truncated, difficult, depth) are ignored by the decoder.
type xmlAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Filename string      `xml:"filename"`
	Size     xmlSize     `xml:"size"`
	Objects  []xmlObject `xml:"object"`
}

type xmlSize struct {
	Width  int64 `xml:"width"`
	Height int64 `xml:"height"`
}

type xmlObject struct {
	Name   string    `xml:"name"`
	Bndbox xmlBndbox `xml:"bndbox"`
}

// Coordinates are pointers so a missing element can be told apart from a
// legitimate zero.
type xmlBndbox struct {
	XMin *float64 `xml:"xmin"`
	YMin *float64 `xml:"ymin"`
	XMax *float64 `xml:"xmax"`
	YMax *float64 `xml:"ymax"`
}

// ParseFile reads one PASCAL-VOC XML file and returns the normalized
// annotation. Box coordinates are divided by the image dimensions and
// clamped into [0,1].
func ParseFile(path string) (Annotation, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return Annotation{}, errors.Wrapf(err, "error reading annotation %s", path)
	}

	ann, err := Parse(raw)
	if err != nil {
		return Annotation{}, errors.WrapfOrNil(err, "%s", path)
	}
	return ann, nil
}

// Parse decodes and normalizes one PASCAL-VOC XML document.
func Parse(raw []byte) (Annotation, error) {
	var doc xmlAnnotation
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return Annotation{}, errors.Wrapf(ErrMalformedAnnotation, "decoding XML: %v", err)
	}

	if doc.Size.Width <= 0 || doc.Size.Height <= 0 ||
		doc.Size.Width > math.MaxUint32 || doc.Size.Height > math.MaxUint32 {
		return Annotation{}, errors.Wrapf(ErrMalformedAnnotation,
			"size must be positive and fit in 32 bits, got %dx%d", doc.Size.Width, doc.Size.Height)
	}

	ann := Annotation{
		ImageFilename: doc.Filename,
		Width:         uint32(doc.Size.Width),
		Height:        uint32(doc.Size.Height),
	}

	for i, obj := range doc.Objects {
		if obj.Name == "" {
			return Annotation{}, errors.Wrapf(ErrMalformedAnnotation, "object %d has no name", i)
		}
		box, err := normalizeBox(obj, doc.Size)
		if err != nil {
			return Annotation{}, errors.WrapfOrNil(err, "object %d (%s)", i, obj.Name)
		}
		ann.Boxes = append(ann.Boxes, box)
	}

	return ann, nil
}

func normalizeBox(obj xmlObject, size xmlSize) (BoundingBox, error) {
	b := obj.Bndbox
	if b.XMin == nil || b.XMax == nil || b.YMin == nil || b.YMax == nil {
		return BoundingBox{}, errors.Wrapf(ErrMalformedAnnotation, "bndbox has missing coordinates")
	}

	xmin, err := normalize(*b.XMin, float64(size.Width))
	if err != nil {
		return BoundingBox{}, errors.WrapfOrNil(err, "xmin=%v", *b.XMin)
	}
	xmax, err := normalize(*b.XMax, float64(size.Width))
	if err != nil {
		return BoundingBox{}, errors.WrapfOrNil(err, "xmax=%v", *b.XMax)
	}
	ymin, err := normalize(*b.YMin, float64(size.Height))
	if err != nil {
		return BoundingBox{}, errors.WrapfOrNil(err, "ymin=%v", *b.YMin)
	}
	ymax, err := normalize(*b.YMax, float64(size.Height))
	if err != nil {
		return BoundingBox{}, errors.WrapfOrNil(err, "ymax=%v", *b.YMax)
	}

	if xmin >= xmax || ymin >= ymax {
		return BoundingBox{}, errors.Wrapf(ErrCoordinateOutOfRange,
			"box is empty or inverted: x=[%v,%v] y=[%v,%v]", xmin, xmax, ymin, ymax)
	}

	return BoundingBox{
		Label: obj.Name,
		XMin:  xmin,
		XMax:  xmax,
		YMin:  ymin,
		YMax:  ymax,
	}, nil
}

// normalize scales an absolute pixel coordinate by the image dimension and
// clamps the result into [0,1] within clampEpsilon.
func normalize(value, max float64) (float64, error) {
	v := value / max
	if v < -clampEpsilon || v > 1+clampEpsilon {
		return 0, errors.Wrapf(ErrCoordinateOutOfRange, "%v not in [0,%v]", value, max)
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, nil
}
