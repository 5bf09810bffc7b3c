package pascalvoc

import "github.com/vocprep/vocprep/errors"

var (
	// ErrMalformedAnnotation marks annotation files that are structurally
	// invalid: missing or non-numeric dimensions, objects without a name,
	// or bounding boxes with missing or non-numeric coordinates.
	ErrMalformedAnnotation = errors.New("malformed annotation")

	// ErrCoordinateOutOfRange marks bounding boxes whose coordinates fall
	// outside the image beyond the clamping epsilon, or are not ordered
	// min < max.
	ErrCoordinateOutOfRange = errors.New("bounding box coordinate out of range")
)

// Annotation is one parsed PASCAL-VOC annotation with all bounding box
// coordinates normalized to [0,1] relative to the image dimensions.
type Annotation struct {
	// ImageFilename is the image name as declared inside the XML document.
	ImageFilename string
	Width         uint32
	Height        uint32
	// Boxes preserves the object order of the source document. May be empty.
	Boxes []BoundingBox
}

// BoundingBox is one labeled axis-aligned box, coordinates in [0,1] with
// XMin < XMax and YMin < YMax.
type BoundingBox struct {
	Label string
	XMin  float64
	XMax  float64
	YMin  float64
	YMax  float64
}
