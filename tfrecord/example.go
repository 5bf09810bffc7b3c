package tfrecord

import (
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// The TFRecord payload is a tensorflow.Example protobuf: a two-level
// key/value message where every named feature is a typed list. Consumers
// decode by field number, so the numbering below is a wire contract:
//
//	Example:  features = 1 (Features)
//	Features: feature  = 1 (map<string, Feature>; key = 1, value = 2)
//	Feature:  oneof kind { bytes_list = 1, float_list = 2, int64_list = 3 }
//	BytesList: value = 1 (repeated bytes)
//	FloatList: value = 1 (repeated float, packed)
//	Int64List: value = 1 (repeated int64, packed)
const (
	exampleFeaturesField = 1

	featuresMapField = 1
	mapKeyField      = 1
	mapValueField    = 2

	bytesListField = 1
	floatListField = 2
	int64ListField = 3

	listValueField = 1
)

type featureKind int

const (
	bytesKind featureKind = iota
	floatKind
	int64Kind
)

type feature struct {
	kind      featureKind
	bytesList [][]byte
	floatList []float32
	int64List []int64
}

// Example is a transient feature map, constructed for one dataset entry and
// serialized immediately.
type Example struct {
	features map[string]feature
}

// NewExample ...
func NewExample() *Example {
	return &Example{features: make(map[string]feature)}
}

// SetBytes sets a byte-string list feature.
func (e *Example) SetBytes(name string, values ...[]byte) {
	e.features[name] = feature{kind: bytesKind, bytesList: values}
}

// SetText sets a byte-string list feature from strings.
func (e *Example) SetText(name string, values ...string) {
	bs := make([][]byte, 0, len(values))
	for _, v := range values {
		bs = append(bs, []byte(v))
	}
	e.SetBytes(name, bs...)
}

// SetFloats sets a float list feature.
func (e *Example) SetFloats(name string, values ...float32) {
	e.features[name] = feature{kind: floatKind, floatList: values}
}

// SetInt64s sets an int64 list feature.
func (e *Example) SetInt64s(name string, values ...int64) {
	e.features[name] = feature{kind: int64Kind, int64List: values}
}

// Marshal serializes the Example on the protobuf wire format. Map entries
// are emitted sorted by feature name so the bytes are deterministic for a
// given feature set.
func (e *Example) Marshal() []byte {
	names := make([]string, 0, len(e.features))
	for name := range e.features {
		names = append(names, name)
	}
	sort.Strings(names)

	var features []byte
	for _, name := range names {
		var entry []byte
		entry = protowire.AppendTag(entry, mapKeyField, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, mapValueField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, e.features[name].marshal())

		features = protowire.AppendTag(features, featuresMapField, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, exampleFeaturesField, protowire.BytesType)
	out = protowire.AppendBytes(out, features)
	return out
}

func (f feature) marshal() []byte {
	var list []byte
	var field protowire.Number

	switch f.kind {
	case bytesKind:
		field = bytesListField
		for _, v := range f.bytesList {
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
	case floatKind:
		field = floatListField
		var packed []byte
		for _, v := range f.floatList {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		if len(packed) > 0 {
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	case int64Kind:
		field = int64ListField
		var packed []byte
		for _, v := range f.int64List {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		if len(packed) > 0 {
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	}

	// the oneof field is present even when the list is empty
	var out []byte
	out = protowire.AppendTag(out, field, protowire.BytesType)
	out = protowire.AppendBytes(out, list)
	return out
}
