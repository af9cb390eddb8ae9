package schema

import "strings"

// FieldType is a Typesense field type.
type FieldType string

const (
	TypeString        FieldType = "string"
	TypeStringArray   FieldType = "string[]"
	TypeInt32         FieldType = "int32"
	TypeInt32Array    FieldType = "int32[]"
	TypeInt64         FieldType = "int64"
	TypeInt64Array    FieldType = "int64[]"
	TypeFloat         FieldType = "float"
	TypeFloatArray    FieldType = "float[]"
	TypeBool          FieldType = "bool"
	TypeBoolArray     FieldType = "bool[]"
	TypeGeopoint      FieldType = "geopoint"
	TypeGeopointArray FieldType = "geopoint[]"
	TypeObject        FieldType = "object"
	TypeObjectArray   FieldType = "object[]"
	TypeStringStar    FieldType = "string*"
	TypeImage         FieldType = "image"
	TypeAuto          FieldType = "auto"
)

var knownTypes = map[FieldType]bool{
	TypeString: true, TypeStringArray: true,
	TypeInt32: true, TypeInt32Array: true,
	TypeInt64: true, TypeInt64Array: true,
	TypeFloat: true, TypeFloatArray: true,
	TypeBool: true, TypeBoolArray: true,
	TypeGeopoint: true, TypeGeopointArray: true,
	TypeObject: true, TypeObjectArray: true,
	TypeStringStar: true, TypeImage: true, TypeAuto: true,
}

// ParseFieldType validates s against the known Typesense types.
func ParseFieldType(s string) (FieldType, bool) {
	t := FieldType(s)
	return t, knownTypes[t]
}

func (t FieldType) Valid() bool { return knownTypes[t] }

// IsNumeric reports scalar numeric types, the only ones Typesense sorts by
// default and accepts as default_sorting_field or range index.
func (t FieldType) IsNumeric() bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeFloat
}

func (t FieldType) IsString() bool {
	return t == TypeString || t == TypeStringArray || t == TypeStringStar
}

func (t FieldType) IsArray() bool { return strings.HasSuffix(string(t), "[]") }

func (t FieldType) IsObject() bool { return t == TypeObject || t == TypeObjectArray }

// AsArray returns the array variant, or t itself when none exists.
func (t FieldType) AsArray() FieldType {
	if t.IsArray() {
		return t
	}
	arr := FieldType(string(t) + "[]")
	if knownTypes[arr] {
		return arr
	}
	return t
}
