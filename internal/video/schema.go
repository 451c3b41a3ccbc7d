package video

// SWE Common definitions and units used in the output schema.
const (
	DefSamplingTime = "http://www.opengis.net/def/property/OGC/0/SamplingTime"
	DefVideoFrame   = "http://sensorml.com/ont/swe/property/VideoFrame"
	UOMISOTime      = "http://www.opengis.net/def/uom/ISO-8601/0/Gregorian"

	// DefaultOutputName is the name of the root record.
	DefaultOutputName = "videoOutput"

	// FieldTime and FieldFrame are the two top-level record fields, in order.
	FieldTime  = "time"
	FieldFrame = "frame"

	// CompressionJPEG is the block codec tag for MJPEG frames.
	CompressionJPEG = "JPEG"
)

// ComponentKind identifies the kind of a schema component.
type ComponentKind string

// Component kinds.
const (
	KindRecord ComponentKind = "DataRecord"
	KindArray  ComponentKind = "DataArray"
	KindTime   ComponentKind = "Time"
	KindCount  ComponentKind = "Count"
)

// DataType is the scalar type of a leaf component or encoded member.
type DataType string

// Data types.
const (
	DataTypeByte   DataType = "byte"
	DataTypeDouble DataType = "double"
)

// Component is a node of the output schema tree.
//
// Records list their fields in Fields, in order. Arrays carry their length
// in ElementCount and their single element type as Fields[0].
type Component struct {
	Name         string        `json:"name"`
	Kind         ComponentKind `json:"type"`
	Definition   string        `json:"definition,omitempty"`
	UOM          string        `json:"uom,omitempty"`
	DataType     DataType      `json:"dataType,omitempty"`
	ElementCount int           `json:"elementCount,omitempty"`
	Fields       []Component   `json:"fields,omitempty"`
}

// clone returns a deep copy of the component.
func (c Component) clone() Component {
	out := c
	if c.Fields != nil {
		out.Fields = make([]Component, len(c.Fields))
		for i, f := range c.Fields {
			out.Fields[i] = f.clone()
		}
	}
	return out
}

// OutputSchema describes the layout of a Record.
type OutputSchema struct {
	Root Component `json:"root"`
}

// NewOutputSchema builds the record description for a frame of the given
// size: a time stamp followed by height rows of width RGB pixels.
func NewOutputSchema(name string, width, height int) OutputSchema {
	if name == "" {
		name = DefaultOutputName
	}

	pixel := Component{
		Name: "pixel",
		Kind: KindRecord,
		Fields: []Component{
			{Name: "red", Kind: KindCount, DataType: DataTypeByte},
			{Name: "green", Kind: KindCount, DataType: DataTypeByte},
			{Name: "blue", Kind: KindCount, DataType: DataTypeByte},
		},
	}
	row := Component{
		Name:         "row",
		Kind:         KindArray,
		ElementCount: width,
		Fields:       []Component{pixel},
	}

	return OutputSchema{
		Root: Component{
			Name: name,
			Kind: KindRecord,
			Fields: []Component{
				{
					Name:       FieldTime,
					Kind:       KindTime,
					Definition: DefSamplingTime,
					UOM:        UOMISOTime,
					DataType:   DataTypeDouble,
				},
				{
					Name:         FieldFrame,
					Kind:         KindArray,
					Definition:   DefVideoFrame,
					ElementCount: height,
					Fields:       []Component{row},
				},
			},
		},
	}
}

// IsZero reports whether the schema has not been built.
func (s OutputSchema) IsZero() bool {
	return s.Root.Name == "" && len(s.Root.Fields) == 0
}

// Fields returns the top-level fields in order.
func (s OutputSchema) Fields() []Component {
	return s.clone().Root.Fields
}

// Field returns the named top-level field.
func (s OutputSchema) Field(name string) (Component, bool) {
	for _, f := range s.Root.Fields {
		if f.Name == name {
			return f.clone(), true
		}
	}
	return Component{}, false
}

// FrameSize returns the frame width (pixels per row) and height (rows).
func (s OutputSchema) FrameSize() (width, height int) {
	frame, ok := s.Field(FieldFrame)
	if !ok {
		return 0, 0
	}
	height = frame.ElementCount
	if len(frame.Fields) > 0 {
		width = frame.Fields[0].ElementCount
	}
	return width, height
}

func (s OutputSchema) clone() OutputSchema {
	return OutputSchema{Root: s.Root.clone()}
}

// ByteOrder of multi-byte encoded values.
type ByteOrder string

// Byte orders.
const (
	BigEndian    ByteOrder = "bigEndian"
	LittleEndian ByteOrder = "littleEndian"
)

// ByteEncoding of the binary stream.
type ByteEncoding string

// Byte encodings.
const (
	ByteEncodingRaw    ByteEncoding = "raw"
	ByteEncodingBase64 ByteEncoding = "base64"
)

// MemberKind distinguishes scalar members from compressed blocks.
type MemberKind string

// Member kinds.
const (
	MemberComponent MemberKind = "Component"
	MemberBlock     MemberKind = "Block"
)

// EncodingMember describes how one schema field is written.
type EncodingMember struct {
	Ref         string     `json:"ref"`
	Kind        MemberKind `json:"type"`
	DataType    DataType   `json:"dataType,omitempty"`
	Compression string     `json:"compression,omitempty"`
}

// EncodingDescriptor describes the binary layout of a Record.
type EncodingDescriptor struct {
	ByteOrder    ByteOrder        `json:"byteOrder"`
	ByteEncoding ByteEncoding     `json:"byteEncoding"`
	Members      []EncodingMember `json:"members"`
}

// NewEncodingDescriptor returns the big-endian raw encoding for a schema:
// time as an 8-byte double followed by the frame as a JPEG block.
func NewEncodingDescriptor() EncodingDescriptor {
	return EncodingDescriptor{
		ByteOrder:    BigEndian,
		ByteEncoding: ByteEncodingRaw,
		Members: []EncodingMember{
			{Ref: "/" + FieldTime, Kind: MemberComponent, DataType: DataTypeDouble},
			{Ref: "/" + FieldFrame, Kind: MemberBlock, Compression: CompressionJPEG},
		},
	}
}

// IsZero reports whether the descriptor has not been built.
func (e EncodingDescriptor) IsZero() bool {
	return e.ByteOrder == "" && len(e.Members) == 0
}

func (e EncodingDescriptor) clone() EncodingDescriptor {
	out := e
	if e.Members != nil {
		out.Members = append([]EncodingMember(nil), e.Members...)
	}
	return out
}
