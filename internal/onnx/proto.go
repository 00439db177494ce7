package onnx

// The message types mirror onnx.proto. Field numbers are given next to each
// field.

// ModelProto is the top-level message of an .onnx file.
type ModelProto struct {
	IRVersion       int64               // 1
	ProducerName    string              // 2
	ProducerVersion string              // 3
	Domain          string              // 4
	ModelVersion    int64               // 5
	DocString       string              // 6
	Graph           *GraphProto         // 7
	OpsetImport     []OperatorSetID     // 8
	MetadataProps   []StringStringEntry // 14
}

// GraphProto is a computation graph.
type GraphProto struct {
	Nodes        []NodeProto      // 1
	Name         string           // 2
	Initializers []TensorProto    // 5
	DocString    string           // 10
	Inputs       []ValueInfoProto // 11
	Outputs      []ValueInfoProto // 12
	ValueInfo    []ValueInfoProto // 13
}

// NodeProto is one operator call.
type NodeProto struct {
	Inputs     []string         // 1
	Outputs    []string         // 2
	Name       string           // 3
	OpType     string           // 4
	Attributes []AttributeProto // 5
	DocString  string           // 6
	Domain     string           // 7
}

// TensorProto is a constant tensor, used for initializers.
type TensorProto struct {
	Dims      []int64   // 1
	DataType  int32     // 2
	FloatData []float32 // 4
	Int64Data []int64   // 7
	Name      string    // 8
	RawData   []byte    // 9
}

// ValueInfoProto names and types a graph input or output.
type ValueInfoProto struct {
	Name string     // 1
	Type *TypeProto // 2
}

// TypeProto holds the tensor type of a value.
type TypeProto struct {
	TensorType *TensorTypeProto // 1
}

// TensorTypeProto is an element type plus shape.
type TensorTypeProto struct {
	ElemType int32             // 1
	Shape    *TensorShapeProto // 2
}

// TensorShapeProto is a list of dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto // 1
}

// DimensionProto is a fixed size or a named dynamic dimension.
type DimensionProto struct {
	DimValue int64  // 1
	DimParam string // 2
}

// AttributeProto is a named node attribute.
type AttributeProto struct {
	Name   string       // 1
	F      float32      // 2
	I      int64        // 3
	S      []byte       // 4
	T      *TensorProto // 5
	Floats []float32    // 7
	Ints   []int64      // 8
	Type   int32        // 20
}

// OperatorSetID imports an opset.
type OperatorSetID struct {
	Domain  string // 1
	Version int64  // 2
}

// StringStringEntry is a metadata key/value pair.
type StringStringEntry struct {
	Key   string // 1
	Value string // 2
}

// Tensor element types (TensorProto.DataType).
const (
	TensorProtoFloat   = 1
	TensorProtoInt64   = 7
	TensorProtoFloat16 = 10
	TensorProtoDouble  = 11
)

// Attribute types (AttributeProto.Type).
const (
	AttributeFloat  = 1
	AttributeInt    = 2
	AttributeString = 3
	AttributeTensor = 4
	AttributeFloats = 6
	AttributeInts   = 7
)

// IntAttr returns an INT attribute.
func IntAttr(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeInt, I: v}
}

// IntsAttr returns an INTS attribute.
func IntsAttr(name string, v ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeInts, Ints: v}
}

// FloatAttr returns a FLOAT attribute.
func FloatAttr(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeFloat, F: v}
}

// StringAttr returns a STRING attribute.
func StringAttr(name, v string) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeString, S: []byte(v)}
}

// Attr returns the attribute called name, or nil.
func (n *NodeProto) Attr(name string) *AttributeProto {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// Initializer returns the initializer called name, or nil.
func (g *GraphProto) Initializer(name string) *TensorProto {
	for i := range g.Initializers {
		if g.Initializers[i].Name == name {
			return &g.Initializers[i]
		}
	}
	return nil
}

// Opset returns the version imported for the default domain, or 0.
func (m *ModelProto) Opset() int64 {
	for _, o := range m.OpsetImport {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			return o.Version
		}
	}
	return 0
}
