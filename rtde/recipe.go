package rtde

import (
	"fmt"
	"strings"

	"urdriver/shared"
)

// DataType identifies an RTDE primitive and its byte width on the wire.
type DataType int

const (
	TYPE_BOOL DataType = iota
	TYPE_UINT8
	TYPE_UINT32
	TYPE_UINT64
	TYPE_INT32
	TYPE_DOUBLE
	TYPE_VECTOR3D
	TYPE_VECTOR6D
	TYPE_VECTOR6INT32
	TYPE_VECTOR6UINT32
)

var typeNames = map[DataType]string{
	TYPE_BOOL:          "BOOL",
	TYPE_UINT8:         "UINT8",
	TYPE_UINT32:        "UINT32",
	TYPE_UINT64:        "UINT64",
	TYPE_INT32:         "INT32",
	TYPE_DOUBLE:        "DOUBLE",
	TYPE_VECTOR3D:      "VECTOR3D",
	TYPE_VECTOR6D:      "VECTOR6D",
	TYPE_VECTOR6INT32:  "VECTOR6INT32",
	TYPE_VECTOR6UINT32: "VECTOR6UINT32",
}

var typeSizes = map[DataType]int{
	TYPE_BOOL:          1,
	TYPE_UINT8:         1,
	TYPE_UINT32:        4,
	TYPE_UINT64:        8,
	TYPE_INT32:         4,
	TYPE_DOUBLE:        8,
	TYPE_VECTOR3D:      24,
	TYPE_VECTOR6D:      48,
	TYPE_VECTOR6INT32:  24,
	TYPE_VECTOR6UINT32: 24,
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// Size returns the wire width of the type in bytes.
func (t DataType) Size() int {
	return typeSizes[t]
}

// ParseDataType resolves a type name from a setup reply. NOT_FOUND means
// the controller does not know the requested variable and is fatal for the
// recipe; IN_USE means an input variable is claimed by another client.
func ParseDataType(name string) (DataType, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	switch name {
	case "NOT_FOUND":
		return 0, shared.ErrFieldNotFound
	case "IN_USE":
		return 0, fmt.Errorf("%w: variable already in use", shared.ErrSetupRejected)
	}
	return 0, fmt.Errorf("%w: unknown recipe type %q", shared.ErrSetupRejected, name)
}

// Field is a single recipe entry: variable name and wire type.
type Field struct {
	Name string
	Type DataType
}

// Recipe is a named, ordered set of variables agreed with the controller
// during setup, addressed by the controller-assigned one-byte id. Recipes
// are immutable once established.
type Recipe struct {
	ID     uint8
	Fields []Field
}

// Size returns the payload width of one data package body for this recipe,
// excluding the recipe id byte.
func (r *Recipe) Size() int {
	total := 0
	for _, f := range r.Fields {
		total += f.Type.Size()
	}
	return total
}

// Names returns the recipe variable names in wire order.
func (r *Recipe) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// buildRecipe pairs requested variable names with the comma-separated type
// list from a setup reply. A NOT_FOUND entry names the offending variable.
func buildRecipe(id uint8, names []string, typeCSV string) (*Recipe, error) {
	typeList := strings.Split(typeCSV, ",")
	if len(typeList) != len(names) {
		return nil, fmt.Errorf("%w: %d variables requested, %d types returned",
			shared.ErrSetupRejected, len(names), len(typeList))
	}

	fields := make([]Field, len(names))
	for i, name := range names {
		t, err := ParseDataType(strings.TrimSpace(typeList[i]))
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		fields[i] = Field{Name: name, Type: t}
	}
	return &Recipe{ID: id, Fields: fields}, nil
}

// Register field names as used in recipes. The controller exposes general
// purpose int and double registers addressed by index.

func InputIntRegister(id int) string {
	return fmt.Sprintf("input_int_register_%d", id)
}

func InputDoubleRegister(id int) string {
	return fmt.Sprintf("input_double_register_%d", id)
}

func OutputIntRegister(id int) string {
	return fmt.Sprintf("output_int_register_%d", id)
}

func OutputDoubleRegister(id int) string {
	return fmt.Sprintf("output_double_register_%d", id)
}
