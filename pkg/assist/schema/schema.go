package schema

import (
	"strings"

	"google.golang.org/genai"
)

// Kind is the JSON type of a schema node.
type Kind string

const (
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindString Kind = "string"
	KindNumber Kind = "number"
)

// Schema is a provider-neutral description of an expected model output.
//
// It is passed to the completion provider so the model emits this shape, and the
// decoder consults it for the top-level kind.
type Schema struct {
	Kind       Kind
	Enum       []string
	Items      *Schema
	Properties []Property
}

// Property is one named field of an object schema. Order is significant: it is
// forwarded to the provider as the preferred property ordering.
type Property struct {
	Name     string
	Schema   *Schema
	Required bool
}

func String() *Schema { return &Schema{Kind: KindString} }

func Number() *Schema { return &Schema{Kind: KindNumber} }

// Enum is a string restricted to values.
func Enum(values ...string) *Schema {
	return &Schema{Kind: KindString, Enum: append([]string(nil), values...)}
}

func ArrayOf(items *Schema) *Schema {
	return &Schema{Kind: KindArray, Items: items}
}

func Object(props ...Property) *Schema {
	return &Schema{Kind: KindObject, Properties: props}
}

// Required declares a mandatory property.
func Required(name string, s *Schema) Property {
	return Property{Name: name, Schema: s, Required: true}
}

// Optional declares a property the model may omit.
func Optional(name string, s *Schema) Property {
	return Property{Name: name, Schema: s}
}

// PropertyNames returns the object's property names in declaration order.
func (s *Schema) PropertyNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		out = append(out, p.Name)
	}
	return out
}

// RequiredNames returns the names of required properties in declaration order.
func (s *Schema) RequiredNames() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, p := range s.Properties {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Lookup walks object properties by name, stepping through array items
// transparently. It returns nil when the path does not exist.
//
//	MessageAnalysis.Lookup("suggestedTasks", "priority")
func (s *Schema) Lookup(path ...string) *Schema {
	cur := s
	for _, name := range path {
		for cur != nil && cur.Kind == KindArray {
			cur = cur.Items
		}
		if cur == nil || cur.Kind != KindObject {
			return nil
		}
		var next *Schema
		for _, p := range cur.Properties {
			if p.Name == name {
				next = p.Schema
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// GenAI converts the descriptor to the Gemini response schema.
func (s *Schema) GenAI() *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Type: genaiType(s.Kind)}
	if len(s.Enum) > 0 {
		out.Enum = append([]string(nil), s.Enum...)
	}
	if s.Items != nil {
		out.Items = s.Items.GenAI()
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for _, p := range s.Properties {
			out.Properties[p.Name] = p.Schema.GenAI()
		}
		out.PropertyOrdering = s.PropertyNames()
		out.Required = s.RequiredNames()
	}
	return out
}

func genaiType(k Kind) genai.Type {
	switch Kind(strings.ToLower(string(k))) {
	case KindObject:
		return genai.TypeObject
	case KindArray:
		return genai.TypeArray
	case KindNumber:
		return genai.TypeNumber
	default:
		return genai.TypeString
	}
}
