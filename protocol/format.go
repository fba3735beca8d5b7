package protocol

import (
	"fmt"
	"strings"
)

// Param is one argument declared in a format string such as "oid=%c pin=%u".
type Param struct {
	Name string
	Spec string
}

// IsBuffer reports whether the parameter is a length-prefixed byte string.
func (p Param) IsBuffer() bool {
	return p.Spec == "%*s" || p.Spec == "%.*s" || p.Spec == "%s"
}

var intSpecs = map[string]bool{"%u": true, "%i": true, "%hu": true, "%hi": true, "%c": true}

// SplitSignature separates a dictionary key into the message name and its format.
func SplitSignature(sig string) (name, format string) {
	name, format, _ = strings.Cut(strings.TrimSpace(sig), " ")
	return name, strings.TrimSpace(format)
}

// ParseFormat parses the parameter list of a format string.
func ParseFormat(format string) ([]Param, error) {
	var params []Param
	for _, field := range strings.Fields(format) {
		name, spec, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed parameter %q", field)
		}
		p := Param{Name: name, Spec: spec}
		if !intSpecs[spec] && !p.IsBuffer() {
			return nil, fmt.Errorf("parameter %s: unknown type %q", name, spec)
		}
		params = append(params, p)
	}
	return params, nil
}

// EncodeArgs writes integer arguments in declaration order.
func EncodeArgs(output OutputBuffer, params []Param, args []int64) error {
	if len(args) != len(params) {
		return fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	for i, p := range params {
		if p.IsBuffer() {
			return fmt.Errorf("parameter %s: buffer arguments need an explicit encoder", p.Name)
		}
		EncodeVLQInt(output, int32(args[i]))
	}
	return nil
}

// Values holds decoded arguments by name.
type Values map[string]any

// Uint returns an integer argument as unsigned.
func (v Values) Uint(name string) uint32 {
	n, _ := v[name].(int32)
	return uint32(n)
}

// Int returns an integer argument.
func (v Values) Int(name string) int32 {
	n, _ := v[name].(int32)
	return n
}

// Bytes returns a buffer argument.
func (v Values) Bytes(name string) []byte {
	b, _ := v[name].([]byte)
	return b
}

// DecodeArgs decodes the arguments described by params from data.
func DecodeArgs(params []Param, data *[]byte) (Values, error) {
	values := make(Values, len(params))
	for _, p := range params {
		if p.IsBuffer() {
			b, err := DecodeVLQBytes(data)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			values[p.Name] = append([]byte(nil), b...)
			continue
		}
		n, err := DecodeVLQInt(data)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		values[p.Name] = n
	}
	return values, nil
}
