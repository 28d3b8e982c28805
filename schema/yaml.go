// This file contains the loader for schema files. Schemata come out of the
// external definition tooling as static YAML configuration; loading one is
// the only moment they are parsed, after which they circulate content-addressed.

package schema

import (
	"encoding/hex"
	"io"
	"io/ioutil"

	"github.com/rgb-go/rgb/contract"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Load reads a schema from its YAML configuration form.
func Load(r io.Reader) (Schema, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return Schema{}, xerrors.Errorf("couldn't read schema: %v", err)
	}

	return Decode(data)
}

// Decode parses a schema from YAML bytes.
func Decode(data []byte) (Schema, error) {
	s := Schema{}

	err := yaml.UnmarshalStrict(data, &s)
	if err != nil {
		return Schema{}, xerrors.Errorf("couldn't parse schema: %v", err)
	}

	if len(s.OwnedTypes) == 0 {
		return Schema{}, xerrors.New("schema declares no owned state type")
	}

	return s, nil
}

type ifaceImplYAML struct {
	Iface       string                `yaml:"iface"`
	Schema      string                `yaml:"schema"`
	Globals     map[string]uint16     `yaml:"globals,omitempty"`
	Assignments map[string]uint16     `yaml:"assignments,omitempty"`
	Transitions map[string]uint16     `yaml:"transitions,omitempty"`
}

// DecodeIfaceImpl parses an interface implementation from YAML bytes. The
// interface and schema ids are hexadecimal strings in the file form.
func DecodeIfaceImpl(data []byte) (IfaceImpl, error) {
	mirror := ifaceImplYAML{}

	err := yaml.UnmarshalStrict(data, &mirror)
	if err != nil {
		return IfaceImpl{}, xerrors.Errorf(
			"couldn't parse interface implementation: %v", err)
	}

	impl := IfaceImpl{
		Globals:     map[string]contract.GlobalType{},
		Assignments: map[string]contract.StateType{},
		Transitions: map[string]contract.TransitionType{},
	}

	err = decodeID(mirror.Iface, impl.Iface[:])
	if err != nil {
		return IfaceImpl{}, xerrors.Errorf("invalid interface id %q: %v",
			mirror.Iface, err)
	}

	err = decodeID(mirror.Schema, impl.SchemaID[:])
	if err != nil {
		return IfaceImpl{}, xerrors.Errorf("invalid schema id %q: %v",
			mirror.Schema, err)
	}

	for name, ty := range mirror.Globals {
		impl.Globals[name] = contract.GlobalType(ty)
	}

	for name, ty := range mirror.Assignments {
		impl.Assignments[name] = contract.StateType(ty)
	}

	for name, ty := range mirror.Transitions {
		impl.Transitions[name] = contract.TransitionType(ty)
	}

	return impl, nil
}

func decodeID(s string, out []byte) error {
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}

	if len(data) != len(out) {
		return xerrors.Errorf("expected %d bytes, got %d", len(out), len(data))
	}

	copy(out, data)

	return nil
}
