package catalog

import (
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	ErrTypeInvalidDefinition = "catalog-invalid-definition"
)

type file struct {
	Definitions []Definition `yaml:"definitions"`
}

// LoadFile reads the object type definitions from the given YAML file.
func LoadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading catalog file failed").
			WithTag("path", path).
			Wrap(err)
	}
	return Parse(raw)
}

// Parse decodes and validates YAML encoded definitions. A placement type
// left empty defaults to floor.
func Parse(raw []byte) ([]Definition, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.New("decoding catalog failed").
			WithType(ErrTypeInvalidDefinition).
			Wrap(err)
	}

	seen := make(map[string]struct{}, len(f.Definitions))
	for i := range f.Definitions {
		d := &f.Definitions[i]
		if d.PlacementType == "" {
			d.PlacementType = PlacementFloor
		}

		if err := validate(*d); err != nil {
			return nil, errors.New("invalid catalog definition").
				WithType(ErrTypeInvalidDefinition).
				WithTag("index", i).
				WithTag("type", d.Type).
				Wrap(err)
		}

		if _, ok := seen[d.Type]; ok {
			return nil, errors.New("duplicate catalog definition").
				WithType(ErrTypeInvalidDefinition).
				WithTag("index", i).
				WithTag("type", d.Type)
		}
		seen[d.Type] = struct{}{}
	}
	return f.Definitions, nil
}

func validate(d Definition) error {
	switch {
	case d.Type == "":
		return errors.New("type is empty")

	case d.Dimensions.Width <= 0 || d.Dimensions.Height <= 0 || d.Dimensions.Depth <= 0:
		return errors.New("dimensions must be positive").
			WithTag("dimensions", d.Dimensions)

	case !d.PlacementType.IsValid():
		return errors.New("unknown placement type").
			WithTag("placement_type", d.PlacementType)

	case d.Clearances.Front < 0 || d.Clearances.Back < 0 ||
		d.Clearances.Left < 0 || d.Clearances.Right < 0 ||
		d.Clearances.Top < 0 || d.Clearances.Bottom < 0:
		return errors.New("clearances must not be negative").
			WithTag("clearances", d.Clearances)

	default:
		return nil
	}
}
