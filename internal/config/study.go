package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"distreg/domain/stats"
	"distreg/internal/dataset"
	"distreg/internal/errors"
	"distreg/internal/geo"

	"gopkg.in/yaml.v3"
)

// Study is one analysis definition: which tables to join, which variables to
// derive, and which models to fit. Choice of outcome and predictors lives
// here, not in code.
type Study struct {
	Name       string            `yaml:"name"`
	Inputs     InputsConfig      `yaml:"inputs"`
	Distance   *DistanceConfig   `yaml:"distance,omitempty"`
	Transforms []TransformConfig `yaml:"transforms"`
	Required   []string          `yaml:"required"`
	Labels     map[string]string `yaml:"labels"`
	Describe   []string          `yaml:"describe"`
	Correlate  []string          `yaml:"correlate"`
	Models     []stats.ModelSpec `yaml:"models"`

	dir    string // directory relative input paths resolve against
	source []byte
}

// InputsConfig lists the base table and the tables joined onto it, in join order
type InputsConfig struct {
	Base        InputConfig   `yaml:"base"`
	Secondaries []InputConfig `yaml:"secondaries"`
}

// InputConfig locates one table. Key names the source's country column when
// it is not already called "country".
type InputConfig struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet,omitempty"`
	Key   string `yaml:"key,omitempty"`
}

// DistanceConfig derives the capital-to-reference distance column. With
// Gazetteer set the base table is built from the bundled capital list
// (optionally restricted to Countries) and inputs.base may be omitted.
type DistanceConfig struct {
	Reference *geo.Point `yaml:"reference,omitempty"`
	Latitude  string     `yaml:"latitude,omitempty"`
	Longitude string     `yaml:"longitude,omitempty"`
	Column    string     `yaml:"column,omitempty"`
	Gazetteer bool       `yaml:"gazetteer,omitempty"`
	Countries []string   `yaml:"countries,omitempty"`
}

// TransformConfig is the YAML form of a derived variable
type TransformConfig struct {
	Op            string   `yaml:"op"` // log, ratio, scale, years_since
	As            string   `yaml:"as"`
	Field         string   `yaml:"field,omitempty"`
	Offset        float64  `yaml:"offset,omitempty"`
	Numerator     string   `yaml:"numerator,omitempty"`
	Denominator   string   `yaml:"denominator,omitempty"`
	Factor        *float64 `yaml:"factor,omitempty"` // nil when unset; 0 is a valid factor
	ReferenceYear int      `yaml:"reference_year,omitempty"`
}

// LoadStudy reads, defaults and validates a study file
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	study, err := ParseStudy(data)
	if err != nil {
		return nil, errors.Wrapf(err, "study %s", path)
	}
	study.dir = filepath.Dir(path)
	return study, nil
}

// ParseStudy decodes a study definition, rejecting unknown keys
func ParseStudy(data []byte) (*Study, error) {
	study := &Study{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(study); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	study.defaults()
	if err := study.Validate(); err != nil {
		return nil, err
	}
	study.source = append([]byte(nil), data...)
	return study, nil
}

// Source returns the document the study was parsed from; its hash
// identifies the configuration of a run.
func (s *Study) Source() []byte {
	return s.source
}

func (s *Study) defaults() {
	if s.Inputs.Base.Name == "" {
		s.Inputs.Base.Name = "base"
	}
	if d := s.Distance; d != nil {
		if d.Reference == nil {
			ref := geo.Washington
			d.Reference = &ref
		}
		if d.Latitude == "" {
			d.Latitude = geo.ColLat
		}
		if d.Longitude == "" {
			d.Longitude = geo.ColLon
		}
		if d.Column == "" {
			d.Column = geo.ColDistance
		}
	}
}

// Validate checks the study for structural errors. Column existence is
// checked when the tables are loaded.
func (s *Study) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.ConfigInvalid("name is required")
	}

	gazetteer := s.Distance != nil && s.Distance.Gazetteer
	if s.Inputs.Base.Path == "" && !gazetteer {
		return errors.ConfigInvalid("inputs.base.path is required unless distance.gazetteer is set")
	}
	if s.Distance != nil && s.Distance.Reference != nil {
		if err := s.Distance.Reference.Validate(); err != nil {
			return errors.ConfigInvalid("distance.reference: " + err.Error())
		}
	}

	names := map[string]bool{s.Inputs.Base.Name: true}
	for i, in := range s.Inputs.Secondaries {
		if in.Name == "" || in.Path == "" {
			return errors.ConfigInvalid(fmt.Sprintf("inputs.secondaries[%d]: name and path are required", i))
		}
		if names[in.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("input name %q used twice", in.Name))
		}
		names[in.Name] = true
	}

	targets := map[string]bool{}
	for i, tc := range s.Transforms {
		if _, err := tc.Spec(); err != nil {
			return errors.ConfigInvalid(fmt.Sprintf("transforms[%d]: %v", i, err))
		}
		if targets[tc.As] {
			return errors.ConfigInvalid(fmt.Sprintf("transforms[%d]: %q derived twice", i, tc.As))
		}
		targets[tc.As] = true
	}

	if len(s.Models) == 0 {
		return errors.ConfigInvalid("at least one model is required")
	}
	models := map[string]bool{}
	for _, m := range s.Models {
		if err := m.Validate(); err != nil {
			return errors.ConfigInvalid(err.Error())
		}
		if models[m.Name] {
			return errors.ConfigInvalid(fmt.Sprintf("model name %q used twice", m.Name))
		}
		models[m.Name] = true
	}
	return nil
}

// Spec converts the YAML form into an executable transform
func (tc TransformConfig) Spec() (dataset.TransformSpec, error) {
	if tc.As == "" {
		return nil, fmt.Errorf("%s: target name (as) is required", tc.Op)
	}
	switch tc.Op {
	case "log":
		if tc.Field == "" {
			return nil, fmt.Errorf("log: field is required")
		}
		return dataset.Log{Field: tc.Field, As: tc.As, Offset: tc.Offset}, nil
	case "ratio":
		if tc.Numerator == "" || tc.Denominator == "" {
			return nil, fmt.Errorf("ratio: numerator and denominator are required")
		}
		return dataset.Ratio{Numerator: tc.Numerator, Denominator: tc.Denominator, As: tc.As}, nil
	case "scale":
		if tc.Field == "" || tc.Factor == nil {
			return nil, fmt.Errorf("scale: field and factor are required")
		}
		return dataset.Scale{Field: tc.Field, As: tc.As, Factor: *tc.Factor}, nil
	case "years_since":
		if tc.Field == "" || tc.ReferenceYear == 0 {
			return nil, fmt.Errorf("years_since: field and reference_year are required")
		}
		return dataset.YearsSince{Field: tc.Field, As: tc.As, ReferenceYear: tc.ReferenceYear}, nil
	default:
		return nil, fmt.Errorf("unknown transform op %q", tc.Op)
	}
}

// TransformSpecs returns the executable transforms in declaration order
func (s *Study) TransformSpecs() ([]dataset.TransformSpec, error) {
	specs := make([]dataset.TransformSpec, 0, len(s.Transforms))
	for _, tc := range s.Transforms {
		spec, err := tc.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ResolvePath makes an input path relative to the study file's directory
func (s *Study) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || s.dir == "" {
		return path
	}
	return filepath.Join(s.dir, path)
}

// ModelVariables lists every variable any model uses, in first-use order
func (s *Study) ModelVariables() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range s.Models {
		for _, v := range m.Variables() {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
