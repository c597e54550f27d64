package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"bnla/domain/model"
	"bnla/internal/errors"

	"gopkg.in/yaml.v3"
)

// ExperimentsFile is the YAML document listing experiment specs
type ExperimentsFile struct {
	Experiments []model.Spec `yaml:"experiments"`
}

// LoadExperiments reads and validates the experiments file at path
func LoadExperiments(path string) ([]model.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("experiments file %s", path))
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	specs, err := ParseExperiments(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid experiments file %s", path)
	}
	return specs, nil
}

// ParseExperiments decodes an experiments document. Unknown keys, invalid
// specs and duplicate names are configuration errors.
func ParseExperiments(data []byte) ([]model.Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file ExperimentsFile
	if err := dec.Decode(&file); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.ConfigInvalid("no experiments defined")
		}
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if len(file.Experiments) == 0 {
		return nil, errors.ConfigInvalid("no experiments defined")
	}

	seen := make(map[string]bool, len(file.Experiments))
	for _, spec := range file.Experiments {
		if err := spec.Validate(); err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		if seen[spec.Name] {
			return nil, errors.ConfigInvalid(fmt.Sprintf("duplicate experiment %q", spec.Name))
		}
		seen[spec.Name] = true
	}
	return file.Experiments, nil
}

// SelectExperiments returns the named specs in the requested order, or all
// specs when names is empty
func SelectExperiments(specs []model.Spec, names []string) ([]model.Spec, error) {
	if len(names) == 0 {
		return specs, nil
	}
	byName := make(map[string]model.Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	out := make([]model.Spec, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, errors.NotFound(fmt.Sprintf("experiment %q", n))
		}
		out = append(out, s)
	}
	return out, nil
}
