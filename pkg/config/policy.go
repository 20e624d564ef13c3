package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"renter-registry/internal/matching"
	errs "renter-registry/pkg/errors"
)

// ParsePolicy decodes a YAML match policy on top of the compiled defaults,
// so a file only needs the keys it changes. Unknown keys are rejected.
func ParsePolicy(data []byte) (matching.Policy, error) {
	p := matching.DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return matching.Policy{}, errs.NewValidation("config.ParsePolicy", "cannot decode match policy", err)
	}
	if err := p.Validate(); err != nil {
		return matching.Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads the policy at path, or parses fallback when path is empty.
func LoadPolicy(path string, fallback []byte) (matching.Policy, error) {
	if path == "" {
		return ParsePolicy(fallback)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return matching.Policy{}, errs.NewValidation("config.LoadPolicy", "cannot read match policy "+path, err)
	}
	return ParsePolicy(data)
}
