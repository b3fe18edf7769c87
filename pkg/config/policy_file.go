package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/yashannadate/stellar-pay/pkg/policy"
)

// SupportedPolicySchema is the semver constraint policy files must satisfy.
const SupportedPolicySchema = "^1"

// PolicyFile is the YAML amount-policy document.
type PolicyFile struct {
	SchemaVersion string        `yaml:"schema_version" json:"schema_version"`
	MaxPayees     int           `yaml:"max_payees,omitempty" json:"max_payees,omitempty"`
	Rules         []policy.Rule `yaml:"rules" json:"rules"`
}

// LoadPolicyFile reads, decodes and version-checks a policy file.
// Unknown keys are rejected.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy file %q: %w", path, err)
	}

	var pf PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("parse policy file %q: %w", path, err)
	}

	if err := checkSchemaVersion(pf.SchemaVersion); err != nil {
		return nil, fmt.Errorf("policy file %q: %w", path, err)
	}
	for i, r := range pf.Rules {
		if r.Expr == "" {
			return nil, fmt.Errorf("policy file %q: rule %d has no expr", path, i)
		}
	}
	return &pf, nil
}

func checkSchemaVersion(raw string) error {
	if raw == "" {
		return fmt.Errorf("schema_version is required")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("schema_version %q: %w", raw, err)
	}
	c, err := semver.NewConstraint(SupportedPolicySchema)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("schema_version %s does not satisfy %s", v, SupportedPolicySchema)
	}
	return nil
}
