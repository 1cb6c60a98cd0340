package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed tenant_exemptions.yaml
var defaultExemptions []byte

type IsolationConfig interface {
	GetTenantColumn() string
	GetExemptions() Exemptions
}

type Isolation struct {
	TenantColumn   string `env:"TENANT_COLUMN, default=tenant_id"`
	ExemptionsFile string `env:"TENANT_EXEMPTIONS_FILE"`
}

func (i Isolation) GetTenantColumn() string {
	return i.TenantColumn
}

// Exemptions is the single reviewable list of data access that bypasses tenant scoping.
type Exemptions struct {
	Tables     []string `yaml:"tables"`
	Statements []string `yaml:"statements"`
}

// LoadExemptions reads the exemption list from path, or the embedded default when path is empty.
func LoadExemptions(path string) (Exemptions, error) {
	data := defaultExemptions
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Exemptions{}, fmt.Errorf("failed to read tenant exemptions %q: %w", path, err)
		}
		data = b
	}
	return ParseExemptions(data)
}

func ParseExemptions(data []byte) (Exemptions, error) {
	var e Exemptions
	if err := yaml.Unmarshal(data, &e); err != nil {
		return Exemptions{}, fmt.Errorf("failed to parse tenant exemptions: %w", err)
	}
	return e, nil
}
