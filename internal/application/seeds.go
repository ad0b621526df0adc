package application

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/internal/domain"
)

//go:embed seeds/*.yaml
var seedFS embed.FS

var seedValidator = validator.New()

// SeedGenomeData returns the built-in v0.1 genome data of lab.
func SeedGenomeData(lab string) (domain.GenomeData, error) {
	if !domain.IsKnownLab(lab) {
		return domain.GenomeData{}, fmt.Errorf("%w: %q", domain.ErrUnknownLab, lab)
	}
	raw, err := seedFS.ReadFile("seeds/" + lab + ".yaml")
	if err != nil {
		return domain.GenomeData{}, fmt.Errorf("failed to read seed for %s: %w", lab, err)
	}

	var data domain.GenomeData
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&data); err != nil {
		return domain.GenomeData{}, fmt.Errorf("failed to decode seed for %s: %w", lab, err)
	}
	if err := seedValidator.Struct(data); err != nil {
		return domain.GenomeData{}, fmt.Errorf("seed for %s is invalid: %w", lab, err)
	}
	return data, nil
}

// SeedChangeDescription is the change text of a lineage root.
func SeedChangeDescription(lab string) string {
	return "Initial genome for " + lab
}
