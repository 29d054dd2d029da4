package etl

import (
	"strings"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

type Validator struct {
	Config *models.MappingSchema
}

func NewValidator(config *models.MappingSchema) *Validator {
	return &Validator{Config: config}
}

// ValidateColumns checks that every required mapped column is present in
// the source file. Column names match case-insensitively, since the TLC
// files are not consistent about it (Airport_fee vs airport_fee).
func (v *Validator) ValidateColumns(cols []string) error {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[strings.ToLower(c)] = true
	}

	var missing []string
	for _, f := range v.Config.Fields {
		if !f.Optional && !present[strings.ToLower(f.Source)] {
			missing = append(missing, f.Source)
		}
	}
	if len(missing) > 0 {
		return models.Errorf(models.KindConstraintViolation,
			"source is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
