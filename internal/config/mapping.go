package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

//go:embed default_mapping.json
var defaultMapping []byte

// LoadMapping reads the column mapping from filePath, or returns the built-in
// yellow-taxi mapping when filePath is empty.
func LoadMapping(filePath string) (*models.MappingSchema, error) {
	data := defaultMapping
	if filePath != "" {
		var err error
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, models.NewError(models.KindConfigError,
				fmt.Errorf("failed to read mapping file '%s': %w", filePath, err))
		}
	}

	m, err := models.LoadMapping(data)
	if err != nil {
		src := filePath
		if src == "" {
			src = "built-in mapping"
		}
		return nil, models.NewError(models.KindConfigError,
			fmt.Errorf("failed to parse mapping '%s': %w", src, err))
	}
	return m, nil
}
