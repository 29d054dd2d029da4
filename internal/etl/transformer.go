package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/BartekS5/nyc-taxi-etl/pkg/utils"
)

// RowMapper converts decoded source rows into raw-table argument lists in
// mapping order, with the partition id appended last.
type RowMapper struct {
	Config *models.MappingSchema

	// source column name as found in the file, per field
	resolved []string
}

func NewRowMapper(config *models.MappingSchema) *RowMapper {
	return &RowMapper{Config: config}
}

// Bind resolves the mapping's source names against the file's actual
// column names.
func (m *RowMapper) Bind(cols []string) {
	byLower := make(map[string]string, len(cols))
	for _, c := range cols {
		byLower[strings.ToLower(c)] = c
	}
	m.resolved = make([]string, len(m.Config.Fields))
	for i, f := range m.Config.Fields {
		if actual, ok := byLower[strings.ToLower(f.Source)]; ok {
			m.resolved[i] = actual
		} else {
			m.resolved[i] = f.Source
		}
	}
}

func (m *RowMapper) Map(row map[string]interface{}, p models.Partition) ([]interface{}, error) {
	if m.resolved == nil {
		m.Bind(nil)
	}

	args := make([]interface{}, 0, len(m.Config.Fields)+1)
	for i, f := range m.Config.Fields {
		val, err := utils.ConvertToSQLType(row[m.resolved[i]], f)
		if err != nil {
			return nil, models.NewError(models.KindConstraintViolation,
				fmt.Errorf("column %s: %w", f.Source, err))
		}
		args = append(args, val)
	}
	return append(args, p.String()), nil
}
