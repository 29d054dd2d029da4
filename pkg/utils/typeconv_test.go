package utils

import (
	"testing"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToSQLType(t *testing.T) {
	pickup := time.Date(2024, 1, 1, 0, 57, 55, 0, time.UTC)

	tests := []struct {
		name    string
		val     interface{}
		cfg     models.FieldConfig
		want    interface{}
		wantErr bool
	}{
		{name: "nil passes through", val: nil, cfg: models.FieldConfig{Type: "int"}, want: nil},
		{name: "int from int32", val: int32(2), cfg: models.FieldConfig{Type: "int"}, want: int64(2)},
		{name: "int from integral float", val: 1.0, cfg: models.FieldConfig{Type: "int"}, want: int64(1)},
		{name: "int from fractional float", val: 1.5, cfg: models.FieldConfig{Type: "int"}, wantErr: true},
		{name: "float from int64", val: int64(3), cfg: models.FieldConfig{Type: "float"}, want: 3.0},
		{name: "float from text", val: "17.7", cfg: models.FieldConfig{Type: "float"}, want: 17.7},
		{name: "string from bytes", val: []byte("N"), cfg: models.FieldConfig{Type: "string"}, want: "N"},
		{name: "string from int", val: int64(7), cfg: models.FieldConfig{Type: "string"}, want: "7"},
		{name: "datetime passthrough", val: pickup, cfg: models.FieldConfig{Type: "datetime"}, want: pickup},
		{name: "datetime epoch micros", val: pickup.UnixMicro(), cfg: models.FieldConfig{Type: "datetime"}, want: pickup},
		{name: "datetime epoch millis", val: pickup.UnixMilli(), cfg: models.FieldConfig{Type: "datetime", Format: "ms"}, want: pickup},
		{name: "datetime text", val: "2024-01-01 00:57:55", cfg: models.FieldConfig{Type: "datetime"}, want: pickup},
		{name: "datetime garbage", val: "yesterday", cfg: models.FieldConfig{Type: "datetime"}, wantErr: true},
		{name: "datetime bad unit", val: int64(1), cfg: models.FieldConfig{Type: "datetime", Format: "days"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertToSQLType(tt.val, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertToInt(t *testing.T) {
	v, err := ConvertToInt(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = ConvertToInt(struct{}{})
	assert.Error(t, err)

	_, err = ConvertToInt(uint64(1 << 63))
	assert.Error(t, err)
}
