package etl

import (
	"testing"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowMapper_Map(t *testing.T) {
	m := NewRowMapper(testMapping())
	m.Bind([]string{"vendorid", "TPEP_PICKUP_DATETIME", "fare_amount", "Airport_fee"})

	pickup := time.Date(2024, 3, 9, 18, 0, 0, 0, time.UTC)
	args, err := m.Map(map[string]interface{}{
		"vendorid":             "2",
		"TPEP_PICKUP_DATETIME": "2024-03-09 18:00:00",
		"fare_amount":          int64(19),
		"Airport_fee":          nil,
	}, month("2024-03"))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(2), pickup, 19.0, nil, "2024-03"}, args)
}

func TestRowMapper_ConversionError(t *testing.T) {
	m := NewRowMapper(testMapping())
	m.Bind([]string{"VendorID", "tpep_pickup_datetime", "fare_amount"})

	_, err := m.Map(map[string]interface{}{
		"VendorID":             int64(1),
		"tpep_pickup_datetime": "yesterday",
		"fare_amount":          1.0,
	}, month("2024-03"))
	require.Error(t, err)
	assert.Equal(t, models.KindConstraintViolation, models.KindOf(err))
	assert.Contains(t, err.Error(), "column tpep_pickup_datetime")
}

func TestValidator_ValidateColumns(t *testing.T) {
	v := NewValidator(testMapping())

	assert.NoError(t, v.ValidateColumns([]string{"VendorID", "tpep_pickup_datetime", "fare_amount", "Airport_fee"}))
	assert.NoError(t, v.ValidateColumns([]string{"vendorid", "TPEP_PICKUP_DATETIME", "Fare_Amount"}), "optional column may be absent")

	err := v.ValidateColumns([]string{"VendorID"})
	require.Error(t, err)
	assert.Equal(t, models.KindConstraintViolation, models.KindOf(err))
	assert.Contains(t, err.Error(), "tpep_pickup_datetime, fare_amount")
}
