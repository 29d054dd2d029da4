package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/nyc-taxi-etl/pkg/models"
)

// ConvertToSQLType converts a decoded source value into the Go value the SQL
// driver expects for the field's declared type. nil stays nil.
func ConvertToSQLType(val interface{}, cfg models.FieldConfig) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "datetime":
		return ConvertDateTime(val, cfg.Format)
	case "int":
		return ConvertToInt(val)
	case "float":
		return ConvertToFloat(val)
	case "string":
		switch v := val.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprintf("%v", val), nil
		}
	default:
		return val, nil
	}
}

// ConvertDateTime accepts time values, epoch numbers (format "s", "ms",
// "us" or "ns"; default "us") and the usual textual layouts.
func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v.UTC(), nil
	case int64:
		return epochToTime(v, format)
	case int32:
		return epochToTime(int64(v), format)
	case int:
		return epochToTime(int64(v), format)
	case string:
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return nil, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

func epochToTime(v int64, unit string) (time.Time, error) {
	switch strings.ToLower(unit) {
	case "s":
		return time.Unix(v, 0).UTC(), nil
	case "ms":
		return time.UnixMilli(v).UTC(), nil
	case "", "us":
		return time.UnixMicro(v).UTC(), nil
	case "ns":
		return time.Unix(0, v).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown epoch unit %q", unit)
	}
}

// ConvertToInt converts to int64. Floats are accepted only when integral,
// which covers count columns the source stores as doubles.
func ConvertToInt(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return ConvertToInt(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return ConvertToInt(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func ConvertToFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case []byte:
		return ConvertToFloat(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to float", val)
	}
}
