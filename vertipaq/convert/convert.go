// Package convert applies the AMO-data-type-specific conversions VertiPaq
// raw dictionary values need before they reach a table's columnar output.
package convert

const (
	DataTypeDateTime = 9
	DataTypeDecimal  = 10
)

// oleEpochOffsetDays is the day-count of the Unix epoch (1970-01-01)
// measured from the OLE Automation date epoch (1899-12-30).
const oleEpochOffsetDays = 25569

// Value converts a raw numeric reading into its domain value for the
// given AMO data type. Non-numeric raw values (already-decoded strings,
// for instance) pass through untouched.
func Value(dataType int, raw interface{}) interface{} {
	switch dataType {
	case DataTypeDateTime:
		f, ok := asFloat(raw)
		if !ok {
			return raw
		}
		return int64((f - oleEpochOffsetDays) * 86400000)
	case DataTypeDecimal:
		f, ok := asFloat(raw)
		if !ok {
			return raw
		}
		return f / 10000
	default:
		return raw
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint32:
		return float64(v), true
	}
	return 0, false
}
