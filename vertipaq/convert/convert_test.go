package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// scenario 5: 2022-01-01 as an OLE Automation date.
func TestDateTimeConversion(t *testing.T) {
	got := Value(DataTypeDateTime, int64(44562))
	assert.Equal(t, int64(1640995200000), got)
}

// scenario 6: decimal scale.
func TestDecimalConversion(t *testing.T) {
	got := Value(DataTypeDecimal, int64(12345))
	assert.Equal(t, 1.2345, got)
}

func TestPassThroughForOtherTypes(t *testing.T) {
	got := Value(6, int64(42))
	assert.Equal(t, int64(42), got)
}

func TestNonNumericPassesThrough(t *testing.T) {
	got := Value(DataTypeDateTime, "already-decoded")
	assert.Equal(t, "already-decoded", got)
}
