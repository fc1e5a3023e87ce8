package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIskToFloat_ValidDecimalString(t *testing.T) {
	assert.Equal(t, 1500000.0, iskToFloat("1500000"))
}

func TestIskToFloat_InvalidStringIsZero(t *testing.T) {
	assert.Equal(t, 0.0, iskToFloat("not-a-number"))
}

func TestIskToFloat_EmptyStringIsZero(t *testing.T) {
	assert.Equal(t, 0.0, iskToFloat(""))
}
