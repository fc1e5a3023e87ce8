package charstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticCategoryLookup_KnownType(t *testing.T) {
	lookup := StaticCategoryLookup{22452: "hic", 11567: "carrier"}

	category, ok := lookup.ShipCategory(22452)
	assert.True(t, ok)
	assert.Equal(t, "hic", category)
}

func TestStaticCategoryLookup_UnknownType(t *testing.T) {
	lookup := StaticCategoryLookup{22452: "hic"}

	_, ok := lookup.ShipCategory(999)
	assert.False(t, ok)
}
