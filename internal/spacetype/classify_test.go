package spacetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Pochven(t *testing.T) {
	c := NewClassifier(nil)
	spaceType, securityType := c.Classify(30100050)
	assert.Equal(t, SpacePochven, spaceType)
	assert.Equal(t, SecurityPochven, securityType)
}

func TestClassify_Wormhole(t *testing.T) {
	c := NewClassifier(nil)
	spaceType, securityType := c.Classify(31001000)
	assert.Equal(t, SpaceWormhole, spaceType)
	assert.Equal(t, SecurityWormhole, securityType)
}

func TestClassify_KnownSpaceWithLookup(t *testing.T) {
	lookup := StaticLookup{
		30000142: 0.5,  // Jita — highsec
		30002187: 0.4,  // Amarr-adjacent lowsec example
		30000001: -0.1, // deep nullsec example
	}
	c := NewClassifier(lookup)

	spaceType, securityType := c.Classify(30000142)
	assert.Equal(t, SpaceKnown, spaceType)
	assert.Equal(t, SecurityHighsec, securityType)

	_, securityType = c.Classify(30002187)
	assert.Equal(t, SecurityLowsec, securityType)

	_, securityType = c.Classify(30000001)
	assert.Equal(t, SecurityNullsec, securityType)
}

func TestClassify_UnknownSystemFallsBackToNullsec(t *testing.T) {
	c := NewClassifier(StaticLookup{})
	spaceType, securityType := c.Classify(30009999)
	assert.Equal(t, SpaceKnown, spaceType)
	assert.Equal(t, SecurityNullsec, securityType)
}

func TestClassify_NilLookupAlwaysFallsBack(t *testing.T) {
	c := NewClassifier(nil)
	spaceType, securityType := c.Classify(30000142)
	assert.Equal(t, SpaceKnown, spaceType)
	assert.Equal(t, SecurityNullsec, securityType)
}
