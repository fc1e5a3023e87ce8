package charstats

// TrackedCategories enumerates the ship categories this package tracks,
// mirroring the teacher's fixed category list (interdictor, force recon,
// strategic cruiser, HIC, and the capital/super-capital classes) rather
// than tracking every hull.
var TrackedCategories = []string{
	"interdictor", "forcerecon", "strategic", "hic", "monitor",
	"blackops", "marauders", "fax", "dread", "carrier", "super", "titan", "lancer",
}

// ShipCategoryLookup resolves a ship type id to a tracked category name,
// or "" when the hull isn't one this package tracks. Tests use
// StaticCategoryLookup; internal/battlescope wires an empty
// StaticCategoryLookup, since no SDE type table is available.
type ShipCategoryLookup interface {
	ShipCategory(shipTypeID int64) (category string, ok bool)
}

// StaticCategoryLookup is a fixed shipTypeID -> category map, for tests
// and deployments without a wired SDE-backed lookup.
type StaticCategoryLookup map[int64]string

func (s StaticCategoryLookup) ShipCategory(shipTypeID int64) (string, bool) {
	category, ok := s[shipTypeID]
	return category, ok
}
