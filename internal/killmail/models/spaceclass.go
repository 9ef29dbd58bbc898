package models

// Space/security classes. Boundaries are ID-range heuristics in the
// upstream source, not algorithmic — kept here as data per the decision
// recorded in DESIGN.md, not as a chain of conditionals.
const (
	SpaceNormal   = "normal"
	SpaceWormhole = "wormhole"
	SpacePochven  = "pochven"

	SecurityHighsec  = "highsec"
	SecurityLowsec   = "lowsec"
	SecurityNullsec  = "nullsec"
	SecurityWormhole = "wormhole"
	SecurityPochven  = "pochven"
)

// systemRange is one row of the space/security classification table.
type systemRange struct {
	minID         int64
	maxID         int64 // inclusive
	spaceClass    string
	securityClass string
}

// defaultSystemRanges is the built-in classification table. It is
// intentionally coarse: a production deployment replaces this table (or
// plugs in a Classifier backed by the upstream static data export) rather
// than editing code, which is the point of treating it as data.
var defaultSystemRanges = []systemRange{
	{30000001, 30999999, SpaceNormal, SecurityHighsec},
	{31000000, 31999999, SpaceWormhole, SecurityWormhole},
	{10000001, 10999999, SpacePochven, SecurityPochven},
}

// Classifier derives a space/security class pair for a system ID.
type Classifier interface {
	Classify(systemID int64) (spaceClass, securityClass string)
}

// DefaultClassifier classifies against defaultSystemRanges, falling back to
// (normal, nullsec) for any system ID outside every known range — the safe
// default for an unrecognized k-space system.
type DefaultClassifier struct {
	ranges []systemRange
}

// NewDefaultClassifier returns a Classifier backed by the built-in table.
func NewDefaultClassifier() *DefaultClassifier {
	return &DefaultClassifier{ranges: defaultSystemRanges}
}

func (c *DefaultClassifier) Classify(systemID int64) (string, string) {
	for _, r := range c.ranges {
		if systemID >= r.minID && systemID <= r.maxID {
			return r.spaceClass, r.securityClass
		}
	}
	return SpaceNormal, SecurityNullsec
}
