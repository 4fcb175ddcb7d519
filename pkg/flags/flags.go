// Package flags defines the named capability flags passed to engine calls
// and the usage groups that decide which of them each call honors.
//
// A single 64-bit namespace serves every operation. Callers may pass any
// combination of flags; before the value crosses the native boundary it is
// filtered down to the bits meaningful for the call's usage group, and bits
// that only the SDK interprets (such as WithInfo) are removed.
package flags

import (
	"sort"
	"strings"
)

// Flag is a single bit (or, for composites, a set of bits) in the shared
// flag namespace.
type Flag uint64

// Bits returns the flag as a raw mask.
func (f Flag) Bits() uint64 {
	return uint64(f)
}

// Name returns the registered name of a single flag, or the formatted
// member names for composites.
func (f Flag) Name() string {
	if d, ok := byBits[uint64(f)]; ok {
		return d.name
	}
	return Format(uint64(f))
}

// String implements fmt.Stringer.
func (f Flag) String() string {
	return f.Name()
}

// Groups returns the usage groups this flag belongs to.
func (f Flag) Groups() []UsageGroup {
	d, ok := byBits[uint64(f)]
	if !ok {
		return nil
	}
	out := make([]UsageGroup, len(d.groups))
	copy(out, d.groups)
	return out
}

// Single flags. Bit positions are part of the native contract and must not
// be renumbered.
const (
	ExportIncludeMultiRecordEntities  Flag = 1 << 0
	ExportIncludePossiblySame         Flag = 1 << 1
	ExportIncludePossiblyRelated      Flag = 1 << 2
	ExportIncludeNameOnly             Flag = 1 << 3
	ExportIncludeDisclosed            Flag = 1 << 4
	ExportIncludeSingleRecordEntities Flag = 1 << 5

	EntityIncludePossiblySameRelations    Flag = 1 << 6
	EntityIncludePossiblyRelatedRelations Flag = 1 << 7
	EntityIncludeNameOnlyRelations        Flag = 1 << 8
	EntityIncludeDisclosedRelations       Flag = 1 << 9
	EntityIncludeAllFeatures              Flag = 1 << 10
	EntityIncludeRepresentativeFeatures   Flag = 1 << 11
	EntityIncludeEntityName               Flag = 1 << 12
	EntityIncludeRecordSummary            Flag = 1 << 13
	EntityIncludeRecordData               Flag = 1 << 14
	EntityIncludeRecordMatchingInfo       Flag = 1 << 15
	EntityIncludeRecordJSONData           Flag = 1 << 16
	EntityIncludeRecordFeatures           Flag = 1 << 18
	EntityIncludeRelatedEntityName        Flag = 1 << 19
	EntityIncludeRelatedMatchingInfo      Flag = 1 << 20
	EntityIncludeRelatedRecordSummary     Flag = 1 << 21
	EntityIncludeRelatedRecordData        Flag = 1 << 22
	EntityIncludeInternalFeatures         Flag = 1 << 23
	EntityIncludeFeatureStats             Flag = 1 << 24

	FindPathStrictAvoid             Flag = 1 << 25
	IncludeFeatureScores            Flag = 1 << 26
	SearchIncludeStats              Flag = 1 << 27
	IncludeMatchKeyDetails          Flag = 1 << 28
	FindPathIncludeMatchingInfo     Flag = 1 << 30
	EntityIncludeRecordUnmappedData Flag = 1 << 31
	FindNetworkIncludeMatchingInfo  Flag = 1 << 33
	EntityIncludeRecordTypes        Flag = 1 << 34
	SearchIncludeAllCandidates      Flag = 1 << 35
	SearchIncludeRequest            Flag = 1 << 37
	SearchIncludeRequestDetails     Flag = 1 << 38

	// WithInfo asks modify operations to return a document describing the
	// entities they affected. It never reaches the engine as a bit; it selects
	// the info-returning native call variant instead.
	WithInfo Flag = 1 << 62
)

// Search aliases share bits with the export inclusion flags.
const (
	SearchIncludeResolved        = ExportIncludeMultiRecordEntities
	SearchIncludePossiblySame    = ExportIncludePossiblySame
	SearchIncludePossiblyRelated = ExportIncludePossiblyRelated
	SearchIncludeNameOnly        = ExportIncludeNameOnly
)

// Composite flag sets.
const (
	NoFlags Flag = 0

	EntityIncludeAllRelations = EntityIncludePossiblySameRelations |
		EntityIncludePossiblyRelatedRelations |
		EntityIncludeNameOnlyRelations |
		EntityIncludeDisclosedRelations

	ExportIncludeAllEntities = ExportIncludeMultiRecordEntities |
		ExportIncludeSingleRecordEntities

	ExportIncludeAllHavingRelationships = ExportIncludePossiblySame |
		ExportIncludePossiblyRelated |
		ExportIncludeNameOnly |
		ExportIncludeDisclosed

	SearchIncludeAllEntities = SearchIncludeResolved |
		SearchIncludePossiblySame |
		SearchIncludePossiblyRelated |
		SearchIncludeNameOnly

	RecordDefaultFlags = EntityIncludeRecordJSONData

	EntityCoreFlags = EntityIncludeRepresentativeFeatures |
		EntityIncludeEntityName |
		EntityIncludeRecordSummary |
		EntityIncludeRecordData |
		EntityIncludeRecordMatchingInfo

	EntityDefaultFlags = EntityCoreFlags |
		EntityIncludeAllRelations |
		EntityIncludeRelatedEntityName |
		EntityIncludeRelatedRecordSummary |
		EntityIncludeRelatedMatchingInfo

	EntityBriefDefaultFlags = EntityIncludeRecordMatchingInfo |
		EntityIncludeAllRelations |
		EntityIncludeRelatedMatchingInfo

	ExportDefaultFlags = ExportIncludeAllEntities | EntityDefaultFlags

	FindPathDefaultFlags = FindPathIncludeMatchingInfo |
		EntityIncludeEntityName |
		EntityIncludeRecordSummary

	FindNetworkDefaultFlags = FindNetworkIncludeMatchingInfo |
		EntityIncludeEntityName |
		EntityIncludeRecordSummary

	WhyEntitiesDefaultFlags = IncludeFeatureScores

	WhyRecordsDefaultFlags = IncludeFeatureScores

	HowEntityDefaultFlags = IncludeFeatureScores

	VirtualEntityDefaultFlags = EntityCoreFlags

	SearchByAttributesAll = SearchIncludeAllEntities |
		EntityIncludeRepresentativeFeatures |
		EntityIncludeEntityName |
		EntityIncludeRecordSummary |
		IncludeFeatureScores

	SearchByAttributesStrong = SearchIncludeResolved |
		SearchIncludePossiblySame |
		EntityIncludeRepresentativeFeatures |
		EntityIncludeEntityName |
		EntityIncludeRecordSummary |
		IncludeFeatureScores

	SearchByAttributesMinimalAll = SearchIncludeAllEntities

	SearchByAttributesMinimalStrong = SearchIncludeResolved |
		SearchIncludePossiblySame

	SearchByAttributesDefaultFlags = SearchByAttributesAll
)

// Encode ORs the given flags into a single mask.
func Encode(fs ...Flag) uint64 {
	var raw uint64
	for _, f := range fs {
		raw |= uint64(f)
	}
	return raw
}

// Decode splits a mask into the registered single flags it contains, in
// bit order. Unregistered bits are ignored.
func Decode(raw uint64) []Flag {
	out := make([]Flag, 0, 8)
	for _, d := range definitions {
		if raw&uint64(d.flag) != 0 {
			out = append(out, d.flag)
		}
	}
	return out
}

// MaskForGroup keeps only the bits that are valid for the group. Bits outside
// the group are dropped rather than rejected.
func MaskForGroup(g UsageGroup, raw uint64) uint64 {
	return raw & GroupMask(g)
}

// StripSDKOnly removes flags that are interpreted inside the SDK and must
// never be forwarded to the engine.
func StripSDKOnly(raw uint64) uint64 {
	return raw &^ sdkOnlyMask
}

// Downstream prepares a caller-supplied mask for a native call in group g.
func Downstream(g UsageGroup, raw uint64) uint64 {
	return MaskForGroup(g, StripSDKOnly(raw))
}

// HasWithInfo reports whether the caller asked for an info document.
func HasWithInfo(raw uint64) bool {
	return raw&uint64(WithInfo) != 0
}

// IsSDKOnly reports whether f is interpreted locally only.
func IsSDKOnly(f Flag) bool {
	return uint64(f)&sdkOnlyMask == uint64(f) && f != 0
}

// Lookup finds a single or composite flag by its registered name. Matching
// is case-insensitive and tolerates an "SZ_" style prefix being omitted.
func Lookup(name string) (Flag, bool) {
	key := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SZ_")
	if d, ok := byName[key]; ok {
		return d.flag, true
	}
	if c, ok := composites[key]; ok {
		return c, true
	}
	return 0, false
}

// Names returns the registered names of the single flags present in raw.
func Names(raw uint64) []string {
	fs := Decode(raw)
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, byBits[uint64(f)].name)
	}
	return names
}

// Format renders raw as "NAME_A | NAME_B". Bits without a registered name
// are appended as a hex literal so nothing is hidden from diagnostics.
func Format(raw uint64) string {
	if raw == 0 {
		return "NO_FLAGS"
	}
	names := Names(raw)
	rest := raw &^ registeredMask
	if rest != 0 {
		names = append(names, hexLiteral(rest))
	}
	return strings.Join(names, " | ")
}

// CompositeNames returns the names of all predefined composite flag sets.
func CompositeNames() []string {
	names := make([]string, 0, len(composites))
	for n := range composites {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
