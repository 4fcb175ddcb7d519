package flags

import (
	"strconv"
)

type definition struct {
	name   string
	flag   Flag
	groups []UsageGroup
}

// Group sets shared by families of detail flags.
var (
	relationGroups = []UsageGroup{GroupEntity, GroupExport, GroupFindPath, GroupFindNetwork, GroupSearch, GroupWhy}
	detailGroups   = []UsageGroup{GroupEntity, GroupExport, GroupFindPath, GroupFindNetwork, GroupSearch, GroupWhy, GroupVirtualEntity}
	recordGroups   = []UsageGroup{GroupRecord, GroupEntity, GroupExport, GroupFindPath, GroupFindNetwork, GroupSearch, GroupWhy, GroupVirtualEntity}
	scoreGroups    = []UsageGroup{GroupEntity, GroupExport, GroupFindPath, GroupFindNetwork, GroupSearch, GroupWhy, GroupHow, GroupVirtualEntity}
)

// definitions is the flag table, ordered by bit.
var definitions = []definition{
	{"EXPORT_INCLUDE_MULTI_RECORD_ENTITIES", ExportIncludeMultiRecordEntities, []UsageGroup{GroupExport, GroupSearch}},
	{"EXPORT_INCLUDE_POSSIBLY_SAME", ExportIncludePossiblySame, []UsageGroup{GroupExport, GroupSearch}},
	{"EXPORT_INCLUDE_POSSIBLY_RELATED", ExportIncludePossiblyRelated, []UsageGroup{GroupExport, GroupSearch}},
	{"EXPORT_INCLUDE_NAME_ONLY", ExportIncludeNameOnly, []UsageGroup{GroupExport, GroupSearch}},
	{"EXPORT_INCLUDE_DISCLOSED", ExportIncludeDisclosed, []UsageGroup{GroupExport}},
	{"EXPORT_INCLUDE_SINGLE_RECORD_ENTITIES", ExportIncludeSingleRecordEntities, []UsageGroup{GroupExport}},

	{"ENTITY_INCLUDE_POSSIBLY_SAME_RELATIONS", EntityIncludePossiblySameRelations, relationGroups},
	{"ENTITY_INCLUDE_POSSIBLY_RELATED_RELATIONS", EntityIncludePossiblyRelatedRelations, relationGroups},
	{"ENTITY_INCLUDE_NAME_ONLY_RELATIONS", EntityIncludeNameOnlyRelations, relationGroups},
	{"ENTITY_INCLUDE_DISCLOSED_RELATIONS", EntityIncludeDisclosedRelations, relationGroups},
	{"ENTITY_INCLUDE_ALL_FEATURES", EntityIncludeAllFeatures, detailGroups},
	{"ENTITY_INCLUDE_REPRESENTATIVE_FEATURES", EntityIncludeRepresentativeFeatures, detailGroups},
	{"ENTITY_INCLUDE_ENTITY_NAME", EntityIncludeEntityName, detailGroups},
	{"ENTITY_INCLUDE_RECORD_SUMMARY", EntityIncludeRecordSummary, detailGroups},
	{"ENTITY_INCLUDE_RECORD_DATA", EntityIncludeRecordData, detailGroups},
	{"ENTITY_INCLUDE_RECORD_MATCHING_INFO", EntityIncludeRecordMatchingInfo, detailGroups},
	{"ENTITY_INCLUDE_RECORD_JSON_DATA", EntityIncludeRecordJSONData, recordGroups},
	{"ENTITY_INCLUDE_RECORD_FEATURES", EntityIncludeRecordFeatures, recordGroups},
	{"ENTITY_INCLUDE_RELATED_ENTITY_NAME", EntityIncludeRelatedEntityName, relationGroups},
	{"ENTITY_INCLUDE_RELATED_MATCHING_INFO", EntityIncludeRelatedMatchingInfo, relationGroups},
	{"ENTITY_INCLUDE_RELATED_RECORD_SUMMARY", EntityIncludeRelatedRecordSummary, relationGroups},
	{"ENTITY_INCLUDE_RELATED_RECORD_DATA", EntityIncludeRelatedRecordData, relationGroups},
	{"ENTITY_INCLUDE_INTERNAL_FEATURES", EntityIncludeInternalFeatures, recordGroups},
	{"ENTITY_INCLUDE_FEATURE_STATS", EntityIncludeFeatureStats, detailGroups},

	{"FIND_PATH_STRICT_AVOID", FindPathStrictAvoid, []UsageGroup{GroupFindPath}},
	{"INCLUDE_FEATURE_SCORES", IncludeFeatureScores, scoreGroups},
	{"SEARCH_INCLUDE_STATS", SearchIncludeStats, []UsageGroup{GroupSearch}},
	{"INCLUDE_MATCH_KEY_DETAILS", IncludeMatchKeyDetails, scoreGroups},
	{"FIND_PATH_INCLUDE_MATCHING_INFO", FindPathIncludeMatchingInfo, []UsageGroup{GroupFindPath}},
	{"ENTITY_INCLUDE_RECORD_UNMAPPED_DATA", EntityIncludeRecordUnmappedData, recordGroups},
	{"FIND_NETWORK_INCLUDE_MATCHING_INFO", FindNetworkIncludeMatchingInfo, []UsageGroup{GroupFindNetwork}},
	{"ENTITY_INCLUDE_RECORD_TYPES", EntityIncludeRecordTypes, detailGroups},
	{"SEARCH_INCLUDE_ALL_CANDIDATES", SearchIncludeAllCandidates, []UsageGroup{GroupSearch}},
	{"SEARCH_INCLUDE_REQUEST", SearchIncludeRequest, []UsageGroup{GroupSearch}},
	{"SEARCH_INCLUDE_REQUEST_DETAILS", SearchIncludeRequestDetails, []UsageGroup{GroupSearch}},

	{"WITH_INFO", WithInfo, []UsageGroup{GroupModify, GroupRedo}},
}

// composites maps the names of predefined flag sets.
var composites = map[string]Flag{
	"NO_FLAGS":                                NoFlags,
	"ENTITY_INCLUDE_ALL_RELATIONS":            EntityIncludeAllRelations,
	"EXPORT_INCLUDE_ALL_ENTITIES":             ExportIncludeAllEntities,
	"EXPORT_INCLUDE_ALL_HAVING_RELATIONSHIPS": ExportIncludeAllHavingRelationships,
	"SEARCH_INCLUDE_ALL_ENTITIES":             SearchIncludeAllEntities,
	"RECORD_DEFAULT_FLAGS":                    RecordDefaultFlags,
	"ENTITY_CORE_FLAGS":                       EntityCoreFlags,
	"ENTITY_DEFAULT_FLAGS":                    EntityDefaultFlags,
	"ENTITY_BRIEF_DEFAULT_FLAGS":              EntityBriefDefaultFlags,
	"EXPORT_DEFAULT_FLAGS":                    ExportDefaultFlags,
	"FIND_PATH_DEFAULT_FLAGS":                 FindPathDefaultFlags,
	"FIND_NETWORK_DEFAULT_FLAGS":              FindNetworkDefaultFlags,
	"WHY_ENTITIES_DEFAULT_FLAGS":              WhyEntitiesDefaultFlags,
	"WHY_RECORDS_DEFAULT_FLAGS":               WhyRecordsDefaultFlags,
	"HOW_ENTITY_DEFAULT_FLAGS":                HowEntityDefaultFlags,
	"VIRTUAL_ENTITY_DEFAULT_FLAGS":            VirtualEntityDefaultFlags,
	"SEARCH_BY_ATTRIBUTES_ALL":                SearchByAttributesAll,
	"SEARCH_BY_ATTRIBUTES_STRONG":             SearchByAttributesStrong,
	"SEARCH_BY_ATTRIBUTES_MINIMAL_ALL":        SearchByAttributesMinimalAll,
	"SEARCH_BY_ATTRIBUTES_MINIMAL_STRONG":     SearchByAttributesMinimalStrong,
	"SEARCH_BY_ATTRIBUTES_DEFAULT_FLAGS":      SearchByAttributesDefaultFlags,
	"SEARCH_INCLUDE_RESOLVED":                 SearchIncludeResolved,
	"SEARCH_INCLUDE_POSSIBLY_SAME":            SearchIncludePossiblySame,
	"SEARCH_INCLUDE_POSSIBLY_RELATED":         SearchIncludePossiblyRelated,
	"SEARCH_INCLUDE_NAME_ONLY":                SearchIncludeNameOnly,
}

var (
	byName         = make(map[string]definition, len(definitions))
	byBits         = make(map[uint64]definition, len(definitions))
	groupMasks     = make([]uint64, len(groupNames))
	registeredMask uint64
	sdkOnlyMask    = uint64(WithInfo)
)

func init() {
	for _, d := range definitions {
		byName[d.name] = d
		byBits[uint64(d.flag)] = d
		registeredMask |= uint64(d.flag)
		for _, g := range d.groups {
			groupMasks[g] |= uint64(d.flag)
		}
	}
}

func hexLiteral(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}
