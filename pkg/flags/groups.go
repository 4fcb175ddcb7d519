package flags

import (
	"fmt"
	"strings"
)

// UsageGroup is a category of engine operation. It decides which flags
// are forwarded for a call.
type UsageGroup int

const (
	GroupModify UsageGroup = iota
	GroupRecord
	GroupEntity
	GroupSearch
	GroupExport
	GroupFindPath
	GroupFindNetwork
	GroupWhy
	GroupHow
	GroupVirtualEntity
	GroupRedo
	GroupFindInteresting
)

var groupNames = [...]string{
	GroupModify:          "modify",
	GroupRecord:          "record",
	GroupEntity:          "entity",
	GroupSearch:          "search",
	GroupExport:          "export",
	GroupFindPath:        "find-path",
	GroupFindNetwork:     "find-network",
	GroupWhy:             "why",
	GroupHow:             "how",
	GroupVirtualEntity:   "virtual-entity",
	GroupRedo:            "redo",
	GroupFindInteresting: "find-interesting",
}

// AllGroups lists every usage group in declaration order.
func AllGroups() []UsageGroup {
	out := make([]UsageGroup, len(groupNames))
	for i := range groupNames {
		out[i] = UsageGroup(i)
	}
	return out
}

// String implements fmt.Stringer.
func (g UsageGroup) String() string {
	if g < 0 || int(g) >= len(groupNames) {
		return fmt.Sprintf("group(%d)", int(g))
	}
	return groupNames[g]
}

// ParseUsageGroup resolves a group by name.
func ParseUsageGroup(name string) (UsageGroup, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range groupNames {
		if n == key {
			return UsageGroup(i), nil
		}
	}
	return 0, fmt.Errorf("unknown usage group %q", name)
}

// GroupMask returns the union of all flags valid for g. Unknown groups
// yield an empty mask.
func GroupMask(g UsageGroup) uint64 {
	if g < 0 || int(g) >= len(groupMasks) {
		return 0
	}
	return groupMasks[g]
}

// FlagsFor returns the single flags valid for g, in bit order.
func FlagsFor(g UsageGroup) []Flag {
	return Decode(GroupMask(g))
}
