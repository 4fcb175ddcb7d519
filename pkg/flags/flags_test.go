package flags

import (
	"math/rand"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	got := Encode(EntityIncludeEntityName, EntityIncludeRecordData, EntityIncludeEntityName)
	want := uint64(EntityIncludeEntityName) | uint64(EntityIncludeRecordData)
	if got != want {
		t.Errorf("Encode() = %#x, want %#x", got, want)
	}

	if Encode() != 0 {
		t.Error("Expected empty encode to be zero")
	}
}

func TestMaskForGroup(t *testing.T) {
	t.Run("modify accepts only with-info", func(t *testing.T) {
		raw := Encode(WithInfo, EntityIncludeEntityName, SearchIncludeStats)
		got := MaskForGroup(GroupModify, raw)
		if got != uint64(WithInfo) {
			t.Errorf("Expected only WITH_INFO, got %s", Format(got))
		}
	})

	t.Run("entity drops search-only bits", func(t *testing.T) {
		raw := Encode(EntityIncludeEntityName, SearchIncludeStats, FindPathStrictAvoid)
		got := MaskForGroup(GroupEntity, raw)
		if got != uint64(EntityIncludeEntityName) {
			t.Errorf("Expected only ENTITY_INCLUDE_ENTITY_NAME, got %s", Format(got))
		}
	})

	t.Run("unknown bits are dropped", func(t *testing.T) {
		if got := MaskForGroup(GroupEntity, 1<<17|1<<50); got != 0 {
			t.Errorf("Expected unregistered bits to be dropped, got %#x", got)
		}
	})

	t.Run("unknown group yields empty mask", func(t *testing.T) {
		if got := MaskForGroup(UsageGroup(99), ^uint64(0)); got != 0 {
			t.Errorf("Expected 0 for unknown group, got %#x", got)
		}
	})
}

func TestMaskForGroupIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	inputs := []uint64{0, ^uint64(0), uint64(EntityDefaultFlags), uint64(WithInfo)}
	for i := 0; i < 500; i++ {
		inputs = append(inputs, rng.Uint64())
	}

	for _, g := range AllGroups() {
		for _, x := range inputs {
			once := MaskForGroup(g, x)
			twice := MaskForGroup(g, once)
			if once != twice {
				t.Fatalf("group %s: mask not idempotent for %#x (%#x != %#x)", g, x, once, twice)
			}
		}
	}
}

func TestStripSDKOnly(t *testing.T) {
	raw := Encode(WithInfo, EntityIncludeEntityName)
	if !HasWithInfo(raw) {
		t.Fatal("Expected HasWithInfo to be true")
	}

	stripped := StripSDKOnly(raw)
	if HasWithInfo(stripped) {
		t.Error("Expected WITH_INFO to be stripped")
	}
	if stripped != uint64(EntityIncludeEntityName) {
		t.Errorf("Expected other bits to survive, got %s", Format(stripped))
	}

	if Downstream(GroupModify, raw) != 0 {
		t.Error("Expected modify calls to forward no bits")
	}

	if !IsSDKOnly(WithInfo) || IsSDKOnly(EntityIncludeEntityName) || IsSDKOnly(NoFlags) {
		t.Error("IsSDKOnly misclassified a flag")
	}
}

func TestGroupMembership(t *testing.T) {
	tests := []struct {
		flag  Flag
		group UsageGroup
		want  bool
	}{
		{WithInfo, GroupModify, true},
		{WithInfo, GroupRedo, true},
		{WithInfo, GroupEntity, false},
		{EntityIncludeRecordJSONData, GroupRecord, true},
		{EntityIncludeEntityName, GroupRecord, false},
		{FindPathStrictAvoid, GroupFindPath, true},
		{FindPathStrictAvoid, GroupFindNetwork, false},
		{IncludeFeatureScores, GroupHow, true},
		{ExportIncludeSingleRecordEntities, GroupSearch, false},
		{SearchIncludeResolved, GroupSearch, true},
	}

	for _, tt := range tests {
		t.Run(tt.flag.Name()+"/"+tt.group.String(), func(t *testing.T) {
			got := MaskForGroup(tt.group, tt.flag.Bits()) != 0
			if got != tt.want {
				t.Errorf("membership = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlagsFor(t *testing.T) {
	fs := FlagsFor(GroupModify)
	if len(fs) != 1 || fs[0] != WithInfo {
		t.Errorf("Expected modify group to contain only WITH_INFO, got %v", fs)
	}

	groups := WithInfo.Groups()
	if len(groups) != 2 {
		t.Errorf("Expected WITH_INFO in 2 groups, got %v", groups)
	}
}

func TestFormatAndNames(t *testing.T) {
	if got := Format(0); got != "NO_FLAGS" {
		t.Errorf("Format(0) = %q", got)
	}

	got := Format(Encode(EntityIncludeEntityName, WithInfo))
	if got != "ENTITY_INCLUDE_ENTITY_NAME | WITH_INFO" {
		t.Errorf("Format() = %q", got)
	}

	got = Format(uint64(EntityIncludeEntityName) | 1<<17)
	if !strings.HasSuffix(got, "0x20000") {
		t.Errorf("Expected unregistered bit as hex literal, got %q", got)
	}

	if EntityIncludeAllRelations.Name() != Format(EntityIncludeAllRelations.Bits()) {
		t.Error("Expected composite name to render its members")
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want Flag
		ok   bool
	}{
		{"WITH_INFO", WithInfo, true},
		{"with_info", WithInfo, true},
		{"SZ_WITH_INFO", WithInfo, true},
		{"ENTITY_DEFAULT_FLAGS", EntityDefaultFlags, true},
		{"SEARCH_INCLUDE_RESOLVED", SearchIncludeResolved, true},
		{"NOT_A_FLAG", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Lookup(%q) = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"WITH_INFO", uint64(WithInfo), false},
		{"ENTITY_INCLUDE_ENTITY_NAME | WITH_INFO", Encode(EntityIncludeEntityName, WithInfo), false},
		{"entity_include_entity_name,0x4000", Encode(EntityIncludeEntityName, EntityIncludeRecordData), false},
		{"12", 12, false},
		{"BOGUS", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %#x, want %#x", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseUsageGroup(t *testing.T) {
	for _, g := range AllGroups() {
		got, err := ParseUsageGroup(strings.ToUpper(g.String()))
		if err != nil || got != g {
			t.Errorf("ParseUsageGroup(%q) = (%v, %v)", g.String(), got, err)
		}
	}

	if _, err := ParseUsageGroup("nope"); err == nil {
		t.Error("Expected error for unknown group")
	}
}
