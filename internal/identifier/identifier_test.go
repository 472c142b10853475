package identifier

import (
	"testing"
)

func TestParse_ExactVersion(t *testing.T) {
	id := Parse("Acid.Hair.7")
	if id.Creator != "Acid" || id.Name != "Hair" {
		t.Errorf("creator/name = %q/%q, want Acid/Hair", id.Creator, id.Name)
	}
	if id.Constraint != ConstraintExact || id.Number != 7 {
		t.Errorf("constraint = %v/%d, want exact/7", id.Constraint, id.Number)
	}
}

func TestParse_Latest(t *testing.T) {
	id := Parse("Acid.Hair.latest")
	if id.Constraint != ConstraintLatest {
		t.Errorf("constraint = %v, want latest", id.Constraint)
	}
	if id.GroupKey() != "Acid.Hair" {
		t.Errorf("group = %q, want Acid.Hair", id.GroupKey())
	}
}

func TestParse_Minimum(t *testing.T) {
	id := Parse("Acid.Hair.min12")
	if id.Constraint != ConstraintMinimum || id.Number != 12 {
		t.Errorf("constraint = %v/%d, want minimum/12", id.Constraint, id.Number)
	}
}

func TestParse_VarSuffixStripped(t *testing.T) {
	for _, raw := range []string{"Acid.Hair.7.var", "Acid.Hair.7.VAR", "Acid.Hair.7"} {
		id := Parse(raw)
		if id.Constraint != ConstraintExact || id.Number != 7 {
			t.Errorf("Parse(%q) = %v/%d, want exact/7", raw, id.Constraint, id.Number)
		}
	}
}

func TestParse_SuffixCaseInsensitive(t *testing.T) {
	if Parse("Acid.Hair.LATEST").Constraint != ConstraintLatest {
		t.Error("LATEST suffix not recognized")
	}
	if id := Parse("Acid.Hair.MIN3"); id.Constraint != ConstraintMinimum || id.Number != 3 {
		t.Errorf("MIN3 suffix = %v/%d", id.Constraint, id.Number)
	}
}

func TestParse_FallbackGroupOnly(t *testing.T) {
	id := Parse("Acid.Hair Extension.var")
	if id.Constraint != ConstraintNone {
		t.Errorf("constraint = %v, want none", id.Constraint)
	}
	if id.GroupKey() != "Acid.Hair Extension" {
		t.Errorf("group = %q", id.GroupKey())
	}
}

func TestParse_NoDot(t *testing.T) {
	id := Parse("standalone")
	if id.Creator != "" || id.Name != "standalone" || id.Constraint != ConstraintNone {
		t.Errorf("id = %+v", id)
	}
	if id.GroupKey() != "standalone" {
		t.Errorf("group = %q", id.GroupKey())
	}
}

func TestGroupKey_Idempotent(t *testing.T) {
	for _, raw := range []string{"Acid.Hair.7", "Acid.Hair.latest", "Acid.Hair", "Acid.Hair.min2.var"} {
		g := Parse(raw).GroupKey()
		if g != "Acid.Hair" {
			t.Errorf("GroupKey(%q) = %q, want Acid.Hair", raw, g)
		}
		if again := Parse(g).GroupKey(); again != g {
			t.Errorf("GroupKey not idempotent: %q -> %q", g, again)
		}
	}
}

func TestString_RoundTrip(t *testing.T) {
	for _, raw := range []string{
		"Acid.Hair.7",
		"Acid.Hair.latest",
		"Acid.Hair.min12",
		"Acid.Hair",
	} {
		id := Parse(raw)
		again := Parse(id.String())
		if again != id {
			t.Errorf("round trip %q: %+v != %+v", raw, again, id)
		}
	}
}

func TestVersion_Sentinel(t *testing.T) {
	if v := Parse("Acid.Hair.7").Version(); v != 7 {
		t.Errorf("version = %d, want 7", v)
	}
	for _, raw := range []string{"Acid.Hair.latest", "Acid.Hair.min3", "Acid.Hair"} {
		if v := Parse(raw).Version(); v != -1 {
			t.Errorf("Version(%q) = %d, want -1", raw, v)
		}
	}
}

func TestSameGroup(t *testing.T) {
	if !SameGroup("Acid.Hair.8", "acid.hair.latest") {
		t.Error("expected same group ignoring case and version")
	}
	if SameGroup("Acid.Hair.8", "Acid.Skin.8") {
		t.Error("different names must not match")
	}
}
