// Package identifier parses package identifier strings of the form
// Creator.Name[.version][.var] into structured identifiers.
package identifier

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	varSuffixRe = regexp.MustCompile(`(?i)\.var$`)
	minTailRe   = regexp.MustCompile(`(?i)^min([0-9]+)$`)
	digitsRe    = regexp.MustCompile(`^[0-9]+$`)
)

// Constraint describes the version component of an identifier.
type Constraint int

const (
	// ConstraintNone means the identifier carries no version component.
	ConstraintNone Constraint = iota
	// ConstraintExact pins a single numeric version.
	ConstraintExact
	// ConstraintLatest always resolves to the newest catalog version.
	ConstraintLatest
	// ConstraintMinimum is satisfied by any version at or above a floor.
	ConstraintMinimum
)

// String returns a short name for the constraint kind.
func (c Constraint) String() string {
	switch c {
	case ConstraintExact:
		return "exact"
	case ConstraintLatest:
		return "latest"
	case ConstraintMinimum:
		return "minimum"
	default:
		return "none"
	}
}

// Identifier is a parsed package identifier: creator, package name, and an
// optional version constraint. Number holds the version for ConstraintExact
// and the floor for ConstraintMinimum; it is zero otherwise.
type Identifier struct {
	Creator    string
	Name       string
	Constraint Constraint
	Number     uint64
}

// Parse turns a raw identifier string into an Identifier. Parsing is total:
// any input produces a result, falling back to a group-key-only identifier
// (minus a trailing ".var", which is stripped before suffix inspection) when
// no recognized version suffix is found. Suffixes are case-insensitive.
func Parse(raw string) Identifier {
	s := varSuffixRe.ReplaceAllString(strings.TrimSpace(raw), "")

	group := s
	constraint := ConstraintNone
	var number uint64

	if i := strings.LastIndex(s, "."); i >= 0 {
		tail := s[i+1:]
		switch {
		case strings.EqualFold(tail, "latest"):
			group = s[:i]
			constraint = ConstraintLatest
		case minTailRe.MatchString(tail):
			group = s[:i]
			constraint = ConstraintMinimum
			m := minTailRe.FindStringSubmatch(tail)
			number, _ = strconv.ParseUint(m[1], 10, 64)
		case digitsRe.MatchString(tail):
			group = s[:i]
			constraint = ConstraintExact
			number, _ = strconv.ParseUint(tail, 10, 64)
		}
	}

	creator, name := splitGroup(group)
	return Identifier{
		Creator:    creator,
		Name:       name,
		Constraint: constraint,
		Number:     number,
	}
}

// splitGroup divides a group key at the first dot. A group without a dot is
// treated as a bare name with no creator.
func splitGroup(group string) (creator, name string) {
	if i := strings.Index(group, "."); i >= 0 {
		return group[:i], group[i+1:]
	}
	return "", group
}

// GroupKey returns the version-independent Creator.Name portion of the
// identifier. It is idempotent: parsing the result and calling GroupKey
// again yields the same string.
func (id Identifier) GroupKey() string {
	if id.Creator == "" {
		return id.Name
	}
	return id.Creator + "." + id.Name
}

// Version returns the numeric version for an exact identifier and -1 for
// latest, minimum, and versionless identifiers. The sentinel must never be
// compared against real versions.
func (id Identifier) Version() int {
	if id.Constraint == ConstraintExact {
		return int(id.Number)
	}
	return -1
}

// String re-serializes the identifier in canonical form: the group key
// followed by ".latest", ".min<n>", ".<n>", or nothing.
func (id Identifier) String() string {
	group := id.GroupKey()
	switch id.Constraint {
	case ConstraintLatest:
		return group + ".latest"
	case ConstraintMinimum:
		return group + ".min" + strconv.FormatUint(id.Number, 10)
	case ConstraintExact:
		return group + "." + strconv.FormatUint(id.Number, 10)
	default:
		return group
	}
}

// Key normalizes a group key for case-insensitive map lookups.
func Key(groupKey string) string {
	return strings.ToLower(groupKey)
}

// SameGroup reports whether two raw identifier strings belong to the same
// package family, ignoring version components and case.
func SameGroup(a, b string) bool {
	return Key(Parse(a).GroupKey()) == Key(Parse(b).GroupKey())
}
