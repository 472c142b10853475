// Package resolver decides install and update status for a package family
// by comparing the local library index against the remote catalog.
package resolver

import (
	"github.com/starford/fehu/internal/identifier"
	"github.com/starford/fehu/internal/library"
)

// RemoteLatest is the catalog oracle: it returns the newest version the
// catalog offers for a group, or found=false when the catalog cannot answer.
type RemoteLatest func(groupKey string) (version uint64, found bool)

// Resolution is the outcome of resolving a constraint against the library.
type Resolution struct {
	Installed        bool
	InstalledVersion uint64
	HasInstalled     bool
	UpdateAvailable  bool
	RemoteVersion    uint64
	HasRemote        bool
	// Satisfied is false only for minimum constraints whose floor exceeds
	// the installed version.
	Satisfied bool
	// Indeterminate is true when the catalog could not answer; callers must
	// not read it as "up to date".
	Indeterminate bool
}

// Resolve reports whether the group identified by id.GroupKey() is
// installed, whether a newer remote version exists, and whether a minimum
// constraint is satisfied. The remote oracle is only consulted for
// installed groups.
func Resolve(id identifier.Identifier, snap *library.Snapshot, remote RemoteLatest) Resolution {
	groupKey := id.GroupKey()
	res := Resolution{Satisfied: true}

	local, hasLocal := snap.HighestVersion(groupKey)
	if hasLocal {
		res.InstalledVersion = local
		res.HasInstalled = true
	}

	switch id.Constraint {
	case identifier.ConstraintExact:
		res.Installed = snap.Contains(id.String()) || hasLocal
	default:
		// Latest, minimum, and versionless references are installed when
		// any version of the group is present.
		res.Installed = hasLocal
	}

	if !res.Installed {
		return res
	}

	if remoteVersion, ok := remote(groupKey); ok {
		res.RemoteVersion = remoteVersion
		res.HasRemote = true
		res.UpdateAvailable = hasLocal && remoteVersion > local
	} else {
		res.Indeterminate = true
	}

	if id.Constraint == identifier.ConstraintMinimum && hasLocal && local < id.Number {
		res.Satisfied = false
	}

	return res
}
