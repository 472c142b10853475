package session

import (
	"testing"
)

func TestUpdate_ExactMatch(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.8")

	if !tr.Update("acid.hair.8", StateDownloading, "") {
		t.Fatal("case-insensitive exact match failed")
	}
	if got := tr.Entries()[0].State; got != StateDownloading {
		t.Errorf("state = %q", got)
	}
}

func TestUpdate_GroupKeyFallback(t *testing.T) {
	// The tracker was seeded with a latest reference; the completion event
	// carries the resolved versioned filename.
	tr := NewTracker()
	tr.Track("Acid.Hair.latest")

	if !tr.Update("Acid.Hair.8", StateCompleted, "") {
		t.Fatal("group-key fallback failed")
	}
	if got := tr.Entries()[0].State; got != StateCompleted {
		t.Errorf("state = %q", got)
	}
}

func TestUpdate_FirstMatchByInsertionOrder(t *testing.T) {
	// Two entries share a group key (a dependency queued twice under
	// different version suffixes). The first in insertion order wins.
	tr := NewTracker()
	tr.Track("Acid.Hair.min3")
	tr.Track("Acid.Hair.latest")

	tr.Update("Acid.Hair.8", StateDownloading, "")

	entries := tr.Entries()
	if entries[0].State != StateDownloading {
		t.Error("first entry should have matched")
	}
	if entries[1].State != StateQueued {
		t.Error("second entry must be untouched")
	}
}

func TestUpdate_TerminalEntriesIgnoreEvents(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.8")
	tr.Update("Acid.Hair.8", StateFailed, "connection reset")

	if tr.Update("Acid.Hair.8", StateDownloading, "") {
		t.Error("terminal entry accepted an update")
	}
	e := tr.Entries()[0]
	if e.State != StateFailed || e.Message != "connection reset" {
		t.Errorf("entry mutated after terminal: %+v", e)
	}
}

func TestUpdate_NoMatchIgnored(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.8")
	if tr.Update("Other.Thing.1", StateCompleted, "") {
		t.Error("unrelated event should not match")
	}
}

func TestCancel_DoesNotAffectGroupSiblings(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.7")
	tr.Track("Acid.Hair.8")

	tr.Cancel("Acid.Hair.7")

	entries := tr.Entries()
	if entries[0].State != StateCancelled {
		t.Error("first entry not cancelled")
	}
	if entries[1].State != StateQueued {
		t.Error("sibling entry must stay queued")
	}
}

func TestCancelAll(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.8")
	tr.Track("Other.Thing.1")
	tr.Update("Acid.Hair.8", StateCompleted, "")

	var signalled []string
	tr.CancelAll(func(key string) { signalled = append(signalled, key) })

	entries := tr.Entries()
	if entries[0].State != StateCompleted {
		t.Error("completed entry must keep its terminal state")
	}
	if entries[1].State != StateCancelled {
		t.Error("non-terminal entry not cancelled")
	}
	if len(signalled) != 1 || signalled[0] != "Other.Thing.1" {
		t.Errorf("signalled = %v, want only the non-terminal entry", signalled)
	}
}

func TestClearTerminal(t *testing.T) {
	tr := NewTracker()
	tr.Track("Acid.Hair.8")
	tr.Track("Other.Thing.1")
	tr.Update("Acid.Hair.8", StateCompleted, "")

	if n := tr.ClearTerminal(); n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	entries := tr.Entries()
	if len(entries) != 1 || entries[0].PackageKey != "Other.Thing.1" {
		t.Errorf("entries = %+v", entries)
	}
}
