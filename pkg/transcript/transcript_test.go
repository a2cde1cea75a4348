package transcript

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "I Led The Team", "i led the team"},
		{"strips punctuation", "I led the team.", "i led the team"},
		{"collapses whitespace", "  I   led\tthe team ", "i led the team"},
		{"mixed punctuation and case", "Well — I led, the TEAM!", "well i led the team"},
		{"digits survive", "grew revenue 40%", "grew revenue 40"},
		{"empty", "", ""},
		{"punctuation only", "?!—", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeEquivalence(t *testing.T) {
	// The dedup guard relies on two renditions of the same phrase from
	// different recognizers normalizing identically.
	a := Normalize("I led the team.")
	b := Normalize("i led the team")
	if a != b {
		t.Errorf("expected %q and %q to normalize equally (%q vs %q)",
			"I led the team.", "i led the team", a, b)
	}
}

func TestRoleRank(t *testing.T) {
	if RoleCandidate.Rank() >= RoleCoach.Rank() {
		t.Error("candidate must rank before coach")
	}
	if RoleCoach.Rank() >= RoleSystem.Rank() {
		t.Error("coach must rank before system")
	}
	if got := Role("unknown").Rank(); got != RoleSystem.Rank() {
		t.Errorf("unknown roles rank as system, got %d", got)
	}
}
