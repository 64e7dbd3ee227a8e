package planner

import "testing"

func TestDeriveAlias(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"Users", "us"},
		{"tbl_Daily_actions", "daac"},
		{"tbl_Daily_actions_players", "daac"},
		{"dim_Country", "co"},
		{"fact_Game_rounds", "garo"},
		{"Transactions", "tr"},
		{"t", "t"},
		{"tbl_", "t"},
	}
	for _, tt := range tests {
		if got := deriveAlias(tt.table); got != tt.want {
			t.Errorf("deriveAlias(%q) = %q, want %q", tt.table, got, tt.want)
		}
	}
}

func TestAliasAllocatorCollision(t *testing.T) {
	a := NewAliasAllocator()

	first := a.Alias("tbl_Daily_actions")
	second := a.Alias("tbl_Daily_actions_players")

	if first != "daac" {
		t.Errorf("first alias = %q, want daac", first)
	}
	if second != "daac1" {
		t.Errorf("second alias = %q, want daac1", second)
	}
}

func TestAliasAllocatorStable(t *testing.T) {
	a := NewAliasAllocator()
	if a.Alias("Transactions") != a.Alias("Transactions") {
		t.Error("repeated calls must return the same alias")
	}
	if a.Alias("transactions") != a.Alias("Transactions") {
		t.Error("alias lookup must be case-insensitive")
	}
}

func TestAliasesUniquePerInput(t *testing.T) {
	tables := []string{"tbl_Daily_actions", "tbl_Daily_actions_players", "Users", "Countries"}

	a := NewAliasAllocator()
	for _, table := range tables {
		a.Alias(table)
	}

	aliases := a.Aliases(tables)
	if len(aliases) != len(tables) {
		t.Fatalf("alias map has %d entries, want %d", len(aliases), len(tables))
	}
	seen := make(map[string]string)
	for table, alias := range aliases {
		if prev, dup := seen[alias]; dup {
			t.Errorf("alias %q assigned to both %s and %s", alias, prev, table)
		}
		seen[alias] = table
	}
}
