package models

import "testing"

func buildConfig() *ShardConfiguration {
	cfg := NewShardConfiguration()
	cfg.Groups[RoleUser] = []ShardGroup{
		{Name: "users-0", Role: RoleUser, HashRangeStart: minInt32},
		{Name: "users-1", Role: RoleUser, HashRangeStart: 1000},
	}
	return cfg
}

func TestShardConfigurationOwner(t *testing.T) {
	cfg := buildConfig()

	g, ok := cfg.Owner(RoleUser, 500)
	if !ok || g.Name != "users-0" {
		t.Fatalf("Owner(500) = %+v, %v, want users-0", g, ok)
	}

	g, ok = cfg.Owner(RoleUser, 1000)
	if !ok || g.Name != "users-1" {
		t.Fatalf("Owner(1000) = %+v, %v, want users-1", g, ok)
	}

	if _, ok := cfg.Owner(RoleGroup, 0); ok {
		t.Fatal("expected no owner for a role with no groups")
	}
}

func TestShardConfigurationValidateRequiresMinCoverage(t *testing.T) {
	cfg := NewShardConfiguration()
	cfg.Groups[RoleUser] = []ShardGroup{{Name: "users-0", Role: RoleUser, HashRangeStart: 1000}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when no group covers Int32.MinValue")
	}

	cfg2 := buildConfig()
	if err := cfg2.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestShardConfigurationValidateGroupToGroupSingleton(t *testing.T) {
	cfg := NewShardConfiguration()
	cfg.Groups[RoleGroupToGroup] = []ShardGroup{
		{Name: "gg-0", Role: RoleGroupToGroup, HashRangeStart: minInt32},
		{Name: "gg-1", Role: RoleGroupToGroup, HashRangeStart: 0},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for non-singleton GroupToGroup")
	}
}

func TestShardConfigurationWithAddedGroupAdvancesGeneration(t *testing.T) {
	cfg := buildConfig()
	next := cfg.WithAddedGroup(RoleUser, ShardGroup{Name: "users-2", Role: RoleUser, HashRangeStart: 2000})

	if next.Generation != cfg.Generation+1 {
		t.Fatalf("Generation = %d, want %d", next.Generation, cfg.Generation+1)
	}
	if len(cfg.Groups[RoleUser]) != 2 {
		t.Fatal("original configuration must not be mutated")
	}
	if len(next.Groups[RoleUser]) != 3 {
		t.Fatalf("len(next groups) = %d, want 3", len(next.Groups[RoleUser]))
	}
}

func TestShardConfigurationWithRemovedGroup(t *testing.T) {
	cfg := buildConfig()
	next := cfg.WithRemovedGroup(RoleUser, "users-1")

	if len(next.Groups[RoleUser]) != 1 {
		t.Fatalf("len(next groups) = %d, want 1", len(next.Groups[RoleUser]))
	}
	if _, ok := next.Owner(RoleUser, 5000); !ok {
		t.Fatal("expected remaining group to absorb the removed range")
	}
}

func TestShardConfigurationRangeEnd(t *testing.T) {
	cfg := buildConfig()
	if end := cfg.RangeEnd(RoleUser, minInt32); end != 999 {
		t.Fatalf("RangeEnd(minInt32) = %d, want 999", end)
	}
	if end := cfg.RangeEnd(RoleUser, 1000); end != MaxHashRange {
		t.Fatalf("RangeEnd(1000) = %d, want MaxHashRange", end)
	}
}
