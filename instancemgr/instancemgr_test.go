package instancemgr

import (
	"os"
	"path/filepath"
	"testing"

	"accessplane/models"
)

func TestCreateInstanceIsIdempotent(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	path1, err := m.CreateInstance(models.RoleUser, "users-0", -2147483648)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if _, err := os.Stat(path1); err != nil {
		t.Fatalf("expected instance file to exist: %v", err)
	}

	path2, err := m.CreateInstance(models.RoleUser, "users-0", -2147483648)
	if err != nil {
		t.Fatalf("second CreateInstance: %v", err)
	}
	if path1 != path2 {
		t.Fatalf("expected idempotent create to return the same path, got %q and %q", path1, path2)
	}
}

func TestRenameInstanceMovesFileAndIsIdempotent(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	oldPath, err := m.CreateInstance(models.RoleUser, "users-0", -2147483648)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	if err := m.RenameInstance("users-0", "users-0-renamed"); err != nil {
		t.Fatalf("RenameInstance: %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old path to be gone, got err=%v", err)
	}
	newPath, ok, err := m.lookupLocked("users-0-renamed")
	if err != nil || !ok {
		t.Fatalf("expected renamed instance to be registered, ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected new path to exist: %v", err)
	}

	// Idempotent retry: renaming the already-renamed instance again by
	// its old name is a no-op, not a NotFound error.
	if err := m.RenameInstance("users-0", "users-0-renamed"); err != nil {
		t.Fatalf("idempotent RenameInstance: %v", err)
	}
}

func TestDeleteInstanceIsIdempotent(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	path, err := m.CreateInstance(models.RoleGroup, "groups-0", -2147483648)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if err := m.DeleteInstance("groups-0"); err != nil {
		t.Fatalf("DeleteInstance: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected instance file removed, got err=%v", err)
	}
	if err := m.DeleteInstance("groups-0"); err != nil {
		t.Fatalf("idempotent DeleteInstance: %v", err)
	}
}

func TestProvisionShardGroupAndPublishRoundTrip(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	group, err := m.ProvisionShardGroup(models.RoleUser, "users-0", -2147483648)
	if err != nil {
		t.Fatalf("ProvisionShardGroup: %v", err)
	}
	if group.WriterEndpoint != "users-0:writer" {
		t.Fatalf("unexpected writer endpoint %q", group.WriterEndpoint)
	}

	cfg := m.Current()
	next := cfg.WithAddedGroup(models.RoleUser, group)
	if err := m.Publish(next); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	reloaded := m.Current()
	if reloaded.Generation != next.Generation {
		t.Fatalf("Generation = %d, want %d", reloaded.Generation, next.Generation)
	}
	if len(reloaded.Groups[models.RoleUser]) != 1 || reloaded.Groups[models.RoleUser][0].Name != "users-0" {
		t.Fatalf("unexpected reloaded groups: %+v", reloaded.Groups[models.RoleUser])
	}

	if err := m.Publish(cfg); err == nil {
		t.Fatal("expected publishing a stale generation to fail")
	}
}

func TestDecommissionShardGroupDeletesInstance(t *testing.T) {
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	group, err := m.ProvisionShardGroup(models.RoleGroup, "groups-1", 0)
	if err != nil {
		t.Fatalf("ProvisionShardGroup: %v", err)
	}
	if err := m.DecommissionShardGroup(group); err != nil {
		t.Fatalf("DecommissionShardGroup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.dataDir, "instances", "groups-1.db")); !os.IsNotExist(err) {
		t.Fatalf("expected decommissioned instance file removed, got err=%v", err)
	}
}
