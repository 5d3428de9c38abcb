// Package instancemgr implements the Instance Manager of §4.10: it
// creates and destroys shard groups' persistent storage instances from
// a scripted template (persist.EventsSchemaSQL, the same schema the
// Bulk Persister runs against), renames them, and persists the current
// models.ShardConfiguration as its sole durable state. Every mutating
// operation is idempotent by instance name, matching §4.10's "all
// mutating operations are idempotent by instance name."
//
// Manager's ProvisionShardGroup/DecommissionShardGroup and
// Publish/Current methods satisfy shard.Provisioner and
// shard.ConfigPublisher structurally, so the Split/Merge Orchestrator
// can be wired straight to a Manager without instancemgr importing the
// shard package.
package instancemgr

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/persist"
)

// Manager owns one metadata database (instance registry + the durable
// ShardConfiguration) plus one SQLite file per provisioned instance,
// all rooted under dataDir.
type Manager struct {
	mu      sync.Mutex
	dataDir string
	meta    *sql.DB
}

const metaSchemaSQL = `
CREATE TABLE IF NOT EXISTS instances (
	name             TEXT PRIMARY KEY,
	role             TEXT NOT NULL,
	hash_range_start INTEGER NOT NULL,
	path             TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS shard_configuration (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	generation INTEGER NOT NULL,
	data       BLOB NOT NULL
);
`

// New opens (creating if necessary) the metadata database at
// dataDir/instances.db.
func New(dataDir string) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, models.Wrap(models.CodeArgument, err, "creating instance manager data directory")
	}
	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "instances.db"))
	if err != nil {
		return nil, models.Wrap(models.CodeArgument, err, "opening instance metadata database")
	}
	if _, err := db.Exec(metaSchemaSQL); err != nil {
		db.Close()
		return nil, models.Wrap(models.CodeArgument, err, "creating instance metadata schema")
	}
	return &Manager{dataDir: dataDir, meta: db}, nil
}

// Close closes the metadata database handle.
func (m *Manager) Close() error {
	return m.meta.Close()
}

func (m *Manager) instancePath(name string) string {
	return filepath.Join(m.dataDir, "instances", name+".db")
}

// CreateInstance provisions a new SQLite-backed storage instance named
// name for role at hashRangeStart, running EventsSchemaSQL against it
// (§4.10's "scripted templates"). Calling CreateInstance again with the
// same name is a no-op that returns the existing instance's path,
// satisfying §4.10's idempotence requirement.
func (m *Manager) CreateInstance(role models.Role, name string, hashRangeStart int32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path, ok, err := m.lookupLocked(name); err != nil {
		return "", err
	} else if ok {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(m.instancePath(name)), 0755); err != nil {
		return "", models.Wrap(models.CodeArgument, err, "creating instance storage directory")
	}
	path := m.instancePath(name)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", models.Wrap(models.CodeArgument, err, "opening new instance database")
	}
	if _, err := db.Exec(persist.EventsSchemaSQL); err != nil {
		db.Close()
		return "", models.Wrap(models.CodeArgument, err, "scripting new instance schema")
	}
	db.Close()

	if _, err := m.meta.Exec(
		"INSERT INTO instances (name, role, hash_range_start, path) VALUES (?, ?, ?, ?)",
		name, string(role), hashRangeStart, path,
	); err != nil {
		return "", models.Wrap(models.CodeArgument, err, "registering new instance")
	}
	logger.Info("[InstanceManager] created instance %q for role %s at hashRangeStart=%d", name, role, hashRangeStart)
	return path, nil
}

// RenameInstance renames an existing instance, moving its backing
// SQLite file. Grounded on §4.10's "single-user-mode ALTER on SQL": the
// teacher's SQL Server backend takes the database offline
// (ALTER DATABASE ... SET SINGLE_USER) before the rename; the SQLite
// equivalent of exclusive access is simply holding Manager's mutex
// across the close-free file move, since SQLitePersister callers are
// expected to have already released their handle on the instance being
// renamed. Renaming to a name that already maps to the same path is a
// no-op.
func (m *Manager) RenameInstance(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldPath, ok, err := m.lookupLocked(oldName)
	if err != nil {
		return err
	}
	if !ok {
		if _, newOK, lookupErr := m.lookupLocked(newName); lookupErr == nil && newOK {
			return nil // already renamed; idempotent retry
		}
		return models.NewError(models.CodeNotFound, "instance not found", models.Attr("name", oldName))
	}

	newPath := m.instancePath(newName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return models.Wrap(models.CodeArgument, err, "renaming instance file")
	}
	if _, err := m.meta.Exec("UPDATE instances SET name = ?, path = ? WHERE name = ?", newName, newPath, oldName); err != nil {
		return models.Wrap(models.CodeArgument, err, "updating instance registry after rename")
	}
	logger.Info("[InstanceManager] renamed instance %q to %q", oldName, newName)
	return nil
}

// DeleteInstance removes an instance's backing file and registry
// row. Deleting a name that no longer exists is a no-op (§4.10
// idempotence).
func (m *Manager) DeleteInstance(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, ok, err := m.lookupLocked(name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return models.Wrap(models.CodeArgument, err, "removing instance file")
	}
	if _, err := m.meta.Exec("DELETE FROM instances WHERE name = ?", name); err != nil {
		return models.Wrap(models.CodeArgument, err, "removing instance registry row")
	}
	logger.Info("[InstanceManager] deleted instance %q", name)
	return nil
}

func (m *Manager) lookupLocked(name string) (string, bool, error) {
	var path string
	err := m.meta.QueryRow("SELECT path FROM instances WHERE name = ?", name).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, models.Wrap(models.CodeArgument, err, "looking up instance")
	}
	return path, true, nil
}

// ProvisionShardGroup creates a storage instance for a brand-new shard
// group and returns the models.ShardGroup record describing it, ready
// to be published into a ShardConfiguration (§4.9 state 1, Provision).
// Endpoint naming is a local convention — wire/RPC framing for those
// endpoints is out of scope (§1) — but is stable and derived solely
// from name, so re-provisioning an already-created group returns an
// identical ShardGroup.
func (m *Manager) ProvisionShardGroup(role models.Role, name string, hashRangeStart int32) (models.ShardGroup, error) {
	path, err := m.CreateInstance(role, name, hashRangeStart)
	if err != nil {
		return models.ShardGroup{}, err
	}
	return models.ShardGroup{
		Name:            name,
		Role:            role,
		HashRangeStart:  hashRangeStart,
		WriterEndpoint:  name + ":writer",
		ReaderEndpoints: []string{name + ":reader"},
		StorageDSN:      path,
	}, nil
}

// DecommissionShardGroup deletes a shard group's storage instance
// (§4.9 state 9, TeardownOrKeep — the "full merge" case that retires the
// absorbed group).
func (m *Manager) DecommissionShardGroup(group models.ShardGroup) error {
	return m.DeleteInstance(group.Name)
}

// Publish persists cfg as the current ShardConfiguration (§4.9 state 6,
// Cutover) and is the Instance Manager's sole durable state per §4.10.
// It refuses to publish a configuration older than (or equal to) the one
// already stored, since Cutover must always move the generation
// counter forward.
func (m *Manager) Publish(cfg *models.ShardConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return models.Wrap(models.CodeArgument, err, "marshalling shard configuration")
	}

	var currentGen int64
	err = m.meta.QueryRow("SELECT generation FROM shard_configuration WHERE id = 1").Scan(&currentGen)
	if err != nil && err != sql.ErrNoRows {
		return models.Wrap(models.CodeArgument, err, "reading current shard configuration generation")
	}
	if err == nil && int64(cfg.Generation) <= currentGen {
		return models.NewError(models.CodeArgument, fmt.Sprintf("refusing to publish stale generation %d (current %d)", cfg.Generation, currentGen))
	}

	if _, err := m.meta.Exec(
		"INSERT INTO shard_configuration (id, generation, data) VALUES (1, ?, ?) ON CONFLICT(id) DO UPDATE SET generation = excluded.generation, data = excluded.data",
		cfg.Generation, data,
	); err != nil {
		return models.Wrap(models.CodeArgument, err, "persisting shard configuration")
	}
	logger.Info("[InstanceManager] published shard configuration generation %d", cfg.Generation)
	return nil
}

// Current loads the durably stored ShardConfiguration, or an empty
// configuration at generation 0 if none has ever been published.
func (m *Manager) Current() *models.ShardConfiguration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data []byte
	err := m.meta.QueryRow("SELECT data FROM shard_configuration WHERE id = 1").Scan(&data)
	if err != nil {
		return models.NewShardConfiguration()
	}
	cfg := models.NewShardConfiguration()
	if err := json.Unmarshal(data, cfg); err != nil {
		logger.Error("[InstanceManager] corrupt stored shard configuration: %v", err)
		return models.NewShardConfiguration()
	}
	return cfg
}
