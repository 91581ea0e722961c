package adapters

import (
	"encoding/json"
	"fmt"
	"time"

	"mobilus-to-mqtt/application"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConfigEntries = []byte("config_entries")

	ErrConfigEntryNotFound = fmt.Errorf("config entry not found")
)

// storedConfigEntry keeps entry data as a raw map so that migrations can tell
// a missing key from a zero value.
type storedConfigEntry struct {
	Version int            `json:"version"`
	Data    map[string]any `json:"data"`
}

type BoltConfigStoreParams struct {
	Path string

	Log zerolog.Logger
}

// BoltConfigStore persists gateway config entries in BoltDB.
type BoltConfigStore struct {
	db *bolt.DB

	log zerolog.Logger
}

func NewBoltConfigStore(params BoltConfigStoreParams) (*BoltConfigStore, error) {
	db, err := bolt.Open(params.Path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConfigEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltConfigStore{db: db, log: params.Log}, nil
}

// LoadConfigEntry reads an entry and migrates it to the current version,
// writing the migrated form back.
func (s *BoltConfigStore) LoadConfigEntry(id string) (application.ConfigEntry, error) {
	var entry application.ConfigEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigEntries)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s: %w", id, ErrConfigEntryNotFound)
		}

		var stored storedConfigEntry
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("decode config entry %s: %w", id, err)
		}
		if stored.Data == nil {
			stored.Data = map[string]any{}
		}

		fromVersion := stored.Version
		version, migrated, err := application.MigrateConfigEntry(stored.Version, stored.Data)
		if err != nil {
			return err
		}
		stored.Version = version

		if migrated {
			s.log.Info().Str("entry", id).Int("from", fromVersion).Int("to", version).Msg("config entry migrated")
			raw, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), raw); err != nil {
				return err
			}
		}

		entry, err = configEntryFromStored(stored)
		return err
	})
	if err != nil {
		return application.ConfigEntry{}, err
	}
	return entry, nil
}

func (s *BoltConfigStore) SaveConfigEntry(id string, entry application.ConfigEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	stored := storedConfigEntry{
		Version: application.ConfigEntryVersion,
		Data: map[string]any{
			application.ConfigKeyHost:            entry.Host,
			application.ConfigKeyUsername:        entry.Username,
			application.ConfigKeyPassword:        entry.Password,
			application.ConfigKeyRefreshInterval: entry.RefreshInterval,
		},
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigEntries).Put([]byte(id), raw)
	})
}

func (s *BoltConfigStore) DeleteConfigEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigEntries).Delete([]byte(id))
	})
}

func (s *BoltConfigStore) Close() error {
	return s.db.Close()
}

func configEntryFromStored(stored storedConfigEntry) (application.ConfigEntry, error) {
	// round-trip through JSON to get the typed view of the data map
	raw, err := json.Marshal(stored.Data)
	if err != nil {
		return application.ConfigEntry{}, err
	}
	var entry application.ConfigEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return application.ConfigEntry{}, fmt.Errorf("decode config entry data: %w", err)
	}
	entry.Version = stored.Version
	return entry, nil
}

var _ application.ConfigEntryStore = &BoltConfigStore{}
