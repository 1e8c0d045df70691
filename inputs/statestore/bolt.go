// Package statestore persists container endpoint assignments across agent
// restarts.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/log"
)

// Layout:
//
//  bucket(v1.containers.<id>) ->
//			endpoint (JSON host/port)
var (
	bucketKeyStorageVersion = []byte("v1")
	bucketKeyContainers     = []byte("containers")
	bucketKeyEndpoint       = []byte("endpoint")
)

// Cache is a bolt-backed inputs.StateCache. Records live in nested buckets
// under a version key so the layout can evolve without migrations guessing
// at what they are looking at.
type Cache struct {
	db   *bolt.DB
	path string
}

var _ inputs.StateCache = (*Cache)(nil)

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "creating state directory")
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening state cache %s", path)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyContainers)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing state cache")
	}

	return &Cache{db: db, path: path}, nil
}

// GetContainers returns a snapshot of every persisted assignment. Records
// that fail to decode are skipped and logged rather than failing the whole
// read.
func (c *Cache) GetContainers() map[inputs.ContainerID]inputs.UDPEndpoint {
	containers := make(map[inputs.ContainerID]inputs.UDPEndpoint)

	if err := c.db.View(func(tx *bolt.Tx) error {
		bkt := getContainersBucket(tx)
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(k, v []byte) error {
			cbkt := bkt.Bucket(k)
			if cbkt == nil {
				return nil
			}

			var endpoint inputs.UDPEndpoint
			if err := json.Unmarshal(cbkt.Get(bucketKeyEndpoint), &endpoint); err != nil {
				log.L.WithError(err).WithField("container.id", string(k)).
					Error("skipping undecodable endpoint record")
				return nil
			}

			containers[inputs.ContainerID(k)] = endpoint
			return nil
		})
	}); err != nil {
		log.L.WithError(err).Errorf("error reading state cache %s", c.path)
	}

	return containers
}

// AddContainer persists one assignment, replacing any previous record.
func (c *Cache) AddContainer(id inputs.ContainerID, endpoint inputs.UDPEndpoint) error {
	p, err := json.Marshal(endpoint)
	if err != nil {
		return errors.Wrap(err, "encoding endpoint")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		return withCreateContainerBucketIfNotExists(tx, id, func(bkt *bolt.Bucket) error {
			return bkt.Put(bucketKeyEndpoint, p)
		})
	})
}

// RemoveContainer deletes the record for id. Unknown containers are a
// no-op.
func (c *Cache) RemoveContainer(id inputs.ContainerID) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bkt := getContainersBucket(tx)
		if bkt == nil || bkt.Bucket([]byte(id)) == nil {
			return nil
		}

		return bkt.DeleteBucket([]byte(id))
	})
}

// Path reports the database file backing the cache.
func (c *Cache) Path() string {
	return c.path
}

// Close releases the database file lock.
func (c *Cache) Close() error {
	return c.db.Close()
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, err
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, err
		}
	}

	return bkt, nil
}

func withCreateContainerBucketIfNotExists(tx *bolt.Tx, id inputs.ContainerID, fn func(bkt *bolt.Bucket) error) error {
	bkt, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyContainers, []byte(id))
	if err != nil {
		return err
	}

	return fn(bkt)
}

func getContainersBucket(tx *bolt.Tx) *bolt.Bucket {
	return getBucket(tx, bucketKeyStorageVersion, bucketKeyContainers)
}

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			break
		}
		bkt = bkt.Bucket(key)
	}

	return bkt
}
