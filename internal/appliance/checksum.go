// SPDX-License-Identifier: MIT

package appliance

import (
	"crypto/md5" // #nosec G501 -- descriptor format mandates md5 checksums
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// ChecksumCache memoizes image digests on disk. Appliance images run to
// multiple gigabytes, so a digest is computed once and reused for as long
// as the file's size and mtime stay the same.
type ChecksumCache struct {
	db *badger.DB
}

// OpenChecksumCache opens (or creates) the cache at path.
func OpenChecksumCache(path string) (*ChecksumCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ChecksumCache{db: db}, nil
}

func (c *ChecksumCache) Close() error { return c.db.Close() }

// MD5 returns the hex md5 digest of the file at path.
func (c *ChecksumCache) MD5(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	key := []byte(fmt.Sprintf("md5:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano()))

	var cached string
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			cached = string(val)
			return nil
		})
	})
	if err == nil {
		checksumCacheHits.Inc()
		return cached, nil
	}
	if err != badger.ErrKeyNotFound {
		return "", err
	}
	checksumCacheMisses.Inc()

	digest, err := fileMD5(path)
	if err != nil {
		return "", err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(digest))
	})
	if err != nil {
		return "", err
	}
	return digest, nil
}

// VerifyImage checks a local copy of an image against the descriptor's
// checksum and size. A missing file is reported as not available, not as
// an error.
func (c *ChecksumCache) VerifyImage(dir string, img Image) (available bool, err error) {
	path := filepath.Join(dir, img.Filename)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Size() != img.Filesize {
		return false, fmt.Errorf("image %s has size %d, expected %d", img.Filename, info.Size(), img.Filesize)
	}
	digest, err := c.MD5(path)
	if err != nil {
		return false, err
	}
	if digest != img.MD5Sum {
		return false, fmt.Errorf("image %s has md5 %s, expected %s", img.Filename, digest, img.MD5Sum)
	}
	return true, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the configured images dir
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New() // #nosec G401
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
