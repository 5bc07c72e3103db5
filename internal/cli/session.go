package cli

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/versity/ngnfs-go/internal/manifest"
	"github.com/versity/ngnfs-go/pkg/blockcache"
	"github.com/versity/ngnfs-go/pkg/devfile"
	"github.com/versity/ngnfs-go/pkg/fs"
	"github.com/versity/ngnfs-go/pkg/txn"
)

// The superblock lives in block 0 of the address space.
const (
	superBnr   = 0
	superMagic = 0x6e676e6673_7362 // "ngnfs" "sb"
)

// ErrBadSuper indicates block 0 does not carry a valid superblock.
var ErrBadSuper = errors.New("debugfs: bad superblock")

type superBlock struct {
	fsid        uuid.UUID
	totalBlocks uint64
}

func (sb *superBlock) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], superMagic)
	copy(buf[8:24], sb.fsid[:])
	binary.LittleEndian.PutUint64(buf[24:], sb.totalBlocks)
}

func decodeSuper(buf []byte) (*superBlock, error) {
	if binary.LittleEndian.Uint64(buf[0:]) != superMagic {
		return nil, ErrBadSuper
	}

	sb := &superBlock{
		totalBlocks: binary.LittleEndian.Uint64(buf[24:]),
	}
	copy(sb.fsid[:], buf[8:24])

	return sb, nil
}

// Session is one mounted filesystem instance: the manifest, its device
// pool, and a block cache over them. One-shot commands open a session
// around a single operation; the interactive shell keeps one for its
// lifetime.
type Session struct {
	fsys  fs.FS
	man   *manifest.Manifest
	cache *blockcache.Cache
	log   zerolog.Logger
}

// OpenSession loads the manifest and mounts the block cache over its
// devices.
func OpenSession(fsys fs.FS, manifestPath string, log zerolog.Logger) (*Session, error) {
	man, err := manifest.Load(fsys, manifestPath)
	if err != nil {
		return nil, err
	}

	return openWithManifest(fsys, man, log)
}

func openWithManifest(fsys fs.FS, man *manifest.Manifest, log zerolog.Logger) (*Session, error) {
	devs := make([]*devfile.Device, 0, len(man.Devices))

	for _, path := range man.Devices {
		dev, err := devfile.Open(fsys, path, devfile.Options{Log: &log})
		if err != nil {
			for _, open := range devs {
				open.Destroy()
			}

			return nil, err
		}

		devs = append(devs, dev)
	}

	set := devfile.NewSet(devs, func(bnr uint64) int {
		return int(bnr % uint64(len(devs)))
	})

	cache, err := blockcache.New(blockcache.Options{Transport: set, Log: &log})
	if err != nil {
		for _, open := range devs {
			open.Destroy()
		}

		return nil, err
	}

	return &Session{fsys: fsys, man: man, cache: cache, log: log}, nil
}

// Close syncs nothing; callers that modified blocks are expected to
// have synced. It tears down the cache and devices.
func (s *Session) Close() {
	s.cache.Destroy()
}

// Mkfs creates the device files sized for totalBlocks, saves the
// manifest, and writes the superblock.
func Mkfs(fsys fs.FS, manifestPath string, devices []string, totalBlocks uint64, log zerolog.Logger) (*manifest.Manifest, error) {
	man, err := manifest.New(totalBlocks, devices)
	if err != nil {
		return nil, err
	}

	for _, path := range devices {
		dev, err := devfile.Open(fsys, path, devfile.Options{Log: &log})
		if err != nil {
			return nil, err
		}

		err = dev.Truncate((totalBlocks + uint64(len(devices)) - 1) / uint64(len(devices)))
		dev.Destroy()

		if err != nil {
			return nil, fmt.Errorf("sizing device %s: %w", path, err)
		}
	}

	if err := man.Save(manifestPath); err != nil {
		return nil, err
	}

	sess, err := openWithManifest(fsys, man, log)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	sb := &superBlock{fsid: man.FSID, totalBlocks: totalBlocks}

	t := txn.New(sess.cache)
	defer t.Destroy()

	t.AddBlock(superBnr, blockcache.ModeNew|blockcache.ModeWrite, nil,
		func(_ *txn.Txn, bl *blockcache.Block, _ any) {
			sb.encode(bl.Buf())
		}, nil)

	if err := t.Execute(); err != nil {
		return nil, fmt.Errorf("writing superblock: %w", err)
	}

	if err := sess.cache.Sync(); err != nil {
		return nil, fmt.Errorf("final sync: %w", err)
	}

	return man, nil
}

// ReadSuper reads and validates the superblock.
func (s *Session) ReadSuper() (*superBlock, error) {
	buf, err := s.ReadBlock(superBnr)
	if err != nil {
		return nil, err
	}

	return decodeSuper(buf)
}

// ReadBlock returns a copy of block bnr's contents.
func (s *Session) ReadBlock(bnr uint64) ([]byte, error) {
	bl, err := s.cache.Get(bnr, blockcache.ModeRead)
	if err != nil {
		return nil, err
	}
	defer s.cache.Put(bl)

	out := make([]byte, blockcache.BlockSize)
	copy(out, bl.Buf())

	return out, nil
}

// FillBlocks overwrites count blocks starting at start with val, in
// one transaction per chunk so each chunk is written atomically.
func (s *Session) FillBlocks(start, count uint64, val byte) error {
	const chunk = 16

	for done := uint64(0); done < count; {
		t := txn.New(s.cache)

		n := min(count-done, chunk)
		for i := uint64(0); i < n; i++ {
			t.AddBlock(start+done+i, blockcache.ModeNew|blockcache.ModeWrite, nil,
				func(_ *txn.Txn, bl *blockcache.Block, _ any) {
					buf := bl.Buf()
					for j := range buf {
						buf[j] = val
					}
				}, nil)
		}

		err := t.Execute()
		t.Destroy()

		if err != nil {
			return err
		}

		done += n
	}

	return nil
}

// Sync flushes everything dirtied so far.
func (s *Session) Sync() error {
	return s.cache.Sync()
}

// Stats returns the cache pipeline counters.
func (s *Session) Stats() blockcache.Stats {
	return s.cache.Stats()
}

// Manifest returns the mounted manifest.
func (s *Session) Manifest() *manifest.Manifest {
	return s.man
}
