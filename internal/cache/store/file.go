package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// On-disk layout: "IPKC" + version byte, then records of
// [u32 payload length][u32 crc32c of payload][msgpack record].
const (
	fileMagic         = "IPKC"
	fileFormatVersion = byte(1)
	fileHeaderSize    = len(fileMagic) + 1
	recordHeaderSize  = 8
	maxRecordSize     = 1 << 30
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store is closed")

// ErrLocked is returned when another FileStore, in this or another process, holds the log
var ErrLocked = errors.New("cache file is in use by another process")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type record struct {
	Key       string    `msgpack:"key"`
	Value     []byte    `msgpack:"value"`
	WrittenAt time.Time `msgpack:"written_at"`
}

type recordRef struct {
	offset int64
	length int64
}

type keyedRef struct {
	key string
	ref recordRef
}

// FileOptions tunes a FileStore
type FileOptions struct {
	// SyncWrites fsyncs after every Put
	SyncWrites bool
}

// FileStore is a single append-only log file indexed in memory.
// Every Put is one write of one complete record, so a crash leaves at most one torn record at the
// end of the file, which the next open cuts away.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	opts   FileOptions
	f      *os.File
	lock   *flock.Flock
	index  map[string]recordRef
	end    int64
	closed bool
}

// OpenFileStore opens or creates the log at path and replays it into the index
func OpenFileStore(path string, opts FileOptions) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}

	// The lock lives in a sidecar file because compaction replaces the log's inode
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	if !locked {
		return nil, &StoreError{Op: "open", Path: path, Err: ErrLocked}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		_ = lock.Unlock()
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}

	s := &FileStore{path: path, opts: opts, f: f, lock: lock, index: make(map[string]recordRef)}
	if err := s.load(); err != nil {
		_ = f.Close()
		_ = lock.Unlock()
		return nil, err
	}

	log.Debug().
		Str("path", path).
		Int("entries", len(s.index)).
		Int64("bytes", s.end).
		Msg("Opened cache store")

	return s, nil
}

func (s *FileStore) load() error {
	info, err := s.f.Stat()
	if err != nil {
		return &StoreError{Op: "open", Path: s.path, Err: err}
	}

	if info.Size() == 0 {
		header := append([]byte(fileMagic), fileFormatVersion)
		if _, err := s.f.WriteAt(header, 0); err != nil {
			return &StoreError{Op: "open", Path: s.path, Err: err}
		}
		if err := s.f.Sync(); err != nil {
			return &StoreError{Op: "open", Path: s.path, Err: err}
		}
		s.end = int64(fileHeaderSize)
		return nil
	}

	return s.replay(info.Size())
}

func (s *FileStore) replay(size int64) error {
	r := bufio.NewReaderSize(io.NewSectionReader(s.f, 0, size), 64<<10)

	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return &StoreError{Op: "open", Path: s.path, Err: fmt.Errorf("short file header: %w", err)}
	}
	if string(header[:len(fileMagic)]) != fileMagic {
		return &StoreError{Op: "open", Path: s.path, Err: errors.New("not an inspectpack cache file")}
	}
	if v := header[len(fileMagic)]; v != fileFormatVersion {
		return &StoreError{Op: "open", Path: s.path, Err: fmt.Errorf("unsupported format version %d", v)}
	}

	off := int64(fileHeaderSize)
	var hdr [recordHeaderSize]byte
	for off < size {
		remaining := size - off
		if remaining < recordHeaderSize {
			return s.dropTail(off, "short record header")
		}
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return &StoreError{Op: "open", Path: s.path, Err: err}
		}

		n := int64(binary.BigEndian.Uint32(hdr[0:4]))
		sum := binary.BigEndian.Uint32(hdr[4:8])
		if n > remaining-recordHeaderSize {
			return s.dropTail(off, "record extends past end of file")
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return &StoreError{Op: "open", Path: s.path, Err: err}
		}

		rec, err := decodeRecord(payload, sum)
		if err != nil {
			torn, zerr := s.isTornTail(off, size, recordHeaderSize+n)
			if zerr != nil {
				return &StoreError{Op: "open", Path: s.path, Err: zerr}
			}
			if torn {
				return s.dropTail(off, err.Error())
			}
			return &StoreError{Op: "open", Path: s.path, Err: fmt.Errorf("corrupt record at offset %d: %w", off, err)}
		}

		s.index[rec.Key] = recordRef{offset: off, length: recordHeaderSize + n}
		off += recordHeaderSize + n
	}

	s.end = off
	return nil
}

// isTornTail reports whether a bad record at off is the last thing in the file, allowing for
// filesystems that zero-fill the unwritten part of an extended file
func (s *FileStore) isTornTail(off, size, length int64) (bool, error) {
	if off+length == size {
		return true, nil
	}
	rest := make([]byte, size-off-length)
	if _, err := s.f.ReadAt(rest, off+length); err != nil {
		return false, err
	}
	return len(bytes.Trim(rest, "\x00")) == 0, nil
}

func (s *FileStore) dropTail(off int64, reason string) error {
	log.Warn().
		Str("path", s.path).
		Int64("offset", off).
		Str("reason", reason).
		Msg("Truncating incomplete record at end of cache store")

	if err := s.f.Truncate(off); err != nil {
		return &StoreError{Op: "open", Path: s.path, Err: err}
	}
	if err := s.f.Sync(); err != nil {
		return &StoreError{Op: "open", Path: s.path, Err: err}
	}
	s.end = off
	return nil
}

func decodeRecord(payload []byte, sum uint32) (*record, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty record")
	}
	if crc32.Checksum(payload, crcTable) != sum {
		return nil, errors.New("checksum mismatch")
	}
	var rec record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func encodeRecord(key string, value []byte) ([]byte, error) {
	payload, err := msgpack.Marshal(&record{Key: key, Value: value, WrittenAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	if len(payload) > maxRecordSize {
		return nil, fmt.Errorf("record of %d bytes exceeds limit of %d", len(payload), maxRecordSize)
	}

	buf := make([]byte, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[4:8], crc32.Checksum(payload, crcTable))
	copy(buf[recordHeaderSize:], payload)
	return buf, nil
}

// Get returns the latest value written for key
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, &StoreError{Op: "get", Path: s.path, Err: ErrClosed}
	}
	ref, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, ref.length)
	if _, err := s.f.ReadAt(buf, ref.offset); err != nil {
		return nil, false, &StoreError{Op: "get", Path: s.path, Err: err}
	}
	rec, err := decodeRecord(buf[recordHeaderSize:], binary.BigEndian.Uint32(buf[4:8]))
	if err != nil {
		return nil, false, &StoreError{Op: "get", Path: s.path, Err: fmt.Errorf("record at offset %d: %w", ref.offset, err)}
	}
	return rec.Value, true, nil
}

// Put appends a record for key. A failed write is cut back off the log before returning.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := encodeRecord(key, value)
	if err != nil {
		return &StoreError{Op: "put", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &StoreError{Op: "put", Path: s.path, Err: ErrClosed}
	}

	if _, err := s.f.WriteAt(buf, s.end); err != nil {
		_ = s.f.Truncate(s.end)
		return &StoreError{Op: "put", Path: s.path, Err: err}
	}
	if s.opts.SyncWrites {
		if err := s.f.Sync(); err != nil {
			_ = s.f.Truncate(s.end)
			return &StoreError{Op: "put", Path: s.path, Err: err}
		}
	}

	s.index[key] = recordRef{offset: s.end, length: int64(len(buf))}
	s.end += int64(len(buf))
	return nil
}

// Len returns the number of live keys
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Size returns the current length of the log in bytes
func (s *FileStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.end
}

// Path returns the log file location
func (s *FileStore) Path() string {
	return s.path
}

// Compact rewrites the live records into a fresh log and renames it over the old one
func (s *FileStore) Compact(ctx context.Context) (CompactStats, error) {
	if err := ctx.Err(); err != nil {
		return CompactStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return CompactStats{}, &StoreError{Op: "compact", Path: s.path, Err: ErrClosed}
	}

	before := s.end
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".compact-*")
	if err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	refs := make([]keyedRef, 0, len(s.index))
	for k, r := range s.index {
		refs = append(refs, keyedRef{key: k, ref: r})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ref.offset < refs[j].ref.offset })

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(append([]byte(fileMagic), fileFormatVersion)); err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: tmpName, Err: err}
	}

	index := make(map[string]recordRef, len(refs))
	off := int64(fileHeaderSize)
	for _, e := range refs {
		buf := make([]byte, e.ref.length)
		if _, err := s.f.ReadAt(buf, e.ref.offset); err != nil {
			return CompactStats{}, &StoreError{Op: "compact", Path: s.path, Err: err}
		}
		if _, err := w.Write(buf); err != nil {
			return CompactStats{}, &StoreError{Op: "compact", Path: tmpName, Err: err}
		}
		index[e.key] = recordRef{offset: off, length: e.ref.length}
		off += e.ref.length
	}

	if err := w.Flush(); err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return CompactStats{}, &StoreError{Op: "compact", Path: s.path, Err: err}
	}
	committed = true
	syncDir(dir)

	f, err := os.OpenFile(s.path, os.O_RDWR, 0600)
	if err != nil {
		s.closed = true
		_ = s.f.Close()
		_ = s.lock.Unlock()
		return CompactStats{}, &StoreError{Op: "compact", Path: s.path, Err: err}
	}
	_ = s.f.Close()
	s.f = f
	s.index = index
	s.end = off

	stats := CompactStats{Entries: len(index), BytesBefore: before, BytesAfter: off}
	log.Info().
		Str("path", s.path).
		Int("entries", stats.Entries).
		Int64("bytes_before", stats.BytesBefore).
		Int64("bytes_after", stats.BytesAfter).
		Msg("Compacted cache store")

	return stats, nil
}

// Close flushes and closes the log
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	defer func() { _ = s.lock.Unlock() }()

	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return &StoreError{Op: "close", Path: s.path, Err: err}
	}
	if err := s.f.Close(); err != nil {
		return &StoreError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// syncDir makes a rename durable; not every platform can fsync a directory
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer func() { _ = d.Close() }()
	_ = d.Sync()
}
