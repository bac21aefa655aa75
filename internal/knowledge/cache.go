package knowledge

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Cache file layout, little endian:
//
//	magic "GTKI" | version u32 | fingerprint [32]byte | model len u32 | model
//	| rows u32 | dim u32 | rows*dim float32 (raw, not normalised)
const (
	cacheMagic   = "GTKI"
	cacheVersion = uint32(1)
	maxModelLen  = 1 << 10
	maxDim       = 1 << 16
)

var errCorruptCache = errors.New("corrupt knowledge index cache")

func writeCache(path string, index *Index, vectors [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fingerprint, err := hex.DecodeString(index.fingerprint)
	if err != nil || len(fingerprint) != sha256Size {
		return fmt.Errorf("invalid fingerprint %q", index.fingerprint)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".kb_embeddings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	header := []any{
		[]byte(cacheMagic),
		cacheVersion,
		fingerprint,
		uint32(len(index.model)),
		[]byte(index.model),
		uint32(index.n),
		uint32(index.dim),
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	for _, vector := range vectors {
		if err := binary.Write(w, binary.LittleEndian, vector); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

const sha256Size = 32

// readCache loads the index at path. wantRows is the knowledge base size; a
// header disagreeing with it or with the file length is rejected before any
// vector memory is allocated.
func readCache(path string, wantRows int) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return decodeCache(bufio.NewReader(file), wantRows, info.Size())
}

func decodeCache(r io.Reader, wantRows int, size int64) (*Index, error) {
	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != cacheMagic {
		return nil, errCorruptCache
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != cacheVersion {
		return nil, fmt.Errorf("%w: unsupported version", errCorruptCache)
	}
	fingerprint := make([]byte, sha256Size)
	if _, err := io.ReadFull(r, fingerprint); err != nil {
		return nil, errCorruptCache
	}
	var modelLen uint32
	if err := binary.Read(r, binary.LittleEndian, &modelLen); err != nil || modelLen > maxModelLen {
		return nil, errCorruptCache
	}
	model := make([]byte, modelLen)
	if _, err := io.ReadFull(r, model); err != nil {
		return nil, errCorruptCache
	}
	var rows, dim uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, errCorruptCache
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, errCorruptCache
	}
	if rows == 0 || dim == 0 || dim > maxDim || uint64(rows)*uint64(dim) > math.MaxInt32 {
		return nil, errCorruptCache
	}
	if int(rows) != wantRows {
		return nil, fmt.Errorf("%w: %d rows, knowledge base has %d", errCorruptCache, rows, wantRows)
	}
	header := int64(len(cacheMagic)) + 4 + sha256Size + 4 + int64(modelLen) + 4 + 4
	if size != header+int64(rows)*int64(dim)*4 {
		return nil, fmt.Errorf("%w: size %d does not fit %dx%d", errCorruptCache, size, rows, dim)
	}
	vectors := make([][]float32, rows)
	for i := range vectors {
		vector := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vector); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", errCorruptCache, i, err)
		}
		vectors[i] = vector
	}
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", errCorruptCache)
	}
	return newIndex(string(model), hex.EncodeToString(fingerprint), vectors)
}
