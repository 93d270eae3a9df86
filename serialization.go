package ember

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION: The Memory-Mapped Index
// ═══════════════════════════════════════════════════════════════════════════════
// The RAM index is rebuilt from the vector store on every start. For a
// corpus that no longer changes, that work can be done once and the result
// mapped straight from disk: the kernel pages posting lists in on demand
// and shares them between processes, and the query path reads elements
// directly out of the mapping without deserializing the file.
//
// FILE LAYOUT (index.data):
// -------------------------
//
//	┌─────────────────────────────┐
//	│ PostingListHeader × N       │  N = dimension table size
//	│   start_offset  uint64      │  file-absolute byte positions
//	│   end_offset    uint64      │  into the element region
//	├─────────────────────────────┤
//	│ PostingElement × M          │  M = total elements, concatenated
//	│   id              uint32    │  in dimension order
//	│   weight          float32   │
//	│   max_next_weight float32   │
//	└─────────────────────────────┘
//
// Every header is exactly 16 bytes and every element exactly 12, so the
// header for dimension d sits at byte d*16 and lookup is one slice
// expression. An empty dimension's header points at a zero-length range -
// the mmap layout needs no placeholder elements.
//
// All integers and floats are LITTLE-ENDIAN, always, encoded and decoded
// explicitly with encoding/binary rather than by reinterpreting native
// memory, so a file written on one host loads on any other.
//
// SIDECAR (index_config.json):
// ----------------------------
// {"posting_count": N} - written atomically (temp file + rename) AFTER the
// data file is complete. Its absence means the index directory is
// malformed (for example, a crash mid-save) and loading refuses it.
// ═══════════════════════════════════════════════════════════════════════════════

const (
	postingHeaderSize  = 16 // two uint64 offsets
	postingElementSize = 12 // uint32 id + float32 weight + float32 max-next

	indexFileName       = "index.data"
	indexConfigFileName = "index_config.json"
)

var ErrMalformedIndex = errors.New("malformed index directory")

// indexFileHeader is the sidecar configuration record.
type indexFileHeader struct {
	PostingCount int `json:"posting_count"`
}

// MmapIndex is the inverted index served directly from a read-only
// memory-mapped index.data file. Safe for concurrent lookups; the mapping
// must outlive every iterator handed out.
type MmapIndex struct {
	data         mmap.MMap // nil when the index is empty
	postingCount int
}

// Posting implements InvertedIndex. The returned iterator reads straight
// from the mapping; nothing is copied.
func (x *MmapIndex) Posting(dim DimID) *PostingIterator {
	if int(dim) >= x.postingCount {
		return nil
	}
	headerOffset := int(dim) * postingHeaderSize
	start := binary.LittleEndian.Uint64(x.data[headerOffset:])
	end := binary.LittleEndian.Uint64(x.data[headerOffset+8:])
	return NewPostingIterator(mmapPostingList{data: x.data[start:end]})
}

// PostingCount returns the size of the dimension table.
func (x *MmapIndex) PostingCount() int {
	return x.postingCount
}

// Close releases the mapping. No iterator obtained from this index may be
// used afterwards.
func (x *MmapIndex) Close() error {
	if x.data == nil {
		return nil
	}
	data := x.data
	x.data = nil
	return data.Unmap()
}

// mmapPostingList adapts one posting list's byte range in the mapping to
// the postingData surface the iterator walks. Elements are decoded field
// by field on access - a 12-byte read per element, no up-front pass over
// the list.
type mmapPostingList struct {
	data []byte
}

func (p mmapPostingList) Len() int {
	return len(p.data) / postingElementSize
}

func (p mmapPostingList) At(i int) PostingElement {
	offset := i * postingElementSize
	return PostingElement{
		ID:            RecordID(binary.LittleEndian.Uint32(p.data[offset:])),
		Weight:        math.Float32frombits(binary.LittleEndian.Uint32(p.data[offset+4:])),
		MaxNextWeight: math.Float32frombits(binary.LittleEndian.Uint32(p.data[offset+8:])),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SAVE PATH
// ═══════════════════════════════════════════════════════════════════════════════

// SaveInvertedIndex serializes a RAM index into dir and returns the
// mmap-backed index reopened from the files it just wrote.
//
// ATOMICITY:
// ----------
// The data file is assembled under a temporary name and renamed into place
// only when complete; the sidecar follows, also atomically. A crash at any
// point leaves either the previous index or a directory the loader refuses
// (missing sidecar) - never a half-written index that loads.
func SaveInvertedIndex(index *RAMIndex, dir string) (*MmapIndex, error) {
	postingCount := index.PostingCount()

	totalElements := 0
	for dim := 0; dim < postingCount; dim++ {
		totalElements += index.postingListAt(DimID(dim)).Len()
	}
	fileLength := postingCount*postingHeaderSize + totalElements*postingElementSize

	dataPath := filepath.Join(dir, indexFileName)
	tempPath := dataPath + ".tmp"
	if err := writeIndexData(tempPath, index, fileLength); err != nil {
		return nil, err
	}

	// Drop a previous sidecar before the new data goes live, so a crash
	// between the two renames cannot pair old config with new data.
	configPath := filepath.Join(dir, indexConfigFileName)
	if err := os.Remove(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing previous %s: %w", indexConfigFileName, err)
	}
	if err := os.Rename(tempPath, dataPath); err != nil {
		return nil, fmt.Errorf("publishing index data: %w", err)
	}

	header := indexFileHeader{PostingCount: postingCount}
	if err := atomicSaveJSON(configPath, header); err != nil {
		return nil, err
	}

	slog.Info("saved inverted index",
		slog.String("dir", dir),
		slog.Int("postingCount", postingCount),
		slog.Int("elements", totalElements))

	return LoadInvertedIndex(dir)
}

// writeIndexData creates the data file at path, sizes it, and fills it
// through a writable mapping. On failure the partial file stays at the
// temporary path and is never renamed into place.
func writeIndexData(path string, index *RAMIndex, fileLength int) error {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating index data file: %w", err)
	}
	defer file.Close()

	if err := file.Truncate(int64(fileLength)); err != nil {
		return fmt.Errorf("sizing index data file: %w", err)
	}
	if fileLength == 0 {
		// Nothing to map or fill: an empty corpus produces a zero-byte
		// data file, and mapping zero bytes is an error on most platforms.
		return nil
	}

	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("mapping index data file for write: %w", err)
	}
	defer data.Unmap()

	fillIndexData(data, index)

	if err := data.Flush(); err != nil {
		return fmt.Errorf("flushing index data file: %w", err)
	}
	return nil
}

// fillIndexData lays the index out into the mapped bytes: first the header
// table with running offsets, then every posting list's elements
// concatenated in dimension order.
func fillIndexData(data []byte, index *RAMIndex) {
	postingCount := index.PostingCount()
	elementsOffset := uint64(postingCount * postingHeaderSize)

	for dim := 0; dim < postingCount; dim++ {
		posting := index.postingListAt(DimID(dim))
		start := elementsOffset
		end := start + uint64(posting.Len()*postingElementSize)

		headerOffset := dim * postingHeaderSize
		binary.LittleEndian.PutUint64(data[headerOffset:], start)
		binary.LittleEndian.PutUint64(data[headerOffset+8:], end)

		offset := start
		for _, element := range posting.Elements {
			binary.LittleEndian.PutUint32(data[offset:], uint32(element.ID))
			binary.LittleEndian.PutUint32(data[offset+4:], math.Float32bits(element.Weight))
			binary.LittleEndian.PutUint32(data[offset+8:], math.Float32bits(element.MaxNextWeight))
			offset += postingElementSize
		}
		elementsOffset = end
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOAD PATH
// ═══════════════════════════════════════════════════════════════════════════════

// LoadInvertedIndex maps a previously saved index directory read-only.
//
// The sidecar is read first: a directory without one is malformed (a save
// never completed there) and is refused rather than guessed at. The data
// file must then be at least as large as its header table claims.
func LoadInvertedIndex(dir string) (*MmapIndex, error) {
	var header indexFileHeader
	configPath := filepath.Join(dir, indexConfigFileName)
	if err := readJSON(configPath, &header); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedIndex, indexConfigFileName)
		}
		return nil, err
	}

	dataPath := filepath.Join(dir, indexFileName)
	file, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening index data file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index data file: %w", err)
	}
	if info.Size() < int64(header.PostingCount*postingHeaderSize) {
		return nil, fmt.Errorf("%w: data file smaller than its header table", ErrMalformedIndex)
	}

	var data mmap.MMap
	if info.Size() > 0 {
		data, err = mmap.Map(file, mmap.RDONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("mapping index data file: %w", err)
		}
	}

	slog.Info("loaded inverted index",
		slog.String("dir", dir),
		slog.Int("postingCount", header.PostingCount))

	return &MmapIndex{
		data:         data,
		postingCount: header.PostingCount,
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// FILE HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// atomicSaveJSON writes v as JSON to path via a temporary file and rename,
// so readers observe either the old file or the complete new one.
func atomicSaveJSON(path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(tempPath), err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("publishing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON decodes the JSON file at path into v.
func readJSON(path string, v any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}
