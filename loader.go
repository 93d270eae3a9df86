package ember

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INGEST: Record-Per-Line JSON → Storage
// ═══════════════════════════════════════════════════════════════════════════════
// The corpus arrives as a text file with one JSON object per line. Keys
// are decimal dimension ids, values are the weights:
//
//	{"3": 0.5, "17": 1.2, "4802": 0.07}
//	{"17": 2.0, "99": 0.3}
//
// Record ids are assigned by order of appearance starting at 0: the first
// line becomes record 0, the second record 1, and so on.
//
// The loader is strict: a blank line, unparseable JSON, a non-numeric
// dimension key, or a non-finite weight fails the whole load and nothing
// is handed back. Retrieval quality problems are hard enough to debug
// without a silently half-loaded corpus underneath them.
// ═══════════════════════════════════════════════════════════════════════════════

// maxRecordLine bounds one line of input. Sparse records populate a few
// hundred dimensions at most; 16 MiB is far beyond any legitimate record.
const maxRecordLine = 16 << 20

// LoadRecords reads a record-per-line JSON file into a fresh Storage.
func LoadRecords(path string) (*Storage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening records file: %w", err)
	}
	defer file.Close()

	storage := NewStorage()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		vector, err := parseRecordLine(scanner.Bytes())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		storage.Add(RecordID(lineNo-1), vector)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records file: %w", err)
	}

	slog.Info("loaded records", slog.String("path", path), slog.Int("count", lineNo))
	return storage, nil
}

// parseRecordLine turns one line into a validated sparse vector.
//
// JSON objects are unordered, so the parsed pairs are sorted by dimension
// id before the vector is assembled - the ascending-indices invariant is
// established here, once, and everything downstream relies on it.
func parseRecordLine(line []byte) (SparseVector, error) {
	var record map[string]float64
	if err := json.Unmarshal(line, &record); err != nil {
		return SparseVector{}, fmt.Errorf("malformed record: %w", err)
	}
	if record == nil {
		// "null" parses into a nil map without error; it is still not a
		// record.
		return SparseVector{}, fmt.Errorf("malformed record: not a JSON object")
	}

	type pair struct {
		dim    DimID
		weight float32
	}
	pairs := make([]pair, 0, len(record))
	for key, value := range record {
		dim, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return SparseVector{}, fmt.Errorf("dimension key %q is not a decimal id: %w", key, err)
		}
		pairs = append(pairs, pair{dim: DimID(dim), weight: float32(value)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dim < pairs[j].dim })

	indices := make([]DimID, len(pairs))
	weights := make([]float32, len(pairs))
	for i, p := range pairs {
		indices[i] = p.dim
		weights[i] = p.weight
	}

	vector, err := NewSparseVector(indices, weights)
	if err != nil {
		return SparseVector{}, fmt.Errorf("invalid record: %w", err)
	}
	return vector, nil
}
