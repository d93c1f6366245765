package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// On-disk layout under opts.Path:
//
//	flat.bin      dimension (4), count (4), then per record:
//	              idLen (4), id bytes, vector (dimension*4), little-endian
//	hnsw.bin      graph parameters and adjacency lists; absent when the
//	              graph is empty
//	manifest.json record metadata in insertion order plus bookkeeping
//
// Every file is written to a .tmp sibling and renamed into place, with
// the manifest renamed last. A crash mid-save leaves the previous
// manifest pointing at a consistent older state; the loader reconciles
// any count mismatch by trusting the shorter of flat.bin and manifest.
const (
	flatFile     = "flat.bin"
	graphFile    = "hnsw.bin"
	manifestFile = "manifest.json"

	graphMagic   = uint32(0x52424847) // "RBHG"
	graphVersion = uint32(1)
)

type manifest struct {
	Dimensions  int             `json:"dimensions"`
	Mode        string          `json:"mode"`
	LastUpdated time.Time       `json:"last_updated"`
	Entries     []manifestEntry `json:"entries"`
}

type manifestEntry struct {
	ID   string     `json:"id"`
	Meta RecordMeta `json:"meta"`
}

// save writes a full snapshot. Caller holds the write lock. A nil
// error means the manifest rename completed and the on-disk state
// matches memory.
func (h *HybridIndex) save() error {
	if h.opts.Path == "" {
		return nil
	}
	if err := os.MkdirAll(h.opts.Path, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(h.opts.Path, flatFile), h.encodeFlat()); err != nil {
		return fmt.Errorf("write %s: %w", flatFile, err)
	}

	graphPath := filepath.Join(h.opts.Path, graphFile)
	if h.graph != nil && h.graph.size() > 0 {
		if err := writeFileAtomic(graphPath, encodeGraph(h.graph)); err != nil {
			return fmt.Errorf("write %s: %w", graphFile, err)
		}
	} else if err := os.Remove(graphPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", graphFile, err)
	}

	man := manifest{
		Dimensions:  h.opts.Dimensions,
		Mode:        Mode(h.mode.Load()).String(),
		LastUpdated: h.lastUpdated,
		Entries:     make([]manifestEntry, len(h.records)),
	}
	for i, rec := range h.records {
		man.Entries[i] = manifestEntry{ID: rec.ID, Meta: rec.Meta}
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(h.opts.Path, manifestFile), data); err != nil {
		return fmt.Errorf("write %s: %w", manifestFile, err)
	}
	return nil
}

// load replaces in-memory state from the snapshot at opts.Path. A
// missing manifest means a fresh index and is not an error. A stale or
// unreadable graph file is recovered by rebuilding the graph from the
// raw vectors.
func (h *HybridIndex) load() error {
	manData, err := os.ReadFile(filepath.Join(h.opts.Path, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read manifest: %v", ErrStorage, err)
	}
	var man manifest
	if err := json.Unmarshal(manData, &man); err != nil {
		return fmt.Errorf("%w: decode manifest: %v", ErrStorage, err)
	}
	if man.Dimensions != h.opts.Dimensions {
		return fmt.Errorf("%w: snapshot dimension %d, index expects %d", ErrValidation, man.Dimensions, h.opts.Dimensions)
	}

	ids, vecs, err := h.decodeFlat(filepath.Join(h.opts.Path, flatFile))
	if err != nil {
		return err
	}
	n := len(ids)
	if len(man.Entries) < n {
		n = len(man.Entries)
	}

	h.records = make([]*Record, 0, n)
	h.vectors = make([][]float32, 0, n)
	h.byID = make(map[string]int, n)
	for i := 0; i < n; i++ {
		meta := man.Entries[i].Meta
		if man.Entries[i].ID != ids[i] {
			// Interrupted save; flat.bin order is authoritative.
			meta = RecordMeta{}
		}
		h.byID[ids[i]] = len(h.records)
		h.records = append(h.records, &Record{ID: ids[i], Vector: vecs[i], Meta: meta})
		h.vectors = append(h.vectors, vecs[i])
	}
	h.lastUpdated = man.LastUpdated
	h.mode.Store(int32(ParseMode(man.Mode)))
	if !h.opts.Hybrid {
		h.mode.Store(int32(ModeFlat))
		return nil
	}

	g, err := decodeGraph(filepath.Join(h.opts.Path, graphFile), h.newGraph())
	if err != nil || g.size() > len(h.records) {
		h.logger.Warn("graph snapshot unusable, rebuilding", zap.Error(err))
		h.rebuildGraphLocked()
		return nil
	}
	h.graph = g
	return nil
}

func (h *HybridIndex) encodeFlat() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(h.opts.Dimensions))
	binary.Write(&buf, binary.LittleEndian, uint32(len(h.records)))
	for i, rec := range h.records {
		id := []byte(rec.ID)
		binary.Write(&buf, binary.LittleEndian, uint32(len(id)))
		buf.Write(id)
		buf.Write(float32SliceToBytes(h.vectors[i]))
	}
	return buf.Bytes()
}

func (h *HybridIndex) decodeFlat(path string) ([]string, [][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: read %s: %v", ErrStorage, flatFile, err)
	}
	r := bytes.NewReader(data)
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, nil, fmt.Errorf("%w: read dimensions: %v", ErrStorage, err)
	}
	if int(dim) != h.opts.Dimensions {
		return nil, nil, fmt.Errorf("%w: file dimension %d, index expects %d", ErrValidation, dim, h.opts.Dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, fmt.Errorf("%w: read count: %v", ErrStorage, err)
	}
	ids := make([]string, 0, count)
	vecs := make([][]float32, 0, count)
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, nil, fmt.Errorf("%w: read id length: %v", ErrStorage, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, nil, fmt.Errorf("%w: read id: %v", ErrStorage, err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, nil, fmt.Errorf("%w: read vector: %v", ErrStorage, err)
		}
		ids = append(ids, string(idBytes))
		vecs = append(vecs, bytesToFloat32Slice(vecBuf))
	}
	return ids, vecs, nil
}

func encodeGraph(g *hnswGraph) []byte {
	var buf bytes.Buffer
	for _, v := range []uint32{graphMagic, graphVersion, uint32(g.m), uint32(g.efConstruction), uint32(g.maxLevel), g.entry, uint32(len(g.nodes))} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	for _, node := range g.nodes {
		binary.Write(&buf, binary.LittleEndian, uint32(node.level))
		for _, edges := range node.edges {
			binary.Write(&buf, binary.LittleEndian, uint32(len(edges)))
			for _, e := range edges {
				binary.Write(&buf, binary.LittleEndian, e)
			}
		}
	}
	return buf.Bytes()
}

// decodeGraph reads a graph snapshot into g, which supplies the
// parameters and vector accessor. A missing file yields the empty g.
func decodeGraph(path string, g *hnswGraph) (*hnswGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, fmt.Errorf("read %s: %w", graphFile, err)
	}
	r := bytes.NewReader(data)
	var header [7]uint32
	for i := range header {
		if err := binary.Read(r, binary.LittleEndian, &header[i]); err != nil {
			return nil, fmt.Errorf("read graph header: %w", err)
		}
	}
	if header[0] != graphMagic {
		return nil, fmt.Errorf("bad graph magic %#x", header[0])
	}
	if header[1] != graphVersion {
		return nil, fmt.Errorf("unsupported graph version %d", header[1])
	}
	if int(header[2]) != g.m {
		return nil, fmt.Errorf("graph m is %d, index expects %d", header[2], g.m)
	}
	g.maxLevel = int(header[4])
	g.entry = header[5]
	count := header[6]
	g.nodes = make([]*graphNode, 0, count)
	for i := uint32(0); i < count; i++ {
		var level uint32
		if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
			return nil, fmt.Errorf("read node level: %w", err)
		}
		if level > maxGraphLevel {
			return nil, fmt.Errorf("node level %d out of range", level)
		}
		node := &graphNode{level: int(level), edges: make([][]uint32, level+1)}
		for lc := uint32(0); lc <= level; lc++ {
			var edgeCount uint32
			if err := binary.Read(r, binary.LittleEndian, &edgeCount); err != nil {
				return nil, fmt.Errorf("read edge count: %w", err)
			}
			edges := make([]uint32, edgeCount)
			for e := range edges {
				if err := binary.Read(r, binary.LittleEndian, &edges[e]); err != nil {
					return nil, fmt.Errorf("read edge: %w", err)
				}
				if edges[e] >= count {
					return nil, fmt.Errorf("edge target %d out of range", edges[e])
				}
			}
			node.edges[lc] = edges
		}
		g.nodes = append(g.nodes, node)
	}
	if count > 0 && g.entry >= count {
		return nil, fmt.Errorf("entry point %d out of range", g.entry)
	}
	return g, nil
}

// writeFileAtomic writes data to a .tmp sibling and renames it over
// path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
