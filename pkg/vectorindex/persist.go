package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/personaforge/personaforge/pkg/errs"
)

const (
	indexFileName  = "index.bin"
	chunksFileName = "chunks.txt"

	// ChunkSeparator delimits chunk texts in the sidecar file.
	ChunkSeparator = "\n---\n"
)

var indexMagic = [4]byte{'P', 'F', 'V', '1'}

// containsSeparator reports whether text would not round-trip through the
// sidecar, i.e. the first separator after it would start inside the text.
func containsSeparator(text string) bool {
	return strings.Index(text+ChunkSeparator, ChunkSeparator) != len(text)
}

// writeIndex persists x under dir as a unit: both files are written into a
// fresh sibling directory which then replaces dir.
func writeIndex(dir string, x *index) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("vectorindex: create root: %w", err)
	}

	tmp := filepath.Join(parent, "."+filepath.Base(dir)+".tmp-"+uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("vectorindex: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeVectors(filepath.Join(tmp, indexFileName), x); err != nil {
		return err
	}
	if err := writeChunks(filepath.Join(tmp, chunksFileName), x.texts); err != nil {
		return err
	}

	old := filepath.Join(parent, "."+filepath.Base(dir)+".old-"+uuid.NewString())
	hadOld := false
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("vectorindex: retire previous index: %w", err)
		}
		hadOld = true
	}
	if err := os.Rename(tmp, dir); err != nil {
		if hadOld {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("vectorindex: install index: %w", err)
	}
	if hadOld {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Format: [magic:4][dim:uint32][count:uint32] then for each entry:
// [idLen:uint16][id:bytes][vector:float32*dim]
func writeVectors(path string, x *index) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vectorindex: save failed: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(indexMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.ids))); err != nil {
		return err
	}
	for i, id := range x.ids {
		if len(id) > 0xFFFF {
			return fmt.Errorf("%w: chunk id too long", errs.ErrInvalidInput)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(id))); err != nil {
			return err
		}
		if _, err := w.WriteString(id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, x.vectors[i]); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func writeChunks(path string, texts []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vectorindex: save chunks failed: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, text := range texts {
		if _, err := w.WriteString(text + ChunkSeparator); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func readIndex(dir, collection string) (*index, error) {
	f, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vectorindex: collection %q: %w", collection, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("vectorindex: load failed: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("vectorindex: read header: %w", err)
	}
	if magic != indexMagic {
		return nil, fmt.Errorf("vectorindex: %s is not an index file", f.Name())
	}
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	ids := make([]string, count)
	vectors := make([][]float32, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, err
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, err
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, err
		}
		ids[i] = string(idBuf)
		vectors[i] = vec
	}

	texts, err := readChunks(filepath.Join(dir, chunksFileName))
	if err != nil {
		return nil, err
	}
	if len(texts) != len(ids) {
		return nil, fmt.Errorf("vectorindex: collection %q has %d vectors but %d chunk texts", collection, len(ids), len(texts))
	}

	chunks := make([]TextChunk, len(ids))
	for i := range ids {
		chunks[i] = TextChunk{ID: ids[i], Collection: collection, Text: texts[i]}
	}
	return newIndex(collection, chunks, vectors)
}

func readChunks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: load chunks failed: %w", err)
	}
	parts := strings.Split(string(data), ChunkSeparator)
	// The file ends with a separator, leaving one empty trailing element.
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts, nil
}
