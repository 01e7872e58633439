// Package preservation implements the Library core's binary codec: compact
// encoding of embeddings and volume records, with optional gzip of large
// text.
package preservation

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"vellum/internal/libraryerr"
	"vellum/internal/volume"
)

var gzipMagic = []byte{0x1f, 0x8b}

// EncodeEmbedding serializes an embedding as raw little-endian float32 bytes,
// base64-encoded.
func EncodeEmbedding(vec []float32) string {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeEmbedding reverses EncodeEmbedding. It returns CorruptEntry if the
// decoded byte length is not a multiple of 4.
func DecodeEmbedding(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, libraryerr.StacksCorrupt("", fmt.Sprintf("invalid embedding base64: %v", err))
	}
	if len(raw)%4 != 0 {
		return nil, libraryerr.StacksCorrupt("", "embedding byte length not divisible by 4")
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// IsGzipped inspects the first two bytes for the gzip magic number.
func IsGzipped(b []byte) bool {
	return len(b) >= 2 && bytes.Equal(b[:2], gzipMagic)
}

// MaybeCompressText gzips text when it exceeds thresholdBytes; otherwise it
// is returned unchanged.
func MaybeCompressText(text string, thresholdBytes int) ([]byte, error) {
	raw := []byte(text)
	if len(raw) <= thresholdBytes {
		return raw, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip text: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressText reverses MaybeCompressText, detecting the gzip magic
// number; plain text is returned unchanged.
func DecompressText(b []byte) (string, error) {
	if !IsGzipped(b) {
		return string(b), nil
	}
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("open gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress text: %w", err)
	}
	return string(out), nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

// EncodeRecord lays out a single Volume as:
//
//	u32 text_len | text bytes (possibly gzipped) |
//	u32 emb_b64_len | emb_b64 bytes |
//	u32 meta_json_len | meta_json bytes |
//	u64 timestamp (split as two big-endian u32 halves) |
//	u32 accessCount |
//	u64 lastAccessed (split as two big-endian u32 halves)
func EncodeRecord(v volume.Volume, compressAboveBytes int) ([]byte, error) {
	textBytes, err := MaybeCompressText(v.Text, compressAboveBytes)
	if err != nil {
		return nil, err
	}
	embB64 := []byte(EncodeEmbedding(v.Embedding))
	metaJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	putU32(&buf, uint32(len(textBytes)))
	buf.Write(textBytes)
	putU32(&buf, uint32(len(embB64)))
	buf.Write(embB64)
	putU32(&buf, uint32(len(metaJSON)))
	buf.Write(metaJSON)
	putU32(&buf, uint32(v.Timestamp>>32))
	putU32(&buf, uint32(v.Timestamp))
	putU32(&buf, uint32(v.AccessCount))
	putU32(&buf, uint32(v.LastAccessed>>32))
	putU32(&buf, uint32(v.LastAccessed))
	return buf.Bytes(), nil
}

// DecodeRecord reverses EncodeRecord. id is supplied by the caller (the KV
// map key); it is not part of the encoded bytes.
func DecodeRecord(id string, data []byte) (volume.Volume, error) {
	r := bytes.NewReader(data)

	textLen, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated text length")
	}
	textBytes := make([]byte, textLen)
	if _, err := io.ReadFull(r, textBytes); err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated text")
	}
	text, err := DecompressText(textBytes)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, fmt.Sprintf("text decompress failed: %v", err))
	}

	embLen, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated embedding length")
	}
	embBytes := make([]byte, embLen)
	if _, err := io.ReadFull(r, embBytes); err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated embedding")
	}
	embedding, err := DecodeEmbedding(string(embBytes))
	if err != nil {
		return volume.Volume{}, err
	}

	metaLen, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated metadata length")
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated metadata")
	}
	var meta map[string]string
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, fmt.Sprintf("metadata json invalid: %v", err))
	}

	tsHi, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated timestamp")
	}
	tsLo, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated timestamp")
	}
	accessCount, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated access count")
	}
	laHi, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated last accessed")
	}
	laLo, err := readU32(r)
	if err != nil {
		return volume.Volume{}, libraryerr.StacksCorrupt(id, "truncated last accessed")
	}

	return volume.Volume{
		ID:           id,
		Text:         text,
		Embedding:    embedding,
		Metadata:     meta,
		Timestamp:    int64(tsHi)<<32 | int64(tsLo),
		AccessCount:  int64(accessCount),
		LastAccessed: int64(laHi)<<32 | int64(laLo),
	}, nil
}
