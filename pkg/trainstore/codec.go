package trainstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/MrWong99/earsense/pkg/classify"
)

// Binary layout, all integers little-endian:
//
//	magic   [4]byte  "ESTS"
//	version uint16   1
//	k       uint32
//	n       uint32   number of exemplars
//	n × {
//	    label int32
//	    dim   uint32
//	    dim × float64
//	}
//	crc     uint32   IEEE CRC-32 of every preceding byte
const (
	codecMagic   = "ESTS"
	codecVersion = 1

	headerSize   = 4 + 2 + 4 + 4
	exemplarHead = 4 + 4
	trailerSize  = 4
)

// Marshal encodes ts in the training-set binary format.
func Marshal(ts classify.TrainingSet) ([]byte, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	size := headerSize + trailerSize
	for _, f := range ts.Features {
		size += exemplarHead + 8*len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, codecMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, codecVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(max(ts.K, 0)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ts.Labels)))
	for i, f := range ts.Features {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(ts.Labels[i])))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f)))
		for _, v := range f {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Unmarshal decodes data produced by [Marshal]. Any structural problem is
// reported as a [*CorruptModelError]; no partial set is returned.
func Unmarshal(data []byte) (classify.TrainingSet, error) {
	if len(data) < headerSize+trailerSize {
		return classify.TrainingSet{}, corruptf("truncated: %d bytes", len(data))
	}
	if string(data[:4]) != codecMagic {
		return classify.TrainingSet{}, corruptf("bad magic %q", data[:4])
	}
	body, trailer := data[:len(data)-trailerSize], data[len(data)-trailerSize:]
	if got, want := crc32.ChecksumIEEE(body), binary.LittleEndian.Uint32(trailer); got != want {
		return classify.TrainingSet{}, corruptf("checksum mismatch: %08x != %08x", got, want)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != codecVersion {
		return classify.TrainingSet{}, corruptf("unsupported version %d", v)
	}
	k := binary.LittleEndian.Uint32(data[6:10])
	n := binary.LittleEndian.Uint32(data[10:14])

	rest := body[headerSize:]
	if uint64(n)*exemplarHead > uint64(len(rest)) {
		return classify.TrainingSet{}, corruptf("exemplar count %d exceeds payload", n)
	}
	ts := classify.TrainingSet{
		Features: make([][]float64, 0, n),
		Labels:   make([]int, 0, n),
		K:        int(k),
	}
	for i := range n {
		if len(rest) < exemplarHead {
			return classify.TrainingSet{}, corruptf("exemplar %d: truncated header", i)
		}
		label := int32(binary.LittleEndian.Uint32(rest[0:4]))
		dim := binary.LittleEndian.Uint32(rest[4:8])
		rest = rest[exemplarHead:]
		if uint64(dim)*8 > uint64(len(rest)) {
			return classify.TrainingSet{}, corruptf("exemplar %d: dimension %d exceeds payload", i, dim)
		}
		f := make([]float64, dim)
		for j := range f {
			f[j] = math.Float64frombits(binary.LittleEndian.Uint64(rest[8*j:]))
		}
		rest = rest[8*dim:]
		ts.Features = append(ts.Features, f)
		ts.Labels = append(ts.Labels, int(label))
	}
	if len(rest) != 0 {
		return classify.TrainingSet{}, corruptf("%d trailing bytes", len(rest))
	}
	return ts, nil
}

// Encode writes the binary form of ts to w.
func Encode(w io.Writer, ts classify.TrainingSet) error {
	b, err := Marshal(ts)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Decode reads a whole binary training set from r.
func Decode(r io.Reader) (classify.TrainingSet, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return classify.TrainingSet{}, fmt.Errorf("trainstore: read: %w", err)
	}
	return Unmarshal(buf.Bytes())
}
