package results

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"
)

// MAT-file level 5 constants
const (
	miINT8   = 1
	miINT32  = 5
	miUINT32 = 6
	miDOUBLE = 9
	miMATRIX = 14

	mxDOUBLE_CLASS = 6

	matHeaderLen = 128
)

var errNotMat = errors.New("not a level 5 MAT-file")

// WriteMat writes a MAT-file holding a single 1xN double array named name.
func WriteMat(path, name string, values []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(matHeader())

	var body bytes.Buffer
	writeElement(&body, miUINT32, func(w *bytes.Buffer) {
		binary.Write(w, binary.LittleEndian, [2]uint32{mxDOUBLE_CLASS, 0})
	})
	writeElement(&body, miINT32, func(w *bytes.Buffer) {
		binary.Write(w, binary.LittleEndian, [2]int32{1, int32(len(values))})
	})
	writeElement(&body, miINT8, func(w *bytes.Buffer) {
		w.WriteString(name)
	})
	writeElement(&body, miDOUBLE, func(w *bytes.Buffer) {
		binary.Write(w, binary.LittleEndian, values)
	})

	binary.Write(&buf, binary.LittleEndian, [2]uint32{miMATRIX, uint32(body.Len())})
	buf.Write(body.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func matHeader() []byte {
	hdr := make([]byte, matHeaderLen)
	text := fmt.Sprintf("MATLAB 5.0 MAT-file Platform: posix, Created on: %s", time.Now().UTC().Format(time.ANSIC))
	for i := range hdr[:116] {
		hdr[i] = ' '
	}
	copy(hdr[:116], text)
	// bytes 116..124 are the subsystem data offset, left zero
	binary.LittleEndian.PutUint16(hdr[124:], 0x0100)
	hdr[126], hdr[127] = 'I', 'M'
	return hdr
}

// writeElement writes a tag followed by the payload padded to 8 bytes.
func writeElement(w *bytes.Buffer, dataType uint32, payload func(*bytes.Buffer)) {
	var data bytes.Buffer
	payload(&data)

	binary.Write(w, binary.LittleEndian, [2]uint32{dataType, uint32(data.Len())})
	w.Write(data.Bytes())
	if pad := (8 - data.Len()%8) % 8; pad > 0 {
		w.Write(make([]byte, pad))
	}
}

// ReadMat returns the double array stored under name. Only little-endian,
// uncompressed real double matrices are supported.
func ReadMat(path, name string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < matHeaderLen || raw[126] != 'I' || raw[127] != 'M' {
		return nil, fmt.Errorf("%s: %w", path, errNotMat)
	}

	r := bytes.NewReader(raw[matHeaderLen:])
	for {
		dataType, elem, err := readElement(r)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: no variable %q", path, name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if dataType != miMATRIX {
			continue
		}

		varName, values, err := parseMatrix(elem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if varName == name {
			return values, nil
		}
	}
}

func parseMatrix(elem []byte) (string, []float64, error) {
	r := bytes.NewReader(elem)

	var parts [][]byte
	for r.Len() > 0 {
		_, data, err := readElement(r)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, data)
	}

	// flags, dimensions, name, real part
	if len(parts) < 4 {
		return "", nil, fmt.Errorf("matrix element has %d sub-elements", len(parts))
	}
	if len(parts[0]) < 4 || binary.LittleEndian.Uint32(parts[0])&0xff != mxDOUBLE_CLASS {
		return "", nil, fmt.Errorf("unsupported matrix class")
	}

	re := parts[3]
	values := make([]float64, len(re)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(re[i*8:]))
	}

	return string(parts[2]), values, nil
}

// readElement reads one data element and its padding. Small elements pack
// the size into the upper half of the tag and up to 4 data bytes inline.
func readElement(r *bytes.Reader) (uint32, []byte, error) {
	var tag [8]byte
	n, err := io.ReadFull(r, tag[:])
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}

	first := binary.LittleEndian.Uint32(tag[0:4])
	if small := first >> 16; small != 0 {
		if small > 4 {
			return 0, nil, fmt.Errorf("invalid small element size %d", small)
		}
		return first & 0xffff, append([]byte(nil), tag[4:4+small]...), nil
	}

	size := binary.LittleEndian.Uint32(tag[4:8])
	if int64(size) > int64(r.Len()) {
		return 0, nil, io.ErrUnexpectedEOF
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}

	pad := (8 - int(size)%8) % 8
	if pad > r.Len() {
		pad = r.Len()
	}
	if _, err := r.Seek(int64(pad), io.SeekCurrent); err != nil {
		return 0, nil, err
	}

	return first, data, nil
}
