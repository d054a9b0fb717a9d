// Package persist implements the generic container wrapper of spec §6:
// a single \n-terminated UTF-8 name line identifying the payload type,
// followed by a binary body the payload supplies itself.
//
// Grounded in the teacher's fs/gguf/file.go Open/Close pattern (magic
// plus version read via encoding/binary, little-endian), generalized to
// a textual name line since the projector and k-d-tree formats are
// textual-header-prefixed rather than fixed 4-byte magics.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ztracker/core/internal/trackerr"
)

// WriteName writes the \n-terminated type name line.
func WriteName(w io.Writer, name string) error {
	_, err := io.WriteString(w, name+"\n")
	if err != nil {
		return fmt.Errorf("%w: writing container name: %v", trackerr.ErrIoError, err)
	}
	return nil
}

// ReadName reads and verifies the \n-terminated type name line.
func ReadName(r *bufio.Reader, want string) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: reading container name: %v", trackerr.ErrIoError, err)
	}
	got := line[:len(line)-1]
	if got != want {
		return trackerr.New(trackerr.BadFormat, fmt.Sprintf("expected container name %q, got %q", want, got))
	}
	return nil
}

// WriteFloat32Vector writes an int32 length prefix followed by raw
// little-endian float32 values.
func WriteFloat32Vector(w io.Writer, v []float32) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(v))); err != nil {
		return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return nil
}

// ReadFloat32Vector reads a length-prefixed float32 vector.
func ReadFloat32Vector(r io.Reader) ([]float32, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	v := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return v, nil
}

// WriteFloat64Vector writes an int32 length prefix followed by raw
// little-endian float64 values.
func WriteFloat64Vector(w io.Writer, v []float64) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(v))); err != nil {
		return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return nil
}

// ReadFloat64Vector reads a length-prefixed float64 vector.
func ReadFloat64Vector(r io.Reader) ([]float64, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	v := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return v, nil
}

// WriteInt32 writes a single little-endian int32.
func WriteInt32(w io.Writer, v int32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return nil
}

// ReadInt32 reads a single little-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return v, nil
}
