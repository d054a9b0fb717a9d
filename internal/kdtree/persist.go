package kdtree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ztracker/core/internal/trackerr"
)

// Magic identifies the k-d tree binary file format (spec §4.3/§6).
const Magic = "kd_tree_binary_file"

// TypeTag identifies this tree's point-traits instantiation: feature
// descriptors are float32, distances float64, indices int32.
const TypeTag = "f32f64i32"

// Save writes the textual-header/binary-body format of spec §4.3: a
// magic line, labeled headers (typetag, d, n, nodes, leaves, rootnode,
// pixelstep, hsteps, vsteps, scale), then raw little-endian dumps of split-dim, threshold, left-child,
// right-child, leaf-offset, indices, and points. No scale array is
// written: the feature-space index never uses per-dimension scaling
// (spec §4.3, "not used by the feature-space index").
func (t *Tree) Save(w io.Writer) error {
	nodes := len(t.SplitDim)
	leaves := len(t.LeafOffset) - 1
	headers := []string{
		Magic,
		"typetag " + TypeTag,
		"d " + strconv.Itoa(t.D),
		"n " + strconv.Itoa(t.N),
		"nodes " + strconv.Itoa(nodes),
		"leaves " + strconv.Itoa(leaves),
		"rootnode " + strconv.Itoa(int(t.Root)),
		"pixelstep " + strconv.Itoa(t.PixelStep),
		"hsteps " + strconv.Itoa(t.HSteps),
		"vsteps " + strconv.Itoa(t.VSteps),
		"scale 0",
	}
	for _, h := range headers {
		if _, err := io.WriteString(w, h+"\n"); err != nil {
			return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
		}
	}

	writers := []func() error{
		func() error { return binary.Write(w, binary.LittleEndian, t.SplitDim) },
		func() error { return binary.Write(w, binary.LittleEndian, t.Threshold) },
		func() error { return binary.Write(w, binary.LittleEndian, t.Left) },
		func() error { return binary.Write(w, binary.LittleEndian, t.Right) },
		func() error { return binary.Write(w, binary.LittleEndian, t.LeafOffset) },
		func() error { return binary.Write(w, binary.LittleEndian, t.Indices) },
		func() error { return binary.Write(w, binary.LittleEndian, t.Features) },
	}
	for _, fn := range writers {
		if err := fn(); err != nil {
			return fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
		}
	}
	return nil
}

// Load reads a tree previously written by Save, verifying the magic
// before reading any binary payload.
func Load(r io.Reader) (*Tree, error) {
	br := bufio.NewReader(r)

	magic, err := readLine(br)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, trackerr.New(trackerr.BadFormat, "bad k-d tree magic")
	}

	header := map[string]string{}
	for _, key := range []string{"typetag", "d", "n", "nodes", "leaves", "rootnode", "pixelstep", "hsteps", "vsteps", "scale"} {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 || parts[0] != key {
			return nil, trackerr.New(trackerr.BadFormat, "expected header "+key)
		}
		header[key] = parts[1]
	}
	if header["typetag"] != TypeTag {
		return nil, trackerr.New(trackerr.BadFormat, "unexpected k-d tree typetag")
	}

	d := atoi(header["d"])
	n := atoi(header["n"])
	nodes := atoi(header["nodes"])
	leaves := atoi(header["leaves"])
	root := atoi(header["rootnode"])

	t := &Tree{
		D:         d,
		N:         n,
		PixelStep: atoi(header["pixelstep"]),
		HSteps:    atoi(header["hsteps"]),
		VSteps:    atoi(header["vsteps"]),
		Root:      int32(root),
	}

	t.SplitDim = make([]int32, nodes)
	t.Threshold = make([]float64, nodes)
	t.Left = make([]int32, nodes)
	t.Right = make([]int32, nodes)
	t.LeafOffset = make([]int32, leaves+1)
	t.Indices = make([]int32, n)
	t.Features = make([]float32, n*d)

	readers := []func() error{
		func() error { return binary.Read(br, binary.LittleEndian, t.SplitDim) },
		func() error { return binary.Read(br, binary.LittleEndian, t.Threshold) },
		func() error { return binary.Read(br, binary.LittleEndian, t.Left) },
		func() error { return binary.Read(br, binary.LittleEndian, t.Right) },
		func() error { return binary.Read(br, binary.LittleEndian, t.LeafOffset) },
		func() error { return binary.Read(br, binary.LittleEndian, t.Indices) },
		func() error { return binary.Read(br, binary.LittleEndian, t.Features) },
	}
	for _, fn := range readers {
		if err := fn(); err != nil {
			return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
		}
	}
	return t, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	return strings.TrimRight(line, "\n"), nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
