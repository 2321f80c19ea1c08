package quakescan

import (
	"bytes"
	"encoding/binary"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Stream is the minimal interface lut_io.go and nonlinloc.go read binary
// artifacts through: a byte stream on local disk, an in-memory buffer, or an
// object-store object opened via TileDB's VFS layer all satisfy it with just
// Read and Seek.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream either wraps a VFS file handle directly (streamed) or reads
// its full contents into memory first (inmem), depending on how the caller
// wants to trade memory for repeated-seek performance on remote object
// stores.
func GenericStream(stream *tiledb.VFSfh, size uint64, inmem bool) (Stream, error) {
	if !inmem {
		return stream, nil
	}

	buffer := make([]byte, size)
	if err := binary.Read(stream, binary.LittleEndian, &buffer); err != nil {
		return nil, err
	}
	return bytes.NewReader(buffer), nil
}
