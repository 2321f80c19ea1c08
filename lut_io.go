package quakescan

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// lutMagic tags a quakescan LUT blob; lutVersion lets WriteLUT/ReadLUT evolve
// the format without breaking existing files.
const (
	lutMagic   uint32 = 0x4c555401 // "LUT\x01"
	lutVersion uint32 = 1
)

// WriteLUT serialises l to path in quakescan's native binary LUT format:
// a little-endian fixed header (magic, version, grid shape/size/centre,
// azimuth/dip, sort order, projection tag+parameters), a station table,
// and the two flattened MapsP/MapsS float64 volumes, in that order.
func WriteLUT(path string, l LUT) error {
	if err := l.Validate(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Join(ErrIO, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, lutMagic); err != nil {
		return errors.Join(ErrIO, err)
	}
	if err := binary.Write(w, binary.LittleEndian, lutVersion); err != nil {
		return errors.Join(ErrIO, err)
	}

	if err := writeGridHeader(w, l.Grid3D); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(l.Stations))); err != nil {
		return errors.Join(ErrIO, err)
	}
	for _, st := range l.Stations {
		if err := writeStation(w, st); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(l.MapsP))); err != nil {
		return errors.Join(ErrIO, err)
	}
	if err := binary.Write(w, binary.LittleEndian, l.MapsP); err != nil {
		return errors.Join(ErrIO, err)
	}
	if err := binary.Write(w, binary.LittleEndian, l.MapsS); err != nil {
		return errors.Join(ErrIO, err)
	}

	return w.Flush()
}

// ReadLUT reads a LUT blob written by WriteLUT, through TileDB's VFS layer
// (so path can be local disk or an object store) via the same
// handle-then-GenericStream pattern reader.go's GenericStream exists for:
// the whole blob is read into memory up front since LUTs are read once per
// scan/locate run rather than seeked into repeatedly.
func ReadLUT(path string) (LUT, error) {
	config, err := tiledb.NewConfig()
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	defer vfs.Free()

	handle, err := vfs.Open(path, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	defer handle.Close()

	size, err := vfs.FileSize(path)
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}

	stream, err := GenericStream(handle, size, true)
	if err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}

	r := bufio.NewReader(stream)

	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	if magic != lutMagic {
		return LUT{}, errors.Join(ErrIO, fmt.Errorf("not a quakescan LUT file (bad magic %x)", magic))
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	if version != lutVersion {
		return LUT{}, errors.Join(ErrIO, fmt.Errorf("unsupported LUT version %d", version))
	}

	grid, err := readGridHeader(r)
	if err != nil {
		return LUT{}, err
	}

	var nstn uint32
	if err := binary.Read(r, binary.LittleEndian, &nstn); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	stations := make(StationList, nstn)
	for i := range stations {
		st, err := readStation(r)
		if err != nil {
			return LUT{}, err
		}
		stations[i] = st
	}

	var nvals uint64
	if err := binary.Read(r, binary.LittleEndian, &nvals); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	mapsP := make([]float64, nvals)
	mapsS := make([]float64, nvals)
	if err := binary.Read(r, binary.LittleEndian, mapsP); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}
	if err := binary.Read(r, binary.LittleEndian, mapsS); err != nil {
		return LUT{}, errors.Join(ErrIO, err)
	}

	lut := LUT{Grid3D: grid, Stations: stations, MapsP: mapsP, MapsS: mapsS}
	return lut, lut.Validate()
}

func writeGridHeader(w io.Writer, g Grid3D) error {
	fields := []any{
		uint32(g.CellCount[0]), uint32(g.CellCount[1]), uint32(g.CellCount[2]),
		g.CellSize[0], g.CellSize[1], g.CellSize[2],
		g.Azimuth, g.Dip,
		g.GridCentre[0], g.GridCentre[1], g.GridCentre[2],
		g.Elevation,
		uint8(g.SortOrder),
		uint8(g.Projection.Kind), int32(g.Projection.Zone),
		g.Projection.Lon0, g.Projection.Lat0, g.Projection.P1, g.Projection.P2,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return errors.Join(ErrIO, err)
		}
	}
	return nil
}

func readGridHeader(r io.Reader) (Grid3D, error) {
	var (
		nx, ny, nz          uint32
		sx, sy, sz          float64
		az, dip             float64
		cx, cy, cz, elev    float64
		sortOrder, projKind uint8
		zone                int32
		lon0, lat0, p1, p2  float64
	)
	fields := []any{
		&nx, &ny, &nz,
		&sx, &sy, &sz,
		&az, &dip,
		&cx, &cy, &cz,
		&elev,
		&sortOrder,
		&projKind, &zone,
		&lon0, &lat0, &p1, &p2,
	}
	for _, v := range fields {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return Grid3D{}, errors.Join(ErrIO, err)
		}
	}

	g := Grid3D{
		CellCount:  [3]int{int(nx), int(ny), int(nz)},
		CellSize:   [3]float64{sx, sy, sz},
		Azimuth:    az,
		Dip:        dip,
		GridCentre: [3]float64{cx, cy, cz},
		Elevation:  elev,
		SortOrder:  SortOrder(sortOrder),
		Projection: Projection{Kind: ProjectionKind(projKind), Zone: int(zone), Lon0: lon0, Lat0: lat0, P1: p1, P2: p2},
	}
	return g, g.Validate()
}

func writeStation(w io.Writer, st Station) error {
	name := [16]byte{}
	copy(name[:], st.Name)
	if err := binary.Write(w, binary.LittleEndian, name); err != nil {
		return errors.Join(ErrIO, err)
	}
	fields := []any{st.Longitude, st.Latitude, st.Elevation}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return errors.Join(ErrIO, err)
		}
	}
	return nil
}

func readStation(r io.Reader) (Station, error) {
	var name [16]byte
	if err := binary.Read(r, binary.LittleEndian, &name); err != nil {
		return Station{}, errors.Join(ErrIO, err)
	}
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}

	var lon, lat, elev float64
	fields := []any{&lon, &lat, &elev}
	for _, v := range fields {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return Station{}, errors.Join(ErrIO, err)
		}
	}
	return Station{Name: string(name[:n]), Longitude: lon, Latitude: lat, Elevation: elev}, nil
}
