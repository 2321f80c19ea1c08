package quakescan

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// nonLinLocHeader is the parsed content of a NonLinLoc .hdr file: grid
// shape/origin/spacing plus the TRANS directive.
type nonLinLocHeader struct {
	N        [3]int
	Org      [3]float64
	Size     [3]float64
	GridType string
	Trans    string

	// populated only for Trans != "NONE"
	mapOrgLon, mapOrgLat, mapAzimuth float64
	lccParallel1, lccParallel2       float64
}

// ReadNonLinLocHeader parses a NonLinLoc .hdr file's first three lines (grid
// dimensions, station list, TRANS directive). Only the NONE, SIMPLE,
// LAMBERT, and TRANS_MERC transform directives are recognised; any other
// directive is rejected with ErrConfig rather than guessed at.
func ReadNonLinLocHeader(path string) (nonLinLocHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nonLinLocHeader{}, errors.Join(ErrIO, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := make([]string, 0, 3)
	for scanner.Scan() && len(lines) < 3 {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nonLinLocHeader{}, errors.Join(ErrIO, err)
	}
	if len(lines) < 3 {
		return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: truncated NonLinLoc header", path))
	}

	dims := strings.Fields(lines[0])
	if len(dims) < 10 {
		return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: malformed grid dimension line", path))
	}

	var hdr nonLinLocHeader
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(dims[i])
		if err != nil {
			return nonLinLocHeader{}, errors.Join(ErrConfig, err)
		}
		hdr.N[i] = n
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(dims[3+i], 64)
		if err != nil {
			return nonLinLocHeader{}, errors.Join(ErrConfig, err)
		}
		hdr.Org[i] = v
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(dims[6+i], 64)
		if err != nil {
			return nonLinLocHeader{}, errors.Join(ErrConfig, err)
		}
		hdr.Size[i] = v
	}
	hdr.GridType = dims[9]

	trans := strings.Fields(lines[2])
	if len(trans) < 2 {
		return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: malformed TRANS line", path))
	}

	switch trans[1] {
	case "NONE":
		hdr.Trans = "NONE"
	case "SIMPLE":
		hdr.Trans = "SIMPLE"
		if len(trans) < 8 {
			return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: malformed SIMPLE TRANS line", path))
		}
		hdr.mapOrgLat, _ = strconv.ParseFloat(trans[3], 64)
		hdr.mapOrgLon, _ = strconv.ParseFloat(trans[5], 64)
		hdr.mapAzimuth, _ = strconv.ParseFloat(trans[7], 64)
	case "LAMBERT":
		hdr.Trans = "LAMBERT"
		if len(trans) < 14 {
			return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: malformed LAMBERT TRANS line", path))
		}
		hdr.mapOrgLat, _ = strconv.ParseFloat(trans[5], 64)
		hdr.mapOrgLon, _ = strconv.ParseFloat(trans[7], 64)
		hdr.mapAzimuth, _ = strconv.ParseFloat(trans[13], 64)
		hdr.lccParallel1, _ = strconv.ParseFloat(trans[9], 64)
		hdr.lccParallel2, _ = strconv.ParseFloat(trans[11], 64)
	case "TRANS_MERC":
		hdr.Trans = "TRANS_MERC"
		if len(trans) < 10 {
			return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: malformed TRANS_MERC line", path))
		}
		hdr.mapOrgLat, _ = strconv.ParseFloat(trans[5], 64)
		hdr.mapOrgLon, _ = strconv.ParseFloat(trans[7], 64)
		hdr.mapAzimuth, _ = strconv.ParseFloat(trans[9], 64)
	default:
		return nonLinLocHeader{}, errors.Join(ErrConfig, fmt.Errorf("%s: unrecognised TRANS directive %q", path, trans[1]))
	}

	return hdr, nil
}

// ReadNonLinLocBuffer reads a NonLinLoc .buf file through TileDB's VFS layer
// via reader.go's GenericStream, the same handle-then-GenericStream sequence
// ReadLUT uses: n[0]*n[1]*n[2] little-endian float32 values in C (row-major,
// axis-0-slowest) order, returned flattened in the same order so index
// i*n[1]*n[2]+j*n[2]+k addresses cell (i,j,k).
func ReadNonLinLocBuffer(path string, n [3]int) ([]float32, error) {
	config, err := tiledb.NewConfig()
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	defer vfs.Free()

	handle, err := vfs.Open(path, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	defer handle.Close()

	size, err := vfs.FileSize(path)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	stream, err := GenericStream(handle, size, true)
	if err != nil {
		return nil, errors.Join(ErrIO, err)
	}

	count := n[0] * n[1] * n[2]
	data := make([]float32, count)
	if err := binary.Read(bufio.NewReader(stream), binary.LittleEndian, data); err != nil {
		return nil, errors.Join(ErrIO, err)
	}
	return data, nil
}

// GridFromNonLinLoc builds the quakescan Grid3D a NonLinLoc file pair
// describes. Grid spacing and origin are in kilometres in the NonLinLoc
// file, scaled to metres (x1000); elevation is negative NLLoc_org[2] (NLLoc
// z is positive down, positive depth becomes negative elevation); centre is
// the grid's midpoint org + size*(n-1)/2.
func GridFromNonLinLoc(hdr nonLinLocHeader) (Grid3D, error) {
	centre := [3]float64{
		(hdr.Org[0] + hdr.Size[0]*float64(hdr.N[0]-1)/2) * 1000,
		(hdr.Org[1] + hdr.Size[1]*float64(hdr.N[1]-1)/2) * 1000,
		-(hdr.Org[2] + hdr.Size[2]*float64(hdr.N[2]-1)/2) * 1000,
	}
	elevation := -hdr.Org[2] * 1000

	g := Grid3D{
		CellCount:  hdr.N,
		CellSize:   [3]float64{hdr.Size[0] * 1000, hdr.Size[1] * 1000, hdr.Size[2] * 1000},
		GridCentre: centre,
		Elevation:  elevation,
	}

	switch hdr.Trans {
	case "NONE":
		g.Azimuth = 0
		g.Projection = Projection{Kind: ProjectionWGS84}
	case "SIMPLE":
		g.Azimuth = hdr.mapAzimuth * (math.Pi / 180)
		g.Projection = Projection{Kind: ProjectionWGS84}
	case "LAMBERT":
		g.Azimuth = hdr.mapAzimuth * (math.Pi / 180)
		g.Projection = NewLCC(hdr.mapOrgLon, hdr.mapOrgLat, hdr.lccParallel1, hdr.lccParallel2)
	case "TRANS_MERC":
		g.Azimuth = hdr.mapAzimuth * (math.Pi / 180)
		g.Projection = NewTM(hdr.mapOrgLon, hdr.mapOrgLat)
	default:
		return Grid3D{}, errors.Join(ErrConfig, fmt.Errorf("unhandled TRANS directive %q", hdr.Trans))
	}

	return g, g.Validate()
}

// LUTFromNonLinLoc assembles a LUT from one NonLinLoc file pair (basename,
// without extension) per station and phase. All stations must share one
// grid geometry (the first station's header defines it); mismatched
// geometry across stations is rejected with ErrShape.
func LUTFromNonLinLoc(stations StationList, pBasePaths, sBasePaths map[string]string) (LUT, error) {
	if len(stations) == 0 {
		return LUT{}, ErrNoStations
	}

	var grid Grid3D
	ncells := 0
	mapsP := make([]float64, 0)
	mapsS := make([]float64, 0)

	for i, st := range stations {
		pPath, ok := pBasePaths[st.Name]
		if !ok {
			return LUT{}, errors.Join(ErrConfig, fmt.Errorf("no P-phase NonLinLoc file for station %s", st.Name))
		}
		sPath, ok := sBasePaths[st.Name]
		if !ok {
			return LUT{}, errors.Join(ErrConfig, fmt.Errorf("no S-phase NonLinLoc file for station %s", st.Name))
		}

		pHdr, err := ReadNonLinLocHeader(pPath + ".hdr")
		if err != nil {
			return LUT{}, err
		}
		pGrid, err := GridFromNonLinLoc(pHdr)
		if err != nil {
			return LUT{}, err
		}

		if i == 0 {
			grid = pGrid
			ncells = grid.NCells()
			mapsP = make([]float64, ncells*len(stations))
			mapsS = make([]float64, ncells*len(stations))
		} else if pGrid.CellCount != grid.CellCount || pGrid.CellSize != grid.CellSize || pGrid.GridCentre != grid.GridCentre {
			return LUT{}, errors.Join(ErrShape, fmt.Errorf("station %s NonLinLoc grid geometry mismatches the first station", st.Name))
		}

		pData, err := ReadNonLinLocBuffer(pPath+".buf", pHdr.N)
		if err != nil {
			return LUT{}, err
		}
		sHdr, err := ReadNonLinLocHeader(sPath + ".hdr")
		if err != nil {
			return LUT{}, err
		}
		sData, err := ReadNonLinLocBuffer(sPath+".buf", sHdr.N)
		if err != nil {
			return LUT{}, err
		}
		if len(pData) != ncells || len(sData) != ncells {
			return LUT{}, errors.Join(ErrShape, fmt.Errorf("station %s NonLinLoc buffer size mismatch", st.Name))
		}

		ns := len(stations)
		for c := 0; c < ncells; c++ {
			mapsP[c*ns+i] = float64(pData[c])
			mapsS[c*ns+i] = float64(sData[c])
		}
	}

	lut := LUT{Grid3D: grid, Stations: stations, MapsP: mapsP, MapsS: mapsS}
	return lut, lut.Validate()
}
