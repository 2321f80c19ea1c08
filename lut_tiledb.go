package quakescan

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

var ErrCreateLutTdb = errors.New("error creating LUT tiledb array")
var ErrWriteLutTdb = errors.New("error writing LUT to tiledb array")

// lutTdbSchema builds a dense 4D array schema (x, y, z, station) holding the
// P and S travel-time volumes as two attributes, following
// velocityTdbSchema's domain/dimension/filter construction
// (velocity_tiledb.go) generalised from one dimension to four.
func lutTdbSchema(ctx *tiledb.Context, g Grid3D, nstations int) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	defer domain.Free()

	dimSpecs := []struct {
		name string
		n    int
	}{
		{"x", g.CellCount[0]},
		{"y", g.CellCount[1]},
		{"z", g.CellCount[2]},
		{"station", nstations},
	}

	for _, spec := range dimSpecs {
		dim, err := tiledb.NewDimension(ctx, spec.name, tiledb.TILEDB_INT32, []int32{0, int32(spec.n - 1)}, int32(spec.n))
		if err != nil {
			return nil, errors.Join(ErrCreateLutTdb, err)
		}
		if err := domain.AddDimensions(dim); err != nil {
			dim.Free()
			return nil, errors.Join(ErrCreateLutTdb, err)
		}
		dim.Free()
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	defer filts.Free()
	zstd, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}
	defer zstd.Free()
	if err := AddFilters(filts, zstd); err != nil {
		return nil, errors.Join(ErrCreateLutTdb, err)
	}

	for _, name := range []string{"TimeP", "TimeS"} {
		attr, err := tiledb.NewAttribute(ctx, name, tiledb.TILEDB_FLOAT64)
		if err != nil {
			return nil, errors.Join(ErrCreateLutTdb, err)
		}
		if err := AttachFilters(filts, attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreateLutTdb, err)
		}
		if err := schema.AddAttributes(attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreateLutTdb, err)
		}
		attr.Free()
	}

	return schema, nil
}

// WriteLUTTileDB persists l as a dense TileDB array at arrayURI, dimensioned
// (x, y, z, station) with TimeP/TimeS attributes, so the travel-time volumes
// can be sliced and queried per station without reading the whole LUT.
func WriteLUTTileDB(ctx *tiledb.Context, arrayURI string, l LUT) error {
	if err := l.Validate(); err != nil {
		return err
	}

	schema, err := lutTdbSchema(ctx, l.Grid3D, len(l.Stations))
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, arrayURI)
	if err != nil {
		return errors.Join(ErrCreateLutTdb, err)
	}
	defer array.Free()
	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateLutTdb, err)
	}

	wArray, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}
	defer wArray.Free()
	defer wArray.Close()

	query, err := tiledb.NewQuery(ctx, wArray)
	if err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}

	if _, err := query.SetDataBuffer("TimeP", l.MapsP); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}
	if _, err := query.SetDataBuffer("TimeS", l.MapsS); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}

	subarr, err := wArray.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}
	defer subarr.Free()

	nx, ny, nz := l.CellCount[0], l.CellCount[1], l.CellCount[2]
	ns := len(l.Stations)
	ranges := []struct {
		name   string
		lo, hi int32
	}{
		{"x", 0, int32(nx - 1)},
		{"y", 0, int32(ny - 1)},
		{"z", 0, int32(nz - 1)},
		{"station", 0, int32(ns - 1)},
	}
	for _, r := range ranges {
		if err := subarr.AddRangeByName(r.name, tiledb.MakeRange(r.lo, r.hi)); err != nil {
			return errors.Join(ErrWriteLutTdb, err)
		}
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}
	if err := query.Finalize(); err != nil {
		return errors.Join(ErrWriteLutTdb, err)
	}

	meta := map[string]any{
		"cell_count":  l.CellCount,
		"cell_size":   l.CellSize,
		"azimuth":     l.Azimuth,
		"dip":         l.Dip,
		"grid_centre": l.GridCentre,
		"elevation":   l.Elevation,
	}
	return WriteArrayMetadata(ctx, arrayURI, "grid", meta)
}
