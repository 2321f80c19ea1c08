package quakescan

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

var ErrCreatePickTdb = errors.New("error creating pick tiledb array")
var ErrWritePickTdb = errors.New("error writing picks to tiledb array")

// pickTdbSchema builds a dense 1D array over pick index, one cell per
// (station, phase) pick produced by Picker.PickEvent. Station identity is
// stored as an index into the event's StationList rather than a var-length
// string, keeping the schema dense like every other *_tiledb.go array in
// this package.
func pickTdbSchema(ctx *tiledb.Context, npicks int) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "pick", tiledb.TILEDB_INT32, []int32{0, int32(npicks - 1)}, int32(npicks))
	if err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	defer dim.Free()
	if err := domain.AddDimensions(dim); err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	defer filts.Free()
	zstd, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}
	defer zstd.Free()
	if err := AddFilters(filts, zstd); err != nil {
		return nil, errors.Join(ErrCreatePickTdb, err)
	}

	attrSpecs := []struct {
		name  string
		dtype tiledb.Datatype
	}{
		{"StationIndex", tiledb.TILEDB_INT32},
		{"Phase", tiledb.TILEDB_INT8},
		{"ModelledTimeUnixNanos", tiledb.TILEDB_INT64},
		{"PickTimeUnixNanos", tiledb.TILEDB_INT64},
		{"PickError", tiledb.TILEDB_FLOAT64},
		{"PickValue", tiledb.TILEDB_FLOAT64},
		{"Picked", tiledb.TILEDB_UINT8},
	}
	for _, spec := range attrSpecs {
		attr, err := tiledb.NewAttribute(ctx, spec.name, spec.dtype)
		if err != nil {
			return nil, errors.Join(ErrCreatePickTdb, err)
		}
		if err := AttachFilters(filts, attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreatePickTdb, err)
		}
		if err := schema.AddAttributes(attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreatePickTdb, err)
		}
		attr.Free()
	}

	return schema, nil
}

// WritePicksTileDB persists an event's picks as a dense TileDB array at
// arrayURI, one cell per pick, station names resolved against stations to
// integer indices.
func WritePicksTileDB(ctx *tiledb.Context, arrayURI string, picks []Pick, stations StationList) error {
	if len(picks) == 0 {
		return errors.Join(ErrCreatePickTdb, errors.New("no picks to write"))
	}

	schema, err := pickTdbSchema(ctx, len(picks))
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, arrayURI)
	if err != nil {
		return errors.Join(ErrCreatePickTdb, err)
	}
	defer array.Free()
	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreatePickTdb, err)
	}

	wArray, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}
	defer wArray.Free()
	defer wArray.Close()

	query, err := tiledb.NewQuery(ctx, wArray)
	if err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}

	n := len(picks)
	stationIdx := make([]int32, n)
	phase := make([]int8, n)
	modelled := make([]int64, n)
	pickTime := make([]int64, n)
	pickErr := make([]float64, n)
	pickVal := make([]float64, n)
	picked := make([]uint8, n)

	for i, p := range picks {
		stationIdx[i] = int32(stations.IndexOf(p.Station))
		phase[i] = int8(p.Phase)
		modelled[i] = p.ModelledTime.UnixNano()
		pickTime[i] = p.PickTime.UnixNano()
		pickErr[i] = p.PickError
		pickVal[i] = p.PickValue
		if p.Picked {
			picked[i] = 1
		}
	}

	buffers := []struct {
		name string
		data any
	}{
		{"StationIndex", stationIdx},
		{"Phase", phase},
		{"ModelledTimeUnixNanos", modelled},
		{"PickTimeUnixNanos", pickTime},
		{"PickError", pickErr},
		{"PickValue", pickVal},
		{"Picked", picked},
	}
	for _, b := range buffers {
		var err error
		switch data := b.data.(type) {
		case []int32:
			_, err = query.SetDataBuffer(b.name, data)
		case []int8:
			_, err = query.SetDataBuffer(b.name, data)
		case []int64:
			_, err = query.SetDataBuffer(b.name, data)
		case []float64:
			_, err = query.SetDataBuffer(b.name, data)
		case []uint8:
			_, err = query.SetDataBuffer(b.name, data)
		}
		if err != nil {
			return errors.Join(ErrWritePickTdb, err)
		}
	}

	subarr, err := wArray.NewSubarray()
	if err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}
	defer subarr.Free()
	if err := subarr.AddRangeByName("pick", tiledb.MakeRange(int32(0), int32(n-1))); err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWritePickTdb, err)
	}
	return query.Finalize()
}
