package quakescan

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

var ErrCreateScanTdb = errors.New("error creating scan tiledb array")
var ErrWriteScanTdb = errors.New("error writing scan to tiledb array")

// scanTdbSchema builds a dense 1D array over output time samples, holding
// the coalescence time series as three attributes (MaxCoa,
// MaxCoaNormalised, ArgmaxIndex): one cell per sample, one attribute per
// measured field.
func scanTdbSchema(ctx *tiledb.Context, nsamples int) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "t", tiledb.TILEDB_INT32, []int32{0, int32(nsamples - 1)}, int32(nsamples))
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer dim.Free()
	if err := domain.AddDimensions(dim); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer filts.Free()
	zstd, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer zstd.Free()
	if err := AddFilters(filts, zstd); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	attrSpecs := []struct {
		name  string
		dtype tiledb.Datatype
	}{
		{"MaxCoa", tiledb.TILEDB_FLOAT64},
		{"MaxCoaNormalised", tiledb.TILEDB_FLOAT64},
		{"ArgmaxIndex", tiledb.TILEDB_INT32},
	}
	for _, spec := range attrSpecs {
		attr, err := tiledb.NewAttribute(ctx, spec.name, spec.dtype)
		if err != nil {
			return nil, errors.Join(ErrCreateScanTdb, err)
		}
		if err := AttachFilters(filts, attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreateScanTdb, err)
		}
		if err := schema.AddAttributes(attr); err != nil {
			attr.Free()
			return nil, errors.Join(ErrCreateScanTdb, err)
		}
		attr.Free()
	}

	return schema, nil
}

// WriteCoalescenceSamplesTileDB persists a scan run's time series as a
// dense TileDB array at arrayURI, one cell per output time sample.
func WriteCoalescenceSamplesTileDB(ctx *tiledb.Context, arrayURI string, samples []CoalescenceSample) error {
	if len(samples) == 0 {
		return errors.Join(ErrCreateScanTdb, errors.New("no coalescence samples to write"))
	}

	schema, err := scanTdbSchema(ctx, len(samples))
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, arrayURI)
	if err != nil {
		return errors.Join(ErrCreateScanTdb, err)
	}
	defer array.Free()
	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateScanTdb, err)
	}

	wArray, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer wArray.Free()
	defer wArray.Close()

	query, err := tiledb.NewQuery(ctx, wArray)
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}

	maxCoa := make([]float64, len(samples))
	maxCoaNorm := make([]float64, len(samples))
	argmax := make([]int32, len(samples))
	for i, s := range samples {
		maxCoa[i] = s.MaxCoa
		maxCoaNorm[i] = s.MaxCoaNormalised
		argmax[i] = int32(s.ArgmaxIndex)
	}

	if _, err := query.SetDataBuffer("MaxCoa", maxCoa); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if _, err := query.SetDataBuffer("MaxCoaNormalised", maxCoaNorm); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if _, err := query.SetDataBuffer("ArgmaxIndex", argmax); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}

	subarr, err := wArray.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer subarr.Free()
	if err := subarr.AddRangeByName("t", tiledb.MakeRange(int32(0), int32(len(samples)-1))); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	return query.Finalize()
}

// coalescenceVolumeTdbSchema builds a dense 2D array (t, cell) for the raw
// stacked coalescence volume the Locator needs for its marginal map, kept
// as a separate array from the per-sample summary so callers that only
// want max_coa/argmax never have to read the full volume.
func coalescenceVolumeTdbSchema(ctx *tiledb.Context, outLen, ncells int) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer domain.Free()

	tDim, err := tiledb.NewDimension(ctx, "t", tiledb.TILEDB_INT32, []int32{0, int32(outLen - 1)}, int32(outLen))
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer tDim.Free()
	if err := domain.AddDimensions(tDim); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	cellDim, err := tiledb.NewDimension(ctx, "cell", tiledb.TILEDB_INT32, []int32{0, int32(ncells - 1)}, int32(ncells))
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer cellDim.Free()
	if err := domain.AddDimensions(cellDim); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer filts.Free()
	zstd, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	defer zstd.Free()
	if err := AddFilters(filts, zstd); err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}

	attr, err := tiledb.NewAttribute(ctx, "Coa", tiledb.TILEDB_FLOAT64)
	if err != nil {
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := AttachFilters(filts, attr); err != nil {
		attr.Free()
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		attr.Free()
		return nil, errors.Join(ErrCreateScanTdb, err)
	}
	attr.Free()

	return schema, nil
}

// WriteCoalescenceVolumeTileDB persists the raw per-cell-per-sample
// coalescence volume coa (row-major, time-outer/cell-inner, as produced by
// CoalescenceScanner.Scan) as a dense TileDB array.
func WriteCoalescenceVolumeTileDB(ctx *tiledb.Context, arrayURI string, coa []float64, outLen, ncells int) error {
	if len(coa) != outLen*ncells {
		return errors.Join(ErrShape, errors.New("coalescence volume length does not match outLen*ncells"))
	}

	schema, err := coalescenceVolumeTdbSchema(ctx, outLen, ncells)
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, arrayURI)
	if err != nil {
		return errors.Join(ErrCreateScanTdb, err)
	}
	defer array.Free()
	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateScanTdb, err)
	}

	wArray, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer wArray.Free()
	defer wArray.Close()

	query, err := tiledb.NewQuery(ctx, wArray)
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if _, err := query.SetDataBuffer("Coa", coa); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}

	subarr, err := wArray.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	defer subarr.Free()
	if err := subarr.AddRangeByName("t", tiledb.MakeRange(int32(0), int32(outLen-1))); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if err := subarr.AddRangeByName("cell", tiledb.MakeRange(int32(0), int32(ncells-1))); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteScanTdb, err)
	}
	return query.Finalize()
}
