package quakescan

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"
)

var ErrCreateVelocityTdb = errors.New("error creating velocity model tiledb array")
var ErrWriteVelocityTdb = errors.New("error writing velocity model to tiledb array")
var ErrReadVelocityTdb = errors.New("error reading velocity model from tiledb array")

// velocityTdbRow is the struct-tag-driven TileDB row shape for a
// VelocityModel: one row per layer, dimensioned by depth order. The
// struct-tag/reflection schema builder is grounded on the
// SoundVelocityProfile array (svp.go), here narrowed to fixed-length
// attributes since a VelocityModel's layers are not ragged.
type velocityTdbRow struct {
	DepthM     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	VpMS       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	VsMS       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	BlockModel []uint8   `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
}

func (v VelocityModel) toRow() velocityTdbRow {
	n := len(v.Layers)
	row := velocityTdbRow{
		DepthM: make([]float64, n),
		VpMS:   make([]float64, n),
		VsMS:   make([]float64, n),
	}
	block := uint8(0)
	if v.BlockModel {
		block = 1
	}
	row.BlockModel = []uint8{block}
	for i, l := range v.Layers {
		row.DepthM[i] = l.DepthM
		row.VpMS[i] = l.VpMS
		row.VsMS[i] = l.VsMS
	}
	return row
}

// velocityTdbSchema builds the dense one-dimensional array schema for a
// VelocityModel, following svp_tiledb_array's domain/dimension/filter
// construction exactly, retargeted at layer rows instead of acquisition rows.
func velocityTdbSchema(ctx *tiledb.Context, nlayers uint64) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	defer domain.Free()

	dim, err := tiledb.NewDimension(ctx, "layer", tiledb.TILEDB_UINT64, []uint64{0, nlayers - 1}, nlayers)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	defer dim.Free()

	dimFilts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	defer dimFilts.Free()

	ddFilt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	defer ddFilt.Free()

	zstdFilt, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	defer zstdFilt.Free()

	if err := AddFilters(dimFilts, ddFilt, zstdFilt); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	if err := dim.SetFilterList(dimFilts); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	if err := domain.AddDimensions(dim); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_DENSE)
	if err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateVelocityTdb, err)
	}

	row := velocityTdbRow{}
	values := reflect.ValueOf(&row).Elem()
	types := values.Type()
	filtDefs, _ := stgpsr.ParseStruct(&row, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(&row, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		if types.Field(i).Name == "BlockModel" {
			continue // scalar flag, attached as array metadata instead
		}
		name := types.Field(i).Name
		fieldTdb := make(map[string]stgpsr.Definition)
		for _, d := range tdbDefs[name] {
			fieldTdb[d.Name()] = d
		}
		if err := CreateAttr(name, filtDefs[name], fieldTdb, schema, ctx); err != nil {
			return nil, errors.Join(ErrCreateVelocityTdb, err)
		}
	}

	return schema, nil
}

// WriteVelocityModelTileDB persists model as a dense one-dimensional TileDB
// array at arrayURI, one cell per layer, with BlockModel stored as array
// metadata (it is a model-wide flag, not a per-layer value).
func WriteVelocityModelTileDB(ctx *tiledb.Context, arrayURI string, model VelocityModel) error {
	if err := model.Validate(); err != nil {
		return err
	}
	nlayers := uint64(len(model.Layers))

	schema, err := velocityTdbSchema(ctx, nlayers)
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, arrayURI)
	if err != nil {
		return errors.Join(ErrCreateVelocityTdb, err)
	}
	defer array.Free()
	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateVelocityTdb, err)
	}

	wArray, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}
	defer wArray.Free()
	defer wArray.Close()

	query, err := tiledb.NewQuery(ctx, wArray)
	if err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}
	defer query.Free()
	if err := query.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}

	row := model.toRow()
	if err := setStructFieldBuffers(query, &struct {
		DepthM []float64
		VpMS   []float64
		VsMS   []float64
	}{row.DepthM, row.VpMS, row.VsMS}); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}

	subarr, err := wArray.NewSubarray()
	if err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}
	defer subarr.Free()
	if err := subarr.AddRangeByName("layer", tiledb.MakeRange(uint64(0), nlayers-1)); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}
	if err := query.SetSubarray(subarr); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}

	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}
	if err := query.Finalize(); err != nil {
		return errors.Join(ErrWriteVelocityTdb, err)
	}

	return WriteArrayMetadata(ctx, arrayURI, "block_model", map[string]bool{"block_model": model.BlockModel})
}
