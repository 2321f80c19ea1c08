package quakescan

import (
	"errors"
	"reflect"
	"strconv"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"
)

var ErrCreateAttr = errors.New("error creating tiledb attribute")
var ErrDims = errors.New("error: slice nesting is deeper than 2D")
var ErrDtype = errors.New("error: slice datatype is unexpected")
var ErrSetBuff = errors.New("error setting tiledb buffer")

// ArrayOpen opens a TileDB array at uri in the given mode. Used by every
// *_tiledb.go reader/writer (LUT volumes, coalescence scans, picks, velocity
// profiles).
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}

	if err := array.Open(mode); err != nil {
		array.Free()
		return nil, err
	}

	return array, nil
}

// AddFilters sequentially appends compression filters to a filter list.
func AddFilters(filterList *tiledb.FilterList, filter ...*tiledb.Filter) error {
	for _, filt := range filter {
		if err := filterList.AddFilter(filt); err != nil {
			return err
		}
	}
	return nil
}

// ZstdFilter builds the Zstandard compression filter at the given level.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	return levelledFilter(ctx, tiledb.TILEDB_FILTER_ZSTD, level)
}

// GzipFilter builds the deflate compression filter at the given level.
func GzipFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	return levelledFilter(ctx, tiledb.TILEDB_FILTER_GZIP, level)
}

// Lz4Filter builds the LZ4 compression filter at the given level.
func Lz4Filter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	return levelledFilter(ctx, tiledb.TILEDB_FILTER_LZ4, level)
}

// RleFilter builds the run-length-encoding filter. The level is accepted for
// tag-syntax symmetry but ignored internally by TileDB.
func RleFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	return levelledFilter(ctx, tiledb.TILEDB_FILTER_RLE, level)
}

// Bzip2Filter builds the Burrows-Wheeler compression filter at the given level.
func Bzip2Filter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	return levelledFilter(ctx, tiledb.TILEDB_FILTER_BZIP2, level)
}

func levelledFilter(ctx *tiledb.Context, kind tiledb.FilterType, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// BitWidthReductionFilter builds the bit-width-reduction filter with the
// given window size.
func BitWidthReductionFilter(ctx *tiledb.Context, window int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BIT_WIDTH_REDUCTION)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_BIT_WIDTH_MAX_WINDOW, window); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// AttachFilters sets the same filter list on each of a group of attributes.
func AttachFilters(filterList *tiledb.FilterList, attrs ...*tiledb.Attribute) error {
	for _, attr := range attrs {
		if err := attr.SetFilterList(filterList); err != nil {
			return err
		}
	}
	return nil
}

// CreateAttr creates a tiledb attribute plus its compression filter pipeline,
// driven entirely by struct-tag definitions. Tags: `tiledb:"dtype=...,ftype=attr"`
// and `filters:"zstd(level=16)"` (also gzip, lz4, rle, bzip2, bitw, bish, bysh,
// applied in tag order). Variable-length fields (`tiledb:"dtype=...,var"`) get
// their offsets compressed with positive-delta + byteshuffle + zstd(16).
// Used by the velocity-profile schema (velocity_tiledb.go); the LUT, scan and
// pick schemas create their attributes directly with tiledb.NewAttribute.
func CreateAttr(
	fieldName string,
	filterDefs []stgpsr.Definition,
	tiledbDefs map[string]stgpsr.Definition,
	schema *tiledb.ArraySchema,
	ctx *tiledb.Context,
) error {
	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttr, errors.New("dtype tag not found"))
	}
	dtypeVal, _ := def.Attribute("dtype")
	dtype, _ := dtypeVal.(string)

	tdbDtype, err := tiledbDatatype(dtype)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	attrFilts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attrFilts.Free()

	for _, filter := range filterDefs {
		if err := applyFilterTag(ctx, attrFilts, filter); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, tdbDtype)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr.Free()

	_, isVar := tiledbDefs["var"]
	if isVar {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	if err := AttachFilters(attrFilts, attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	if isVar {
		if err := attachOffsetsFilterList(ctx, schema); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	return nil
}

func tiledbDatatype(dtype string) (tiledb.Datatype, error) {
	switch dtype {
	case "int8":
		return tiledb.TILEDB_INT8, nil
	case "uint8":
		return tiledb.TILEDB_UINT8, nil
	case "int16":
		return tiledb.TILEDB_INT16, nil
	case "uint16":
		return tiledb.TILEDB_UINT16, nil
	case "int32":
		return tiledb.TILEDB_INT32, nil
	case "uint32":
		return tiledb.TILEDB_UINT32, nil
	case "int64":
		return tiledb.TILEDB_INT64, nil
	case "uint64":
		return tiledb.TILEDB_UINT64, nil
	case "float32":
		return tiledb.TILEDB_FLOAT32, nil
	case "float64":
		return tiledb.TILEDB_FLOAT64, nil
	case "datetime_ns":
		return tiledb.TILEDB_DATETIME_NS, nil
	case "string":
		return tiledb.TILEDB_STRING_UTF8, nil
	default:
		return 0, errors.Join(ErrDtype, errors.New(dtype))
	}
}

func applyFilterTag(ctx *tiledb.Context, attrFilts *tiledb.FilterList, filter stgpsr.Definition) error {
	levelled := func(build func(*tiledb.Context, int32) (*tiledb.Filter, error), attrName string) error {
		level, ok := filter.Attribute(attrName)
		if !ok {
			return errors.New(filter.Name() + " level/window not defined")
		}
		filt, err := build(ctx, int32(level.(int64)))
		if err != nil {
			return err
		}
		defer filt.Free()
		return attrFilts.AddFilter(filt)
	}

	switch filter.Name() {
	case "zstd":
		return levelled(ZstdFilter, "level")
	case "gzip":
		return levelled(GzipFilter, "level")
	case "lz4":
		return levelled(Lz4Filter, "level")
	case "rle":
		return levelled(RleFilter, "level")
	case "bzip2":
		return levelled(Bzip2Filter, "level")
	case "bitw":
		return levelled(BitWidthReductionFilter, "window")
	case "bish":
		return bareFilter(ctx, attrFilts, tiledb.TILEDB_FILTER_BITSHUFFLE)
	case "bysh":
		return bareFilter(ctx, attrFilts, tiledb.TILEDB_FILTER_BYTESHUFFLE)
	}
	return nil
}

func bareFilter(ctx *tiledb.Context, attrFilts *tiledb.FilterList, kind tiledb.FilterType) error {
	filt, err := tiledb.NewFilter(ctx, kind)
	if err != nil {
		return err
	}
	defer filt.Free()
	return attrFilts.AddFilter(filt)
}

func attachOffsetsFilterList(ctx *tiledb.Context, schema *tiledb.ArraySchema) error {
	offsetFilts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return err
	}

	ddFilt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
	if err != nil {
		return err
	}
	byshFilt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
	if err != nil {
		return err
	}
	zstdFilt, err := ZstdFilter(ctx, 16)
	if err != nil {
		return err
	}

	if err := AddFilters(offsetFilts, ddFilt, byshFilt, zstdFilt); err != nil {
		return err
	}
	return schema.SetOffsetsFilterList(offsetFilts)
}

// sliceDimsType walks nested slice types, reporting depth and the leaf
// element type. Callers must zero dims before calling.
func sliceDimsType(typ reflect.Type, dims *int) reflect.Type {
	if typ.Kind() == reflect.Slice {
		*dims++
		return sliceDimsType(typ.Elem(), dims)
	}
	return typ
}

// sliceOffsets computes TileDB var-length offsets for a ragged 2D slice.
func sliceOffsets[T any](s [][]T, byteSize uint64) []uint64 {
	offsets := make([]uint64, len(s))
	offset := uint64(0)
	for i := range s {
		offsets[i] = offset
		offset += uint64(len(s[i])) * byteSize
	}
	return offsets
}

// setStructFieldBuffers binds every exported field of t to a TileDB query
// data buffer via reflection, dispatching on the field's slice depth and
// leaf element type. Flat slices bind directly; ragged 2D slices are
// flattened with their offsets bound alongside, per TileDB's var-length
// attribute convention.
func setStructFieldBuffers(query *tiledb.Query, t any) error {
	const (
		size1 = uint64(1)
		size2 = uint64(2)
		size4 = uint64(4)
		size8 = uint64(8)
	)

	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()

	for i := 0; i < values.NumField(); i++ {
		if !types.Field(i).IsExported() {
			continue
		}
		name := types.Field(i).Name
		fld := values.Field(i)

		dims := 0
		leaf := sliceDimsType(fld.Type(), &dims)

		switch dims {
		case 1:
			if err := bindFlatBuffer(query, name, leaf.Name(), fld); err != nil {
				return err
			}
		case 2:
			if err := bindRaggedBuffer(query, name, leaf.Name(), fld, size1, size2, size4, size8); err != nil {
				return err
			}
		default:
			return errors.Join(ErrDims, errors.New(strconv.Itoa(dims)))
		}
	}
	return nil
}

func bindFlatBuffer(query *tiledb.Query, name, leafName string, fld reflect.Value) error {
	var err error
	switch leafName {
	case "int8":
		_, err = query.SetDataBuffer(name, fld.Interface().([]int8))
	case "uint8":
		_, err = query.SetDataBuffer(name, fld.Interface().([]uint8))
	case "int16":
		_, err = query.SetDataBuffer(name, fld.Interface().([]int16))
	case "uint16":
		_, err = query.SetDataBuffer(name, fld.Interface().([]uint16))
	case "int32":
		_, err = query.SetDataBuffer(name, fld.Interface().([]int32))
	case "uint32":
		_, err = query.SetDataBuffer(name, fld.Interface().([]uint32))
	case "int64":
		_, err = query.SetDataBuffer(name, fld.Interface().([]int64))
	case "uint64":
		_, err = query.SetDataBuffer(name, fld.Interface().([]uint64))
	case "float32":
		_, err = query.SetDataBuffer(name, fld.Interface().([]float32))
	case "float64":
		_, err = query.SetDataBuffer(name, fld.Interface().([]float64))
	case "Time":
		slc := fld.Interface().([]time.Time)
		stamps := make([]int64, len(slc))
		for i, v := range slc {
			stamps[i] = v.UnixNano()
		}
		_, err = query.SetDataBuffer(name, stamps)
	default:
		return errors.Join(ErrDtype, errors.New(leafName))
	}
	if err != nil {
		return errors.Join(ErrSetBuff, err, errors.New(name))
	}
	return nil
}

func bindRaggedBuffer(query *tiledb.Query, name, leafName string, fld reflect.Value, size1, size2, size4, size8 uint64) error {
	var err error
	switch leafName {
	case "int8":
		slc := fld.Interface().([][]int8)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size1))
	case "uint8":
		slc := fld.Interface().([][]uint8)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size1))
	case "int16":
		slc := fld.Interface().([][]int16)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size2))
	case "uint16":
		slc := fld.Interface().([][]uint16)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size2))
	case "int32":
		slc := fld.Interface().([][]int32)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size4))
	case "uint32":
		slc := fld.Interface().([][]uint32)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size4))
	case "int64":
		slc := fld.Interface().([][]int64)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size8))
	case "uint64":
		slc := fld.Interface().([][]uint64)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size8))
	case "float32":
		slc := fld.Interface().([][]float32)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size4))
	case "float64":
		slc := fld.Interface().([][]float64)
		err = bindFlattened(query, name, lo.Flatten(slc), sliceOffsets(slc, size8))
	case "Time":
		slc := fld.Interface().([][]time.Time)
		flat := lo.Flatten(slc)
		offsets := sliceOffsets(slc, size8)
		stamps := make([]int64, len(flat))
		for i, v := range flat {
			stamps[i] = v.UnixNano()
		}
		if _, err = query.SetOffsetsBuffer(name, offsets); err != nil {
			return errors.Join(err, errors.New(name))
		}
		_, err = query.SetDataBuffer(name, stamps)
	default:
		return errors.Join(ErrDtype, errors.New(leafName))
	}
	if err != nil {
		return errors.Join(err, errors.New(name))
	}
	return nil
}

func bindFlattened[T any](query *tiledb.Query, name string, flat []T, offsets []uint64) error {
	if _, err := query.SetOffsetsBuffer(name, offsets); err != nil {
		return err
	}
	_, err := query.SetDataBuffer(name, flat)
	return err
}

// WriteArrayMetadata JSON-serialises md and attaches it to the array at
// array_uri under key.
func WriteArrayMetadata(ctx *tiledb.Context, arrayURI, key string, md any) error {
	array, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(err, errors.New("opening (w) tiledb array: "+arrayURI))
	}
	defer array.Free()
	defer array.Close()

	jsn, err := JsonDumps(md)
	if err != nil {
		return errors.Join(err, errors.New("serialising metadata to json"))
	}

	if err := array.PutMetadata(key, jsn); err != nil {
		return errors.Join(err, errors.New("writing metadata to array: "+arrayURI))
	}
	return nil
}
