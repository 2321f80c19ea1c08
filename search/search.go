package search

import (
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// trawl recursively lists every file under uri whose basename matches
// pattern, using TileDB's VFS layer so local filesystems and object stores
// (s3://, ...) are searched identically.
func trawl(vfs *tiledb.VFS, pattern string, uri string, items []string) []string {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		panic(err)
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			panic(err)
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items = trawl(vfs, pattern, dir, items)
	}

	return items
}

// findByPattern opens a VFS rooted at configURI (or a default TileDB config
// when empty) and trawls uri for files matching pattern.
func findByPattern(uri, configURI, pattern string) []string {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			panic(err)
		}
	} else {
		config, err = tiledb.LoadConfig(configURI)
		if err != nil {
			panic(err)
		}
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		panic(err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		panic(err)
	}
	defer vfs.Free()

	return trawl(vfs, pattern, uri, make([]string, 0))
}

// FindLUT recursively searches uri for precomputed LUT blobs.
func FindLUT(uri, configURI string) []string {
	return findByPattern(uri, configURI, "*.lut")
}

// FindVelocityModels recursively searches uri for velocity model CSVs.
func FindVelocityModels(uri, configURI string) []string {
	return findByPattern(uri, configURI, "*.vel.csv")
}

// FindNonLinLocHeaders recursively searches uri for NonLinLoc header files
// (the `<root>.hdr`/`<root>.buf` pair).
func FindNonLinLocHeaders(uri, configURI string) []string {
	return findByPattern(uri, configURI, "*.hdr")
}

// FindWaveformFrames recursively searches uri for pre-extracted waveform
// frame files, the input unit of a batch scan.
func FindWaveformFrames(uri, configURI string) []string {
	return findByPattern(uri, configURI, "*.frame.json")
}
