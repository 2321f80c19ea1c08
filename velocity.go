package quakescan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// VelocityLayer is one row of a layered 1D velocity model: depth positive
// down, P and S velocities in metres/second.
type VelocityLayer struct {
	DepthM float64
	VpMS   float64
	VsMS   float64
}

// VelocityModel is an ordered sequence of VelocityLayers. BlockModel toggles
// piecewise-constant (step) versus piecewise-linear interpolation between
// layers.
type VelocityModel struct {
	Layers     []VelocityLayer
	BlockModel bool
}

// Validate rejects non-positive velocities and a non-increasing depth
// sequence.
func (v VelocityModel) Validate() error {
	if len(v.Layers) == 0 {
		return errors.Join(ErrBuild, errors.New("velocity model has no layers"))
	}
	for i, l := range v.Layers {
		if l.VpMS <= 0 || l.VsMS <= 0 {
			return errors.Join(ErrBuild, fmt.Errorf("layer %d has non-positive velocity", i))
		}
		if i > 0 && l.DepthM <= v.Layers[i-1].DepthM {
			return errors.Join(ErrBuild, fmt.Errorf("layer %d depth must increase monotonically", i))
		}
	}
	return nil
}

// VelocityAt returns (vp, vs) at depth z, extending the first and last
// layers to +/-infinity and either holding the shallower bracketing layer's
// velocity constant (BlockModel) or interpolating linearly between bracketing
// layers using the gradient dv/dz = (v[i+1]-v[i])/(z[i+1]-z[i]).
func (v VelocityModel) VelocityAt(z float64) (vp, vs float64) {
	layers := v.Layers
	if z <= layers[0].DepthM {
		return layers[0].VpMS, layers[0].VsMS
	}
	last := len(layers) - 1
	if z >= layers[last].DepthM {
		return layers[last].VpMS, layers[last].VsMS
	}

	for i := 0; i < last; i++ {
		if z >= layers[i].DepthM && z <= layers[i+1].DepthM {
			if v.BlockModel {
				return layers[i].VpMS, layers[i].VsMS
			}
			frac := (z - layers[i].DepthM) / (layers[i+1].DepthM - layers[i].DepthM)
			vp = layers[i].VpMS + frac*(layers[i+1].VpMS-layers[i].VpMS)
			vs = layers[i].VsMS + frac*(layers[i+1].VsMS-layers[i].VsMS)
			return vp, vs
		}
	}
	return layers[last].VpMS, layers[last].VsMS
}

// ReadVelocityModelCSV reads a velocity model from its external-interface
// CSV format: header row, columns depth,vp,vs.
func ReadVelocityModelCSV(path string) (VelocityModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return VelocityModel{}, errors.Join(ErrIO, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return VelocityModel{}, errors.Join(ErrIO, err)
	}
	if len(header) < 3 {
		return VelocityModel{}, errors.Join(ErrConfig, errors.New("velocity CSV requires depth,vp,vs columns"))
	}

	var model VelocityModel
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return VelocityModel{}, errors.Join(ErrIO, err)
		}
		depth, err1 := strconv.ParseFloat(row[0], 64)
		vp, err2 := strconv.ParseFloat(row[1], 64)
		vs, err3 := strconv.ParseFloat(row[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return VelocityModel{}, errors.Join(ErrConfig, errors.New("malformed velocity CSV row: "+fmt.Sprint(row)))
		}
		model.Layers = append(model.Layers, VelocityLayer{DepthM: depth, VpMS: vp, VsMS: vs})
	}

	return model, model.Validate()
}
