package quakescan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVelocityModelValidateRejectsEmpty(t *testing.T) {
	var v VelocityModel
	if err := v.Validate(); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestVelocityModelValidateRejectsNonMonotonicDepth(t *testing.T) {
	v := VelocityModel{Layers: []VelocityLayer{
		{DepthM: 0, VpMS: 1000, VsMS: 500},
		{DepthM: 0, VpMS: 2000, VsMS: 1000},
	}}
	if err := v.Validate(); err == nil {
		t.Fatal("expected error for non-increasing depth")
	}
}

func TestVelocityModelVelocityAtInterpolates(t *testing.T) {
	v := VelocityModel{Layers: []VelocityLayer{
		{DepthM: 0, VpMS: 1000, VsMS: 500},
		{DepthM: 1000, VpMS: 2000, VsMS: 1000},
	}}
	vp, vs := v.VelocityAt(500)
	if vp != 1500 || vs != 750 {
		t.Errorf("VelocityAt(500) = (%v, %v), want (1500, 750)", vp, vs)
	}
}

func TestVelocityModelVelocityAtBlockModelHolds(t *testing.T) {
	v := VelocityModel{BlockModel: true, Layers: []VelocityLayer{
		{DepthM: 0, VpMS: 1000, VsMS: 500},
		{DepthM: 1000, VpMS: 2000, VsMS: 1000},
	}}
	vp, vs := v.VelocityAt(500)
	if vp != 1000 || vs != 500 {
		t.Errorf("VelocityAt(500) block model = (%v, %v), want (1000, 500)", vp, vs)
	}
}

func TestVelocityModelVelocityAtExtendsBeyondLayers(t *testing.T) {
	v := VelocityModel{Layers: []VelocityLayer{
		{DepthM: 0, VpMS: 1000, VsMS: 500},
		{DepthM: 1000, VpMS: 2000, VsMS: 1000},
	}}
	vp, vs := v.VelocityAt(-100)
	if vp != 1000 || vs != 500 {
		t.Errorf("VelocityAt(-100) = (%v, %v), want first layer values", vp, vs)
	}
	vp, vs = v.VelocityAt(5000)
	if vp != 2000 || vs != 1000 {
		t.Errorf("VelocityAt(5000) = (%v, %v), want last layer values", vp, vs)
	}
}

func TestReadVelocityModelCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.vel.csv")
	contents := "depth,vp,vs\n0,1000,500\n1000,2000,1000\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	model, err := ReadVelocityModelCSV(path)
	if err != nil {
		t.Fatalf("ReadVelocityModelCSV: %v", err)
	}
	if len(model.Layers) != 2 {
		t.Fatalf("len(Layers) = %d, want 2", len(model.Layers))
	}
	if model.Layers[1].VpMS != 2000 {
		t.Errorf("Layers[1].VpMS = %v, want 2000", model.Layers[1].VpMS)
	}
}

func TestReadVelocityModelCSVRejectsMalformedRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.vel.csv")
	contents := "depth,vp,vs\n0,not-a-number,500\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := ReadVelocityModelCSV(path); err == nil {
		t.Fatal("expected error for malformed row")
	}
}
