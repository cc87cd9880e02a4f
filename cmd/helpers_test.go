package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/imagerecovery/internal/objective"
)

// writePNGFile writes a w x h image filled by fill to dir/name.
func writePNGFile(t *testing.T, dir, name string, w, h int, fill func(x, y int) color.NRGBA) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
	return path
}

func solid(v uint8) func(x, y int) color.NRGBA {
	return func(x, y int) color.NRGBA { return color.NRGBA{R: v, G: v, B: v, A: 255} }
}

// writeAssetDir creates an asset directory whose target is solid grey v.
func writeAssetDir(t *testing.T, v uint8) string {
	t.Helper()
	dir := t.TempDir()
	s := objective.DomainShape
	writePNGFile(t, dir, objective.AssetName, s.Width, s.Height, solid(v))
	return dir
}
