package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"
)

func encodePGM(img *image.Gray) []byte {
	b := img.Bounds()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P5\n%d %d\n255\n", b.Dx(), b.Dy())
	buf.Write(img.Pix)
	return buf.Bytes()
}

func encodePPM(img *image.RGBA) []byte {
	b := img.Bounds()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P6\n%d %d\n255\n", b.Dx(), b.Dy())
	for i := 0; i < b.Dx()*b.Dy(); i++ {
		buf.Write(img.Pix[4*i : 4*i+3])
	}
	return buf.Bytes()
}

func dotGray(w, h int, dots []image.Point) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 50
	}
	for _, d := range dots {
		img.SetGray(d.X, d.Y, color.Gray{Y: 250})
	}
	return img
}

func TestDecodePGM(t *testing.T) {
	src := dotGray(8, 6, []image.Point{{X: 3, Y: 2}})
	img, format, err := image.Decode(bytes.NewReader(encodePGM(src)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "pnm")
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))
	gray, ok := img.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, gray.GrayAt(3, 2), test.ShouldResemble, color.Gray{Y: 250})
	test.That(t, gray.GrayAt(0, 0), test.ShouldResemble, color.Gray{Y: 50})
}

func TestDecodePPM(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	src.Set(1, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	img, format, err := image.Decode(bytes.NewReader(encodePPM(src)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "pnm")
	rgba, ok := img.(*image.RGBA)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, rgba.RGBAAt(1, 1), test.ShouldResemble, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	test.That(t, rgba.RGBAAt(0, 0), test.ShouldResemble, color.RGBA{R: 10, G: 20, B: 30, A: 255})
}

func TestDecodePNMPlainAndComments(t *testing.T) {
	plain := []byte("P2\n# a comment\n2 2\n# another\n100\n0 50\n100 25\n")
	img, _, err := image.Decode(bytes.NewReader(plain))
	test.That(t, err, test.ShouldBeNil)
	gray, ok := img.(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	// samples are rescaled from maxval 100 to 255
	test.That(t, gray.GrayAt(0, 0), test.ShouldResemble, color.Gray{Y: 0})
	test.That(t, gray.GrayAt(1, 0), test.ShouldResemble, color.Gray{Y: 127})
	test.That(t, gray.GrayAt(0, 1), test.ShouldResemble, color.Gray{Y: 255})
	test.That(t, gray.GrayAt(1, 1), test.ShouldResemble, color.Gray{Y: 63})
}

func TestDecodePNMTruncated(t *testing.T) {
	full := encodePGM(dotGray(8, 8, nil))
	_, _, err := image.Decode(bytes.NewReader(full[:len(full)-10]))
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = image.Decode(bytes.NewReader([]byte("P5\n4 4\n70000\n")))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSortedImagePaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.ppm", "a.pgm", "c.png", "notes.txt"} {
		test.That(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600), test.ShouldBeNil)
	}
	test.That(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755), test.ShouldBeNil)

	paths, err := sortedImagePaths(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, paths, test.ShouldResemble, []string{
		filepath.Join(dir, "a.pgm"),
		filepath.Join(dir, "b.ppm"),
		filepath.Join(dir, "c.png"),
	})
}

func TestRunReplaysPNMSequence(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		img := dotGray(64, 64, []image.Point{{X: 20 + 8*i, Y: 30}})
		name := fmt.Sprintf("frame%d.pgm", i)
		test.That(t, os.WriteFile(filepath.Join(dir, name), encodePGM(img), 0o600), test.ShouldBeNil)
	}
	// an undecodable frame is skipped, not fatal
	test.That(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o600), test.ShouldBeNil)

	err := run(dir, t.TempDir(), "", "", 1, false)
	test.That(t, err, test.ShouldBeNil)
}

func TestPrefetchDecodesPNM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.pgm")
	test.That(t, os.WriteFile(path, encodePGM(dotGray(16, 16, nil)), 0o600), test.ShouldBeNil)

	// the same decode path the replay loop uses
	img, err := imaging.Open(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 16)

	images := prefetch([]string{path})
	test.That(t, len(images), test.ShouldEqual, 1)
	got, err := images[0].get()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Bounds().Dx(), test.ShouldEqual, 16)
}
