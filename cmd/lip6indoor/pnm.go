package main

import (
	"bufio"
	"image"
	"image/color"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// The LIP6 sequences ship as netpbm images, which the stock decoders do not
// cover. Registering the four 8-bit variants lets imaging.Open read them like
// any other format.
func init() {
	for _, magic := range []string{"P2", "P3", "P5", "P6"} {
		image.RegisterFormat("pnm", magic, decodePNM, decodePNMConfig)
	}
}

type pnmHeader struct {
	magic  string
	width  int
	height int
	maxVal int
}

func decodePNM(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	h, err := readPNMHeader(br)
	if err != nil {
		return nil, err
	}
	switch h.magic {
	case "P2", "P5":
		return decodePNMGray(br, h)
	default:
		return decodePNMColor(br, h)
	}
}

func decodePNMConfig(r io.Reader) (image.Config, error) {
	h, err := readPNMHeader(bufio.NewReader(r))
	if err != nil {
		return image.Config{}, err
	}
	model := color.Model(color.GrayModel)
	if h.magic == "P3" || h.magic == "P6" {
		model = color.RGBAModel
	}
	return image.Config{ColorModel: model, Width: h.width, Height: h.height}, nil
}

func decodePNMGray(br *bufio.Reader, h pnmHeader) (*image.Gray, error) {
	img := image.NewGray(image.Rect(0, 0, h.width, h.height))
	if h.magic == "P5" {
		if _, err := io.ReadFull(br, img.Pix); err != nil {
			return nil, errors.Wrap(err, "short pgm raster")
		}
	} else {
		for i := range img.Pix {
			v, err := nextPNMInt(br)
			if err != nil {
				return nil, errors.Wrap(err, "short pgm raster")
			}
			img.Pix[i] = uint8(v)
		}
	}
	scalePNMSamples(img.Pix, h.maxVal)
	return img, nil
}

func decodePNMColor(br *bufio.Reader, h pnmHeader) (*image.RGBA, error) {
	raster := make([]byte, 3*h.width*h.height)
	if h.magic == "P6" {
		if _, err := io.ReadFull(br, raster); err != nil {
			return nil, errors.Wrap(err, "short ppm raster")
		}
	} else {
		for i := range raster {
			v, err := nextPNMInt(br)
			if err != nil {
				return nil, errors.Wrap(err, "short ppm raster")
			}
			raster[i] = uint8(v)
		}
	}
	scalePNMSamples(raster, h.maxVal)
	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	for i := 0; i < h.width*h.height; i++ {
		img.Pix[4*i] = raster[3*i]
		img.Pix[4*i+1] = raster[3*i+1]
		img.Pix[4*i+2] = raster[3*i+2]
		img.Pix[4*i+3] = 0xff
	}
	return img, nil
}

func readPNMHeader(br *bufio.Reader) (pnmHeader, error) {
	var h pnmHeader
	magic, err := nextPNMToken(br)
	if err != nil {
		return h, errors.Wrap(err, "reading pnm magic")
	}
	switch magic {
	case "P2", "P3", "P5", "P6":
		h.magic = magic
	default:
		return h, errors.Errorf("unsupported pnm magic %q", magic)
	}
	if h.width, err = nextPNMInt(br); err != nil {
		return h, errors.Wrap(err, "reading pnm width")
	}
	if h.height, err = nextPNMInt(br); err != nil {
		return h, errors.Wrap(err, "reading pnm height")
	}
	if h.maxVal, err = nextPNMInt(br); err != nil {
		return h, errors.Wrap(err, "reading pnm maxval")
	}
	if h.width <= 0 || h.height <= 0 {
		return h, errors.Errorf("invalid pnm dimensions %dx%d", h.width, h.height)
	}
	if h.maxVal <= 0 || h.maxVal > 255 {
		return h, errors.Errorf("unsupported pnm maxval %d", h.maxVal)
	}
	return h, nil
}

// nextPNMToken returns the next whitespace-delimited header token, skipping
// '#' comments. The delimiter after the token is consumed, which for raw
// rasters is exactly the single whitespace byte separating header and data.
func nextPNMToken(br *bufio.Reader) (string, error) {
	tok := make([]byte, 0, 8)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case b == '#':
			if _, err := br.ReadString('\n'); err != nil && err != io.EOF {
				return "", err
			}
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

func nextPNMInt(br *bufio.Reader) (int, error) {
	tok, err := nextPNMToken(br)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, errors.Wrapf(err, "bad pnm value %q", tok)
	}
	return v, nil
}

func scalePNMSamples(pix []byte, maxVal int) {
	if maxVal == 255 {
		return
	}
	for i, v := range pix {
		pix[i] = uint8(int(v) * 255 / maxVal)
	}
}
