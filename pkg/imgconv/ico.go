package imgconv

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"io"

	"github.com/rotisserie/eris"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// DefaultIconSizes are the sizes Windows picks from for application and installer icons.
var DefaultIconSizes = []int{16, 24, 32, 48, 64, 128, 256}

// RenderSVG rasterizes an SVG document into a size×size RGBA image. The drawing keeps its aspect
// ratio and is centered.
func RenderSVG(r io.Reader, size int) (*image.RGBA, error) {
	if size < 1 || size > 256 {
		return nil, eris.Errorf("invalid icon size %d", size)
	}

	icon, err := oksvg.ReadIconStream(r, oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse SVG")
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, eris.New("SVG has an empty view box")
	}

	scale := float64(size) / w
	if float64(size)/h < scale {
		scale = float64(size) / h
	}

	tw, th := w*scale, h*scale
	icon.SetTarget((float64(size)-tw)/2, (float64(size)-th)/2, tw, th)

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	return img, nil
}

// RenderSVGSizes renders the SVG document once per size.
func RenderSVGSizes(data []byte, sizes []int) ([]image.Image, error) {
	images := make([]image.Image, 0, len(sizes))
	for _, size := range sizes {
		img, err := RenderSVG(bytes.NewReader(data), size)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to render %dpx", size)
		}
		images = append(images, img)
	}
	return images, nil
}

type icoHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type icoDirEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	Size       uint32
	Offset     uint32
}

const (
	icoHeaderSize   = 6
	icoDirEntrySize = 16
)

// sizeByte encodes an icon dimension for the ICO directory where 256 is stored as 0.
func sizeByte(n int) uint8 {
	if n >= 256 {
		return 0
	}
	return uint8(n)
}

// WriteICO writes the images into an ICO container. Every entry is stored as a PNG.
func WriteICO(w io.Writer, images []image.Image) error {
	if len(images) == 0 {
		return eris.New("an icon needs at least one image")
	}

	encoded := make([][]byte, len(images))
	for idx, img := range images {
		b := img.Bounds()
		if b.Dx() > 256 || b.Dy() > 256 {
			return eris.Errorf("image %d is %dx%d but icons can be at most 256x256", idx, b.Dx(), b.Dy())
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return eris.Wrapf(err, "failed to encode image %d", idx)
		}
		encoded[idx] = buf.Bytes()
	}

	err := binary.Write(w, binary.LittleEndian, icoHeader{Type: 1, Count: uint16(len(images))})
	if err != nil {
		return eris.Wrap(err, "failed to write ICO header")
	}

	offset := uint32(icoHeaderSize + icoDirEntrySize*len(images))
	for idx, img := range images {
		b := img.Bounds()
		entry := icoDirEntry{
			Width:    sizeByte(b.Dx()),
			Height:   sizeByte(b.Dy()),
			Planes:   1,
			BitCount: 32,
			Size:     uint32(len(encoded[idx])),
			Offset:   offset,
		}
		offset += entry.Size

		if err := binary.Write(w, binary.LittleEndian, entry); err != nil {
			return eris.Wrap(err, "failed to write ICO directory")
		}
	}

	for idx, data := range encoded {
		if _, err := w.Write(data); err != nil {
			return eris.Wrapf(err, "failed to write image %d", idx)
		}
	}

	return nil
}
