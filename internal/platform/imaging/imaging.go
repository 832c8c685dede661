// Package imaging inspects uploaded photos before they are sent for identification.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupported = errors.New("imaging: unsupported or corrupt image")

type Info struct {
	MimeType string
	Width    int
	Height   int
}

var mimeByFormat = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// Inspect reads only the image header. HEIC/HEIF camera photos have no Go decoder;
// they are recognized by their ftyp brand and returned without dimensions.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, ErrUnsupported
	}
	if mime, ok := heifBrand(data); ok {
		return Info{MimeType: mime}, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	mime, ok := mimeByFormat[format]
	if !ok {
		return Info{}, fmt.Errorf("%w: format %q", ErrUnsupported, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, fmt.Errorf("%w: empty %dx%d", ErrUnsupported, cfg.Width, cfg.Height)
	}
	return Info{MimeType: mime, Width: cfg.Width, Height: cfg.Height}, nil
}

func heifBrand(data []byte) (string, bool) {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return "", false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis":
		return "image/heic", true
	case "mif1", "msf1", "heif":
		return "image/heif", true
	}
	return "", false
}
