// Package imagegen generates images with the OpenAI Images API and
// produces a stored original and a thumbnail.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/scttfrdmn/toolplan/tools/builtin"
)

// Bounding boxes for the stored images.
const (
	OriginalSize  = 512
	ThumbnailSize = 128
)

// maxDownload caps a fetched image.
const maxDownload = 20 << 20

// Generator is an OpenAI-backed builtin.ImageGenerator.
type Generator struct {
	client     *openai.Client
	model      string
	size       string
	httpClient *http.Client
}

var _ builtin.ImageGenerator = (*Generator)(nil)

// New creates a generator. Model defaults to DALL·E 3.
func New(client *openai.Client, model string) *Generator {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &Generator{
		client:     client,
		model:      model,
		size:       openai.CreateImageSize1024x1024,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate creates one image for prompt and returns it downscaled to
// OriginalSize plus a ThumbnailSize thumbnail, both PNG.
func (g *Generator) Generate(ctx context.Context, prompt string) (*builtin.Image, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image api error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no image")
	}

	var raw []byte
	switch d := resp.Data[0]; {
	case d.B64JSON != "":
		raw, err = base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decoding image payload: %w", err)
		}
	case d.URL != "":
		raw, err = g.fetch(ctx, d.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("openai returned an empty image")
	}

	original, thumb, err := Resize(raw)
	if err != nil {
		return nil, err
	}
	return &builtin.Image{Original: original, Thumbnail: thumb}, nil
}

func (g *Generator) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image: unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
}

// Resize decodes raw (PNG, JPEG or WebP) and returns a PNG fitted into
// OriginalSize and a PNG thumbnail fitted into ThumbnailSize. Images are
// never upscaled.
func Resize(raw []byte) (original, thumbnail []byte, err error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding image: %w", err)
	}

	full := fit(src, OriginalSize)
	if original, err = encodePNG(full); err != nil {
		return nil, nil, err
	}
	if thumbnail, err = encodePNG(fit(full, ThumbnailSize)); err != nil {
		return nil, nil, err
	}
	return original, thumbnail, nil
}

// fit scales src to fit a max×max box, keeping the aspect ratio.
func fit(src image.Image, max int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
