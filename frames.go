package imagemod

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// imageExtensions are the file extensions accepted in directory mode.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".webp": true, ".gif": true, ".bmp": true,
}

// IsImageFile reports whether a path looks like a supported image file.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadFrames reads and decodes an image file into pipeline frames. Animated
// GIFs are composited and sampled down to at most sampleHint frames at decode
// time, so frames that will never be scored are not materialized.
func LoadFrames(path string, sampleHint int) ([]*Frame, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-supplied input path.
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return DecodeFrames(data, sampleHint)
}

// DecodeFrames decodes raw image bytes into pipeline frames. Static images
// yield a single frame. The raw bytes are attached to the first frame for
// engines that need the undecoded file.
func DecodeFrames(data []byte, sampleHint int) ([]*Frame, error) {
	if isGIF(data) {
		return decodeGIFFrames(data, sampleHint)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	f := NewFrame(0, img)
	f.Source = data
	return []*Frame{f}, nil
}

func isGIF(data []byte) bool {
	return len(data) >= 6 && (bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")))
}

// decodeGIFFrames composites an animated GIF progressively and captures only
// an evenly-spaced sample of at most sampleHint frames, always including the
// first. Frames are drawn over the running canvas, which approximates GIF
// disposal well enough for scoring purposes.
func decodeGIFFrames(data []byte, sampleHint int) ([]*Frame, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode gif: no frames")
	}

	if sampleHint < 1 {
		sampleHint = 1
	}
	total := len(g.Image)
	wanted := make(map[int]bool, sampleHint)
	if total <= sampleHint {
		for i := 0; i < total; i++ {
			wanted[i] = true
		}
	} else {
		for i := 0; i < sampleHint; i++ {
			wanted[i*total/sampleHint] = true
		}
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	var frames []*Frame
	for i, src := range g.Image {
		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)
		if !wanted[i] {
			continue
		}
		snapshot := image.NewRGBA(bounds)
		copy(snapshot.Pix, canvas.Pix)
		frames = append(frames, NewFrame(len(frames), snapshot))
	}

	frames[0].Source = data
	return frames, nil
}
