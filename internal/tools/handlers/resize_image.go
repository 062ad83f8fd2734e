package handlers

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"task-agent/internal/tools"

	"github.com/disintegration/imaging"
)

const (
	maxImageSide   = 10000
	maxImagePixels = 40_000_000
)

type ResizeImageHandler struct{}

func (ResizeImageHandler) Name() string { return "resize_image" }

func (ResizeImageHandler) Description() string {
	return "Resize and/or compress a JPEG or PNG image. A missing width or height keeps the source dimension; quality applies to JPEG output."
}

func (ResizeImageHandler) Params() tools.Schema {
	return tools.Schema{
		{Name: "input_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `(?i)\.(jpg|jpeg|png)$`, Description: "Source image."},
		{Name: "output_filename", Type: tools.TypeString, Required: true, Kind: tools.PathParam,
			Pattern: `(?i)\.(jpg|jpeg|png)$`, Description: "Destination image; format follows the extension."},
		{Name: "width", Type: tools.TypeInteger, Min: tools.Int(1), Max: tools.Int(maxImageSide), Description: "Target width in pixels."},
		{Name: "height", Type: tools.TypeInteger, Min: tools.Int(1), Max: tools.Int(maxImageSide), Description: "Target height in pixels."},
		{Name: "quality", Type: tools.TypeInteger, Default: 75, Min: tools.Int(10), Max: tools.Int(100),
			Description: "JPEG quality."},
	}
}

func (ResizeImageHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	paths, err := resolvePaths(inv, "input_filename", "output_filename")
	if err != nil {
		return tools.Result{}, err
	}
	if err := requireFile(paths[0]); err != nil {
		return tools.Result{}, err
	}
	// 解码前只读文件头，像素预算同时约束原图与目标尺寸。
	src, err := decodeImageConfig(paths[0])
	if err != nil {
		return tools.Result{}, fmt.Errorf("decode %s: %w", inv.Root.Rel(paths[0]), err)
	}
	if src.Width*src.Height > maxImagePixels {
		return tools.Result{}, tools.Errorf(tools.KindArgumentValidation, inv.Call.Name,
			"%s is %dx%d, above the %d pixel limit", inv.Root.Rel(paths[0]), src.Width, src.Height, maxImagePixels)
	}
	img, err := imaging.Open(paths[0], imaging.AutoOrientation(true))
	if err != nil {
		return tools.Result{}, fmt.Errorf("decode %s: %w", inv.Root.Rel(paths[0]), err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if inv.Args.Has("width") || inv.Args.Has("height") {
		if inv.Args.Has("width") {
			width = int(inv.Args.Int("width"))
		}
		if inv.Args.Has("height") {
			height = int(inv.Args.Int("height"))
		}
		if width*height > maxImagePixels {
			return tools.Result{}, tools.Errorf(tools.KindArgumentValidation, inv.Call.Name,
				"target %dx%d is above the %d pixel limit", width, height, maxImagePixels)
		}
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	err = imaging.Save(img, paths[1],
		imaging.JPEGQuality(int(inv.Args.Int("quality"))),
		imaging.PNGCompressionLevel(png.BestCompression))
	if err != nil {
		return tools.Result{}, fmt.Errorf("encode %s: %w", inv.Root.Rel(paths[1]), err)
	}
	return tools.Success(wrote(inv, paths[1]), map[string]int{"width": width, "height": height}), nil
}

func decodeImageConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}
