package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

// 默认压缩参数
const (
	DefaultMaxWidth  = 1200
	DefaultMaxHeight = 900
	DefaultQuality   = 85
)

// 按输入大小选择压缩档位的阈值
const (
	aggressiveThreshold = 20 * 1024 * 1024
	standardThreshold   = 10 * 1024 * 1024
	mildThreshold       = 5 * 1024 * 1024

	// 一次压缩后仍超过该值则触发二次压缩
	secondPassLimit = 3 * 1024 * 1024

	secondPassMaxWidth  = 600
	secondPassMaxHeight = 450
	secondPassQuality   = 40
)

// Options 压缩覆盖参数，零值表示使用默认值。
// 覆盖值只会在默认值基础上进一步收紧，不会放宽。
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Result 压缩结果
type Result struct {
	Data           []byte
	Format         string // 输出格式，始终为 "jpeg"
	Width          int
	Height         int
	OriginalSize   int
	CompressedSize int
}

// chooseTier 根据文件大小选择压缩档位。
// >20MB 激进；>10MB 标准；>5MB 温和（仅降质量）；否则默认。
func chooseTier(size int64, opts Options) Options {
	tier := Options{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Quality:   DefaultQuality,
	}
	if opts.MaxWidth > 0 && opts.MaxWidth < tier.MaxWidth {
		tier.MaxWidth = opts.MaxWidth
	}
	if opts.MaxHeight > 0 && opts.MaxHeight < tier.MaxHeight {
		tier.MaxHeight = opts.MaxHeight
	}
	if opts.Quality > 0 && opts.Quality < tier.Quality {
		tier.Quality = opts.Quality
	}

	switch {
	case size > aggressiveThreshold:
		tier.MaxWidth = minInt(800, tier.MaxWidth)
		tier.MaxHeight = minInt(600, tier.MaxHeight)
		tier.Quality = minInt(60, tier.Quality)
	case size > standardThreshold:
		tier.MaxWidth = minInt(1000, tier.MaxWidth)
		tier.MaxHeight = minInt(750, tier.MaxHeight)
		tier.Quality = minInt(70, tier.Quality)
	case size > mildThreshold:
		tier.Quality = minInt(80, tier.Quality)
	}
	return tier
}

// needsSecondPass 判断一次压缩结果是否仍然过大
func needsSecondPass(compressedSize int) bool {
	return compressedSize > secondPassLimit
}

// Normalize 将原始图片字节压缩为尺寸与质量受限的JPEG。
// 只在内存中操作，不做磁盘IO；解码/编码失败时返回错误，
// 由调用方回退为保存原始字节。
func Normalize(data []byte, opts Options) (*Result, error) {
	tier := chooseTier(int64(len(data)), opts)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()
	if origW <= 0 || origH <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", origW, origH)
	}

	encoded, w, h, err := encodeScaled(img, tier.MaxWidth, tier.MaxHeight, tier.Quality)
	if err != nil {
		return nil, err
	}

	// 二次压缩：尺寸不超过600x450，且不超过原始尺寸的40%
	if needsSecondPass(len(encoded)) {
		maxW := minInt(secondPassMaxWidth, int(float64(origW)*0.4))
		maxH := minInt(secondPassMaxHeight, int(float64(origH)*0.4))
		if maxW < 1 {
			maxW = 1
		}
		if maxH < 1 {
			maxH = 1
		}
		encoded, w, h, err = encodeScaled(img, maxW, maxH, secondPassQuality)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Data:           encoded,
		Format:         "jpeg",
		Width:          w,
		Height:         h,
		OriginalSize:   len(data),
		CompressedSize: len(encoded),
	}, nil
}

// encodeScaled 等比缩放（从不放大）并编码为JPEG，返回编码字节与最终尺寸。
func encodeScaled(img image.Image, maxWidth, maxHeight, quality int) ([]byte, int, int, error) {
	origW := img.Bounds().Dx()
	origH := img.Bounds().Dy()

	ratio := minFloat(float64(maxWidth)/float64(origW), float64(maxHeight)/float64(origH))
	if ratio > 1 {
		ratio = 1
	}

	out := img
	w, h := origW, origH
	if ratio < 1 {
		w = int(float64(origW) * ratio)
		h = int(float64(origH) * ratio)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		out = scaleToRGBA(img, w, h)
	} else if hasAlphaOrPalette(img) {
		// JPEG不支持alpha/调色板，转为RGBA后编码
		out = scaleToRGBA(img, w, h)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

// scaleToRGBA 用CatmullRom重采样到目标尺寸
func scaleToRGBA(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func hasAlphaOrPalette(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64, *image.Paletted:
		return true
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
