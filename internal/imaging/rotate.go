package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// Rotate 顺时针旋转图片。angle 必须是90的倍数（可为负），
// 任意角度旋转会引入重采样伪影，接口层按校验错误处理。
// 返回旋转后的字节与输出格式（png保持png，其余统一为jpeg）。
func Rotate(data []byte, angle int) ([]byte, string, error) {
	turns := normalizeAngle(angle)
	if turns < 0 {
		return nil, "", fmt.Errorf("rotation angle must be a multiple of 90, got %d", angle)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	rgba := scaleToRGBA(img, img.Bounds().Dx(), img.Bounds().Dy())
	for i := 0; i < turns; i++ {
		rgba = rotate90(rgba)
	}

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, rgba); err != nil {
			return nil, "", fmt.Errorf("failed to encode png: %w", err)
		}
		return buf.Bytes(), "png", nil
	}
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), "jpeg", nil
}

// normalizeAngle 将角度归一化为顺时针90度旋转次数，非法角度返回-1。
func normalizeAngle(angle int) int {
	if angle%90 != 0 {
		return -1
	}
	turns := (angle / 90) % 4
	if turns < 0 {
		turns += 4
	}
	return turns
}

// rotate90 顺时针旋转90度
func rotate90(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) -> (h-1-y, x)
			dst.SetRGBA(h-1-y, x, src.RGBAAt(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// ImageInfo 图片基本信息
type ImageInfo struct {
	Width  int
	Height int
	Format string
	Size   int
}

// Info 读取图片尺寸与格式（只解码头部）
func Info(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image info: %w", err)
	}
	return &ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Size:   len(data),
	}, nil
}
