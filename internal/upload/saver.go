package upload

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PlateWatch/PlateWatch/internal/common/config"
	"github.com/PlateWatch/PlateWatch/internal/common/logger"
	"github.com/PlateWatch/PlateWatch/internal/imaging"
	"github.com/PlateWatch/PlateWatch/internal/naming"
)

// ErrUnsupportedFormat 扩展名不在白名单内
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrTooLarge 文件超出大小上限
var ErrTooLarge = errors.New("file exceeds size limit")

// 允许上传的扩展名
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// AllowedFile 检查文件扩展名是否允许
func AllowedFile(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Saver 负责图片落盘：压缩 -> 分配文件名 -> 写文件。
// 压缩失败回退为保存原始字节，不向上层报错。
type Saver struct {
	dir    string
	relDir string // photo_path 使用的目录前缀，始终为相对路径
	cfg    config.UploadConfig
	alloc  *naming.Allocator
	log    logger.Logger
}

func NewSaver(cfg config.UploadConfig, log logger.Logger) (*Saver, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Saver{
		dir:    cfg.Dir,
		relDir: relUploadDir(cfg.Dir),
		cfg:    cfg,
		alloc:  naming.NewAllocator(naming.OSDirLister{Dir: cfg.Dir}),
		log:    log,
	}, nil
}

// relUploadDir 计算 photo_path 的目录前缀。
// 数据库存的是相对应用根目录的路径，目录即便配置成绝对路径
// 也要折算回相对形式（折算不了时退化为目录名）。
func relUploadDir(dir string) string {
	if !filepath.IsAbs(dir) {
		return filepath.ToSlash(dir)
	}
	if wd, err := os.Getwd(); err == nil {
		if rel, relErr := filepath.Rel(wd, dir); relErr == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(dir)
}

// Dir 上传目录
func (s *Saver) Dir() string { return s.dir }

// SaveResult 保存结果，含预览接口需要的压缩信息。
type SaveResult struct {
	RelPath      string // 相对应用根目录，正斜杠
	FileName     string
	OriginalSize int
	StoredSize   int
	Normalized   bool // false 表示压缩失败、保存了原始字节
}

// Save 校验、压缩并保存一张上传图片。
func (s *Saver) Save(data []byte, filename, plate, location string) (*SaveResult, error) {
	if !AllowedFile(filename) {
		return nil, ErrUnsupportedFormat
	}
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return nil, ErrTooLarge
	}

	out := data
	ext := strings.ToLower(filepath.Ext(filename))
	normalized := false

	res, err := imaging.Normalize(data, imaging.Options{
		MaxWidth:  s.cfg.MaxWidth,
		MaxHeight: s.cfg.MaxHeight,
		Quality:   s.cfg.Quality,
	})
	if err != nil {
		// 压缩失败不阻断提交，保存原始文件
		if s.log != nil {
			s.log.Warnf("image normalization failed, storing original bytes: %v", err)
		}
	} else {
		out = res.Data
		ext = "." + res.Format
		normalized = true
	}

	name, err := s.alloc.Allocate(plate, location, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate filename: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), out, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	return &SaveResult{
		RelPath:      path.Join(s.relDir, name),
		FileName:     name,
		OriginalSize: len(data),
		StoredSize:   len(out),
		Normalized:   normalized,
	}, nil
}

// Adopt 把预览接口落盘的临时文件按车牌重命名后正式收编。
// 返回重命名后的相对路径；文件不存在时返回 os.ErrNotExist。
func (s *Saver) Adopt(relPath, plate, location string) (string, error) {
	src := s.Resolve(relPath)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	name, err := s.alloc.Allocate(plate, location, ext)
	if err != nil {
		return "", fmt.Errorf("failed to allocate filename: %w", err)
	}
	if err := os.Rename(src, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("failed to rename preview file: %w", err)
	}
	return path.Join(s.relDir, name), nil
}

// Remove 删除一张已保存的图片；文件不存在视为已删除。
func (s *Saver) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	err := os.Remove(s.Resolve(relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Resolve 将存储的相对路径转换为上传目录内的实际路径。
// 只取basename，避免路径穿越。
func (s *Saver) Resolve(relPath string) string {
	return filepath.Join(s.dir, path.Base(relPath))
}

// Exists 判断相对路径对应的文件是否存在
func (s *Saver) Exists(relPath string) bool {
	_, err := os.Stat(s.Resolve(relPath))
	return err == nil
}

// Load 读取已保存的图片
func (s *Saver) Load(relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.Resolve(relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// Replace 原地覆盖已保存的图片（旋转后写回）。
func (s *Saver) Replace(relPath string, data []byte) error {
	if err := os.WriteFile(s.Resolve(relPath), data, 0644); err != nil {
		return fmt.Errorf("failed to replace image file: %w", err)
	}
	return nil
}
