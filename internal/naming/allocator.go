package naming

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// UnknownPlate 车牌缺失时的文件名占位前缀
const UnknownPlate = "UNKNOWN"

// timestampLayout 文件名中的秒级时间戳
const timestampLayout = "20060102_150405"

// DirLister 列出目标目录的文件名。
// 生产实现为 OSDirLister，测试可注入内存实现。
type DirLister interface {
	List() ([]string, error)
}

// OSDirLister 基于 os.ReadDir 的实现
type OSDirLister struct {
	Dir string
}

func (l OSDirLister) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list dir %s: %w", l.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Allocator 生成不重复的图片文件名。
// 命名格式：<车牌前缀><位置片段>_<日期>_<时间>_<两位序号><扩展名>。
// 仅保证单线程顺序调用下的唯一性；同车牌同秒的并发分配存在竞态，
// 由低请求量的使用场景兜底。
type Allocator struct {
	lister DirLister
	now    func() time.Time
}

func NewAllocator(lister DirLister) *Allocator {
	return &Allocator{lister: lister, now: time.Now}
}

// WithClock 替换时钟，测试用。
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Allocate 计算下一个可用文件名。ext 可带或不带前导点。
func (a *Allocator) Allocate(plate, location, ext string) (string, error) {
	if a == nil || a.lister == nil {
		return "", fmt.Errorf("allocator not initialized")
	}

	base := SanitizePlate(plate) + locationFragment(location) + "_" + a.now().Format(timestampLayout)

	entries, err := a.lister.List()
	if err != nil {
		return "", err
	}

	maxSeq := 0
	for _, name := range entries {
		if !strings.HasPrefix(name, base) {
			continue
		}
		rest := strings.TrimPrefix(name, base)
		if !strings.HasPrefix(rest, "_") {
			continue
		}
		seqPart := strings.TrimPrefix(rest, "_")
		if i := strings.IndexByte(seqPart, '.'); i >= 0 {
			seqPart = seqPart[:i]
		}
		if n, convErr := strconv.Atoi(seqPart); convErr == nil && n > maxSeq {
			maxSeq = n
		}
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%02d%s", base, maxSeq+1, ext), nil
}

// SanitizePlate 将车牌过滤为文件系统安全的前缀：
// 仅保留字母、数字及 . _ -（中文车牌字符属于字母，原样保留）。
func SanitizePlate(plate string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(plate) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return UnknownPlate
	}
	return b.String()
}

// locationFragment 取位置文本中前4个中文字符作为文件名片段
func locationFragment(location string) string {
	var cjk []rune
	for _, r := range location {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk = append(cjk, r)
			if len(cjk) == 4 {
				break
			}
		}
	}
	if len(cjk) == 0 {
		return ""
	}
	return "_" + string(cjk)
}
