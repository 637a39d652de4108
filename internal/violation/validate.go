package violation

import (
	"regexp"
	"strings"
	"time"
)

// 违停类型固定集合
var ValidViolationTypes = []string{
	"占用消防通道",
	"占用人行道",
	"逆向停车",
	"压线停车",
	"禁止停车区域",
	"其他",
}

// ValidViolationType 校验违停类型是否在固定集合内
func ValidViolationType(violationType string) bool {
	for _, t := range ValidViolationTypes {
		if violationType == t {
			return true
		}
	}
	return false
}

// 省份简称字符集
const provinces = "京津沪渝冀豫云辽黑湘皖鲁新苏浙赣鄂桂甘晋蒙陕吉闽贵粤青藏川宁琼"

// 支持普通车牌、警车、使馆车、学车、港澳车、民航车、应急车、新能源车等格式
var platePatterns = []*regexp.Regexp{
	// 普通车牌：省份简称 + 发牌机关代号 + 5位数字/字母
	regexp.MustCompile(`^[` + provinces + `][A-Z][A-Z0-9]{5}$`),
	// 警车车牌
	regexp.MustCompile(`^[` + provinces + `][A-Z][A-Z0-9]{4}警$`),
	// 使馆车牌
	regexp.MustCompile(`^[使领][A-Z0-9]{6}$`),
	// 学车车牌
	regexp.MustCompile(`^[` + provinces + `][A-Z][A-Z0-9]{4}学$`),
	// 港澳车牌
	regexp.MustCompile(`^粤[A-Z][A-Z0-9]{5}[港澳]$`),
	// 民航车牌
	regexp.MustCompile(`^[民航][A-Z0-9]{5,6}$`),
	// 应急车辆
	regexp.MustCompile(`^[应急][A-Z0-9]{5,6}$`),
	// 新能源车（绿牌，8位）
	regexp.MustCompile(`^[` + provinces + `][A-Z][A-Z0-9]{6}$`),
}

// WJ开头的武警车牌单独处理（长度6-8）
var wjPattern = regexp.MustCompile(`^WJ[0-9]{2}[A-Z0-9]+$`)

// ValidatePlate 校验车牌号格式。
// 先转大写并去除首尾空格，再逐一匹配已知格式。
func ValidatePlate(plate string) bool {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if plate == "" {
		return false
	}

	for _, pattern := range platePatterns {
		if pattern.MatchString(plate) {
			return true
		}
	}

	if strings.HasPrefix(plate, "WJ") {
		n := len([]rune(plate))
		if n >= 6 && n <= 8 && wjPattern.MatchString(plate) {
			return true
		}
	}

	return false
}

var (
	htmlTagPattern  = regexp.MustCompile(`<[^>]+>`)
	specialCharsSet = regexp.MustCompile(`[<>"']`)
)

// Sanitize 清理用户输入：去除HTML标签与特殊字符，限制500字符。
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = specialCharsSet.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > 500 {
		runes = runes[:500]
	}
	return string(runes)
}

// 提交时接受的违停时间格式（前端 datetime-local 与标准格式）
var submitTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	TimeLayout,
}

// ParseViolationTime 解析用户填写的违停时间，失败返回 ok=false。
func ParseViolationTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range submitTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
