package violation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout 数据库及接口使用的时间格式
const TimeLayout = "2006-01-02 15:04:05"

// Vehicle 车辆聚合表 vehicles 的 GORM 模型。
// violation_count / first_violation / last_violation 是对
// violation_records 的冗余统计，按存活记录的 violation_time 维护。
type Vehicle struct {
	LicensePlate   string    `gorm:"column:license_plate;primaryKey;size:32" json:"license_plate"`
	ViolationCount int       `gorm:"column:violation_count;not null;default:0" json:"violation_count"`
	FirstViolation time.Time `gorm:"column:first_violation" json:"first_violation"`
	LastViolation  time.Time `gorm:"column:last_violation" json:"last_violation"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Vehicle) TableName() string { return "vehicles" }

// ApplyViolation 在新增一条违停记录后更新聚合统计。
// last/first 取存活记录 violation_time 的真实最大/最小值，
// 因此补录早于首次的记录不会让 last_violation 回退。
func (v *Vehicle) ApplyViolation(violationTime time.Time) {
	v.ViolationCount++
	if v.FirstViolation.IsZero() || violationTime.Before(v.FirstViolation) {
		v.FirstViolation = violationTime
	}
	if violationTime.After(v.LastViolation) {
		v.LastViolation = violationTime
	}
}

// NewVehicle 首条违停记录创建车辆聚合行
func NewVehicle(plate string, violationTime time.Time) *Vehicle {
	return &Vehicle{
		LicensePlate:   plate,
		ViolationCount: 1,
		FirstViolation: violationTime,
		LastViolation:  violationTime,
	}
}

// ViolationRecord 违停记录表 violation_records 的 GORM 模型。
// 除显式更新操作外创建后不再变更。
type ViolationRecord struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	LicensePlate  string    `gorm:"column:license_plate;index;size:32;not null" json:"license_plate"`
	Location      string    `gorm:"column:location;size:255;not null" json:"location"`
	ViolationType string    `gorm:"column:violation_type;size:32;not null" json:"violation_type"`
	Description   string    `gorm:"column:description;size:500" json:"description"`
	PhotoPaths    PhotoList `gorm:"column:photo_path;type:text" json:"photo_path"`
	IPAddress     string    `gorm:"column:ip_address;size:45" json:"-"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ViolationTime time.Time `gorm:"column:violation_time" json:"violation_time"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName 指定表名
func (ViolationRecord) TableName() string { return "violation_records" }

// PhotoList 图片相对路径列表，持久化在 photo_path 列。
// 写入时统一序列化为 JSON 数组（空列表写 NULL）；
// 读取时兼容历史数据中的裸字符串单图格式。
type PhotoList []string

// Value 实现 driver.Valuer
func (p PhotoList) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal photo list: %w", err)
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (p *PhotoList) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}

	var raw string
	switch v := src.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported photo_path type %T", src)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		*p = nil
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var paths []string
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			return fmt.Errorf("failed to unmarshal photo list: %w", err)
		}
		*p = paths
		return nil
	}

	// 历史数据：单图裸字符串
	*p = PhotoList{raw}
	return nil
}
