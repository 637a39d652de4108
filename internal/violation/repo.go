package violation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"gorm.io/gorm"
)

// Repo 基于 gorm 的存储实现
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) CreateRecord(ctx context.Context, rec *ViolationRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(rec).Error
}

func (r *Repo) GetRecord(ctx context.Context, id int64) (*ViolationRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rec ViolationRecord
	if err := db.Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) SaveRecord(ctx context.Context, rec *ViolationRecord) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(rec).Error
}

func (r *Repo) DeleteRecord(ctx context.Context, id int64) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Delete(&ViolationRecord{}, id).Error
}

func (r *Repo) DeleteRecordsByPlate(ctx context.Context, plate string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("license_plate = ?", plate).Delete(&ViolationRecord{}).Error
}

// ListByPlate 按车牌查询记录，新记录在前；同一时刻按id降序保证稳定顺序。
func (r *Repo) ListByPlate(ctx context.Context, plate string) ([]ViolationRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var recs []ViolationRecord
	if err := db.Where("license_plate = ?", plate).
		Order("created_at DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ListRecent 查询最近记录，limit<=0 时默认100条。
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]ViolationRecord, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []ViolationRecord
	if err := db.Order("created_at DESC, id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *Repo) GetVehicle(ctx context.Context, plate string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("license_plate = ?", plate).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repo) SaveVehicle(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(v).Error
}

func (r *Repo) DeleteVehicle(ctx context.Context, plate string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("license_plate = ?", plate).Delete(&Vehicle{}).Error
}

// PlateStats 某车牌存活记录的统计（数量与 violation_time 的最小/最大值）
type PlateStats struct {
	Count int64
	First time.Time
	Last  time.Time
}

func (r *Repo) PlateStats(ctx context.Context, plate string) (*PlateStats, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var row struct {
		Cnt   int64
		First sql.NullTime
		Last  sql.NullTime
	}
	err := db.Model(&ViolationRecord{}).
		Select("COUNT(*) AS cnt, MIN(violation_time) AS first, MAX(violation_time) AS last").
		Where("license_plate = ?", plate).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	stats := &PlateStats{Count: row.Cnt}
	if row.First.Valid {
		stats.First = row.First.Time
	}
	if row.Last.Valid {
		stats.Last = row.Last.Time
	}
	return stats, nil
}

// VehicleSummary 车辆列表行：聚合信息 + 最近一次记录时间
type VehicleSummary struct {
	LicensePlate   string    `json:"license_plate"`
	ViolationCount int       `json:"violation_count"`
	LastRecordAt   time.Time `json:"last_violation"`
}

// ListVehicles 查询有违停记录的车辆，按最近记录时间倒序。
func (r *Repo) ListVehicles(ctx context.Context) ([]VehicleSummary, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var rows []VehicleSummary
	err := db.Raw(`
		SELECT v.license_plate,
		       v.violation_count,
		       (SELECT MAX(created_at) FROM violation_records WHERE license_plate = v.license_plate) AS last_record_at
		FROM vehicles v
		WHERE v.violation_count > 0
		ORDER BY last_record_at DESC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReferencedPhotos 返回当前所有记录引用的图片文件名集合（取basename），
// 供后台清理判断上传目录中的文件是否为预览残留。
func (r *Repo) ReferencedPhotos(ctx context.Context) (map[string]struct{}, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var recs []ViolationRecord
	if err := db.Select("photo_path").
		Where("photo_path IS NOT NULL AND photo_path != ''").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	refs := make(map[string]struct{})
	for _, rec := range recs {
		for _, p := range rec.PhotoPaths {
			refs[path.Base(p)] = struct{}{}
		}
	}
	return refs, nil
}
