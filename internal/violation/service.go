package violation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PlateWatch/PlateWatch/internal/common/logger"
)

// Store 是 Service 依赖的存储能力，*Repo 为生产实现。
type Store interface {
	CreateRecord(ctx context.Context, rec *ViolationRecord) error
	GetRecord(ctx context.Context, id int64) (*ViolationRecord, error)
	SaveRecord(ctx context.Context, rec *ViolationRecord) error
	DeleteRecord(ctx context.Context, id int64) error
	DeleteRecordsByPlate(ctx context.Context, plate string) error
	ListByPlate(ctx context.Context, plate string) ([]ViolationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ViolationRecord, error)
	GetVehicle(ctx context.Context, plate string) (*Vehicle, error)
	SaveVehicle(ctx context.Context, v *Vehicle) error
	DeleteVehicle(ctx context.Context, plate string) error
	PlateStats(ctx context.Context, plate string) (*PlateStats, error)
	ListVehicles(ctx context.Context) ([]VehicleSummary, error)
}

// FileRemover 删除一张已落盘的图片（相对路径）。
// 删除失败只记录不中断，见 DeleteResult。
type FileRemover interface {
	Remove(relPath string) error
}

// Service 封装违停记录领域的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	store Store
	files FileRemover
	log   logger.Logger
	now   func() time.Time
}

func NewService(store Store, files FileRemover, log logger.Logger) *Service {
	return &Service{
		store: store,
		files: files,
		log:   log,
		now:   time.Now,
	}
}

// SubmitInput 提交违停记录的入参
type SubmitInput struct {
	LicensePlate  string
	Location      string
	ViolationType string
	Description   string
	ViolationTime string // 可选，解析失败时回退为提交时间
	IPAddress     string
	PhotoPaths    []string
}

// Submit 校验并持久化一条违停记录，同时维护车辆聚合。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*ViolationRecord, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	plate := strings.ToUpper(Sanitize(in.LicensePlate))
	location := Sanitize(in.Location)
	violationType := Sanitize(in.ViolationType)
	description := Sanitize(in.Description)

	if plate == "" || location == "" || violationType == "" {
		return nil, newValidationError("请填写所有必填字段")
	}
	if !ValidatePlate(plate) {
		return nil, newValidationError("车牌号格式不正确")
	}
	if !ValidViolationType(violationType) {
		return nil, newValidationError("违停类型无效")
	}

	now := s.now()
	violationTime, ok := ParseViolationTime(in.ViolationTime)
	if !ok {
		violationTime = now
	}

	rec := &ViolationRecord{
		LicensePlate:  plate,
		Location:      location,
		ViolationType: violationType,
		Description:   description,
		PhotoPaths:    PhotoList(in.PhotoPaths),
		IPAddress:     in.IPAddress,
		CreatedAt:     now,
		ViolationTime: violationTime,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create violation record: %w", err)
	}

	v, err := s.store.GetVehicle(ctx, plate)
	switch {
	case err == nil:
		v.ApplyViolation(violationTime)
		if err := s.store.SaveVehicle(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to update vehicle aggregate: %w", err)
		}
	case errors.Is(err, ErrNotFound):
		if err := s.store.SaveVehicle(ctx, NewVehicle(plate, violationTime)); err != nil {
			return nil, fmt.Errorf("failed to create vehicle aggregate: %w", err)
		}
	default:
		return nil, err
	}

	return rec, nil
}

// DeleteResult 删除操作的图片清理结果
type DeleteResult struct {
	RemovedFiles int
	FailedFiles  int
}

// Delete 删除单条记录：删记录、尽力删图片、重算车辆聚合。
func (s *Service) Delete(ctx context.Context, recordID int64) (*DeleteResult, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteRecord(ctx, recordID); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}

	result := &DeleteResult{}
	s.removePhotos(rec.PhotoPaths, result)

	if err := s.recomputeVehicle(ctx, rec.LicensePlate); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByPlate 删除某车牌的全部记录与车辆聚合行。
func (s *Service) DeleteByPlate(ctx context.Context, plate string) (*DeleteResult, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	recs, err := s.store.ListByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteRecordsByPlate(ctx, plate); err != nil {
		return nil, fmt.Errorf("failed to delete records: %w", err)
	}
	if err := s.store.DeleteVehicle(ctx, plate); err != nil {
		return nil, fmt.Errorf("failed to delete vehicle: %w", err)
	}

	result := &DeleteResult{}
	for _, rec := range recs {
		s.removePhotos(rec.PhotoPaths, result)
	}
	return result, nil
}

// UpdateInput 部分更新的入参，nil 表示不修改该字段。
type UpdateInput struct {
	ViolationType *string
	Location      *string
	Description   *string
	ViolationTime *string // 必须符合 TimeLayout
}

// Update 更新记录的可编辑字段，不触碰车辆聚合。
func (s *Service) Update(ctx context.Context, recordID int64, in UpdateInput) (*ViolationRecord, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	changed := false
	if in.ViolationType != nil {
		rec.ViolationType = Sanitize(*in.ViolationType)
		changed = true
	}
	if in.Location != nil {
		rec.Location = Sanitize(*in.Location)
		changed = true
	}
	if in.Description != nil {
		rec.Description = Sanitize(*in.Description)
		changed = true
	}
	if in.ViolationTime != nil && *in.ViolationTime != "" {
		t, parseErr := time.ParseInLocation(TimeLayout, *in.ViolationTime, time.Local)
		if parseErr != nil {
			return nil, newValidationError("违规时间格式不正确，请使用 %s 格式", "YYYY-MM-DD HH:MM:SS")
		}
		rec.ViolationTime = t
		changed = true
	}

	if !changed {
		return nil, newValidationError("没有要更新的字段")
	}

	if err := s.store.SaveRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return rec, nil
}

// Get 查询单条记录
func (s *Service) Get(ctx context.Context, recordID int64) (*ViolationRecord, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.store.GetRecord(ctx, recordID)
}

// ListByPlate 查询某车牌的全部记录
func (s *Service) ListByPlate(ctx context.Context, plate string) ([]ViolationRecord, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.store.ListByPlate(ctx, strings.TrimSpace(plate))
}

// ListRecent 查询最近记录
func (s *Service) ListRecent(ctx context.Context, limit int) ([]ViolationRecord, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.store.ListRecent(ctx, limit)
}

// ListVehicles 车辆列表
func (s *Service) ListVehicles(ctx context.Context) ([]VehicleSummary, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.store.ListVehicles(ctx)
}

// VehicleDetail 车牌详情：聚合信息 + 全部记录
type VehicleDetail struct {
	Vehicle Vehicle
	Records []ViolationRecord
}

// GetVehicleDetail 查询车牌详情。
// 聚合行缺失但仍有记录时按记录重建（与原始数据的自愈行为一致）。
func (s *Service) GetVehicleDetail(ctx context.Context, plate string) (*VehicleDetail, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	plate = strings.TrimSpace(plate)
	recs, err := s.store.ListByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}

	v, err := s.store.GetVehicle(ctx, plate)
	if errors.Is(err, ErrNotFound) {
		if len(recs) == 0 {
			return nil, ErrNotFound
		}
		stats, statsErr := s.store.PlateStats(ctx, plate)
		if statsErr != nil {
			return nil, statsErr
		}
		v = &Vehicle{
			LicensePlate:   plate,
			ViolationCount: int(stats.Count),
			FirstViolation: stats.First,
			LastViolation:  stats.Last,
		}
		if saveErr := s.store.SaveVehicle(ctx, v); saveErr != nil {
			s.logf("warn", "failed to rebuild vehicle aggregate for %s: %v", plate, saveErr)
		}
	} else if err != nil {
		return nil, err
	}

	return &VehicleDetail{Vehicle: *v, Records: recs}, nil
}

// recomputeVehicle 按存活记录重算聚合；无记录时删除车辆行。
func (s *Service) recomputeVehicle(ctx context.Context, plate string) error {
	stats, err := s.store.PlateStats(ctx, plate)
	if err != nil {
		return fmt.Errorf("failed to recompute stats: %w", err)
	}

	if stats.Count == 0 {
		if err := s.store.DeleteVehicle(ctx, plate); err != nil {
			return fmt.Errorf("failed to delete vehicle: %w", err)
		}
		return nil
	}

	v, err := s.store.GetVehicle(ctx, plate)
	if errors.Is(err, ErrNotFound) {
		v = &Vehicle{LicensePlate: plate}
	} else if err != nil {
		return err
	}
	v.ViolationCount = int(stats.Count)
	v.FirstViolation = stats.First
	v.LastViolation = stats.Last
	return s.store.SaveVehicle(ctx, v)
}

// removePhotos 尽力删除记录关联的图片文件，失败计数并记日志。
func (s *Service) removePhotos(paths PhotoList, result *DeleteResult) {
	if s.files == nil {
		return
	}
	for _, p := range paths {
		if err := s.files.Remove(p); err != nil {
			result.FailedFiles++
			s.logf("warn", "failed to delete image file %s: %v", p, err)
			continue
		}
		result.RemovedFiles++
	}
}

func (s *Service) logf(level, format string, args ...interface{}) {
	if s.log == nil {
		return
	}
	switch level {
	case "warn":
		s.log.Warnf(format, args...)
	default:
		s.log.Infof(format, args...)
	}
}
