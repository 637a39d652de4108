package violation

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存实现，测试专用。
type fakeStore struct {
	nextID   int64
	records  map[int64]*ViolationRecord
	vehicles map[string]*Vehicle
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[int64]*ViolationRecord),
		vehicles: make(map[string]*Vehicle),
	}
}

func (f *fakeStore) CreateRecord(_ context.Context, rec *ViolationRecord) error {
	f.nextID++
	rec.ID = f.nextID
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeStore) GetRecord(_ context.Context, id int64) (*ViolationRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) SaveRecord(_ context.Context, rec *ViolationRecord) error {
	if _, ok := f.records[rec.ID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, id int64) error {
	delete(f.records, id)
	return nil
}

func (f *fakeStore) DeleteRecordsByPlate(_ context.Context, plate string) error {
	for id, rec := range f.records {
		if rec.LicensePlate == plate {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeStore) ListByPlate(_ context.Context, plate string) ([]ViolationRecord, error) {
	var recs []ViolationRecord
	for _, rec := range f.records {
		if rec.LicensePlate == plate {
			recs = append(recs, *rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
	return recs, nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]ViolationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []ViolationRecord
	for _, rec := range f.records {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (f *fakeStore) GetVehicle(_ context.Context, plate string) (*Vehicle, error) {
	v, ok := f.vehicles[plate]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) SaveVehicle(_ context.Context, v *Vehicle) error {
	cp := *v
	f.vehicles[v.LicensePlate] = &cp
	return nil
}

func (f *fakeStore) DeleteVehicle(_ context.Context, plate string) error {
	delete(f.vehicles, plate)
	return nil
}

func (f *fakeStore) PlateStats(_ context.Context, plate string) (*PlateStats, error) {
	stats := &PlateStats{}
	for _, rec := range f.records {
		if rec.LicensePlate != plate {
			continue
		}
		stats.Count++
		if stats.First.IsZero() || rec.ViolationTime.Before(stats.First) {
			stats.First = rec.ViolationTime
		}
		if rec.ViolationTime.After(stats.Last) {
			stats.Last = rec.ViolationTime
		}
	}
	return stats, nil
}

func (f *fakeStore) ListVehicles(_ context.Context) ([]VehicleSummary, error) {
	var rows []VehicleSummary
	for plate, v := range f.vehicles {
		if v.ViolationCount <= 0 {
			continue
		}
		var last time.Time
		for _, rec := range f.records {
			if rec.LicensePlate == plate && rec.CreatedAt.After(last) {
				last = rec.CreatedAt
			}
		}
		rows = append(rows, VehicleSummary{
			LicensePlate:   plate,
			ViolationCount: v.ViolationCount,
			LastRecordAt:   last,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].LastRecordAt.After(rows[j].LastRecordAt) })
	return rows, nil
}

// fakeRemover 记录删除调用，可注入失败路径。
type fakeRemover struct {
	removed []string
	failOn  map[string]bool
}

func (f *fakeRemover) Remove(relPath string) error {
	if f.failOn[relPath] {
		return fmt.Errorf("permission denied")
	}
	f.removed = append(f.removed, relPath)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeRemover) {
	store := newFakeStore()
	remover := &fakeRemover{failOn: make(map[string]bool)}
	svc := NewService(store, remover, nil)
	return svc, store, remover
}

func TestSubmitCreatesRecordAndVehicle(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{
		LicensePlate:  "鄂A12345",
		Location:      "武汉市江汉区解放大道",
		ViolationType: "占用人行道",
		ViolationTime: "2024-01-15 09:30:00",
		IPAddress:     "192.168.1.100",
	})
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	assert.Empty(t, rec.PhotoPaths)

	v, err := store.GetVehicle(ctx, "鄂A12345")
	require.NoError(t, err)
	assert.Equal(t, 1, v.ViolationCount)
	assert.True(t, v.FirstViolation.Equal(rec.ViolationTime))
	assert.True(t, v.LastViolation.Equal(rec.ViolationTime))
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"missing fields", SubmitInput{LicensePlate: "鄂A12345"}},
		{"bad plate", SubmitInput{LicensePlate: "BAD", Location: "某路", ViolationType: "其他"}},
		{"html plate", SubmitInput{LicensePlate: "<script>alert(1)</script>", Location: "某路", ViolationType: "其他"}},
		{"bad type", SubmitInput{LicensePlate: "鄂A12345", Location: "某路", ViolationType: "乱停"}},
	}
	for _, c := range cases {
		_, err := svc.Submit(ctx, c.in)
		assert.Error(t, err, c.name)
		assert.True(t, IsValidation(err), c.name)
	}
}

func TestSubmitUnparseableTimeFallsBackToNow(t *testing.T) {
	svc, _, _ := newTestService()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return fixed }

	rec, err := svc.Submit(context.Background(), SubmitInput{
		LicensePlate:  "鄂A12345",
		Location:      "某路",
		ViolationType: "其他",
		ViolationTime: "garbage",
	})
	require.NoError(t, err)
	assert.True(t, rec.ViolationTime.Equal(fixed))
	assert.True(t, rec.CreatedAt.Equal(fixed))
}

func TestSubmitEarlierTimeDoesNotRegressLastViolation(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "某路", ViolationType: "其他",
		ViolationTime: "2024-01-20 14:20:00",
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "某路", ViolationType: "其他",
		ViolationTime: "2024-01-10 08:00:00",
	})
	require.NoError(t, err)

	v, err := store.GetVehicle(ctx, "鄂A12345")
	require.NoError(t, err)
	assert.Equal(t, 2, v.ViolationCount)
	assert.Equal(t, "2024-01-20 14:20:00", v.LastViolation.Format(TimeLayout))
	assert.Equal(t, "2024-01-10 08:00:00", v.FirstViolation.Format(TimeLayout))
}

func TestSubmitPhotoPathsRoundTrip(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	paths := []string{"uploads/鄂A12345_20240115_093000_01.jpeg", "uploads/鄂A12345_20240115_093000_02.jpeg"}
	rec, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "某路", ViolationType: "占用消防通道",
		PhotoPaths: paths,
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got.PhotoPaths, 2)
	assert.Equal(t, paths[0], got.PhotoPaths[0])
	assert.Equal(t, paths[1], got.PhotoPaths[1])
}

func TestDeleteLastRecordRemovesVehicle(t *testing.T) {
	svc, store, remover := newTestService()
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂B67890", Location: "某路", ViolationType: "压线停车",
		PhotoPaths: []string{"uploads/鄂B67890_20240118_114500_01.jpeg"},
	})
	require.NoError(t, err)

	result, err := svc.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedFiles)
	assert.Equal(t, []string{"uploads/鄂B67890_20240118_114500_01.jpeg"}, remover.removed)

	_, err = store.GetVehicle(ctx, "鄂B67890")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRecomputesAggregate(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂C24680", Location: "某路", ViolationType: "其他",
		ViolationTime: "2024-01-10 08:15:00",
	})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂C24680", Location: "某路", ViolationType: "其他",
		ViolationTime: "2024-01-22 16:30:00",
	})
	require.NoError(t, err)

	// 删除较新的一条，聚合应回落到剩余记录的真实最大值
	recs, err := svc.ListByPlate(ctx, "鄂C24680")
	require.NoError(t, err)
	var newest int64
	for _, r := range recs {
		if r.ID != first.ID {
			newest = r.ID
		}
	}
	_, err = svc.Delete(ctx, newest)
	require.NoError(t, err)

	v, err := store.GetVehicle(ctx, "鄂C24680")
	require.NoError(t, err)
	assert.Equal(t, 1, v.ViolationCount)
	assert.Equal(t, "2024-01-10 08:15:00", v.LastViolation.Format(TimeLayout))
}

func TestDeleteNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Delete(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteToleratesFileFailures(t *testing.T) {
	svc, store, remover := newTestService()
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "某路", ViolationType: "其他",
		PhotoPaths: []string{"uploads/a_01.jpeg", "uploads/a_02.jpeg"},
	})
	require.NoError(t, err)
	remover.failOn["uploads/a_01.jpeg"] = true

	result, err := svc.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedFiles)
	assert.Equal(t, 1, result.FailedFiles)

	// 数据库删除不受文件失败影响
	_, err = store.GetRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByPlate(t *testing.T) {
	svc, store, remover := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, SubmitInput{
			LicensePlate: "鄂C24680", Location: "某路", ViolationType: "其他",
			PhotoPaths: []string{fmt.Sprintf("uploads/c_%02d.jpeg", i+1)},
		})
		require.NoError(t, err)
	}

	result, err := svc.DeleteByPlate(ctx, "鄂C24680")
	require.NoError(t, err)
	assert.Equal(t, 3, result.RemovedFiles)
	assert.Len(t, remover.removed, 3)

	_, err = store.GetVehicle(ctx, "鄂C24680")
	assert.ErrorIs(t, err, ErrNotFound)
	recs, err := svc.ListByPlate(ctx, "鄂C24680")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestUpdate(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "旧地点", ViolationType: "其他",
		ViolationTime: "2024-01-15 09:30:00",
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, 999, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Update(ctx, rec.ID, UpdateInput{})
	assert.True(t, IsValidation(err), "no fields should be a validation error")

	bad := "15/01/2024"
	_, err = svc.Update(ctx, rec.ID, UpdateInput{ViolationTime: &bad})
	assert.True(t, IsValidation(err))

	loc := "新地点"
	vt := "2024-01-16 10:00:00"
	updated, err := svc.Update(ctx, rec.ID, UpdateInput{Location: &loc, ViolationTime: &vt})
	require.NoError(t, err)
	assert.Equal(t, "新地点", updated.Location)
	assert.Equal(t, vt, updated.ViolationTime.Format(TimeLayout))

	// 更新不触碰车辆聚合
	v, err := store.GetVehicle(ctx, "鄂A12345")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 09:30:00", v.LastViolation.Format(TimeLayout))
}

func TestGetVehicleDetailSelfHeals(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{
		LicensePlate: "鄂A12345", Location: "某路", ViolationType: "其他",
		ViolationTime: "2024-01-15 09:30:00",
	})
	require.NoError(t, err)

	// 人为制造聚合行缺失
	require.NoError(t, store.DeleteVehicle(ctx, "鄂A12345"))

	detail, err := svc.GetVehicleDetail(ctx, "鄂A12345")
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Vehicle.ViolationCount)
	assert.Len(t, detail.Records, 1)

	_, err = store.GetVehicle(ctx, "鄂A12345")
	assert.NoError(t, err, "aggregate row should be rebuilt")

	_, err = svc.GetVehicleDetail(ctx, "京X00000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecentOrderAndLimit(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	base := time.Date(2024, 2, 1, 8, 0, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return tick }
		_, err := svc.Submit(ctx, SubmitInput{
			LicensePlate: "鄂A12345", Location: "某路", ViolationType: "其他",
		})
		require.NoError(t, err)
	}

	recs, err := svc.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].CreatedAt.After(recs[i-1].CreatedAt), "expected newest first")
	}
}
