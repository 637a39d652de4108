// Package api 提供违停上报系统的HTTP接口。
// 响应约定：业务失败返回 {"success":false,"message":...}，
// 列表类接口直接返回JSON数组。
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PlateWatch/PlateWatch/internal/common/config"
	"github.com/PlateWatch/PlateWatch/internal/common/logger"
	"github.com/PlateWatch/PlateWatch/internal/humantime"
	"github.com/PlateWatch/PlateWatch/internal/imaging"
	"github.com/PlateWatch/PlateWatch/internal/upload"
	"github.com/PlateWatch/PlateWatch/internal/violation"
)

// 无筛选条件时最多返回的记录数
const defaultListLimit = 100

// Handler 违停记录HTTP处理器
type Handler struct {
	svc   *violation.Service
	saver *upload.Saver
	cfg   config.UploadConfig
	log   logger.Logger
}

func NewHandler(svc *violation.Service, saver *upload.Saver, cfg config.UploadConfig, log logger.Logger) *Handler {
	return &Handler{svc: svc, saver: saver, cfg: cfg, log: log}
}

// SubmitViolation 提交违停记录。
// POST /submit_violation (multipart)
// 图片三选一：photo 文件、compressed_photos 预览路径列表、
// compressed_photo_path 单个预览路径（旧版前端）。
func (h *Handler) SubmitViolation(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		if isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, "文件大小超过50MB限制，请压缩后重试")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			fail(c, http.StatusBadRequest, "表单数据无效")
			return
		}
	}

	plate := strings.ToUpper(violation.Sanitize(c.PostForm("license_plate")))
	location := violation.Sanitize(c.PostForm("location"))
	violationType := violation.Sanitize(c.PostForm("violation_type"))

	// 图片处理依赖车牌号，提前做与领域层相同的校验
	if plate == "" || location == "" || violationType == "" {
		fail(c, http.StatusBadRequest, "请填写所有必填字段")
		return
	}
	if !violation.ValidatePlate(plate) {
		fail(c, http.StatusBadRequest, "车牌号格式不正确")
		return
	}
	if !violation.ValidViolationType(violationType) {
		fail(c, http.StatusBadRequest, "违停类型无效")
		return
	}

	photoPaths, ok := h.collectPhotos(c, plate, location)
	if !ok {
		return
	}

	rec, err := h.svc.Submit(c.Request.Context(), violation.SubmitInput{
		LicensePlate:  plate,
		Location:      location,
		ViolationType: violationType,
		Description:   c.PostForm("description"),
		ViolationTime: c.PostForm("violation_time"),
		IPAddress:     c.ClientIP(),
		PhotoPaths:    photoPaths,
	})
	if err != nil {
		failDomain(c, err, "系统错误，请稍后再试")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "违停记录已提交",
		"photo_path": rec.PhotoPaths,
	})
}

// collectPhotos 收集本次提交的图片：优先采用预览接口已压缩的文件
// （按车牌重命名收编），否则压缩保存上传的 photo 文件。
// 失败时直接写出响应并返回 false。
func (h *Handler) collectPhotos(c *gin.Context, plate, location string) ([]string, bool) {
	compressed := c.PostFormArray("compressed_photos")
	if len(compressed) == 0 || compressed[0] == "" {
		if single := c.PostForm("compressed_photo_path"); single != "" {
			compressed = []string{single}
		} else {
			compressed = nil
		}
	}

	if len(compressed) > 0 {
		var paths []string
		for _, p := range compressed {
			if p == "" {
				continue
			}
			adopted, err := h.saver.Adopt(p, plate, location)
			if err != nil {
				if os.IsNotExist(err) {
					fail(c, http.StatusBadRequest, fmt.Sprintf("压缩文件不存在: %s", p))
					return nil, false
				}
				fail(c, http.StatusBadRequest, fmt.Sprintf("图片处理错误: %v", err))
				return nil, false
			}
			paths = append(paths, adopted)
		}
		return paths, true
	}

	fh, err := c.FormFile("photo")
	if err != nil || fh.Filename == "" {
		return nil, true
	}

	data, err := readFormFile(fh)
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("图片处理错误: %v", err))
		return nil, false
	}

	res, err := h.saver.Save(data, fh.Filename, plate, location)
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, "上传文件过大，最大支持50MB")
		return nil, false
	case err != nil:
		fail(c, http.StatusBadRequest, "图片格式不支持或处理失败")
		return nil, false
	}
	return []string{res.RelPath}, true
}

// ListVehicles 车辆列表，按最近记录时间倒序。
// GET /api/vehicles
func (h *Handler) ListVehicles(c *gin.Context) {
	rows, err := h.svc.ListVehicles(c.Request.Context())
	if err != nil {
		h.logError("failed to list vehicles", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "数据获取失败"})
		return
	}
	if rows == nil {
		rows = []violation.VehicleSummary{}
	}
	c.JSON(http.StatusOK, rows)
}

// ListViolations 违停记录列表，可按车牌筛选。
// GET /api/violations[?license_plate=]
func (h *Handler) ListViolations(c *gin.Context) {
	var (
		recs []violation.ViolationRecord
		err  error
	)
	if plate := c.Query("license_plate"); plate != "" {
		recs, err = h.svc.ListByPlate(c.Request.Context(), plate)
	} else {
		recs, err = h.svc.ListRecent(c.Request.Context(), defaultListLimit)
	}
	if err != nil {
		h.logError("failed to list violations", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "数据获取失败"})
		return
	}
	if recs == nil {
		recs = []violation.ViolationRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

// VehicleDetail 车牌详情：聚合信息、时间统计与全部记录。
// GET /api/vehicle/:plate
func (h *Handler) VehicleDetail(c *gin.Context) {
	detail, err := h.svc.GetVehicleDetail(c.Request.Context(), c.Param("plate"))
	if err != nil {
		failDomain(c, err, "数据获取失败")
		return
	}

	v := detail.Vehicle
	times := make([]time.Time, 0, len(detail.Records))
	for _, rec := range detail.Records {
		times = append(times, rec.ViolationTime)
	}

	c.JSON(http.StatusOK, gin.H{
		"license_plate":   v.LicensePlate,
		"violation_count": v.ViolationCount,
		"first_violation": v.FirstViolation,
		"last_violation":  v.LastViolation,
		"time_span":       humantime.Span(v.FirstViolation, v.LastViolation),
		"frequency":       humantime.Frequency(v.FirstViolation, v.LastViolation, v.ViolationCount),
		"recent_30d":      humantime.CountRecent(time.Now(), times, 30),
		"violations":      detail.Records,
	})
}

// UpdateViolation 部分更新一条记录。
// PUT /api/violation/:id
func (h *Handler) UpdateViolation(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	var body struct {
		ViolationType *string `json:"violation_type"`
		Location      *string `json:"location"`
		Description   *string `json:"description"`
		ViolationTime *string `json:"violation_time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "请提供更新数据")
		return
	}

	_, err := h.svc.Update(c.Request.Context(), id, violation.UpdateInput{
		ViolationType: body.ViolationType,
		Location:      body.Location,
		Description:   body.Description,
		ViolationTime: body.ViolationTime,
	})
	if err != nil {
		failDomain(c, err, "更新失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "记录更新成功"})
}

// DeleteViolation 删除一条记录并清理图片。
// DELETE /api/violation/:id
func (h *Handler) DeleteViolation(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	if _, err := h.svc.Delete(c.Request.Context(), id); err != nil {
		failDomain(c, err, "删除失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "记录删除成功"})
}

// DeleteVehicle 删除某车牌的全部记录。
// DELETE /api/vehicle/:plate （gin已完成URL解码）
func (h *Handler) DeleteVehicle(c *gin.Context) {
	plate := c.Param("plate")
	res, err := h.svc.DeleteByPlate(c.Request.Context(), plate)
	if err != nil {
		failDomain(c, err, "删除失败")
		return
	}

	message := fmt.Sprintf("成功删除车牌 %s 的所有记录", plate)
	if res.FailedFiles > 0 {
		message += fmt.Sprintf("（%d 个文件删除失败）", res.FailedFiles)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// CompressPreview 压缩预览：提交前先压缩落盘并报告压缩效果。
// POST /api/compress-preview
// 业务失败与原有前端约定一致返回200。落盘文件在正式提交时被收编，
// 未提交的由后台清理按TTL回收。
func (h *Handler) CompressPreview(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, "文件大小超过50MB限制，请压缩后重试")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "没有选择文件"})
		return
	}
	if fh.Filename == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "没有选择文件"})
		return
	}
	if !upload.AllowedFile(fh.Filename) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "不支持的文件格式"})
		return
	}

	data, err := readFormFile(fh)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "压缩失败"})
		return
	}
	if h.cfg.MaxFileSize > 0 && int64(len(data)) > h.cfg.MaxFileSize {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": fmt.Sprintf("文件过大，超过%dMB限制", h.cfg.MaxFileSize/(1024*1024)),
		})
		return
	}

	// 车牌未知，使用占位前缀落盘，提交时再按车牌重命名
	res, err := h.saver.Save(data, fh.Filename, "", "")
	if err != nil {
		h.logError("compress preview failed", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "压缩失败"})
		return
	}

	ratio := 0.0
	if res.OriginalSize > 0 {
		ratio = (1 - float64(res.StoredSize)/float64(res.OriginalSize)) * 100
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"original_size":     fmt.Sprintf("%.2fMB", float64(res.OriginalSize)/1024/1024),
		"compressed_size":   fmt.Sprintf("%.1fKB", float64(res.StoredSize)/1024),
		"compression_ratio": fmt.Sprintf("%.1f%%", ratio),
		"compressed_path":   res.RelPath,
		"compressed_url":    "/" + res.RelPath,
		"filename":          res.FileName,
	})
}

// RotateImage 旋转记录的第一张图片并原地写回。
// POST /api/image/rotate/:id  body: {"angle": 90}
func (h *Handler) RotateImage(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	var body struct {
		Angle *int `json:"angle"`
	}
	angle := 90
	if err := c.ShouldBindJSON(&body); err == nil && body.Angle != nil {
		angle = *body.Angle
	}

	_, relPath, ok := h.firstPhoto(c, id)
	if !ok {
		return
	}

	data, err := h.saver.Load(relPath)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "图片文件不存在"})
		return
	}

	rotated, _, err := imaging.Rotate(data, angle)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": fmt.Sprintf("图片旋转失败: %v", err)})
		return
	}
	if err := h.saver.Replace(relPath, rotated); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": fmt.Sprintf("图片旋转失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "图片旋转成功"})
}

// ImageInfo 获取记录第一张图片的信息。
// GET /api/image/info/:id
func (h *Handler) ImageInfo(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	_, relPath, ok := h.firstPhoto(c, id)
	if !ok {
		return
	}

	data, err := h.saver.Load(relPath)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "图片文件不存在"})
		return
	}

	info, err := imaging.Info(data)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": fmt.Sprintf("读取图片信息失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"filename":   path.Base(relPath),
		"size":       fmt.Sprintf("%.1f KB", float64(len(data))/1024),
		"dimensions": fmt.Sprintf("%d × %d", info.Width, info.Height),
		"format":     info.Format,
		"path":       relPath,
	})
}

// DownloadImage 下载记录的第一张图片，附件名为 车牌_文件名。
// GET /api/image/download/:id
func (h *Handler) DownloadImage(c *gin.Context) {
	id, ok := recordID(c)
	if !ok {
		return
	}

	rec, relPath, ok := h.firstPhoto(c, id)
	if !ok {
		return
	}

	if !h.saver.Exists(relPath) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "图片文件不存在"})
		return
	}
	c.FileAttachment(h.saver.Resolve(relPath), rec.LicensePlate+"_"+path.Base(relPath))
}

// ServeUpload 已上传图片的静态访问。
// GET /uploads/:filename
func (h *Handler) ServeUpload(c *gin.Context) {
	full := h.saver.Resolve(c.Param("filename"))
	if _, err := os.Stat(full); err != nil {
		fail(c, http.StatusNotFound, "文件不存在")
		return
	}
	c.File(full)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// firstPhoto 取记录的第一张图片路径。记录不存在或无图片时
// 按原有前端约定返回200的业务失败并返回 false。
func (h *Handler) firstPhoto(c *gin.Context, id int64) (*violation.ViolationRecord, string, bool) {
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil || rec == nil || len(rec.PhotoPaths) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "记录不存在或无图片"})
		return nil, "", false
	}
	return rec, rec.PhotoPaths[0], true
}

// isBodyTooLarge 识别 MaxBytesReader 触发的超限错误。
// multipart解析链路上该错误可能被包装，字符串匹配兜底。
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) ||
		strings.Contains(err.Error(), "request body too large")
}

func recordID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "无效的记录ID")
		return 0, false
	}
	return id, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) logError(msg string, err error) {
	if h.log != nil {
		h.log.Errorf("%s: %v", msg, err)
	}
}
