// Package cleanup 清理预览接口产生、但从未关联到任何违停记录的图片残留。
// 后台按固定周期运行：列出上传目录，取出所有记录引用的文件名集合，
// 删除超过保留时长且未被引用的文件。
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PlateWatch/PlateWatch/internal/common/logger"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_cleanup_runs_total",
		Help: "Total number of cleanup sweeps",
	})

	sweepFilesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_cleanup_files_removed_total",
		Help: "Total number of orphaned preview files removed",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pw_cleanup_errors_total",
		Help: "Total number of errors during cleanup sweeps",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pw_cleanup_duration_seconds",
		Help:    "Duration of cleanup sweeps in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// RecordSource 提供当前被记录引用的图片文件名集合（basename）。
type RecordSource interface {
	ReferencedPhotos(ctx context.Context) (map[string]struct{}, error)
}

// Result 单次清理结果
type Result struct {
	Scanned  int
	Removed  int
	Errors   int
	Duration time.Duration
}

// Sweeper 预览残留清理器
type Sweeper struct {
	dir      string
	interval time.Duration
	ttl      time.Duration
	source   RecordSource
	log      logger.Logger
	now      func() time.Time

	mu     sync.Mutex // 防止RunOnce并发执行
	cancel context.CancelFunc
}

func NewSweeper(dir string, interval, ttl time.Duration, source RecordSource, log logger.Logger) *Sweeper {
	return &Sweeper{
		dir:      dir,
		interval: interval,
		ttl:      ttl,
		source:   source,
		log:      log,
		now:      time.Now,
	}
}

// Start 启动后台清理协程，应用启动时调用一次。
func (s *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx)

	if s.log != nil {
		s.log.Infof("preview cleanup started, interval=%s ttl=%s", s.interval, s.ttl)
	}
}

// Stop 停止后台清理
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.log != nil {
		s.log.Info("preview cleanup stopped")
	}
}

func (s *Sweeper) run(ctx context.Context) {
	// 启动后先跑一次
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次清理，返回统计结果。
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	sweepRunsTotal.Inc()

	var result Result
	defer func() {
		result.Duration = s.now().Sub(start)
		sweepDurationSeconds.Observe(result.Duration.Seconds())
	}()

	refs, err := s.source.ReferencedPhotos(ctx)
	if err != nil {
		sweepErrorsTotal.Inc()
		result.Errors++
		if s.log != nil {
			s.log.Errorf("cleanup: failed to load referenced photos: %v", err)
		}
		return result
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result
		}
		sweepErrorsTotal.Inc()
		result.Errors++
		if s.log != nil {
			s.log.Errorf("cleanup: failed to list upload dir: %v", err)
		}
		return result
	}

	cutoff := start.Add(-s.ttl)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		result.Scanned++

		if _, referenced := refs[entry.Name()]; referenced {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			sweepErrorsTotal.Inc()
			result.Errors++
			continue
		}
		if info.ModTime().After(cutoff) {
			// 可能是尚未提交的预览，留到下个周期
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			sweepErrorsTotal.Inc()
			result.Errors++
			if s.log != nil {
				s.log.Warnf("cleanup: failed to remove %s: %v", entry.Name(), err)
			}
			continue
		}
		sweepFilesRemovedTotal.Inc()
		result.Removed++
		if s.log != nil {
			s.log.Infof("cleanup: removed orphaned preview file %s", entry.Name())
		}
	}

	return result
}
