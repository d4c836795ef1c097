package job

import (
	"context"
	"time"

	"auctionhouse/internal/config"

	log "github.com/sirupsen/logrus"
)

// Snapshotter 快照执行口
type Snapshotter interface {
	Save(ctx context.Context) error
}

// SnapshotJob 周期快照任务
// 退出前会用独立的有界超时上下文补一次快照：只是为了缩短下次启动的恢复量，
// 结算正确性不依赖这次收尾写入
type SnapshotJob struct {
	snapshotSvc Snapshotter
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	finalWrite  time.Duration
}

func NewSnapshotJob(snapshotSvc Snapshotter, cfg *config.Config) *SnapshotJob {
	return &SnapshotJob{
		snapshotSvc: snapshotSvc,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    cfg.Business.SnapshotInterval(),
		finalWrite:  10 * time.Second,
	}
}

func (j *SnapshotJob) Start(ctx context.Context) {
	log.Println("[SnapshotJob] 快照任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.finalSnapshot()
			log.Println("[SnapshotJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.finalSnapshot()
			log.Println("[SnapshotJob] 任务停止")
			return
		case <-ticker.C:
			if err := j.snapshotSvc.Save(ctx); err != nil {
				// 下个周期自然重试，不在这里加退避
				log.Errorf("[SnapshotJob] 快照失败: %v", err)
			}
		}
	}
}

func (j *SnapshotJob) Stop() {
	close(j.stopCh)
}

// finalSnapshot 停机前的收尾快照
// 外层 ctx 已取消，必须换一个带超时的新上下文
func (j *SnapshotJob) finalSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), j.finalWrite)
	defer cancel()

	if err := j.snapshotSvc.Save(ctx); err != nil {
		log.Errorf("[SnapshotJob] 收尾快照失败: %v", err)
		return
	}
	log.Println("[SnapshotJob] 收尾快照完成")
}
