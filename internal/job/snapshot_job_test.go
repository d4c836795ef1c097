package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSnapshotter struct {
	mu         sync.Mutex
	calls      int
	lastCtxErr error
}

func (r *recordingSnapshotter) Save(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastCtxErr = ctx.Err()
	return nil
}

// 停机路径：Start 返回之前必须已完成收尾快照，等待方（WaitGroup）
// 因此能确定快照写完了才放行进程退出
func TestSnapshotJobFinalWriteOnShutdown(t *testing.T) {
	snap := &recordingSnapshotter{}
	j := &SnapshotJob{
		snapshotSvc: snap,
		stopCh:      make(chan struct{}),
		interval:    time.Hour, // 周期写不参与本测试
		finalWrite:  time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("任务未在取消后退出")
	}

	snap.mu.Lock()
	defer snap.mu.Unlock()
	require.Equal(t, 1, snap.calls, "退出前恰好一次收尾快照")
	// 外层 ctx 已取消，收尾写必须换新的有界上下文
	assert.NoError(t, snap.lastCtxErr)
}
