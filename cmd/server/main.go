package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"auctionhouse/internal/config"
	"auctionhouse/internal/handler"
	"auctionhouse/internal/infrastructure/cache"
	"auctionhouse/internal/infrastructure/database"
	"auctionhouse/internal/infrastructure/mq"
	"auctionhouse/internal/job"
	"auctionhouse/internal/service"
	"auctionhouse/pkg/idgen"
	"auctionhouse/pkg/logger"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	logger.Init()

	cfg := config.LoadConfig(*configPath)

	// 雪花算法初始化（单实例部署，workerID 固定即可）
	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)
	rdb := cache.InitRedis(&cfg.Redis)
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 【关键点】恢复必须发生在对外服务和到期扫描之前：
	// 先把快照里的进行中拍卖与数据库对齐，再开始接受新的出价
	snapshotSvc := service.NewSnapshotService(db, rdb, cfg)
	restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := snapshotSvc.Restore(restoreCtx); err != nil {
		log.Fatalf("快照恢复失败: %v", err)
	}
	restoreCancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var jobWG sync.WaitGroup

	expiryJob := job.NewAuctionExpiryJob(db, cfg)
	jobWG.Add(1)
	go func() {
		defer jobWG.Done()
		expiryJob.Start(ctx)
	}()

	snapshotJob := job.NewSnapshotJob(snapshotSvc, cfg)
	jobWG.Add(1)
	go func() {
		defer jobWG.Done()
		snapshotJob.Start(ctx)
	}()

	sender := job.NewNotificationSender(db, cfg)
	jobWG.Add(1)
	go func() {
		defer jobWG.Done()
		sender.Start(ctx)
	}()

	gin.SetMode(cfg.Server.Mode)
	h := handler.NewHandler(db, rdb, cfg)
	router := handler.SetupRouter(h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Infof("服务启动，监听端口 :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 优雅关闭：先停后台任务（触发收尾快照），再关 HTTP 服务
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("收到退出信号，开始优雅关闭...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务关闭异常: %v", err)
	}

	// 等后台任务退出：快照任务会在这之前写完收尾快照（自带有界超时）
	jobWG.Wait()
	log.Println("服务已退出")
}
