package service

import (
	"context"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// EligibilityChecker 参与资格协作方
// 发布/出价/一口价之前都要过这道闸；具体含义（比如频道成员校验）由聊天端维护
type EligibilityChecker interface {
	IsEligible(ctx context.Context, userID int64) bool
}

// RedisEligibility 基于 Redis 集合的资格缓存
// 聊天端把有资格的用户ID写进集合，这里只做成员判断
// 查询出错一律按“无资格”处理（fail closed），宁可误拒不可误放
type RedisEligibility struct {
	client *redis.Client
	setKey string
}

func NewRedisEligibility(client *redis.Client, setKey string) *RedisEligibility {
	return &RedisEligibility{client: client, setKey: setKey}
}

func (e *RedisEligibility) IsEligible(ctx context.Context, userID int64) bool {
	ok, err := e.client.SIsMember(ctx, e.setKey, userID).Result()
	if err != nil {
		log.Warnf("[Eligibility] 资格查询失败，按无资格处理: userID=%d, err=%v", userID, err)
		return false
	}
	return ok
}
