package service

import (
	"context"
	"time"

	"spread_mirror/internal/models"
	"spread_mirror/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Streamer — кусок redis-клиента, который нужен шине. Сужаем до XAdd,
// чтобы в тестах не тащить настоящий redis.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Bus публикует алерты в append-only стрим. Fire-and-forget:
// ошибка публикации логируется и глотается, алертинг не валит движок.
type Bus struct {
	rdb     Streamer
	stream  string
	service string
	log     *logger.Logger
}

func NewBus(rdb Streamer, stream, service string, log *logger.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		stream:  stream,
		service: service,
		log:     log,
	}
}

// Publish дополняет алерт сервисом/временем/серьёзностью и пишет в стрим.
func (b *Bus) Publish(ctx context.Context, a models.Alert) {
	if a.Service == "" {
		a.Service = b.service
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	if a.Severity == "" {
		a.Severity = Severity(a.Reason)
	}

	details := "{}"
	if len(a.Details) > 0 {
		if raw, err := sonic.Marshal(a.Details); err == nil {
			details = string(raw)
		}
	}

	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"service":     a.Service,
			"follower_id": a.FollowerID,
			"reason":      string(a.Reason),
			"severity":    string(a.Severity),
			"at":          a.At.Format(time.RFC3339Nano),
			"details":     details,
		},
	}).Err()
	if err != nil {
		b.log.Error("alert publish failed: follower=%s reason=%s err=%v", a.FollowerID, a.Reason, err)
		return
	}

	b.log.Info("alert: follower=%s reason=%s severity=%s", a.FollowerID, a.Reason, a.Severity)
}
