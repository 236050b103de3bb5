package service

import (
	"context"
	"time"

	"spread_mirror/internal/models"
	"spread_mirror/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Reader тянет входящие сигналы из redis-стрима. Сигналы публикует
// внешний генератор; движок их только исполняет.
type Reader struct {
	rdb    *redis.Client
	stream string
	log    *logger.Logger
}

func NewReader(rdb *redis.Client, stream string, log *logger.Logger) *Reader {
	return &Reader{rdb: rdb, stream: stream, log: log}
}

// Run блокирующе читает стрим и шлёт сигналы в out до отмены контекста.
// Кривые записи пропускаем с логом: один мусорный сигнал не должен
// останавливать приём.
func (r *Reader) Run(ctx context.Context, out chan<- models.Signal) {
	lastID := "$" // только новые: историю не переигрываем

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := r.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{r.stream, lastID},
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			r.log.Error("signal stream read: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				sig, ok := parseSignal(msg.Values)
				if !ok {
					r.log.Error("malformed signal %s: %v", msg.ID, msg.Values)
					continue
				}
				select {
				case out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func parseSignal(values map[string]interface{}) (models.Signal, bool) {
	raw, ok := values["payload"].(string)
	if !ok {
		return models.Signal{}, false
	}
	var sig models.Signal
	if err := sonic.UnmarshalString(raw, &sig); err != nil {
		return models.Signal{}, false
	}
	if sig.Ticker == "" || sig.Qty <= 0 {
		return models.Signal{}, false
	}
	return sig, true
}
