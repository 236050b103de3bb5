package service

import (
	"context"
	"time"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"
	"spread_mirror/pkg/retry"
)

// StartHealth запускает периодическую проверку инстансов. Проходы не
// перекрываются: следующий тик ждёт завершения предыдущего прохода.
func (o *Orchestrator) StartHealth(parent context.Context) {
	hctx, cancel := context.WithCancel(parent)
	o.healthCancel = cancel
	o.healthDone = make(chan struct{})

	go func() {
		defer close(o.healthDone)

		ticker := time.NewTicker(o.cfg.HealthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				o.healthPass(hctx)
			}
		}
	}()
}

// healthPass проверяет оба гейта каждого инстанса: жив ли контейнер и жив ли
// клиент. Никогда не возвращает ошибку — логируем и едем дальше.
func (o *Orchestrator) healthPass(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			o.log.Error("health pass panic: %v", p)
		}
	}()

	type probe struct {
		followerID  string
		containerID string
		status      models.GatewayStatus
		startedAt   time.Time
		hostPort    int
		clientID    int
		client      broker.API
	}

	o.mu.Lock()
	probes := make([]probe, 0, len(o.instances))
	for id, e := range o.instances {
		probes = append(probes, probe{
			followerID:  id,
			containerID: e.inst.ContainerID,
			status:      e.inst.Status,
			startedAt:   e.inst.StartedAt,
			hostPort:    e.inst.HostPort,
			clientID:    e.inst.ClientID,
			client:      e.client,
		})
	}
	o.mu.Unlock()

	for _, p := range probes {
		if p.status == models.GatewayStopped || p.status == models.GatewayFailed {
			continue
		}

		if p.containerID == "" {
			// Start ещё не дошёл до контейнера; бюджет на запуск общий
			if time.Since(p.startedAt) > o.cfg.MaxStartupTime {
				o.markFailed(ctx, p.followerID, "container never started")
			}
			continue
		}

		running, err := o.runtime.Running(ctx, p.containerID)
		if err != nil || !running {
			if p.status == models.GatewayStarting && time.Since(p.startedAt) < o.cfg.MaxStartupTime {
				continue // ещё поднимается
			}
			detail := "container not running"
			if err != nil {
				detail = err.Error()
			}
			o.markFailed(ctx, p.followerID, detail)
			continue
		}

		o.touch(p.followerID)

		// контейнер жив; второй гейт — подключённый клиент
		if p.client != nil && p.client.IsConnected() {
			continue
		}
		o.reconnect(ctx, p.followerID, p.hostPort, p.clientID)
	}
}

// markFailed: контейнер потерян — инстанс FAILED, ресурсы в пул, алерт операторам.
func (o *Orchestrator) markFailed(ctx context.Context, followerID, detail string) {
	o.mu.Lock()
	e, ok := o.instances[followerID]
	var client interface{ Close() error }
	if ok {
		e.inst.Status = models.GatewayFailed
		o.ports.release(e.inst.HostPort)
		o.ids.release(e.inst.ClientID)
		client = e.client
		e.client = nil
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	if client != nil {
		_ = client.Close()
	}

	o.log.Error("gateway failed: follower=%s: %s", followerID, detail)
	o.alerts.Publish(ctx, models.Alert{
		FollowerID: followerID,
		Reason:     models.ReasonGatewayFailed,
		Details:    map[string]string{"detail": detail},
	})
}

func (o *Orchestrator) touch(followerID string) {
	o.mu.Lock()
	if e, ok := o.instances[followerID]; ok {
		e.inst.LastHealthCheck = time.Now()
	}
	o.mu.Unlock()
}

// reconnect — ограниченный ретрай подключения клиента к живому контейнеру.
func (o *Orchestrator) reconnect(ctx context.Context, followerID string, port, clientID int) {
	var fresh broker.API

	err := retry.Do(ctx, retry.Policy{MaxAttempts: 3, Backoff: retry.DefaultBackoff()},
		func(ctx context.Context, attempt int) error {
			c, err := o.dial(ctx, o.cfg.Host, port, clientID)
			if err != nil {
				return err
			}
			fresh = c
			return nil
		})
	if err != nil {
		o.log.Error("health reconnect failed: follower=%s port=%d err=%v", followerID, port, err)
		return
	}

	o.mu.Lock()
	e, ok := o.instances[followerID]
	if !ok {
		o.mu.Unlock()
		_ = fresh.Close()
		return
	}
	if e.client != nil {
		_ = e.client.Close()
	}
	e.client = fresh
	e.inst.Status = models.GatewayRunning
	o.mu.Unlock()
	o.log.Info("client reconnected: follower=%s port=%d", followerID, port)
}
