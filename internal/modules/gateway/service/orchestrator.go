package service

import (
	"context"
	"sync"
	"time"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"
	"spread_mirror/internal/modules/config"
	secrets "spread_mirror/internal/modules/secrets/service"
	"spread_mirror/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Пароль-заглушка: секрет не разрезолвился, гейтвей поднимется в paper-режиме.
const placeholderPassword = "-"

// Alerts — то, что оркестратору нужно от шины алертов.
type Alerts interface {
	Publish(ctx context.Context, a models.Alert)
}

// ClientFactory отдаёт свежий неподключённый клиент брокерского API.
type ClientFactory func() broker.API

// entry — инстанс гейтвея плюс живой клиент к нему. Клиент nullable:
// контейнер и логин — два независимых гейта здоровья.
type entry struct {
	inst   *models.GatewayInstance
	client broker.API
}

// Orchestrator владеет всеми gateway-процессами: по одному на активного
// фолловера, у каждого свои (port, client_id) из ограниченных пулов.
// Вся разделяемая мутация — карта инстансов и пулы — под одним мьютексом;
// состояние лежит в полях инстанса, не в глобалах, чтобы несколько
// оркестраторов (например в тестах) не пересекались.
type Orchestrator struct {
	cfg       config.GatewayConfig
	runtime   ContainerRuntime
	secrets   secrets.Provider
	alerts    Alerts
	log       *logger.Logger
	newClient ClientFactory

	mu        sync.Mutex
	instances map[string]*entry
	ports     *allocator
	ids       *allocator

	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

func NewOrchestrator(
	cfg config.GatewayConfig,
	runtime ContainerRuntime,
	sp secrets.Provider,
	alerts Alerts,
	log *logger.Logger,
	newClient ClientFactory,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		runtime:   runtime,
		secrets:   sp,
		alerts:    alerts,
		log:       log,
		newClient: newClient,
		instances: make(map[string]*entry),
		ports:     newAllocator(cfg.PortStart, cfg.PortEnd),
		ids:       newAllocator(cfg.ClientIDStart, cfg.ClientIDEnd),
	}
}

// Allocate выделяет фолловеру наименьший свободный порт и client id.
// Повторный вызов для того же фолловера отдаёт уже существующий инстанс.
func (o *Orchestrator) Allocate(follower models.Follower) (*models.GatewayInstance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.instances[follower.ID]; ok {
		// ресурсы FAILED-инстанса уже возвращены в пул и могли достаться
		// другому фолловеру — старую запись выбрасываем и выделяем заново
		if e.inst.Status != models.GatewayFailed {
			return e.inst, nil
		}
		delete(o.instances, follower.ID)
	}

	port, ok := o.ports.acquire()
	if !ok {
		return nil, &ResourceExhaustedError{Pool: "port"}
	}
	clientID, ok := o.ids.acquire()
	if !ok {
		o.ports.release(port)
		return nil, &ResourceExhaustedError{Pool: "client_id"}
	}

	inst := &models.GatewayInstance{
		FollowerID: follower.ID,
		HostPort:   port,
		ClientID:   clientID,
		Status:     models.GatewayStarting,
	}
	o.instances[follower.ID] = &entry{inst: inst}
	return inst, nil
}

// Start резолвит креды, поднимает (или переиспользует) контейнер гейтвея
// и возвращается не дожидаясь завершения логина.
func (o *Orchestrator) Start(ctx context.Context, follower models.Follower) error {
	creds, err := o.secrets.Resolve(ctx, follower.SecretRef)
	if err != nil {
		o.log.Error("secret resolve %s: %v", follower.SecretRef, err)
		creds = nil
	}
	if creds == nil {
		// секрета нет — логин из конфигурации фолловера, пароль-заглушка
		creds = &secrets.Credentials{Username: follower.Username, Password: placeholderPassword}
	}

	inst, err := o.Allocate(follower)
	if err != nil {
		var exhausted *ResourceExhaustedError
		if errors.As(err, &exhausted) {
			o.alerts.Publish(ctx, models.Alert{
				FollowerID: follower.ID,
				Reason:     models.ReasonResourceExhausted,
				Details:    map[string]string{"pool": exhausted.Pool},
			})
		}
		return err
	}

	o.mu.Lock()
	status := inst.Status
	containerID := inst.ContainerID
	o.mu.Unlock()
	if containerID != "" && (status == models.GatewayRunning || status == models.GatewayStarting) {
		return nil
	}

	name := "gateway-" + follower.ID
	id, running, err := o.runtime.FindByName(ctx, name)
	if err != nil {
		return o.failStart(ctx, follower.ID, errors.Wrap(err, "find gateway container"))
	}
	if id == "" {
		id, err = o.runtime.Create(ctx, ContainerSpec{
			Name:  name,
			Image: o.cfg.Image,
			Env: map[string]string{
				"LOGIN_USER":     creds.Username,
				"LOGIN_PASSWORD": creds.Password,
			},
			HostPort:    inst.HostPort,
			GatewayPort: o.cfg.GatewayPort,
		})
		if err != nil {
			return o.failStart(ctx, follower.ID, err)
		}
	}
	if !running {
		if err := o.runtime.Start(ctx, id); err != nil {
			return o.failStart(ctx, follower.ID, err)
		}
	}

	o.mu.Lock()
	if e, ok := o.instances[follower.ID]; ok {
		e.inst.ContainerID = id
		e.inst.Status = models.GatewayStarting
		e.inst.StartedAt = time.Now()
	}
	o.mu.Unlock()

	o.log.Info("gateway started: follower=%s container=%s port=%d client_id=%d",
		follower.ID, shortID(id), inst.HostPort, inst.ClientID)
	return nil
}

// failStart помечает инстанс FAILED, освобождает ресурсы, шумит операторам
// и отдаёт ошибку наверх.
func (o *Orchestrator) failStart(ctx context.Context, followerID string, cause error) error {
	o.mu.Lock()
	if e, ok := o.instances[followerID]; ok {
		e.inst.Status = models.GatewayFailed
		o.ports.release(e.inst.HostPort)
		o.ids.release(e.inst.ClientID)
	}
	o.mu.Unlock()

	o.alerts.Publish(ctx, models.Alert{
		FollowerID: followerID,
		Reason:     models.ReasonGatewayFailed,
		Details:    map[string]string{"detail": cause.Error()},
	})
	return errors.Wrap(cause, "orchestrator: start gateway for "+followerID)
}

// GetClient отдаёт живой подключённый клиент или nil. Если клиент отвалился —
// ровно одна попытка реконнекта с подтверждением лёгким запросом по счёту.
func (o *Orchestrator) GetClient(ctx context.Context, followerID string) broker.API {
	o.mu.Lock()
	e, ok := o.instances[followerID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	status := e.inst.Status
	client := e.client
	host, port, clientID := o.cfg.Host, e.inst.HostPort, e.inst.ClientID
	o.mu.Unlock()

	if status == models.GatewayStopped || status == models.GatewayFailed {
		return nil
	}
	if client != nil && client.IsConnected() && status == models.GatewayRunning {
		return client
	}

	fresh, err := o.dial(ctx, host, port, clientID)
	if err != nil {
		o.log.Error("reconnect failed: follower=%s port=%d err=%v", followerID, port, err)
		return nil
	}

	o.mu.Lock()
	e, ok = o.instances[followerID]
	if !ok {
		// фолловера успели остановить, пока мы коннектились
		o.mu.Unlock()
		_ = fresh.Close()
		return nil
	}
	if e.client != nil && e.client != client {
		_ = e.client.Close()
	}
	e.client = fresh
	e.inst.Status = models.GatewayRunning
	o.mu.Unlock()
	return fresh
}

// dial: новый клиент + connect + подтверждение account summary.
func (o *Orchestrator) dial(ctx context.Context, host string, port, clientID int) (broker.API, error) {
	c := o.newClient()
	if err := c.Connect(ctx, host, port, clientID, o.cfg.ConnectTimeout); err != nil {
		return nil, err
	}
	if _, err := c.AccountSummary(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Stop гасит гейтвей фолловера: клиент, контейнер, ресурсы. Идемпотентен —
// повторный вызов не трогает рантайм и не возвращает ошибку.
func (o *Orchestrator) Stop(ctx context.Context, followerID string) error {
	o.mu.Lock()
	e, ok := o.instances[followerID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.instances, followerID)
	o.ports.release(e.inst.HostPort)
	o.ids.release(e.inst.ClientID)
	o.mu.Unlock()

	var errs error
	if e.client != nil {
		errs = multierr.Append(errs, e.client.Close())
	}
	if e.inst.ContainerID != "" {
		if err := o.runtime.Stop(ctx, e.inst.ContainerID, o.cfg.StopGrace); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := o.runtime.Remove(ctx, e.inst.ContainerID); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	e.inst.Status = models.GatewayStopped

	o.log.Info("gateway stopped: follower=%s", followerID)
	return errs
}

// StopAll гасит всех. Ошибки копим, но останавливаем каждого.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.instances))
	for id := range o.instances {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	var errs error
	for _, id := range ids {
		if err := o.Stop(ctx, id); err != nil {
			o.log.Error("stop follower %s: %v", id, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Shutdown: сначала дожидаемся остановки health-лупа, потом гасим инстансы.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.healthCancel != nil {
		o.healthCancel()
		<-o.healthDone
	}
	return o.StopAll(ctx)
}

// Instance — снапшот инстанса фолловера (для статуса/тестов).
func (o *Orchestrator) Instance(followerID string) (models.GatewayInstance, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.instances[followerID]
	if !ok {
		return models.GatewayInstance{}, false
	}
	return *e.inst, true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
