package service

import (
	"context"
	"testing"
	"time"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"
	"spread_mirror/internal/modules/config"
	"spread_mirror/pkg/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Image:          "gateway:test",
		Host:           "127.0.0.1",
		GatewayPort:    4002,
		PortStart:      4100,
		PortEnd:        4101,
		ClientIDStart:  10,
		ClientIDEnd:    11,
		HealthInterval: 10 * time.Millisecond,
		MaxStartupTime: 50 * time.Millisecond,
		StopGrace:      time.Second,
		ConnectTimeout: time.Second,
	}
}

func newTestOrchestrator(rt *fakeRuntime, alerts *fakeAlerts, factory ClientFactory) *Orchestrator {
	if factory == nil {
		factory = func() broker.API { return &fakeClient{} }
	}
	return NewOrchestrator(testGatewayConfig(), rt, &fakeSecrets{}, alerts, logger.Nop(), factory)
}

func follower(id string) models.Follower {
	return models.Follower{ID: id, Username: "u-" + id, SecretRef: "followers/" + id, Enabled: true}
}

func TestAllocateUniquePerLiveInstance(t *testing.T) {
	o := newTestOrchestrator(newFakeRuntime(), &fakeAlerts{}, nil)

	i1, err := o.Allocate(follower("f-1"))
	require.NoError(t, err)
	i2, err := o.Allocate(follower("f-2"))
	require.NoError(t, err)

	assert.NotEqual(t, i1.HostPort, i2.HostPort)
	assert.NotEqual(t, i1.ClientID, i2.ClientID)

	// повтор для того же фолловера — тот же инстанс, не вторая аллокация
	again, err := o.Allocate(follower("f-1"))
	require.NoError(t, err)
	assert.Equal(t, i1.HostPort, again.HostPort)
}

func TestAllocateResourceExhausted(t *testing.T) {
	o := newTestOrchestrator(newFakeRuntime(), &fakeAlerts{}, nil)

	_, err := o.Allocate(follower("f-1"))
	require.NoError(t, err)
	_, err = o.Allocate(follower("f-2"))
	require.NoError(t, err)

	_, err = o.Allocate(follower("f-3"))
	require.Error(t, err)
	var exhausted *ResourceExhaustedError
	assert.True(t, errors.As(err, &exhausted))
}

func TestStartLaunchesContainerAndDoesNotWaitForLogin(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(rt, &fakeAlerts{}, nil)

	require.NoError(t, o.Start(context.Background(), follower("f-1")))

	inst, ok := o.Instance("f-1")
	require.True(t, ok)
	assert.Equal(t, models.GatewayStarting, inst.Status)
	assert.NotEmpty(t, inst.ContainerID)
	assert.Equal(t, 1, rt.createCalls)

	// повторный Start переиспользует запущенный контейнер
	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	assert.Equal(t, 1, rt.createCalls)
}

func TestStartFailureMarksFailedAndReleasesResources(t *testing.T) {
	rt := newFakeRuntime()
	rt.createErr = errors.New("image missing")
	o := newTestOrchestrator(rt, &fakeAlerts{}, nil)

	err := o.Start(context.Background(), follower("f-1"))
	require.Error(t, err)

	inst, ok := o.Instance("f-1")
	require.True(t, ok)
	assert.Equal(t, models.GatewayFailed, inst.Status)

	// ресурсы вернулись в пул: два новых фолловера ещё помещаются
	rt.createErr = nil
	_, err = o.Allocate(follower("f-2"))
	require.NoError(t, err)
	_, err = o.Allocate(follower("f-3"))
	require.NoError(t, err)
}

func TestFailedInstanceNeverShadowsLiveResources(t *testing.T) {
	rt := newFakeRuntime()
	rt.createErr = errors.New("image missing")
	o := newTestOrchestrator(rt, &fakeAlerts{}, nil)

	// f-1 падает на старте: его port/client_id вернулись в пул
	require.Error(t, o.Start(context.Background(), follower("f-1")))

	i2, err := o.Allocate(follower("f-2"))
	require.NoError(t, err)

	// повторная аллокация f-1 не должна отдать значения, которыми уже
	// владеет живой f-2
	i1, err := o.Allocate(follower("f-1"))
	require.NoError(t, err)
	assert.NotEqual(t, i2.HostPort, i1.HostPort, "two live followers share one host port")
	assert.NotEqual(t, i2.ClientID, i1.ClientID)

	// и перезапущенный гейтвей поднимается на своём порту
	rt.createErr = nil
	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	inst, ok := o.Instance("f-1")
	require.True(t, ok)
	assert.Equal(t, models.GatewayStarting, inst.Status)
	assert.NotEqual(t, i2.HostPort, inst.HostPort, "restarted gateway binds a port owned by another live instance")
}

func TestStartFailurePublishesAlert(t *testing.T) {
	rt := newFakeRuntime()
	rt.createErr = errors.New("image missing")
	alerts := &fakeAlerts{}
	o := newTestOrchestrator(rt, alerts, nil)

	require.Error(t, o.Start(context.Background(), follower("f-1")))
	assert.Len(t, alerts.byReason(models.ReasonGatewayFailed), 1)
}

func TestStartExhaustionPublishesAlert(t *testing.T) {
	alerts := &fakeAlerts{}
	o := newTestOrchestrator(newFakeRuntime(), alerts, nil)

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	require.NoError(t, o.Start(context.Background(), follower("f-2")))

	err := o.Start(context.Background(), follower("f-3"))
	require.Error(t, err)
	got := alerts.byReason(models.ReasonResourceExhausted)
	require.Len(t, got, 1)
	assert.Equal(t, "f-3", got[0].FollowerID)
	assert.Equal(t, "port", got[0].Details["pool"])
}

func TestGetClientReturnsNilForUnknownFollower(t *testing.T) {
	o := newTestOrchestrator(newFakeRuntime(), &fakeAlerts{}, nil)
	assert.Nil(t, o.GetClient(context.Background(), "ghost"))
}

func TestGetClientReconnectsOnce(t *testing.T) {
	rt := newFakeRuntime()
	var made []*fakeClient
	o := newTestOrchestrator(rt, &fakeAlerts{}, func() broker.API {
		c := &fakeClient{}
		made = append(made, c)
		return c
	})

	require.NoError(t, o.Start(context.Background(), follower("f-1")))

	got := o.GetClient(context.Background(), "f-1")
	require.NotNil(t, got)
	require.Len(t, made, 1)

	inst, _ := o.Instance("f-1")
	assert.Equal(t, models.GatewayRunning, inst.Status)

	// живой клиент переиспользуется, новый не создаётся
	got2 := o.GetClient(context.Background(), "f-1")
	assert.Same(t, got, got2)
	assert.Len(t, made, 1)
}

func TestGetClientNilWhenReconnectFails(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(rt, &fakeAlerts{}, func() broker.API {
		return &fakeClient{connectErr: errors.New("connection refused")}
	})

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	assert.Nil(t, o.GetClient(context.Background(), "f-1"))
}

func TestStopIsIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(rt, &fakeAlerts{}, nil)

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	require.NoError(t, o.Stop(context.Background(), "f-1"))
	stops, removes := rt.stopCalls, rt.removeCalls
	require.Equal(t, 1, stops)
	require.Equal(t, 1, removes)

	// второй вызов: ни операций с контейнером, ни ошибки
	require.NoError(t, o.Stop(context.Background(), "f-1"))
	assert.Equal(t, stops, rt.stopCalls)
	assert.Equal(t, removes, rt.removeCalls)
}

func TestStopReleasesResources(t *testing.T) {
	o := newTestOrchestrator(newFakeRuntime(), &fakeAlerts{}, nil)

	i1, err := o.Allocate(follower("f-1"))
	require.NoError(t, err)
	require.NoError(t, o.Stop(context.Background(), "f-1"))

	i2, err := o.Allocate(follower("f-2"))
	require.NoError(t, err)
	assert.Equal(t, i1.HostPort, i2.HostPort, "released port is reused lowest-first")
}

func TestHealthPassMarksLostContainerFailed(t *testing.T) {
	rt := newFakeRuntime()
	alerts := &fakeAlerts{}
	o := newTestOrchestrator(rt, alerts, nil)

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	require.NotNil(t, o.GetClient(context.Background(), "f-1")) // RUNNING

	inst, _ := o.Instance("f-1")
	rt.kill(inst.ContainerID)

	o.healthPass(context.Background())

	inst, ok := o.Instance("f-1")
	require.True(t, ok)
	assert.Equal(t, models.GatewayFailed, inst.Status)
	assert.Len(t, alerts.byReason(models.ReasonGatewayFailed), 1)

	// порт вернулся в пул
	i2, err := o.Allocate(follower("f-2"))
	require.NoError(t, err)
	assert.Equal(t, inst.HostPort, i2.HostPort)
}

func TestHealthPassToleratesStartupBudget(t *testing.T) {
	rt := newFakeRuntime()
	alerts := &fakeAlerts{}
	o := newTestOrchestrator(rt, alerts, nil)

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	inst, _ := o.Instance("f-1")
	rt.kill(inst.ContainerID) // контейнер ещё не поднялся

	o.healthPass(context.Background())
	inst, _ = o.Instance("f-1")
	assert.Equal(t, models.GatewayStarting, inst.Status, "within startup budget")

	time.Sleep(60 * time.Millisecond) // бюджет в тестовом конфиге 50ms
	o.healthPass(context.Background())
	inst, _ = o.Instance("f-1")
	assert.Equal(t, models.GatewayFailed, inst.Status)
}

func TestShutdownStopsEverythingDespiteErrors(t *testing.T) {
	rt := newFakeRuntime()
	o := newTestOrchestrator(rt, &fakeAlerts{}, nil)
	o.StartHealth(context.Background())

	require.NoError(t, o.Start(context.Background(), follower("f-1")))
	require.NoError(t, o.Start(context.Background(), follower("f-2")))

	require.NoError(t, o.Shutdown(context.Background()))

	_, ok := o.Instance("f-1")
	assert.False(t, ok)
	_, ok = o.Instance("f-2")
	assert.False(t, ok)
}
