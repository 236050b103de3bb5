package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"
	secrets "spread_mirror/internal/modules/secrets/service"

	"github.com/pkg/errors"
)

type fakeRuntime struct {
	mu sync.Mutex

	nextID     int
	containers map[string]bool // id -> running
	names      map[string]string

	createErr error
	startErr  error

	createCalls int
	stopCalls   int
	removeCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]bool),
		names:      make(map[string]string),
	}
}

func (f *fakeRuntime) FindByName(_ context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.names[name]
	if !ok {
		return "", false, nil
	}
	return id, f.containers[id], nil
}

func (f *fakeRuntime) Create(_ context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := "c-" + strconv.Itoa(f.nextID)
	f.containers[id] = false
	f.names[spec.Name] = id
	return id, nil
}

func (f *fakeRuntime) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.containers[id] = true
	return nil
}

func (f *fakeRuntime) Stop(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.containers[id] = false
	return nil
}

func (f *fakeRuntime) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	delete(f.containers, id)
	return nil
}

func (f *fakeRuntime) Running(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	running, ok := f.containers[id]
	if !ok {
		return false, errors.New("no such container")
	}
	return running, nil
}

func (f *fakeRuntime) kill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id] = false
}

type fakeSecrets struct {
	creds map[string]*secrets.Credentials
}

func (f *fakeSecrets) Resolve(_ context.Context, path string) (*secrets.Credentials, error) {
	if f.creds == nil {
		return nil, nil
	}
	return f.creds[path], nil
}

type fakeAlerts struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (f *fakeAlerts) Publish(_ context.Context, a models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeAlerts) byReason(r models.Reason) []models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Alert
	for _, a := range f.alerts {
		if a.Reason == r {
			out = append(out, a)
		}
	}
	return out
}

// fakeClient — брокерский клиент без сети.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	summaryErr error
	closed     bool
}

func (f *fakeClient) Connect(_ context.Context, _ string, _, _ int, _ time.Duration) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) AccountSummary(context.Context) (*broker.AccountSummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &broker.AccountSummary{AvailableFunds: 10000}, nil
}

func (f *fakeClient) Snapshot(context.Context, broker.Contract) (*broker.Quote, error) {
	return &broker.Quote{}, nil
}

func (f *fakeClient) UnderlyingPrice(context.Context, string) (float64, error) { return 0, nil }

func (f *fakeClient) WhatIf(context.Context, broker.Order) (*broker.MarginEstimate, error) {
	return &broker.MarginEstimate{}, nil
}

func (f *fakeClient) PlaceOrder(context.Context, broker.Order) (string, error) { return "o-1", nil }

func (f *fakeClient) WaitFill(_ context.Context, orderID string, _ time.Duration) (*broker.Fill, error) {
	return &broker.Fill{OrderID: orderID, Status: broker.FillFilled}, nil
}

func (f *fakeClient) CancelOrder(context.Context, string) error { return nil }

func (f *fakeClient) OpenPositions(context.Context) ([]broker.BrokerPosition, error) {
	return nil, nil
}
