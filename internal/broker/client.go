package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"spread_mirror/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var ErrNotConnected = errors.New("broker: not connected")

const fillPollInterval = 500 * time.Millisecond

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client — ws-сессия к gateway-процессу фолловера. Запрос/ответ матчатся
// по sequence id, писатель один (под мьютексом), читатель — отдельная горутина.
type Client struct {
	dialer *websocket.Dialer
	log    *logger.Logger

	writeMu sync.Mutex // сериализует WriteMessage
	mu      sync.Mutex // conn/pending/seq
	conn    *websocket.Conn
	seq     uint64
	pending map[uint64]chan response
}

func NewClient(log *logger.Logger) *Client {
	return &Client{
		dialer:  &websocket.Dialer{},
		log:     log,
		pending: make(map[uint64]chan response),
	}
}

// Connect открывает ws и проходит auth-рукопожатие с client_id.
// Таймаут покрывает и dial, и auth.
func (c *Client) Connect(ctx context.Context, host string, port, clientID int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/v1/api", host, port)
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "broker: dial "+url)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readPump(conn)

	var ack struct {
		Session string `json:"session"`
	}
	if err := c.call(ctx, "auth", map[string]int{"client_id": clientID}, &ack); err != nil {
		_ = c.Close()
		return errors.Wrap(err, "broker: auth")
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}
		var resp response
		if err := sonic.Unmarshal(raw, &resp); err != nil {
			c.log.Error("broker: bad frame: %v", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// teardown — соединение умерло: будим всех ожидающих и забываем conn.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[uint64]chan response)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- response{ID: id, Error: "connection lost: " + cause.Error()}
	}
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.seq++
	id := c.seq
	ch := make(chan response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	raw, err := sonic.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return errors.Wrap(err, "broker: marshal "+method)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, raw)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return errors.Wrap(err, "broker: write "+method)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case resp := <-ch:
		if resp.Error != "" {
			return errors.New("broker: " + method + ": " + resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := sonic.Unmarshal(resp.Result, out); err != nil {
				return errors.Wrap(err, "broker: unmarshal "+method)
			}
		}
		return nil
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) AccountSummary(ctx context.Context) (*AccountSummary, error) {
	var out AccountSummary
	if err := c.call(ctx, "account.summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Snapshot(ctx context.Context, contract Contract) (*Quote, error) {
	var out Quote
	if err := c.call(ctx, "market.snapshot", contract, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price float64 `json:"price"`
	}
	if err := c.call(ctx, "market.underlying", map[string]string{"symbol": symbol}, &out); err != nil {
		return 0, err
	}
	return out.Price, nil
}

func (c *Client) WhatIf(ctx context.Context, o Order) (*MarginEstimate, error) {
	var out MarginEstimate
	if err := c.call(ctx, "order.whatif", o, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, o Order) (string, error) {
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := c.call(ctx, "order.place", o, &out); err != nil {
		return "", err
	}
	return out.OrderID, nil
}

// WaitFill поллит статус ордера до терминального состояния или таймаута.
// По таймауту возвращает последнее известное состояние — решает вызывающий.
func (c *Client) WaitFill(ctx context.Context, orderID string, timeout time.Duration) (*Fill, error) {
	deadline := time.Now().Add(timeout)
	last := &Fill{OrderID: orderID, Status: FillSubmitted}

	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	for {
		var out Fill
		if err := c.call(ctx, "order.status", map[string]string{"order_id": orderID}, &out); err != nil {
			return nil, err
		}
		last = &out

		switch out.Status {
		case FillFilled, FillCancelled, FillRejected:
			return last, nil
		}
		if time.Now().After(deadline) {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, "order.cancel", map[string]string{"order_id": orderID}, nil)
}

func (c *Client) OpenPositions(ctx context.Context) ([]BrokerPosition, error) {
	var out []BrokerPosition
	if err := c.call(ctx, "positions.list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
