package service

import (
	"context"
	"fmt"
	"time"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/models"
	"spread_mirror/internal/modules/config"
	"spread_mirror/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

type ExecStatus string

const (
	ExecFilled   ExecStatus = "FILLED"
	ExecPartial  ExecStatus = "PARTIAL"
	ExecRejected ExecStatus = "REJECTED"
)

// Clients — то, что лестнице нужно от оркестратора.
type Clients interface {
	GetClient(ctx context.Context, followerID string) broker.API
}

type Alerts interface {
	Publish(ctx context.Context, a models.Alert)
}

// Positions — кусок стора, который трогает лестница.
type Positions interface {
	SavePosition(ctx context.Context, p *models.Position) error
	OpenPositions(ctx context.Context, followerID string) ([]*models.Position, error)
}

// Result — исход одного прогона лестницы.
type Result struct {
	Status    ExecStatus
	Reject    models.Reason // только при REJECTED
	TradeID   string
	FilledQty int
	FillPrice float64
	Err       string
}

// Ladder — лимитка по mid с уступкой цены на каждой попытке.
// Состояния между вызовами нет: всё живёт в одном Execute.
type Ladder struct {
	cfg     config.LadderConfig
	clients Clients
	alerts  Alerts
	store   Positions
	log     *logger.Logger
}

func NewLadder(cfg config.LadderConfig, clients Clients, alerts Alerts, store Positions, log *logger.Logger) *Ladder {
	return &Ladder{
		cfg:     cfg,
		clients: clients,
		alerts:  alerts,
		store:   store,
		log:     log,
	}
}

// Execute прогоняет сигнал для одного фолловера: маржа → mid → лестница.
// Брокерские ошибки не выходят наружу — только Result и алерты.
func (l *Ladder) Execute(ctx context.Context, sig models.Signal, follower models.Follower) Result {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ladder.execute")
	span.SetTag("follower_id", follower.ID)
	span.SetTag("ticker", sig.Ticker)
	defer span.Finish()

	res := l.execute(ctx, sig, follower)
	span.SetTag("status", string(res.Status))
	if res.Status == ExecRejected {
		span.SetTag("reject", string(res.Reject))
	}
	return res
}

func (l *Ladder) execute(ctx context.Context, sig models.Signal, follower models.Follower) Result {
	client := l.clients.GetClient(ctx, follower.ID)
	if client == nil {
		return l.reject(ctx, follower.ID, models.ReasonGatewayUnreachable, map[string]string{
			"ticker": sig.Ticker,
		}, "no live gateway client")
	}

	combo, err := broker.BuildSpread(sig)
	if err != nil {
		return l.reject(ctx, follower.ID, models.ReasonCalculationError, map[string]string{
			"ticker": sig.Ticker,
		}, err.Error())
	}

	if r, bad := l.checkRiskLimits(ctx, sig, follower); bad {
		return r
	}

	// маржинальный what-if до каких-либо ордеров
	est, err := client.WhatIf(ctx, broker.Order{
		Combo:  combo,
		Action: broker.ActionSell,
		Qty:    sig.Qty,
		Type:   broker.OrderMarket,
	})
	if err != nil {
		return l.brokerFailure(ctx, follower.ID, sig, err)
	}
	acct, err := client.AccountSummary(ctx)
	if err != nil {
		return l.brokerFailure(ctx, follower.ID, sig, err)
	}
	if est.InitMargin > acct.AvailableFunds {
		return l.reject(ctx, follower.ID, models.ReasonNoMargin, map[string]string{
			"ticker":    sig.Ticker,
			"required":  fmt.Sprintf("%.2f", est.InitMargin),
			"available": fmt.Sprintf("%.2f", acct.AvailableFunds),
		}, "insufficient margin")
	}

	// независимые цены ног → подписанный mid-кредит
	longQ, err := client.Snapshot(ctx, combo.Legs[0].Contract)
	if err != nil {
		return l.brokerFailure(ctx, follower.ID, sig, err)
	}
	shortQ, err := client.Snapshot(ctx, combo.Legs[1].Contract)
	if err != nil {
		return l.brokerFailure(ctx, follower.ID, sig, err)
	}
	mid := shortQ.Mid() - longQ.Mid()
	if mid < l.cfg.MinPriceThreshold {
		return l.reject(ctx, follower.ID, models.ReasonMidTooLow, map[string]string{
			"ticker":    sig.Ticker,
			"mid":       fmt.Sprintf("%.2f", mid),
			"threshold": fmt.Sprintf("%.2f", l.cfg.MinPriceThreshold),
		}, "mid below threshold")
	}

	return l.ladder(ctx, client, combo, sig, follower, mid)
}

// ladder — до MaxAttempts лимиток; каждая следующая уступает PriceIncrement
// кредита (цена «хуже для нас, лучше для рынка»). Первый филл/частичный
// филл завершает прогон.
func (l *Ladder) ladder(
	ctx context.Context,
	client broker.API,
	combo broker.Combo,
	sig models.Signal,
	follower models.Follower,
	mid float64,
) Result {
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		price := mid - float64(attempt-1)*l.cfg.PriceIncrement
		if price < 0.01 {
			price = 0.01
		}

		orderID, err := client.PlaceOrder(ctx, broker.Order{
			Combo:      combo,
			Action:     broker.ActionSell,
			Qty:        sig.Qty,
			Type:       broker.OrderLimit,
			LimitPrice: price,
		})
		if err != nil {
			return l.brokerFailure(ctx, follower.ID, sig, err)
		}
		l.log.Info("ladder attempt %d/%d: follower=%s %s @ %.2f order=%s",
			attempt, l.cfg.MaxAttempts, follower.ID, sig.Ticker, price, orderID)

		fill, err := client.WaitFill(ctx, orderID, l.cfg.TimeoutPerAttempt)
		if err != nil {
			return l.brokerFailure(ctx, follower.ID, sig, err)
		}

		if fill.Status == broker.FillFilled {
			return l.settle(ctx, sig, follower, fill)
		}

		// не заполнилось за отведённое время — снимаем и перевыставляем
		if err := client.CancelOrder(ctx, orderID); err != nil {
			return l.brokerFailure(ctx, follower.ID, sig, err)
		}
		// отмена могла проскочить частичный филл
		final, err := client.WaitFill(ctx, orderID, 0)
		if err != nil {
			return l.brokerFailure(ctx, follower.ID, sig, err)
		}
		if final.FilledQty > 0 {
			return l.settle(ctx, sig, follower, final)
		}
	}

	return l.reject(ctx, follower.ID, models.ReasonLimitReached, map[string]string{
		"ticker":   sig.Ticker,
		"attempts": fmt.Sprintf("%d", l.cfg.MaxAttempts),
	}, "ladder exhausted")
}

// settle записывает позицию и отчитывается о полном или частичном филле.
func (l *Ladder) settle(ctx context.Context, sig models.Signal, follower models.Follower, fill *broker.Fill) Result {
	now := time.Now().UTC()
	pos := &models.Position{
		ID:          fill.OrderID,
		FollowerID:  follower.ID,
		Symbol:      sig.Ticker,
		Strategy:    sig.Strategy,
		LongQty:     fill.FilledQty,
		ShortQty:    fill.FilledQty,
		LongStrike:  sig.LongStrike,
		ShortStrike: sig.ShortStrike,
		Expiry:      sig.Expiry,
		State:       models.PositionOpen,
		Assignment:  models.AssignmentNone,
		EntryPrice:  fill.AvgPrice,
		OpenedAt:    now,
	}
	if err := l.store.SavePosition(ctx, pos); err != nil {
		// филл уже случился; потерять запись хуже, чем пошуметь
		l.log.Error("save position %s: %v", pos.ID, err)
		l.alerts.Publish(ctx, models.Alert{
			FollowerID: follower.ID,
			Reason:     models.ReasonCalculationError,
			Details:    map[string]string{"detail": "position not persisted: " + err.Error()},
		})
	}

	if fill.FilledQty >= sig.Qty {
		l.log.Info("filled: follower=%s %s qty=%d @ %.2f", follower.ID, sig.Ticker, fill.FilledQty, fill.AvgPrice)
		return Result{Status: ExecFilled, TradeID: fill.OrderID, FilledQty: fill.FilledQty, FillPrice: fill.AvgPrice}
	}

	severity := models.SeverityWarning
	if fill.FilledQty*2 < sig.Qty {
		severity = models.SeverityCritical
	}
	l.alerts.Publish(ctx, models.Alert{
		FollowerID: follower.ID,
		Reason:     models.ReasonPartialFill,
		Severity:   severity,
		Details: map[string]string{
			"ticker":    sig.Ticker,
			"requested": fmt.Sprintf("%d", sig.Qty),
			"filled":    fmt.Sprintf("%d", fill.FilledQty),
		},
	})
	return Result{Status: ExecPartial, TradeID: fill.OrderID, FilledQty: fill.FilledQty, FillPrice: fill.AvgPrice}
}

// checkRiskLimits — лимиты фолловера до похода к брокеру.
func (l *Ladder) checkRiskLimits(ctx context.Context, sig models.Signal, follower models.Follower) (Result, bool) {
	if follower.Limits.MaxQtyPerLeg > 0 && sig.Qty > follower.Limits.MaxQtyPerLeg {
		return l.reject(ctx, follower.ID, models.ReasonNoMargin, map[string]string{
			"ticker":          sig.Ticker,
			"limit":           "max_qty_per_leg",
			"requested":       fmt.Sprintf("%d", sig.Qty),
			"max_qty_per_leg": fmt.Sprintf("%d", follower.Limits.MaxQtyPerLeg),
		}, "follower qty limit"), true
	}
	if follower.Limits.MaxOpenSpreads > 0 {
		open, err := l.store.OpenPositions(ctx, follower.ID)
		if err != nil {
			l.log.Error("open positions %s: %v", follower.ID, err)
			return Result{}, false // лимит не проверили — пусть решает маржа
		}
		if len(open) >= follower.Limits.MaxOpenSpreads {
			return l.reject(ctx, follower.ID, models.ReasonNoMargin, map[string]string{
				"ticker": sig.Ticker,
				"limit":  "max_open_spreads",
				"open":   fmt.Sprintf("%d", len(open)),
			}, "follower spread limit"), true
		}
	}
	return Result{}, false
}

// brokerFailure: брокерская ошибка по пути — наружу только как rejection.
func (l *Ladder) brokerFailure(ctx context.Context, followerID string, sig models.Signal, err error) Result {
	return l.reject(ctx, followerID, models.ReasonGatewayUnreachable, map[string]string{
		"ticker": sig.Ticker,
		"error":  err.Error(),
	}, err.Error())
}

func (l *Ladder) reject(ctx context.Context, followerID string, reason models.Reason, details map[string]string, errText string) Result {
	l.alerts.Publish(ctx, models.Alert{
		FollowerID: followerID,
		Reason:     reason,
		Details:    details,
	})
	l.log.Error("execution rejected: follower=%s reason=%s: %s", followerID, reason, errText)
	return Result{Status: ExecRejected, Reject: reason, Err: errText}
}
