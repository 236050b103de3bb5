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

// бюджет на маркет-ордер ликвидации; дольше ждать нет смысла, следующий
// проход всё равно подберёт CLOSING-позицию
const liquidationTimeout = 30 * time.Second

type Clients interface {
	GetClient(ctx context.Context, followerID string) broker.API
}

type Alerts interface {
	Publish(ctx context.Context, a models.Alert)
}

// Store — кусок стора, который трогает монитор.
type Store interface {
	Followers(ctx context.Context) ([]models.Follower, error)
	OpenPositions(ctx context.Context, followerID string) ([]*models.Position, error)
	UpdateState(ctx context.Context, id string, state models.PositionState) error
	MarkAssignment(ctx context.Context, id string, a models.AssignmentState) error
}

// Monitor обходит открытые позиции всех фолловеров, считает остаточную
// временную стоимость и принудительно закрывает критические спреды.
type Monitor struct {
	cfg     config.MonitorConfig
	clients Clients
	alerts  Alerts
	store   Store
	log     *logger.Logger

	// подавление повторных RISK-алертов по позиции; пишется только из
	// цикла обхода, поэтому без мьютекса
	lastClass map[string]RiskClass

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(cfg config.MonitorConfig, clients Clients, alerts Alerts, store Store, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		clients:   clients,
		alerts:    alerts,
		store:     store,
		log:       log,
		lastClass: make(map[string]RiskClass),
	}
}

// StartLoop запускает периодический обход. Проходы не перекрываются:
// следующий тик ждёт завершения предыдущего.
func (m *Monitor) StartLoop(parent context.Context) {
	mctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-mctx.Done():
				return
			case <-ticker.C:
				m.CheckAll(mctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// CheckAll — один проход по всем фолловерам. Никогда не возвращает ошибку:
// проблемы одной позиции не должны останавливать обход остальных.
func (m *Monitor) CheckAll(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "monitor.sweep")
	defer span.Finish()

	followers, err := m.store.Followers(ctx)
	if err != nil {
		m.log.Error("monitor: followers: %v", err)
		return
	}

	for _, f := range followers {
		positions, err := m.store.OpenPositions(ctx, f.ID)
		if err != nil {
			m.log.Error("monitor: open positions follower=%s: %v", f.ID, err)
			continue
		}
		if len(positions) == 0 {
			continue
		}

		client := m.clients.GetClient(ctx, f.ID)
		if client == nil {
			// без клиента позиции не проверить; health loop уже шумит про гейтвей
			m.log.Error("monitor: no client for follower=%s, %d positions skipped", f.ID, len(positions))
			continue
		}

		brokerPos, bErr := client.OpenPositions(ctx)
		if bErr != nil {
			m.log.Error("monitor: broker positions follower=%s: %v", f.ID, bErr)
		}

		for _, p := range positions {
			m.checkPosition(ctx, client, f, p, brokerPos, bErr == nil)
		}
	}
}

// checkPosition — одна позиция за проход. Паника внутри расчёта не роняет
// обход: алерт и дальше.
func (m *Monitor) checkPosition(
	ctx context.Context,
	client broker.API,
	f models.Follower,
	p *models.Position,
	brokerPos []broker.BrokerPosition,
	brokerPosOK bool,
) {
	defer func() {
		if r := recover(); r != nil {
			m.calcError(ctx, f.ID, p, fmt.Sprintf("panic: %v", r))
		}
	}()

	// добиваем ликвидацию, прерванную рестартом
	if p.State == models.PositionClosing {
		m.liquidate(ctx, client, f, p, "resume interrupted liquidation")
		return
	}

	// короткая нога пропала у брокера — её забрали по ассайнменту
	if brokerPosOK && p.Assignment == models.AssignmentNone && m.shortLegMissing(p, brokerPos) {
		m.repairAssignment(ctx, client, f, p)
		return
	}
	// ремонт прерван после пометки ASSIGNED — доводим компенсацию, без повторного алерта
	if p.Assignment == models.AssignmentAssigned {
		m.compensate(ctx, client, f, p)
		return
	}

	underlying, err := client.UnderlyingPrice(ctx, p.Symbol)
	if err != nil {
		m.calcError(ctx, f.ID, p, "underlying: "+err.Error())
		return
	}
	combo, err := broker.SpreadFromPosition(p)
	if err != nil {
		m.calcError(ctx, f.ID, p, err.Error())
		return
	}
	longQ, err := client.Snapshot(ctx, combo.Legs[0].Contract)
	if err != nil {
		m.calcError(ctx, f.ID, p, "long leg snapshot: "+err.Error())
		return
	}
	shortQ, err := client.Snapshot(ctx, combo.Legs[1].Contract)
	if err != nil {
		m.calcError(ctx, f.ID, p, "short leg snapshot: "+err.Error())
		return
	}

	// стоимость выкупа спреда не бывает отрицательной
	mark := shortQ.Mid() - longQ.Mid()
	if mark < 0 {
		mark = 0
	}
	intrinsic := SpreadIntrinsic(combo, underlying)
	tv := TimeValue(mark, intrinsic)
	class := Classify(tv, m.cfg.RiskThreshold, m.cfg.CriticalThreshold)

	switch class {
	case ClassCritical:
		m.alerts.Publish(ctx, models.Alert{
			FollowerID: f.ID,
			Reason:     models.ReasonTimeValueThreshold,
			Details: map[string]string{
				"position":   p.ID,
				"ticker":     p.Symbol,
				"time_value": fmt.Sprintf("%.2f", tv),
				"threshold":  fmt.Sprintf("%.2f", m.cfg.CriticalThreshold),
				"per_spread": fmt.Sprintf("%.2f", tv*m.cfg.Multiplier),
			},
		})
		delete(m.lastClass, p.ID)
		m.liquidate(ctx, client, f, p, fmt.Sprintf("time value %.2f below critical %.2f", tv, m.cfg.CriticalThreshold))

	case ClassRisk:
		if m.lastClass[p.ID] != ClassRisk {
			m.alerts.Publish(ctx, models.Alert{
				FollowerID: f.ID,
				Reason:     models.ReasonTimeValueRisk,
				Details: map[string]string{
					"position":   p.ID,
					"ticker":     p.Symbol,
					"time_value": fmt.Sprintf("%.2f", tv),
					"threshold":  fmt.Sprintf("%.2f", m.cfg.RiskThreshold),
				},
			})
		}
		m.lastClass[p.ID] = ClassRisk

	default:
		delete(m.lastClass, p.ID)
	}
}

// liquidate выкупает спред маркетом. CLOSING ставится до ордера: если упадём
// между ордером и записью, рестарт увидит CLOSING и доведёт до конца.
func (m *Monitor) liquidate(ctx context.Context, client broker.API, f models.Follower, p *models.Position, cause string) {
	qty := p.RemainingQty()
	if qty == 0 {
		_ = m.store.UpdateState(ctx, p.ID, models.PositionClosed)
		return
	}

	combo, err := broker.SpreadFromPosition(p)
	if err != nil {
		m.calcError(ctx, f.ID, p, err.Error())
		return
	}

	// кредитный спред нетто-шорт — закрываем выкупом; после частичного
	// ремонта может остаться нетто-лонг
	action := broker.ActionBuy
	if p.LongQty > p.ShortQty {
		action = broker.ActionSell
	}

	if p.State != models.PositionClosing {
		if err := m.store.UpdateState(ctx, p.ID, models.PositionClosing); err != nil {
			m.log.Error("monitor: mark closing %s: %v", p.ID, err)
			return
		}
		p.State = models.PositionClosing
	}

	m.log.Info("liquidating: follower=%s position=%s qty=%d: %s", f.ID, p.ID, qty, cause)

	orderID, err := client.PlaceOrder(ctx, broker.Order{
		Combo:  combo,
		Action: action,
		Qty:    qty,
		Type:   broker.OrderMarket,
	})
	if err != nil {
		m.liquidationFailed(ctx, f, p, err.Error())
		return
	}
	fill, err := client.WaitFill(ctx, orderID, liquidationTimeout)
	if err != nil {
		m.liquidationFailed(ctx, f, p, err.Error())
		return
	}
	if fill.Status != broker.FillFilled {
		m.liquidationFailed(ctx, f, p, fmt.Sprintf("close order %s ended %s", orderID, fill.Status))
		return
	}

	if err := m.store.UpdateState(ctx, p.ID, models.PositionClosed); err != nil {
		m.log.Error("monitor: mark closed %s: %v", p.ID, err)
	}
	m.alerts.Publish(ctx, models.Alert{
		FollowerID: f.ID,
		Reason:     models.ReasonTimeValueLiquidation,
		Details: map[string]string{
			"position":    p.ID,
			"ticker":      p.Symbol,
			"qty":         fmt.Sprintf("%d", fill.FilledQty),
			"close_price": fmt.Sprintf("%.2f", fill.AvgPrice),
		},
	})
	m.log.Info("liquidated: follower=%s position=%s qty=%d @ %.2f", f.ID, p.ID, fill.FilledQty, fill.AvgPrice)
}

// liquidationFailed возвращает позицию в OPEN: она не закрыта, следующий
// проход попробует снова. Это не переоткрытие — закрытия и не было.
func (m *Monitor) liquidationFailed(ctx context.Context, f models.Follower, p *models.Position, detail string) {
	if err := m.store.UpdateState(ctx, p.ID, models.PositionOpen); err != nil {
		m.log.Error("monitor: rollback to open %s: %v", p.ID, err)
	}
	p.State = models.PositionOpen

	m.log.Error("liquidation failed: follower=%s position=%s: %s", f.ID, p.ID, detail)
	m.alerts.Publish(ctx, models.Alert{
		FollowerID: f.ID,
		Reason:     models.ReasonLiquidationFailed,
		Details: map[string]string{
			"position": p.ID,
			"ticker":   p.Symbol,
			"detail":   detail,
		},
	})
}

// shortLegMissing — в брокерском списке нет шорта по контракту короткой ноги.
func (m *Monitor) shortLegMissing(p *models.Position, brokerPos []broker.BrokerPosition) bool {
	combo, err := broker.SpreadFromPosition(p)
	if err != nil {
		return false
	}
	want := combo.Legs[1].Contract
	for _, bp := range brokerPos {
		if bp.Qty < 0 && bp.Contract == want {
			return false
		}
	}
	return true
}

// repairAssignment: короткую ногу забрали — осталась голая длинная.
// Помечаем ассайнмент, шумим и компенсируем.
func (m *Monitor) repairAssignment(ctx context.Context, client broker.API, f models.Follower, p *models.Position) {
	m.alerts.Publish(ctx, models.Alert{
		FollowerID: f.ID,
		Reason:     models.ReasonAssignmentDetected,
		Details: map[string]string{
			"position":     p.ID,
			"ticker":       p.Symbol,
			"short_strike": fmt.Sprintf("%.2f", p.ShortStrike),
		},
	})
	if err := m.store.MarkAssignment(ctx, p.ID, models.AssignmentAssigned); err != nil {
		m.log.Error("monitor: mark assigned %s: %v", p.ID, err)
		return
	}
	p.Assignment = models.AssignmentAssigned

	m.compensate(ctx, client, f, p)
}

// compensate продаёт оставшуюся длинную ногу в рынок и закрывает позицию.
func (m *Monitor) compensate(ctx context.Context, client broker.API, f models.Follower, p *models.Position) {
	combo, err := broker.SpreadFromPosition(p)
	if err != nil {
		m.calcError(ctx, f.ID, p, err.Error())
		return
	}
	longLeg := combo.Legs[0]

	if p.LongQty > 0 {
		longLeg.Action = broker.ActionSell
		orderID, err := client.PlaceOrder(ctx, broker.Order{
			Combo:  broker.Combo{Symbol: p.Symbol, Legs: []broker.ComboLeg{longLeg}},
			Action: broker.ActionSell,
			Qty:    p.LongQty,
			Type:   broker.OrderMarket,
		})
		if err != nil {
			m.liquidationFailed(ctx, f, p, "compensating close: "+err.Error())
			return
		}
		fill, err := client.WaitFill(ctx, orderID, liquidationTimeout)
		if err != nil {
			m.liquidationFailed(ctx, f, p, "compensating close: "+err.Error())
			return
		}
		if fill.Status != broker.FillFilled {
			m.liquidationFailed(ctx, f, p, fmt.Sprintf("compensating order %s ended %s", orderID, fill.Status))
			return
		}
	}

	if err := m.store.MarkAssignment(ctx, p.ID, models.AssignmentCompensated); err != nil {
		m.log.Error("monitor: mark compensated %s: %v", p.ID, err)
	}
	if err := m.store.UpdateState(ctx, p.ID, models.PositionClosed); err != nil {
		m.log.Error("monitor: mark closed %s: %v", p.ID, err)
	}
	delete(m.lastClass, p.ID)
	m.log.Info("assignment repaired: follower=%s position=%s long_qty=%d", f.ID, p.ID, p.LongQty)
}

func (m *Monitor) calcError(ctx context.Context, followerID string, p *models.Position, detail string) {
	m.log.Error("monitor: position %s: %s", p.ID, detail)
	m.alerts.Publish(ctx, models.Alert{
		FollowerID: followerID,
		Reason:     models.ReasonCalculationError,
		Details: map[string]string{
			"position": p.ID,
			"ticker":   p.Symbol,
			"detail":   detail,
		},
	})
}
