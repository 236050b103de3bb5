package broker

import (
	"fmt"

	"spread_mirror/internal/models"
)

// BuildSpread собирает двухногий комбо-контракт из сигнала.
// bull put: продаём верхний страйк пута, покупаем нижний (кредит);
// bear call: продаём нижний страйк колла, покупаем верхний (кредит).
func BuildSpread(sig models.Signal) (Combo, error) {
	var right Right
	switch sig.Strategy {
	case models.StrategyBullPut:
		right = RightPut
	case models.StrategyBearCall:
		right = RightCall
	default:
		return Combo{}, fmt.Errorf("broker: unknown strategy %q", sig.Strategy)
	}

	long := ComboLeg{
		Contract: Contract{Symbol: sig.Ticker, Right: right, Strike: sig.LongStrike, Expiry: sig.Expiry},
		Action:   ActionBuy,
		Ratio:    1,
	}
	short := ComboLeg{
		Contract: Contract{Symbol: sig.Ticker, Right: right, Strike: sig.ShortStrike, Expiry: sig.Expiry},
		Action:   ActionSell,
		Ratio:    1,
	}

	return Combo{Symbol: sig.Ticker, Legs: []ComboLeg{long, short}}, nil
}

// SpreadFromPosition — комбо для закрытия существующей позиции.
func SpreadFromPosition(p *models.Position) (Combo, error) {
	sig := models.Signal{
		Ticker:      p.Symbol,
		Strategy:    p.Strategy,
		LongStrike:  p.LongStrike,
		ShortStrike: p.ShortStrike,
		Expiry:      p.Expiry,
	}
	return BuildSpread(sig)
}
