package market

import "math"

// CallPutPremium sums flow premium by option side.
func CallPutPremium(flow []FlowTrade) (callPrem, putPrem float64) {
	for _, f := range flow {
		if f.Premium <= 0 {
			continue
		}
		switch f.Side() {
		case "call", "CALL", "C":
			callPrem += f.Premium
		case "put", "PUT", "P":
			putPrem += f.Premium
		}
	}
	return
}

// DarkPoolBias infers institutional buy/sell bias from prints relative to the
// NBBO mid. Returns bias in [-1, 1]; ok is false when no print is usable.
func DarkPoolBias(prints []DarkPoolPrint) (bias float64, ok bool) {
	var buy, sell float64
	for _, p := range prints {
		if p.NBBOBid <= 0 || p.NBBOAsk <= 0 || p.Price <= 0 {
			continue
		}
		mid := (p.NBBOBid + p.NBBOAsk) / 2
		size := p.Size
		if size <= 0 {
			size = 1
		}
		if p.Price >= mid {
			buy += size
		} else {
			sell += size
		}
	}
	total := buy + sell
	if total == 0 {
		return 0, false
	}
	return (buy - sell) / total, true
}

// NetGEX is the aggregate call-minus-put gamma exposure across strikes.
func NetGEX(gex []GEXStrike) float64 {
	var net float64
	for _, g := range gex {
		net += g.CallGEX - g.PutGEX
	}
	return net
}

// LargestWall returns the strike holding the largest absolute gamma exposure.
func LargestWall(gex []GEXStrike) (strike, exposure float64, ok bool) {
	for _, g := range gex {
		mag := math.Abs(g.CallGEX) + math.Abs(g.PutGEX)
		if mag > math.Abs(exposure) || !ok {
			if mag == 0 {
				continue
			}
			strike = g.Strike
			exposure = g.CallGEX - g.PutGEX
			ok = true
		}
	}
	return
}

// FibProximity scores how close price sits to the nearest Fibonacci level,
// 1 at the level and 0 beyond a tenth of the swing range.
func FibProximity(fib *FibonacciData, price float64) (float64, bool) {
	if fib == nil || len(fib.Levels) == 0 || fib.SwingRange <= 0 || price <= 0 {
		return 0, false
	}
	nearest := math.Inf(1)
	for _, lvl := range fib.Levels {
		if d := math.Abs(price - lvl); d < nearest {
			nearest = d
		}
	}
	prox := 1 - nearest/(0.1*fib.SwingRange)
	if prox < 0 {
		prox = 0
	}
	if prox > 1 {
		prox = 1
	}
	return prox, true
}

// Imbalance returns (buy-sell)/(buy+sell) for tick aggressor volume.
func (t *TickData) Imbalance() float64 {
	if t == nil {
		return 0
	}
	total := t.BuyVolume + t.SellVolume
	if total == 0 {
		return 0
	}
	return (t.BuyVolume - t.SellVolume) / total
}

// BlockImbalance returns the large-block buy/sell imbalance in [-1, 1].
func (t *TickData) BlockImbalance() float64 {
	if t == nil {
		return 0
	}
	total := t.BlockBuys + t.BlockSells
	if total == 0 {
		return 0
	}
	return float64(t.BlockBuys-t.BlockSells) / float64(total)
}

// ShortVolumeRatio returns the most recent short-volume ratio and the average
// over the full window.
func ShortVolumeRatio(days []ShortVolumeDay) (last, avg float64, ok bool) {
	var sum float64
	var n int
	for _, d := range days {
		if d.TotalVolume <= 0 {
			continue
		}
		r := d.ShortVolume / d.TotalVolume
		sum += r
		n++
		last = r
		ok = true
	}
	if n > 0 {
		avg = sum / float64(n)
	}
	return
}

// SeasonalBias returns the historical average return for the given month.
func SeasonalBias(stats []SeasonalStat, month int) (float64, bool) {
	for _, s := range stats {
		if s.Month == month {
			return s.AvgReturn, true
		}
	}
	return 0, false
}

// NetInsiderValue is buy value minus sell value across trades.
func NetInsiderValue(trades []InsiderTrade) float64 {
	var net float64
	for _, t := range trades {
		switch t.Type {
		case "buy", "BUY", "purchase":
			net += t.Value
		case "sell", "SELL", "sale":
			net -= t.Value
		}
	}
	return net
}
