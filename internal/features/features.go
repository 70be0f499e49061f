// Package features derives the fixed-order numeric feature vector the ML
// calibrator consumes. The schema is the canonical 42-name vector; slots whose
// inputs are absent hold zero, so a vector is always exactly Count long.
package features

import (
	"math"
	"time"

	"edge-scorer/internal/market"
)

// Count is the canonical feature vector length. A persisted model trained
// against a different length requires explicit retraining.
const Count = 42

// Names lists the canonical feature schema in vector order.
var Names = []string{
	"rsi",
	"macd_hist",
	"ema_align",
	"bb_pos",
	"atr",
	"cp_ratio",
	"dp_dir",
	"iv_rank",
	"si_pct",
	"vol_spike",
	"bb_bw",
	"vwap_dev",
	"regime",
	"gamma_prox",
	"iv_skew",
	"candle",
	"sentiment",
	"adx",
	"rsi_div",
	"fib_prox",
	"rsi_slope",
	"macd_accel",
	"atr_change",
	"rsi_x_ema",
	"vol_x_macd",
	"net_premium",
	"strike_flow",
	"greek_flow",
	"sector_tide",
	"etf_tide",
	"short_vol_ratio",
	"ftd_spike",
	"seasonality",
	"realized_vol",
	"gex_net",
	"flow_horizon",
	"tick_imbalance",
	"block_flow",
	"confluence",
	"short_cover",
	"consolidation",
	"squeeze",
}

// Name returns the indicator bound to a vector slot, or "" out of range.
func Name(i int) string {
	if i < 0 || i >= len(Names) {
		return ""
	}
	return Names[i]
}

// Normalize pads a raw vector with zeros on the right, or truncates it, so the
// result is exactly Count long. The input is never modified.
func Normalize(raw []float64) []float64 {
	out := make([]float64, Count)
	copy(out, raw)
	for i := range out {
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			out[i] = 0
		}
	}
	return out
}

// Extract derives the canonical feature vector from a data bundle. Missing
// inputs leave their slots at zero.
func Extract(b *market.DataBundle) []float64 {
	v := make([]float64, Count)
	if b == nil {
		return v
	}

	emaAlign := 0.0
	var rsi, macdHist, volSpike float64
	if t := b.Technicals; t != nil {
		if t.RSI != nil {
			rsi = *t.RSI
			v[0] = rsi
		}
		if t.MACD != nil {
			macdHist = t.MACD.Histogram
			v[1] = macdHist
		}
		switch t.EMABias {
		case "bullish":
			emaAlign = 1
		case "bearish":
			emaAlign = -1
		}
		v[2] = emaAlign
		if t.BollingerBands != nil {
			v[3] = t.BollingerBands.Position
			v[10] = t.BollingerBands.Bandwidth
			if t.BollingerBands.Bandwidth < 0.03 {
				v[41] = 1 // squeeze
			}
		}
		if t.ATR != nil {
			v[4] = *t.ATR
		}
		if t.VolumeSpike != nil && *t.VolumeSpike {
			volSpike = 1
		}
		v[9] = volSpike
		if t.VWAP != nil && *t.VWAP > 0 && b.Quote != nil && b.Quote.Price() > 0 {
			v[11] = (b.Quote.Price() - *t.VWAP) / *t.VWAP * 100
		}
		if t.ADX != nil {
			v[17] = t.ADX.ADX
		}
		if n := len(t.RSIDivergence); n > 0 {
			v[18] = clamp(t.RSIDivergence[n-1], -1, 1)
		}
		if b.Quote != nil {
			if prox, ok := market.FibProximity(t.Fibonacci, b.Quote.Price()); ok {
				v[19] = prox
			}
		}
		if t.RSISlope != nil {
			v[20] = *t.RSISlope
		}
		if t.MACDSlope != nil {
			v[21] = *t.MACDSlope
		}
		if n := len(t.ATRValues); n >= 6 && t.ATRValues[n-6] != 0 {
			v[22] = (t.ATRValues[n-1] - t.ATRValues[n-6]) / t.ATRValues[n-6]
		}
		if best := bestPattern(t.Patterns); best != 0 {
			v[15] = best
		}
	}

	if callPrem, putPrem := market.CallPutPremium(b.Flow); putPrem > 0 {
		v[5] = math.Min(callPrem/putPrem, 10)
	} else if callPrem > 0 {
		v[5] = 10
	}
	if bias, ok := market.DarkPoolBias(b.DarkPool); ok {
		v[6] = bias
	}
	if b.IVRank != nil {
		v[7] = *b.IVRank
	}
	if b.ShortInterest != nil {
		v[8] = *b.ShortInterest
	}

	switch b.DetectedRegime() {
	case market.TrendingUp:
		v[12] = 1
	case market.TrendingDown:
		v[12] = -1
	}

	if b.Quote != nil && b.Quote.Price() > 0 {
		if strike, _, ok := market.LargestWall(b.GEX); ok {
			dist := math.Abs(b.Quote.Price()-strike) / b.Quote.Price()
			v[13] = math.Max(0, 1-dist/0.05)
		}
	}
	// v[14] iv_skew: reserved, no bundle input yet

	if b.Sentiment != nil {
		v[16] = b.Sentiment.Score
	}

	// Interaction terms
	v[23] = (rsi - 50) / 50 * emaAlign
	v[24] = volSpike * sign(macdHist)

	for _, np := range b.NetPremium {
		v[25] += np.NetPremium
	}
	if b.Quote != nil && b.Quote.Price() > 0 {
		spot := b.Quote.Price()
		for _, sf := range b.FlowPerStrike {
			if sf.Strike >= spot {
				v[26] += sf.NetPremium
			} else {
				v[26] -= sf.NetPremium
			}
		}
	}
	for _, gf := range b.GreekFlow {
		v[27] += gf.NetDelta
	}
	if b.SectorTide != nil {
		v[28] = b.SectorTide.NetFlow
	}
	if b.ETFTide != nil {
		v[29] = b.ETFTide.NetFlow
	}
	if last, _, ok := market.ShortVolumeRatio(b.ShortVolume); ok {
		v[30] = last
	}
	if n := len(b.FTD); n >= 2 {
		var sum float64
		for _, f := range b.FTD[:n-1] {
			sum += f.Shares
		}
		if avg := sum / float64(n-1); avg > 0 {
			v[31] = b.FTD[n-1].Shares/avg - 1
		}
	}
	if bias, ok := market.SeasonalBias(b.Seasonality, int(time.Now().Month())); ok {
		v[32] = bias
	}
	if n := len(b.RealizedVol); n > 0 {
		v[33] = b.RealizedVol[n-1]
	}
	v[34] = market.NetGEX(b.GEX)
	if total, near := expiryFlowSplit(b.FlowPerExpiry); total != 0 {
		v[35] = near / total
	}
	v[36] = b.TickData.Imbalance()
	v[37] = b.TickData.BlockImbalance()
	if b.MultiTF != nil {
		v[38] = b.MultiTF.Confluence
		if b.MultiTF.ShortCoverBounce {
			v[39] = 1
		}
		if b.MultiTF.Consolidation {
			v[40] = 1
		}
	}

	return Normalize(v)
}

func expiryFlowSplit(flows []market.ExpiryFlow) (total, near float64) {
	for _, f := range flows {
		total += math.Abs(f.NetPremium)
		if f.DaysToExpiry <= 7 {
			near += f.NetPremium
		}
	}
	return
}

func bestPattern(patterns []market.CandlePattern) float64 {
	var best float64
	for _, p := range patterns {
		s := p.Strength
		if p.Bias == "bearish" {
			s = -s
		}
		if math.Abs(s) > math.Abs(best) {
			best = s
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
