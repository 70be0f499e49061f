// Package indicators computes technical indicators from OHLCV bar series.
// All functions return slices aligned with their input; positions that fall
// inside an indicator's warmup window hold NaN so downstream rules can
// abstain instead of acting on garbage.
package indicators

import "math"

// EMA returns the exponential moving average with alpha = 2/(period+1),
// seeded from the first value.
func EMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 || period <= 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA returns the simple moving average. Positions before a full window are NaN.
func SMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(series) < period {
		return out
	}
	var sum float64
	for i, v := range series {
		sum += v
		if i >= period {
			sum -= series[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RSI returns the relative strength index over rolling mean gain/loss.
func RSI(close []float64, period int) []float64 {
	out := make([]float64, len(close))
	gains := make([]float64, len(close))
	losses := make([]float64, len(close))
	for i := range out {
		out[i] = math.NaN()
	}
	for i := 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)
	for i := range close {
		g, l := avgGain[i], avgLoss[i]
		if math.IsNaN(g) || math.IsNaN(l) {
			continue
		}
		if l == 0 {
			out[i] = 100
			continue
		}
		rs := g / l
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD returns the MACD line, signal line, and histogram.
func MACD(close []float64, fast, slow, signalPeriod int) (line, signal, hist []float64) {
	emaFast := EMA(close, fast)
	emaSlow := EMA(close, slow)
	line = make([]float64, len(close))
	for i := range close {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signal = EMA(line, signalPeriod)
	hist = make([]float64, len(close))
	for i := range close {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// Bollinger returns upper, mid, lower bands plus bandwidth and the close's
// position within the band (0 at lower, 1 at upper).
func Bollinger(close []float64, period int, stdDev float64) (upper, mid, lower, bandwidth, position []float64) {
	mid = SMA(close, period)
	std := rollingStd(close, period)
	n := len(close)
	upper = make([]float64, n)
	lower = make([]float64, n)
	bandwidth = make([]float64, n)
	position = make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(mid[i]) || math.IsNaN(std[i]) {
			upper[i], lower[i], bandwidth[i], position[i] = math.NaN(), math.NaN(), math.NaN(), math.NaN()
			continue
		}
		upper[i] = mid[i] + stdDev*std[i]
		lower[i] = mid[i] - stdDev*std[i]
		if mid[i] != 0 {
			bandwidth[i] = (upper[i] - lower[i]) / mid[i]
		} else {
			bandwidth[i] = math.NaN()
		}
		if width := upper[i] - lower[i]; width != 0 {
			position[i] = (close[i] - lower[i]) / width
		} else {
			position[i] = math.NaN()
		}
	}
	return
}

// ATR returns the average true range as a rolling mean of true range.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return SMA(tr, period)
}

// ADX returns the average directional index plus +DI and -DI.
func ADX(high, low, close []float64, period int) (adx, plusDI, minusDI []float64) {
	n := len(close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	atr := ATR(high, low, close, period)
	plusEMA := EMA(plusDM, period)
	minusEMA := EMA(minusDM, period)
	plusDI = make([]float64, n)
	minusDI = make([]float64, n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			plusDI[i], minusDI[i], dx[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		plusDI[i] = 100 * plusEMA[i] / atr[i]
		minusDI[i] = 100 * minusEMA[i] / atr[i]
		if sum := plusDI[i] + minusDI[i]; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		} else {
			dx[i] = math.NaN()
		}
	}
	adx = emaSkipNaN(dx, period)
	return
}

// VWAP returns the cumulative volume-weighted average of the typical price.
func VWAP(high, low, close, volume []float64) []float64 {
	n := len(close)
	out := make([]float64, n)
	var cumPV, cumV float64
	for i := 0; i < n; i++ {
		typical := (high[i] + low[i] + close[i]) / 3
		cumPV += typical * volume[i]
		cumV += volume[i]
		if cumV == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cumPV / cumV
	}
	return out
}

// RSIDivergence flags bullish (+1) and bearish (-1) price/RSI divergence over
// a rolling lookback window.
func RSIDivergence(close, rsi []float64, lookback int) []float64 {
	n := len(close)
	out := make([]float64, n)
	for i := lookback; i < n; i++ {
		priceMin, priceMax := close[i], close[i]
		rsiMin, rsiMax := rsi[i], rsi[i]
		valid := true
		for j := i - lookback + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				valid = false
				break
			}
			priceMin = math.Min(priceMin, close[j])
			priceMax = math.Max(priceMax, close[j])
			rsiMin = math.Min(rsiMin, rsi[j])
			rsiMax = math.Max(rsiMax, rsi[j])
		}
		if !valid {
			continue
		}
		if close[i] <= priceMin*1.01 && rsi[i] > rsiMin+5 {
			out[i] = 1.0
		} else if close[i] >= priceMax*0.99 && rsi[i] < rsiMax-5 {
			out[i] = -1.0
		}
	}
	return out
}

// Squeeze flags bars where Bollinger bandwidth sits below the threshold.
func Squeeze(bandwidth []float64, threshold float64) []float64 {
	out := make([]float64, len(bandwidth))
	for i, bw := range bandwidth {
		if !math.IsNaN(bw) && bw < threshold {
			out[i] = 1.0
		}
	}
	return out
}

// CandlestickScore scores doji, hammer, and bullish engulfing shapes per bar.
// Range is [-0.5, 1].
func CandlestickScore(open, high, low, close []float64) []float64 {
	n := len(close)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		totalRange := high[i] - low[i]
		if totalRange == 0 {
			continue
		}
		body := math.Abs(close[i] - open[i])
		bodyRatio := body / totalRange
		lowerWick := math.Min(open[i], close[i]) - low[i]

		hammer := lowerWick/totalRange > 0.6 && bodyRatio < 0.3
		switch {
		case hammer && close[i] > open[i]:
			out[i] = 1.0
		case hammer && close[i] < open[i]:
			out[i] = -0.5
		}

		if i > 0 {
			prevBear := close[i-1] < open[i-1]
			currBull := close[i] > open[i]
			if prevBear && currBull && close[i] > open[i-1] && open[i] < close[i-1] {
				out[i] = 1.0
			}
		}
		if bodyRatio < 0.1 {
			out[i] = 0.0 // doji overrides: indecision
		}
	}
	return out
}

func rollingStd(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 2 || len(series) < period {
		return out
	}
	for i := period - 1; i < len(series); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += series[j]
		}
		mean := sum / float64(period)
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := series[j] - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(period-1))
	}
	return out
}

// emaSkipNaN smooths a series that starts with NaN warmup values, seeding the
// EMA from the first finite value.
func emaSkipNaN(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	alpha := 2.0 / (float64(period) + 1.0)
	started := false
	var prev float64
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if !started {
			prev = v
			started = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}
