package backtest

import (
	"math"

	"edge-scorer/internal/indicators"
	"edge-scorer/internal/market"
	"edge-scorer/internal/marketdata"
)

// Snapshot builds the data bundle for the latest bar of a history. ok is
// false when the history is too short for stable indicator values.
func Snapshot(bars []marketdata.Bar) (*market.DataBundle, bool) {
	if len(bars) < 50 {
		return nil, false
	}
	s := newSeries(bars)
	i := len(bars) - 1
	return &market.DataBundle{
		Technicals: s.technicals(i),
		Quote: &market.Quote{
			Last:  s.close[i],
			Close: prevClose(s, i),
			High:  s.high[i],
			Low:   s.low[i],
		},
		Regime: s.regime(i),
	}, true
}

// series holds every indicator series for one bar history, computed once up
// front so per-bar bundle assembly is an index lookup.
type series struct {
	open, high, low, close, volume []float64

	rsi       []float64
	macdHist  []float64
	ema8      []float64
	ema21     []float64
	ema50     []float64
	bandwidth []float64
	position  []float64
	atr       []float64
	adx       []float64
	vwap      []float64
	rsiDiv    []float64
	candle    []float64
	volSMA    []float64
}

func newSeries(bars []marketdata.Bar) *series {
	n := len(bars)
	s := &series{
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	for i, b := range bars {
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
		s.volume[i] = b.Volume
	}

	s.rsi = indicators.RSI(s.close, 14)
	_, _, s.macdHist = indicators.MACD(s.close, 12, 26, 9)
	s.ema8 = indicators.EMA(s.close, 8)
	s.ema21 = indicators.EMA(s.close, 21)
	s.ema50 = indicators.EMA(s.close, 50)
	_, _, _, s.bandwidth, s.position = indicators.Bollinger(s.close, 20, 2)
	s.atr = indicators.ATR(s.high, s.low, s.close, 14)
	s.adx, _, _ = indicators.ADX(s.high, s.low, s.close, 14)
	s.vwap = indicators.VWAP(s.high, s.low, s.close, s.volume)
	s.rsiDiv = indicators.RSIDivergence(s.close, s.rsi, 14)
	s.candle = indicators.CandlestickScore(s.open, s.high, s.low, s.close)
	s.volSMA = indicators.SMA(s.volume, 20)
	return s
}

func fptr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func (s *series) emaBias(i int) string {
	e8, e21, e50 := s.ema8[i], s.ema21[i], s.ema50[i]
	if math.IsNaN(e8) || math.IsNaN(e21) || math.IsNaN(e50) {
		return ""
	}
	switch {
	case e8 > e21 && e21 > e50:
		return "bullish"
	case e8 < e21 && e21 < e50:
		return "bearish"
	}
	return "neutral"
}

// technicals assembles the indicator snapshot for bar i.
func (s *series) technicals(i int) *market.Technicals {
	t := &market.Technicals{
		RSI:     fptr(s.rsi[i]),
		ATR:     fptr(s.atr[i]),
		VWAP:    fptr(s.vwap[i]),
		EMABias: s.emaBias(i),
	}

	if !math.IsNaN(s.macdHist[i]) {
		t.MACD = &market.MACDData{Histogram: s.macdHist[i]}
		if i > 0 && !math.IsNaN(s.macdHist[i-1]) {
			slope := s.macdHist[i] - s.macdHist[i-1]
			t.MACDSlope = &slope
		}
	}
	if i > 0 && !math.IsNaN(s.rsi[i]) && !math.IsNaN(s.rsi[i-1]) {
		slope := s.rsi[i] - s.rsi[i-1]
		t.RSISlope = &slope
	}
	if !math.IsNaN(s.position[i]) && !math.IsNaN(s.bandwidth[i]) {
		t.BollingerBands = &market.BollingerData{
			Position:  s.position[i],
			Bandwidth: s.bandwidth[i],
		}
	}
	if !math.IsNaN(s.adx[i]) {
		t.ADX = &market.ADXData{ADX: s.adx[i]}
	}
	if !math.IsNaN(s.volSMA[i]) && s.volSMA[i] > 0 {
		spike := s.volume[i] > 2*s.volSMA[i]
		t.VolumeSpike = &spike
	}
	if d := s.rsiDiv[i]; !math.IsNaN(d) && d != 0 {
		t.RSIDivergence = []float64{d}
	}
	if c := s.candle[i]; !math.IsNaN(c) && c != 0 {
		pat := market.CandlePattern{Strength: math.Min(1, math.Abs(c))}
		if c > 0 {
			pat.Name, pat.Bias = "bullish reversal", "bullish"
		} else {
			pat.Name, pat.Bias = "bearish reversal", "bearish"
		}
		t.Patterns = []market.CandlePattern{pat}
	}
	if i >= 5 {
		t.ATRValues = s.atr[i-5 : i+1]
	}
	return t
}

// regime classifies bar i from trend strength and volatility.
func (s *series) regime(i int) *market.RegimeInfo {
	adx := s.adx[i]
	bias := s.emaBias(i)
	atrPct := math.NaN()
	if !math.IsNaN(s.atr[i]) && s.close[i] > 0 {
		atrPct = s.atr[i] / s.close[i]
	}

	switch {
	case !math.IsNaN(adx) && adx >= 25 && bias == "bullish":
		return &market.RegimeInfo{Regime: market.TrendingUp, Confidence: math.Min(1, adx/50)}
	case !math.IsNaN(adx) && adx >= 25 && bias == "bearish":
		return &market.RegimeInfo{Regime: market.TrendingDown, Confidence: math.Min(1, adx/50)}
	case !math.IsNaN(atrPct) && atrPct > 0.04:
		return &market.RegimeInfo{Regime: market.Volatile, Confidence: math.Min(1, atrPct/0.08)}
	default:
		return &market.RegimeInfo{Regime: market.Ranging, Confidence: 0.5}
	}
}
