package signal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"edge-scorer/internal/features"
	"edge-scorer/internal/market"
)

// MetricsTracker is the narrow metrics surface the engine needs.
type MetricsTracker interface {
	ScoresInc()
	SignalsEmittedAdd(float64)
}

// Engine is the deterministic rule scorer. It is stateless apart from the
// injected weight table; one Engine is safe for concurrent Score calls.
type Engine struct {
	weights *WeightTable
	metrics MetricsTracker
}

func NewEngine(weights *WeightTable) *Engine {
	return NewEngineWithMetrics(weights, nil)
}

func NewEngineWithMetrics(weights *WeightTable, metrics MetricsTracker) *Engine {
	if weights == nil {
		weights = NewWeightTable(nil, nil)
	}
	return &Engine{weights: weights, metrics: metrics}
}

// Weights exposes the engine's weight table for explicit updates.
func (e *Engine) Weights() *WeightTable { return e.weights }

// Score evaluates every rule against the bundle and aggregates the weighted
// votes into a directional confidence. Missing or malformed inputs never
// error; the affected rules simply do not fire.
func (e *Engine) Score(ticker string, b *market.DataBundle, session market.Session) ScoreResult {
	p := &pass{
		session: session,
		weights: e.weights,
	}

	if b != nil {
		p.regime = b.DetectedRegime()
		p.evalTechnicals(b)
		p.evalOptionsFlow(b)
		p.evalDarkPool(b)
		p.evalVolume(b)
		p.evalGamma(b)
		p.evalVolatility(b)
		p.evalSentimentInsider(b)
		p.evalMultiTF(b)
		p.evalEnrichment(b)

		// Post-hoc passes, strictly after the base rules. The tick override
		// runs first so the ADX gate adjusts the final record set.
		p.applyTickOverride(b)
		p.applyADXGate(b)
	}

	spread := math.Abs(p.bull - p.bear)
	confidence := int(math.Min(95, math.Round(50+spread/40*50)))

	bearThreshold := 2.0
	if p.regime == market.Ranging {
		bearThreshold = 5.0
	}
	direction := NeutralScore
	switch {
	case p.bull > p.bear+2:
		direction = Bullish
	case p.bear > p.bull+bearThreshold:
		direction = Bearish
	}

	if e.metrics != nil {
		e.metrics.ScoresInc()
		e.metrics.SignalsEmittedAdd(float64(len(p.records)))
	}

	return ScoreResult{
		Ticker:     ticker,
		Direction:  direction,
		Confidence: confidence,
		BullScore:  p.bull,
		BearScore:  p.bear,
		Spread:     spread,
		Signals:    p.records,
		Session:    session,
		Timestamp:  time.Now(),
		Features:   features.Extract(b),
	}
}

// pass accumulates one scoring call.
type pass struct {
	session market.Session
	regime  market.Regime
	weights *WeightTable
	bull    float64
	bear    float64
	records []SignalRecord
}

func (p *pass) w(key string) float64 {
	return p.weights.Effective(key, p.session)
}

func (p *pass) emit(rule, name string, dir Direction, weight float64, detail string) {
	if weight <= 0 {
		return
	}
	p.records = append(p.records, SignalRecord{Rule: rule, Name: name, Direction: dir, Weight: weight, Detail: detail})
	p.bucketAdd(dir, weight)
}

func (p *pass) bucketAdd(dir Direction, delta float64) {
	switch dir {
	case Bull:
		p.bull += delta
	case Bear:
		p.bear += delta
	}
}

// ── Technical rules ──────────────────────────────────────

func (p *pass) evalTechnicals(b *market.DataBundle) {
	t := b.Technicals
	if t == nil {
		return
	}

	p.evalEMA(t)
	p.evalRSI(t)
	p.evalMACD(t)
	p.evalMACDAccel(t)
	p.evalBollinger(t)
	p.evalSqueeze(t)
	p.evalVWAP(t, b.Quote)
	p.evalCandles(t)
	p.evalDivergence(t)
	p.evalFibonacci(t, b.Quote)
}

func (p *pass) evalEMA(t *market.Technicals) {
	w := p.w("ema_alignment")
	switch t.EMABias {
	case "bullish":
		p.emit(RuleEMAAlignment, "EMA Alignment Bullish", Bull, w, "8>21>50 stack")
	case "bearish":
		scale := 1.0
		if p.regime == market.Ranging {
			scale = 0.4
		}
		p.emit(RuleEMAAlignment, "EMA Alignment Bearish", Bear, w*scale, "8<21<50 stack")
	}
}

func (p *pass) evalRSI(t *market.Technicals) {
	if t.RSI == nil {
		return
	}
	r := *t.RSI
	if math.IsNaN(r) || r < 0 || r > 100 {
		return
	}
	w := p.w("rsi_position")
	detail := fmt.Sprintf("RSI %.1f", r)
	switch {
	case r < 30:
		if p.regime == market.TrendingDown {
			p.emit(RuleRSIPosition, "RSI Downtrend Continuation", Bear, w*0.5, detail)
		} else {
			p.emit(RuleRSIReversion, "RSI Oversold Reversion", Bull, w, detail)
		}
	case r > 70:
		if p.regime == market.TrendingUp {
			p.emit(RuleRSIPosition, "RSI Uptrend Continuation", Bull, w*0.5, detail)
		} else {
			p.emit(RuleRSIReversion, "RSI Overbought Reversion", Bear, w, detail)
		}
	case r >= 55:
		p.emit(RuleRSIPosition, "RSI Bullish Momentum", Bull, w*0.5, detail)
	case r <= 45:
		scale := 0.5
		if p.regime == market.Ranging {
			scale *= 0.4
		}
		p.emit(RuleRSIPosition, "RSI Bearish Momentum", Bear, w*scale, detail)
	}
}

func (p *pass) evalMACD(t *market.Technicals) {
	if t.MACD == nil || t.ATR == nil || *t.ATR <= 0 {
		return
	}
	hist := t.MACD.Histogram
	atr := *t.ATR
	if math.Abs(hist) <= 0.005*atr {
		return // noise
	}
	w := p.w("macd_histogram")
	scale := math.Min(1, math.Abs(hist)/(0.05*atr))
	detail := fmt.Sprintf("hist %.4f vs ATR %.3f", hist, atr)
	if hist > 0 {
		p.emit(RuleMACDHistogram, "MACD Histogram Bullish", Bull, w*scale, detail)
	} else {
		if p.regime == market.Ranging {
			scale *= 0.25
		}
		p.emit(RuleMACDHistogram, "MACD Histogram Bearish", Bear, w*scale, detail)
	}
}

func (p *pass) evalMACDAccel(t *market.Technicals) {
	if t.MACDSlope == nil || t.MACD == nil {
		return
	}
	slope, hist := *t.MACDSlope, t.MACD.Histogram
	w := p.w("macd_accel")
	switch {
	case slope > 0 && hist > 0:
		p.emit(RuleMACDAccel, "MACD Acceleration Up", Bull, w*0.5, fmt.Sprintf("slope %.4f", slope))
	case slope < 0 && hist < 0:
		p.emit(RuleMACDAccel, "MACD Acceleration Down", Bear, w*0.5, fmt.Sprintf("slope %.4f", slope))
	}
}

func (p *pass) evalBollinger(t *market.Technicals) {
	bb := t.BollingerBands
	if bb == nil || math.IsNaN(bb.Position) {
		return
	}
	pos := bb.Position
	w := p.w("bollinger_position")
	volConfirmed := t.VolumeSpike != nil && *t.VolumeSpike
	detail := fmt.Sprintf("band position %.2f", pos)
	switch {
	case pos < 0.10:
		if p.regime == market.TrendingDown {
			p.emit(RuleBollinger, "BB Band Walk Down", Bear, w, detail)
			return
		}
		scale := 1.0
		if volConfirmed {
			scale = 2.0
		}
		p.emit(RuleBollinger, "BB Lower Band Dip Buy", Bull, w*scale, detail)
	case pos > 0.90:
		if p.regime == market.TrendingUp {
			p.emit(RuleBollinger, "BB Band Walk Up", Bull, w, detail)
			return
		}
		scale := 1.0
		if volConfirmed {
			scale = 2.0
		}
		p.emit(RuleBollinger, "BB Upper Band Fade", Bear, w*scale, detail)
	case pos <= 0.20:
		p.emit(RuleBollinger, "BB Lower Band Approach", Bull, w*0.5, detail)
	case pos >= 0.80:
		p.emit(RuleBollinger, "BB Upper Band Approach", Bear, w*0.5, detail)
	}
}

func (p *pass) evalSqueeze(t *market.Technicals) {
	bb := t.BollingerBands
	if bb == nil || math.IsNaN(bb.Bandwidth) || bb.Bandwidth >= 0.03 {
		return
	}
	w := p.w("bb_squeeze")
	switch t.EMABias {
	case "bullish":
		p.emit(RuleBBSqueeze, "BB Squeeze Bullish Bias", Bull, w, fmt.Sprintf("bandwidth %.3f", bb.Bandwidth))
	case "bearish":
		p.emit(RuleBBSqueeze, "BB Squeeze Bearish Bias", Bear, w, fmt.Sprintf("bandwidth %.3f", bb.Bandwidth))
	}
}

func (p *pass) evalVWAP(t *market.Technicals, q *market.Quote) {
	if t.VWAP == nil || *t.VWAP <= 0 || q == nil || q.Price() <= 0 {
		return
	}
	devPct := (q.Price() - *t.VWAP) / *t.VWAP * 100
	if math.Abs(devPct) < 0.1 {
		return
	}
	w := p.w("vwap_deviation")
	scale := math.Min(1, math.Abs(devPct)/2)
	detail := fmt.Sprintf("%.2f%% from VWAP", devPct)
	if devPct > 0 {
		p.emit(RuleVWAPDeviation, "VWAP Reclaim Hold", Bull, w*scale, detail)
	} else {
		p.emit(RuleVWAPDeviation, "VWAP Rejection", Bear, w*scale, detail)
	}
}

func (p *pass) evalCandles(t *market.Technicals) {
	w := p.w("candlestick_pattern")
	for _, pat := range t.Patterns {
		s := pat.Strength
		if s <= 0 || s > 1 {
			continue
		}
		switch pat.Bias {
		case "bullish":
			p.emit(RuleCandlestick, "Candle: "+pat.Name, Bull, w*s*1.5, fmt.Sprintf("strength %.2f", s))
		case "bearish":
			mult := 1.0
			if p.regime == market.Ranging {
				mult = 0.5
			}
			p.emit(RuleCandlestick, "Candle: "+pat.Name, Bear, w*s*mult, fmt.Sprintf("strength %.2f", s))
		}
	}
}

func (p *pass) evalDivergence(t *market.Technicals) {
	n := len(t.RSIDivergence)
	if n == 0 {
		return
	}
	d := t.RSIDivergence[n-1]
	if d == 0 || math.IsNaN(d) {
		return
	}
	w := p.w("rsi_divergence")
	scale := math.Min(1, math.Abs(d))
	if d > 0 {
		p.emit(RuleRSIDivergence, "Bullish RSI Divergence", Bull, w*scale, "price low, RSI holding")
	} else {
		p.emit(RuleRSIDivergence, "Bearish RSI Divergence", Bear, w*scale, "price high, RSI fading")
	}
}

func (p *pass) evalFibonacci(t *market.Technicals, q *market.Quote) {
	if q == nil {
		return
	}
	prox, ok := market.FibProximity(t.Fibonacci, q.Price())
	if !ok || prox <= 0.6 {
		return
	}
	w := p.w("fibonacci_proximity")
	detail := fmt.Sprintf("proximity %.2f", prox)
	switch t.EMABias {
	case "bullish":
		p.emit(RuleFibProximity, "Fib Level Support", Bull, w*prox, detail)
	case "bearish":
		p.emit(RuleFibProximity, "Fib Level Resistance", Bear, w*prox, detail)
	}
}

// ── Options flow rules ───────────────────────────────────

func (p *pass) evalOptionsFlow(b *market.DataBundle) {
	callPrem, putPrem := market.CallPutPremium(b.Flow)
	if callPrem+putPrem > 0 {
		w := p.w("call_put_ratio")
		switch {
		case putPrem == 0 && callPrem > 0:
			p.emit(RuleCallPutRatio, "Call Premium Dominant", Bull, w, "no put premium")
		case putPrem > 0:
			ratio := callPrem / putPrem
			detail := fmt.Sprintf("C/P ratio %.2f", ratio)
			if ratio > 1.5 {
				p.emit(RuleCallPutRatio, "Call Premium Dominant", Bull, w*math.Min(1, ratio/3), detail)
			} else if ratio < 0.67 {
				p.emit(RuleCallPutRatio, "Put Premium Dominant", Bear, w*math.Min(1, 1/(ratio*3)), detail)
			}
		}
	}

	var sweepNet float64
	for _, f := range b.Flow {
		if f.TradeType != "sweep" {
			continue
		}
		switch f.Side() {
		case "call", "CALL", "C":
			sweepNet += f.Premium
		case "put", "PUT", "P":
			sweepNet -= f.Premium
		}
	}
	if sweepNet != 0 {
		w := p.w("sweep_activity")
		scale := math.Min(1, math.Abs(sweepNet)/250_000)
		detail := fmt.Sprintf("net sweep premium %.0f", sweepNet)
		if sweepNet > 0 {
			p.emit(RuleSweepActivity, "Aggressive Call Sweeps", Bull, w*scale, detail)
		} else {
			p.emit(RuleSweepActivity, "Aggressive Put Sweeps", Bear, w*scale, detail)
		}
	}
}

func (p *pass) evalDarkPool(b *market.DataBundle) {
	bias, ok := market.DarkPoolBias(b.DarkPool)
	if !ok || math.Abs(bias) < 0.15 {
		return
	}
	w := p.w("dark_pool_direction")
	scale := math.Min(1, math.Abs(bias)/0.4)
	detail := fmt.Sprintf("print bias %.2f over %d prints", bias, len(b.DarkPool))
	if bias > 0 {
		p.emit(RuleDarkPool, "Dark Pool Buy Pressure", Bull, w*scale, detail)
	} else {
		p.emit(RuleDarkPool, "Dark Pool Sell Pressure", Bear, w*scale, detail)
	}
}

// ── Volume rules ─────────────────────────────────────────

func (p *pass) evalVolume(b *market.DataBundle) {
	t := b.Technicals
	if t == nil || t.VolumeSpike == nil || !*t.VolumeSpike {
		return
	}

	switch t.EMABias {
	case "bullish":
		p.emit(RuleVolumeSpike, "Volume Spike Trend Confirm", Bull, p.w("volume_spike"), "spike with bullish stack")
	case "bearish":
		p.emit(RuleVolumeSpike, "Volume Spike Trend Confirm", Bear, p.w("volume_spike"), "spike with bearish stack")
	}

	q := b.Quote
	if q == nil || q.Close <= 0 || q.Last <= 0 {
		return
	}
	changePct := (q.Last - q.Close) / q.Close * 100
	if math.Abs(changePct) < 0.5 {
		return
	}
	w := p.w("volume_direction")
	scale := math.Min(1, math.Abs(changePct)/3)
	detail := fmt.Sprintf("%.2f%% on elevated volume", changePct)
	if changePct > 0 {
		p.emit(RuleVolumeDirection, "Volume-Backed Buy Pressure", Bull, w*scale, detail)
	} else {
		p.emit(RuleVolumeDirection, "Volume-Backed Sell Pressure", Bear, w*scale, detail)
	}
}

// ── Gamma / dealer positioning rules ─────────────────────

func (p *pass) evalGamma(b *market.DataBundle) {
	if net := market.NetGEX(b.GEX); net != 0 {
		w := p.w("gex_positioning")
		if net > 0 {
			p.emit(RuleGEXPositioning, "Positive Net GEX", Bull, w*0.3, "dealers long gamma, dips absorbed")
		} else {
			p.emit(RuleGEXPositioning, "Negative Net GEX", Bear, w*0.3, "dealers short gamma, moves amplified")
		}
	}

	q := b.Quote
	if q == nil || q.Price() <= 0 {
		return
	}
	spot := q.Price()

	if strike, _, ok := market.LargestWall(b.GEX); ok {
		dist := (strike - spot) / spot
		if math.Abs(dist) <= 0.02 {
			w := p.w("gamma_wall")
			detail := fmt.Sprintf("wall at %.2f, spot %.2f", strike, spot)
			if dist > 0 {
				p.emit(RuleGammaWall, "Gamma Wall Resistance", Bear, w*0.5, detail)
			} else {
				p.emit(RuleGammaWall, "Gamma Wall Support", Bull, w*0.5, detail)
			}
		}
	}

	if se := b.SpotExposures; se != nil && se.PinStrike > 0 {
		diff := (se.PinStrike - spot) / spot
		if math.Abs(diff) <= 0.02 && diff != 0 {
			w := p.w("spot_gamma_pin")
			detail := fmt.Sprintf("pin %.2f, spot %.2f", se.PinStrike, spot)
			if diff > 0 {
				p.emit(RuleSpotGammaPin, "Gamma Pin Drift Up", Bull, w*0.3, detail)
			} else {
				p.emit(RuleSpotGammaPin, "Gamma Pin Drift Down", Bear, w*0.3, detail)
			}
		}
	}
}

// ── Volatility / positioning rules ───────────────────────

func (p *pass) evalVolatility(b *market.DataBundle) {
	if b.IVRank != nil {
		iv := *b.IVRank
		w := p.w("iv_rank")
		if iv > 80 {
			p.emit(RuleIVRank, "IV Rank Elevated", Bear, w*0.5, fmt.Sprintf("IV rank %.0f", iv))
		} else if iv >= 0 && iv < 20 {
			p.emit(RuleIVRank, "IV Rank Depressed", Bull, w*0.5, fmt.Sprintf("IV rank %.0f", iv))
		}
	}

	if b.ShortInterest != nil && b.Quote != nil && b.Quote.Close > 0 && b.Quote.Last > 0 {
		si := *b.ShortInterest
		if si > 20 {
			w := p.w("short_interest")
			if b.Quote.Last > b.Quote.Close {
				p.emit(RuleShortInterest, "Short Squeeze Fuel", Bull, w*math.Min(1, si/40), fmt.Sprintf("SI %.1f%%, price rising", si))
			} else {
				p.emit(RuleShortInterest, "Heavy Short Interest", Bear, w*0.25, fmt.Sprintf("SI %.1f%%", si))
			}
		}
	}

	if n := len(b.RealizedVol); n >= 20 {
		last := b.RealizedVol[n-1]
		lo, hi := quantiles(b.RealizedVol, 0.2, 0.8)
		w := p.w("vol_regime")
		if last >= hi {
			p.emit(RuleRealizedVol, "Realized Vol Elevated", Bear, w*0.5, fmt.Sprintf("RV %.3f above q80", last))
		} else if last <= lo {
			p.emit(RuleRealizedVol, "Realized Vol Compressed", Bull, w*0.5, fmt.Sprintf("RV %.3f below q20", last))
		}
	}

	if vr := b.VolRunner; vr != nil && vr.Active {
		w := p.w("volatility_runner")
		detail := fmt.Sprintf("%.1f%% move on %.1fx volume", vr.MovePct, vr.VolumeX)
		if vr.Direction == "down" {
			p.emit(RuleVolRunner, "Volatility Runner Down", Bear, w, detail)
		} else {
			p.emit(RuleVolRunner, "Volatility Runner", Bull, w, detail)
		}
	}
}

// ── Sentiment / insider rules ────────────────────────────

func (p *pass) evalSentimentInsider(b *market.DataBundle) {
	if b.Sentiment != nil {
		s := b.Sentiment.Score
		if math.Abs(s) > 0.3 && !math.IsNaN(s) {
			w := p.w("news_sentiment")
			scale := math.Min(1, math.Abs(s))
			if s > 0 {
				p.emit(RuleSentiment, "Positive News Sentiment", Bull, w*scale, fmt.Sprintf("score %.2f", s))
			} else {
				p.emit(RuleSentiment, "Negative News Sentiment", Bear, w*scale, fmt.Sprintf("score %.2f", s))
			}
		}
	}

	insider := b.Insider
	if len(insider) == 0 {
		insider = b.InsiderFlow
	}
	if net := market.NetInsiderValue(insider); math.Abs(net) >= 250_000 {
		w := p.w("insider_conviction")
		scale := math.Min(1, math.Abs(net)/1_000_000)
		if net > 0 {
			p.emit(RuleInsider, "Insider Accumulation", Bull, w*scale, fmt.Sprintf("net buys $%.0f", net))
		} else {
			p.emit(RuleInsider, "Insider Distribution", Bear, w*scale, fmt.Sprintf("net sells $%.0f", -net))
		}
	}

	if net := market.NetInsiderValue(b.Congress); math.Abs(net) >= 15_000 {
		w := p.w("insider_congress")
		if net > 0 {
			p.emit(RuleCongress, "Congressional Buying", Bull, w, fmt.Sprintf("net $%.0f", net))
		} else {
			p.emit(RuleCongress, "Congressional Selling", Bear, w, fmt.Sprintf("net $%.0f", -net))
		}
	}
}

// ── Multi-timeframe bonuses ──────────────────────────────

func (p *pass) evalMultiTF(b *market.DataBundle) {
	mtf := b.MultiTF
	if mtf == nil {
		return
	}
	if c := mtf.Confluence; math.Abs(c) >= 0.25 {
		w := p.w("multi_tf_confluence")
		scale := math.Min(1, math.Abs(c))
		if c > 0 {
			p.emit(RuleConfluence, "Multi-TF Bullish Confluence", Bull, w*scale, fmt.Sprintf("confluence %.2f", c))
		} else {
			p.emit(RuleConfluence, "Multi-TF Bearish Confluence", Bear, w*scale, fmt.Sprintf("confluence %.2f", c))
		}
	}
	if mtf.ShortCoverBounce {
		p.emit(RuleShortCover, "Short Cover Bounce Setup", Bull, p.w("short_cover_bounce"), "pre-computed")
	}
	if mtf.Consolidation {
		dir := Bull
		name := "Consolidation Breakout"
		if q := b.Quote; q != nil && q.Close > 0 && q.Last > 0 && q.Last < q.Close {
			dir = Bear
			name = "Consolidation Breakdown"
		}
		p.emit(RuleConsolidation, name, dir, p.w("consolidation_breakout"), "pre-computed")
	}
}

// ── Enrichment feed rules ────────────────────────────────

func (p *pass) evalEnrichment(b *market.DataBundle) {
	var netPrem float64
	for _, np := range b.NetPremium {
		netPrem += np.NetPremium
	}
	if math.Abs(netPrem) >= 50_000 {
		w := p.w("net_premium_momentum")
		scale := math.Min(1, math.Abs(netPrem)/1_000_000)
		if netPrem > 0 {
			p.emit(RuleNetPremium, "Net Premium Accumulation", Bull, w*scale, fmt.Sprintf("$%.0f", netPrem))
		} else {
			p.emit(RuleNetPremium, "Net Premium Distribution", Bear, w*scale, fmt.Sprintf("$%.0f", netPrem))
		}
	}

	if q := b.Quote; q != nil && q.Price() > 0 && len(b.FlowPerStrike) > 0 {
		var above, below float64
		for _, sf := range b.FlowPerStrike {
			if sf.Strike >= q.Price() {
				above += sf.NetPremium
			} else {
				below += sf.NetPremium
			}
		}
		net := above - below
		if math.Abs(net) >= 100_000 {
			w := p.w("strike_flow_levels")
			scale := math.Min(1, math.Abs(net)/1_000_000)
			if net > 0 {
				p.emit(RuleStrikeFlow, "Upside Strike Accumulation", Bull, w*scale, fmt.Sprintf("net $%.0f above spot", net))
			} else {
				p.emit(RuleStrikeFlow, "Downside Strike Accumulation", Bear, w*scale, fmt.Sprintf("net $%.0f below spot", -net))
			}
		}
	}

	var netDelta float64
	for _, gf := range b.GreekFlow {
		netDelta += gf.NetDelta
	}
	if netDelta != 0 {
		w := p.w("greek_flow_momentum")
		scale := math.Min(1, math.Abs(netDelta)/100_000)
		if netDelta > 0 {
			p.emit(RuleGreekFlow, "Positive Delta Flow", Bull, w*scale, fmt.Sprintf("net delta %.0f", netDelta))
		} else {
			p.emit(RuleGreekFlow, "Negative Delta Flow", Bear, w*scale, fmt.Sprintf("net delta %.0f", netDelta))
		}
	}

	p.evalTide(b.SectorTide, "sector_tide_alignment", RuleSectorTide, "Sector Tide")
	p.evalTide(b.ETFTide, "etf_tide_macro", RuleETFTide, "ETF Tide")

	if last, avg, ok := market.ShortVolumeRatio(b.ShortVolume); ok && len(b.ShortVolume) >= 3 {
		w := p.w("short_volume_trend")
		if last < avg-0.05 {
			p.emit(RuleShortVolume, "Short Volume Declining", Bull, w, fmt.Sprintf("ratio %.2f vs avg %.2f", last, avg))
		} else if last > 0.6 && last > avg+0.05 {
			p.emit(RuleShortVolume, "Short Volume Climbing", Bear, w*0.5, fmt.Sprintf("ratio %.2f vs avg %.2f", last, avg))
		}
	}

	if n := len(b.FTD); n >= 2 {
		var sum float64
		for _, f := range b.FTD[:n-1] {
			sum += f.Shares
		}
		if avg := sum / float64(n-1); avg > 0 && b.FTD[n-1].Shares > 2*avg {
			p.emit(RuleFTD, "FTD Spike", Bull, p.w("fails_to_deliver")*0.5, fmt.Sprintf("%.0f vs avg %.0f", b.FTD[n-1].Shares, avg))
		}
	}

	if bias, ok := market.SeasonalBias(b.Seasonality, int(time.Now().Month())); ok {
		w := p.w("seasonality_alignment")
		scale := math.Min(1, math.Abs(bias)/0.05)
		if bias >= 0.01 {
			p.emit(RuleSeasonality, "Seasonal Tailwind", Bull, w*scale, fmt.Sprintf("avg month return %.1f%%", bias*100))
		} else if bias <= -0.01 {
			p.emit(RuleSeasonality, "Seasonal Headwind", Bear, w*scale, fmt.Sprintf("avg month return %.1f%%", bias*100))
		}
	}

	var total, near float64
	for _, f := range b.FlowPerExpiry {
		total += math.Abs(f.NetPremium)
		if f.DaysToExpiry <= 7 {
			near += f.NetPremium
		}
	}
	if total > 0 {
		share := near / total
		w := p.w("flow_horizon")
		if share > 0.3 {
			p.emit(RuleFlowHorizon, "Near-Dated Call Urgency", Bull, w*math.Min(1, share), fmt.Sprintf("near-dated share %.2f", share))
		} else if share < -0.3 {
			p.emit(RuleFlowHorizon, "Near-Dated Put Urgency", Bear, w*math.Min(1, -share), fmt.Sprintf("near-dated share %.2f", share))
		}
	}
}

func (p *pass) evalTide(t *market.Tide, key, rule, label string) {
	if t == nil || t.NetFlow == 0 {
		return
	}
	w := p.w(key)
	scale := math.Min(1, math.Abs(t.NetFlow)/50_000_000)
	if t.NetFlow > 0 {
		p.emit(rule, label+" Inflow", Bull, w*scale, fmt.Sprintf("net flow $%.0f", t.NetFlow))
	} else {
		p.emit(rule, label+" Outflow", Bear, w*scale, fmt.Sprintf("net flow $%.0f", t.NetFlow))
	}
}

// ── Post-hoc passes ──────────────────────────────────────

// proxyPressureRules are the rules superseded by real tick aggressor data.
var proxyPressureRules = map[string]bool{
	RuleDarkPool:        true,
	RuleVolumeDirection: true,
}

// applyTickOverride replaces proxy buy/sell pressure records with tick-derived
// signals. Removal happens before insertion.
func (p *pass) applyTickOverride(b *market.DataBundle) {
	td := b.TickData
	if td == nil || td.TradeCount <= 0 {
		return
	}

	kept := p.records[:0]
	for _, rec := range p.records {
		if proxyPressureRules[rec.Rule] {
			p.bucketAdd(rec.Direction, -rec.Weight)
			continue
		}
		kept = append(kept, rec)
	}
	p.records = kept

	if imb := td.Imbalance(); math.Abs(imb) >= 0.1 {
		w := p.w("tick_flow")
		scale := math.Min(1, math.Abs(imb)/0.5)
		detail := fmt.Sprintf("aggressor imbalance %.2f over %d trades", imb, td.TradeCount)
		if imb > 0 {
			p.emit(RuleTickFlow, "Tick Buy Flow", Bull, w*scale, detail)
		} else {
			p.emit(RuleTickFlow, "Tick Sell Flow", Bear, w*scale, detail)
		}
	}

	if q := b.Quote; q != nil && q.Price() > 0 && td.VWAP > 0 {
		dev := (q.Price() - td.VWAP) / td.VWAP
		if math.Abs(dev) >= 0.0005 {
			w := p.w("tick_vwap")
			detail := fmt.Sprintf("%.2f%% from tick VWAP", dev*100)
			if dev > 0 {
				p.emit(RuleTickVWAP, "Holding Above Tick VWAP", Bull, w, detail)
			} else {
				p.emit(RuleTickVWAP, "Trading Below Tick VWAP", Bear, w, detail)
			}
		}
	}

	if bi := td.BlockImbalance(); td.BlockBuys+td.BlockSells > 0 && math.Abs(bi) >= 0.2 {
		w := p.w("tick_blocks")
		scale := math.Min(1, math.Abs(bi))
		detail := fmt.Sprintf("%d block buys vs %d sells", td.BlockBuys, td.BlockSells)
		if bi > 0 {
			p.emit(RuleTickBlocks, "Large Block Buying", Bull, w*scale, detail)
		} else {
			p.emit(RuleTickBlocks, "Large Block Selling", Bear, w*scale, detail)
		}
	}
}

// adxTrendRules and adxReversionRules make the gate's scope explicit; the
// sets match on rule IDs, not display names.
var adxTrendRules = map[string]bool{
	RuleEMAAlignment:  true,
	RuleMACDHistogram: true,
	RuleMACDAccel:     true,
}

var adxReversionRules = map[string]bool{
	RuleBollinger:     true,
	RuleVWAPDeviation: true,
	RuleRSIReversion:  true,
	RuleBBSqueeze:     true,
}

// applyADXGate re-weights already-recorded signals by trend strength. Runs
// strictly after every directional rule has been evaluated.
func (p *pass) applyADXGate(b *market.DataBundle) {
	t := b.Technicals
	if t == nil || t.ADX == nil {
		return
	}
	adx := t.ADX.ADX
	if math.IsNaN(adx) {
		return
	}

	switch {
	case adx >= 30:
		for i := range p.records {
			rec := &p.records[i]
			if !adxTrendRules[rec.Rule] {
				continue
			}
			boost := 0.2 * rec.Weight
			p.bucketAdd(rec.Direction, boost)
			rec.Weight += boost
		}
	case adx < 18:
		for i := range p.records {
			rec := &p.records[i]
			switch {
			case adxTrendRules[rec.Rule]:
				cut := 0.15 * rec.Weight
				p.bucketAdd(rec.Direction, -cut)
				rec.Weight -= cut
			case adxReversionRules[rec.Rule]:
				boost := 0.3 * rec.Weight
				p.bucketAdd(rec.Direction, boost)
				rec.Weight += boost
			case rec.Direction == Bear:
				cut := 0.25 * rec.Weight
				p.bucketAdd(Bear, -cut)
				rec.Weight -= cut
			}
		}
	}
}

func quantiles(series []float64, lo, hi float64) (qlo, qhi float64) {
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)
	n := len(sorted)
	qlo = sorted[int(float64(n)*lo)]
	ihi := int(float64(n) * hi)
	if ihi >= n {
		ihi = n - 1
	}
	qhi = sorted[ihi]
	return
}
