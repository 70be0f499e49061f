package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEMA(t *testing.T) {
	t.Parallel()

	series := []float64{10, 11, 12, 13, 14}
	out := EMA(series, 3)
	if out[0] != 10 {
		t.Errorf("EMA seeds from the first value, got %v", out[0])
	}
	// alpha = 0.5 at period 3: 10, 10.5, 11.25, 12.125, 13.0625
	want := []float64{10, 10.5, 11.25, 12.125, 13.0625}
	for i, w := range want {
		if !almostEqual(out[i], w, 1e-9) {
			t.Errorf("EMA[%d] = %v, want %v", i, out[i], w)
		}
	}
	if got := EMA(nil, 3); len(got) != 0 {
		t.Errorf("empty input yields empty output, got %v", got)
	}
}

func TestSMAWarmup(t *testing.T) {
	t.Parallel()

	out := SMA([]float64{1, 2, 3, 4}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("warmup positions must be NaN")
	}
	if out[2] != 2 || out[3] != 3 {
		t.Errorf("SMA values wrong: %v", out)
	}
}

func TestRSI(t *testing.T) {
	t.Parallel()

	up := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	out := RSI(up, 14)
	if !math.IsNaN(out[5]) {
		t.Error("RSI must be NaN inside the warmup window")
	}
	if out[19] != 100 {
		t.Errorf("all-gain series yields RSI 100, got %v", out[19])
	}

	down := make([]float64, 20)
	for i := range down {
		down[i] = 200 - float64(i)
	}
	out = RSI(down, 14)
	if out[19] != 0 {
		t.Errorf("all-loss series yields RSI 0, got %v", out[19])
	}
}

func TestBollingerPosition(t *testing.T) {
	t.Parallel()

	closeS := make([]float64, 30)
	for i := range closeS {
		closeS[i] = 100 + math.Sin(float64(i))*2
	}
	upper, mid, lower, bandwidth, position := Bollinger(closeS, 20, 2)
	for i := 19; i < len(closeS); i++ {
		if upper[i] < mid[i] || mid[i] < lower[i] {
			t.Fatalf("band ordering broken at %d: %v %v %v", i, upper[i], mid[i], lower[i])
		}
		if bandwidth[i] <= 0 {
			t.Fatalf("bandwidth must be positive at %d: %v", i, bandwidth[i])
		}
		if position[i] < -0.5 || position[i] > 1.5 {
			t.Fatalf("position far outside band at %d: %v", i, position[i])
		}
	}
	if !math.IsNaN(position[5]) {
		t.Error("warmup position must be NaN")
	}
}

func TestATR(t *testing.T) {
	t.Parallel()

	n := 20
	high := make([]float64, n)
	low := make([]float64, n)
	closeS := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = 102
		low[i] = 100
		closeS[i] = 101
	}
	out := ATR(high, low, closeS, 14)
	if !math.IsNaN(out[10]) {
		t.Error("ATR warmup must be NaN")
	}
	if !almostEqual(out[n-1], 2.0, 1e-9) {
		t.Errorf("constant 2-point range yields ATR 2, got %v", out[n-1])
	}
}

func TestADXTrendingVsFlat(t *testing.T) {
	t.Parallel()

	n := 60
	high := make([]float64, n)
	low := make([]float64, n)
	closeS := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		high[i] = base + 1
		low[i] = base - 1
		closeS[i] = base
	}
	adx, plusDI, minusDI := ADX(high, low, closeS, 14)
	last := n - 1
	if math.IsNaN(adx[last]) {
		t.Fatal("ADX must resolve after warmup")
	}
	if adx[last] < 25 {
		t.Errorf("steady uptrend should read as strong trend, ADX %v", adx[last])
	}
	if plusDI[last] <= minusDI[last] {
		t.Errorf("uptrend must have +DI > -DI: %v vs %v", plusDI[last], minusDI[last])
	}

	for i := 0; i < n; i++ {
		high[i] = 101
		low[i] = 99
		closeS[i] = 100
	}
	adx, _, _ = ADX(high, low, closeS, 14)
	if !math.IsNaN(adx[last]) && adx[last] > 10 {
		t.Errorf("flat series should have negligible ADX, got %v", adx[last])
	}
}

func TestVWAP(t *testing.T) {
	t.Parallel()

	high := []float64{11, 21}
	low := []float64{9, 19}
	closeS := []float64{10, 20}
	volume := []float64{100, 300}
	out := VWAP(high, low, closeS, volume)
	if out[0] != 10 {
		t.Errorf("single bar VWAP is the typical price, got %v", out[0])
	}
	// (10*100 + 20*300) / 400 = 17.5
	if !almostEqual(out[1], 17.5, 1e-9) {
		t.Errorf("VWAP[1] = %v, want 17.5", out[1])
	}

	out = VWAP([]float64{1}, []float64{1}, []float64{1}, []float64{0})
	if !math.IsNaN(out[0]) {
		t.Error("zero cumulative volume must yield NaN")
	}
}

func TestRSIDivergence(t *testing.T) {
	t.Parallel()

	n := 20
	closeS := make([]float64, n)
	rsi := make([]float64, n)
	for i := 0; i < n; i++ {
		closeS[i] = 100 - float64(i)*0.5 // new lows into the window
		rsi[i] = 30 + float64(i)         // rsi climbing off the floor
	}
	out := RSIDivergence(closeS, rsi, 14)
	if out[n-1] != 1.0 {
		t.Errorf("price low + rising RSI is bullish divergence, got %v", out[n-1])
	}

	for i := 0; i < n; i++ {
		closeS[i] = 100 + float64(i)*0.5
		rsi[i] = 80 - float64(i)
	}
	out = RSIDivergence(closeS, rsi, 14)
	if out[n-1] != -1.0 {
		t.Errorf("price high + falling RSI is bearish divergence, got %v", out[n-1])
	}

	rsi[4] = math.NaN()
	out = RSIDivergence(closeS, rsi, 14)
	if out[14] != 0 {
		t.Errorf("NaN in the window must suppress the flag, got %v", out[14])
	}
}

func TestSqueeze(t *testing.T) {
	t.Parallel()

	out := Squeeze([]float64{0.05, 0.02, math.NaN(), 0.029}, 0.03)
	want := []float64{0, 1, 0, 1}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("Squeeze[%d] = %v, want %v", i, out[i], w)
		}
	}
}

func TestCandlestickScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		open, high, low, close float64
		want                   float64
	}{
		{"bullish hammer", 99.8, 100, 99, 99.9, 1.0},
		{"bearish hammer", 99.9, 100, 99, 99.8, -0.5},
		{"doji", 100, 101, 99, 100.05, 0.0},
		{"plain bar", 99, 101, 98.9, 101, 0.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := CandlestickScore([]float64{tt.open}, []float64{tt.high}, []float64{tt.low}, []float64{tt.close})
			if out[0] != tt.want {
				t.Errorf("score = %v, want %v", out[0], tt.want)
			}
		})
	}
}

func TestCandlestickEngulfing(t *testing.T) {
	t.Parallel()

	open := []float64{101, 99.5}
	high := []float64{101.5, 102}
	low := []float64{99.5, 99}
	closeS := []float64{100, 101.5}
	out := CandlestickScore(open, high, low, closeS)
	if out[1] != 1.0 {
		t.Errorf("bullish engulfing scores 1.0, got %v", out[1])
	}
}
