// Package market defines the data bundle a scoring pass consumes, plus the
// session and regime vocabulary shared by the signal engine and the feature
// extractor.
package market

// Session is a named slice of the trading day used to scale signal weights.
type Session string

const (
	OpenRush   Session = "OPEN_RUSH"
	PowerOpen  Session = "POWER_OPEN"
	PreMarket  Session = "PRE_MARKET"
	Midday     Session = "MIDDAY"
	PowerHour  Session = "POWER_HOUR"
	AfterHours Session = "AFTER_HOURS"
	Overnight  Session = "OVERNIGHT"
)

// Regime is a classified market state affecting signal dampening.
type Regime string

const (
	TrendingUp   Regime = "TRENDING_UP"
	TrendingDown Regime = "TRENDING_DOWN"
	Ranging      Regime = "RANGING"
	Volatile     Regime = "VOLATILE"
)

// DataBundle carries everything a scoring pass may consume. Every field is
// optional: a rule whose input is missing or malformed abstains silently.
type DataBundle struct {
	Technicals    *Technicals      `json:"technicals,omitempty"`
	Flow          []FlowTrade      `json:"flow,omitempty"`
	DarkPool      []DarkPoolPrint  `json:"darkPool,omitempty"`
	GEX           []GEXStrike      `json:"gex,omitempty"`
	IVRank        *float64         `json:"ivRank,omitempty"`
	ShortInterest *float64         `json:"shortInterest,omitempty"`
	Insider       []InsiderTrade   `json:"insider,omitempty"`
	Congress      []InsiderTrade   `json:"congress,omitempty"`
	Quote         *Quote           `json:"quote,omitempty"`
	Regime        *RegimeInfo      `json:"regime,omitempty"`
	Sentiment     *Sentiment       `json:"sentiment,omitempty"`
	MultiTF       *MultiTF         `json:"multiTF,omitempty"`
	NetPremium    []NetPremiumTick `json:"netPremium,omitempty"`
	FlowPerStrike []StrikeFlow     `json:"flowPerStrike,omitempty"`
	GreekFlow     []GreekFlowTick  `json:"greekFlow,omitempty"`
	SectorTide    *Tide            `json:"sectorTide,omitempty"`
	ETFTide       *Tide            `json:"etfTide,omitempty"`
	ShortVolume   []ShortVolumeDay `json:"shortVolume,omitempty"`
	FTD           []FTDRecord      `json:"failsToDeliver,omitempty"`
	Seasonality   []SeasonalStat   `json:"seasonality,omitempty"`
	RealizedVol   []float64        `json:"realizedVol,omitempty"`
	InsiderFlow   []InsiderTrade   `json:"insiderFlow,omitempty"`
	SpotExposures *SpotExposures   `json:"spotExposures,omitempty"`
	FlowPerExpiry []ExpiryFlow     `json:"flowPerExpiry,omitempty"`
	TickData      *TickData        `json:"tickData,omitempty"`
	VolRunner     *VolRunner       `json:"volatilityRunner,omitempty"`
}

// Technicals holds indicator values, usually derived from bar history.
type Technicals struct {
	RSI            *float64        `json:"rsi,omitempty"`
	MACD           *MACDData       `json:"macd,omitempty"`
	BollingerBands *BollingerData  `json:"bollingerBands,omitempty"`
	ATR            *float64        `json:"atr,omitempty"`
	VWAP           *float64        `json:"vwap,omitempty"`
	EMABias        string          `json:"emaBias,omitempty"` // bullish | bearish | neutral
	VolumeSpike    *bool           `json:"volumeSpike,omitempty"`
	RSIDivergence  []float64       `json:"rsiDivergence,omitempty"`
	ADX            *ADXData        `json:"adx,omitempty"`
	Fibonacci      *FibonacciData  `json:"fibonacci,omitempty"`
	Patterns       []CandlePattern `json:"patterns,omitempty"`
	RSISlope       *float64        `json:"rsiSlope,omitempty"`
	MACDSlope      *float64        `json:"macdSlope,omitempty"`
	ATRValues      []float64       `json:"atrValues,omitempty"`
}

type MACDData struct {
	Histogram float64 `json:"histogram"`
}

type BollingerData struct {
	Position  float64 `json:"position"`
	Bandwidth float64 `json:"bandwidth"`
}

type ADXData struct {
	ADX float64 `json:"adx"`
}

type FibonacciData struct {
	Levels     []float64 `json:"levels"`
	SwingRange float64   `json:"swingRange"`
}

// CandlePattern is a detected candlestick pattern with a strength in (0,1].
type CandlePattern struct {
	Name     string  `json:"name"`
	Bias     string  `json:"bias"` // bullish | bearish
	Strength float64 `json:"strength"`
}

// FlowTrade is a single options flow print.
type FlowTrade struct {
	Premium    float64 `json:"premium"`
	PutCall    string  `json:"put_call,omitempty"`
	OptionType string  `json:"option_type,omitempty"`
	TradeType  string  `json:"trade_type,omitempty"` // sweep | block | split
}

// Side returns "call" or "put", tolerating either source field.
func (f FlowTrade) Side() string {
	if f.PutCall != "" {
		return f.PutCall
	}
	return f.OptionType
}

// DarkPoolPrint is an off-exchange trade report with its NBBO context.
type DarkPoolPrint struct {
	Price   float64 `json:"price"`
	NBBOBid float64 `json:"nbbo_bid"`
	NBBOAsk float64 `json:"nbbo_ask"`
	Size    float64 `json:"size,omitempty"`
}

// GEXStrike is per-strike aggregate gamma exposure.
type GEXStrike struct {
	Strike  float64 `json:"strike"`
	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
}

type InsiderTrade struct {
	Type  string  `json:"type"` // buy | sell
	Value float64 `json:"value"`
}

type Quote struct {
	Last   float64 `json:"last"`
	Close  float64 `json:"close"` // prior close
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Sector string  `json:"sector,omitempty"`
}

// Price returns the best available trade price.
func (q *Quote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	return q.Close
}

type RegimeInfo struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

type Sentiment struct {
	Score float64 `json:"score"` // [-1, 1]
}

// MultiTF carries externally pre-computed cross-timeframe conclusions,
// consumed as direct bonuses.
type MultiTF struct {
	Confluence       float64 `json:"confluence"` // signed, [-1, 1]
	ShortCoverBounce bool    `json:"shortCoverBounce"`
	Consolidation    bool    `json:"consolidation"` // breakout from consolidation
}

type NetPremiumTick struct {
	NetPremium float64 `json:"netPremium"`
}

type StrikeFlow struct {
	Strike     float64 `json:"strike"`
	NetPremium float64 `json:"netPremium"`
}

type GreekFlowTick struct {
	NetDelta float64 `json:"netDelta"`
}

// Tide is aggregate sector or ETF money flow.
type Tide struct {
	NetFlow float64 `json:"netFlow"`
}

type ShortVolumeDay struct {
	ShortVolume float64 `json:"shortVolume"`
	TotalVolume float64 `json:"totalVolume"`
}

type FTDRecord struct {
	Shares float64 `json:"shares"`
}

// SeasonalStat is the historical average return for one calendar month.
type SeasonalStat struct {
	Month     int     `json:"month"`
	AvgReturn float64 `json:"avgReturn"`
}

type SpotExposures struct {
	PinStrike float64 `json:"pinStrike"`
	NetGamma  float64 `json:"netGamma"`
}

type ExpiryFlow struct {
	DaysToExpiry int     `json:"daysToExpiry"`
	NetPremium   float64 `json:"netPremium"`
}

// TickData is real trade-level aggressor data. When present it supersedes the
// proxy pressure rules.
type TickData struct {
	BuyVolume  float64 `json:"buyVolume"`
	SellVolume float64 `json:"sellVolume"`
	VWAP       float64 `json:"vwap"`
	BlockBuys  int     `json:"blockBuys"`
	BlockSells int     `json:"blockSells"`
	TradeCount int     `json:"tradeCount"`
}

type VolRunner struct {
	Active    bool    `json:"active"`
	MovePct   float64 `json:"movePct"`
	VolumeX   float64 `json:"volumeX"`
	Direction string  `json:"direction,omitempty"` // up | down
}

// DetectedRegime returns the classified regime, or "" when absent.
func (b *DataBundle) DetectedRegime() Regime {
	if b == nil || b.Regime == nil {
		return ""
	}
	return b.Regime.Regime
}
