package market

import (
	"context"
	"errors"
	"math"
	"testing"

	"sniper/internal/exchange"
)

// fakeData - детерминированный источник рыночных данных
type fakeData struct {
	candles       map[string][]exchange.Candle // ключ - интервал
	candlesErr    error
	fundingRate   float64
	fundingErr    error
	openInterest  []exchange.OpenInterestPoint
	openInterErr  error
}

func (f *fakeData) GetCandles(_ context.Context, _, interval string, _ int) ([]exchange.Candle, error) {
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles[interval], nil
}

func (f *fakeData) GetFundingRate(_ context.Context, _ string) (float64, error) {
	if f.fundingErr != nil {
		return 0, f.fundingErr
	}
	return f.fundingRate, nil
}

func (f *fakeData) GetOpenInterest(_ context.Context, _, _ string, _ int) ([]exchange.OpenInterestPoint, error) {
	if f.openInterErr != nil {
		return nil, f.openInterErr
	}
	return f.openInterest, nil
}

// trendCandles строит len свечей устойчивого роста
func trendCandles(n int, start, step float64) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		p := start + float64(i)*step
		out[i] = exchange.Candle{
			Open:   p - step,
			High:   p + 1,
			Low:    p - 1,
			Close:  p,
			Volume: 100,
		}
	}
	return out
}

func testBuilder(data *fakeData) *Builder {
	return NewBuilder(data, DefaultBuilderConfig(), nil)
}

func TestBuilderBuild(t *testing.T) {
	data := &fakeData{
		candles: map[string][]exchange.Candle{
			"15m": trendCandles(200, 100, 0.5),
			"4h":  trendCandles(60, 80, 2),
		},
		fundingRate: 0.0001,
		openInterest: []exchange.OpenInterestPoint{
			{OpenInterest: 1000},
			{OpenInterest: 1100},
		},
	}

	snap, err := testBuilder(data).Build(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if snap.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %s, want BTCUSDT", snap.Symbol)
	}
	if snap.Bars != 200 {
		t.Errorf("Bars = %d, want 200", snap.Bars)
	}

	// Последний close серии: 100 + 199*0.5
	if !floatEquals(snap.Price, 199.5) {
		t.Errorf("Price = %v, want 199.5", snap.Price)
	}

	// Аптренд: быстрая EMA выше медленной, RSI высокий
	if snap.EMAFast <= snap.EMASlow {
		t.Errorf("EMAFast = %v <= EMASlow = %v in uptrend", snap.EMAFast, snap.EMASlow)
	}
	if snap.RSI < 70 {
		t.Errorf("RSI = %v, want >= 70 for monotonic uptrend", snap.RSI)
	}
	if snap.MACDHist <= 0 {
		t.Errorf("MACDHist = %v, want > 0 in uptrend", snap.MACDHist)
	}
	if snap.PlusDI <= snap.MinusDI {
		t.Errorf("+DI = %v <= -DI = %v in uptrend", snap.PlusDI, snap.MinusDI)
	}

	if snap.FundingRate != 0.0001 {
		t.Errorf("FundingRate = %v, want 0.0001", snap.FundingRate)
	}

	// OI вырос с 1000 до 1100 = +10%
	if !floatEquals(snap.OIDelta, 10.0) {
		t.Errorf("OIDelta = %v, want 10.0", snap.OIDelta)
	}

	// Старший ТФ тоже бычий
	if snap.HigherTFBias <= 0 {
		t.Errorf("HigherTFBias = %v, want > 0", snap.HigherTFBias)
	}

	if snap.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}

func TestBuilderNotEnoughHistory(t *testing.T) {
	data := &fakeData{
		candles: map[string][]exchange.Candle{
			"15m": trendCandles(10, 100, 0.5),
		},
	}

	_, err := testBuilder(data).Build(context.Background(), "BTCUSDT")
	if !errors.Is(err, ErrNotEnoughHistory) {
		t.Errorf("error = %v, want ErrNotEnoughHistory", err)
	}
}

func TestBuilderCandlesError(t *testing.T) {
	wantErr := errors.New("network down")
	data := &fakeData{candlesErr: wantErr}

	_, err := testBuilder(data).Build(context.Background(), "BTCUSDT")
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestBuilderDegradedSources(t *testing.T) {
	// Фандинг, OI и старший ТФ недоступны - снапшот все равно собирается
	data := &fakeData{
		candles: map[string][]exchange.Candle{
			"15m": trendCandles(200, 100, 0.5),
			// "4h" отсутствует: GetCandles вернет nil без ошибки,
			// TrendBias по пустой истории даст 0
		},
		fundingErr:   errors.New("funding unavailable"),
		openInterErr: errors.New("oi unavailable"),
	}

	snap, err := testBuilder(data).Build(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if snap.FundingRate != 0 {
		t.Errorf("FundingRate = %v, want 0", snap.FundingRate)
	}
	if snap.OIDelta != 0 {
		t.Errorf("OIDelta = %v, want 0", snap.OIDelta)
	}
	if snap.HigherTFBias != 0 {
		t.Errorf("HigherTFBias = %v, want 0", snap.HigherTFBias)
	}
}

func TestBuilderOIDelta(t *testing.T) {
	tests := []struct {
		name   string
		points []exchange.OpenInterestPoint
		want   float64
	}{
		{
			name: "Рост OI",
			points: []exchange.OpenInterestPoint{
				{OpenInterest: 1000}, {OpenInterest: 1050}, {OpenInterest: 1200},
			},
			want: 20.0,
		},
		{
			name: "Падение OI",
			points: []exchange.OpenInterestPoint{
				{OpenInterest: 1000}, {OpenInterest: 900},
			},
			want: -10.0,
		},
		{
			name:   "Одна точка",
			points: []exchange.OpenInterestPoint{{OpenInterest: 1000}},
			want:   0,
		},
		{
			name:   "Нет данных",
			points: nil,
			want:   0,
		},
		{
			name: "Нулевая база",
			points: []exchange.OpenInterestPoint{
				{OpenInterest: 0}, {OpenInterest: 100},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &fakeData{
				candles: map[string][]exchange.Candle{
					"15m": trendCandles(200, 100, 0.5),
				},
				openInterest: tt.points,
			}
			b := testBuilder(data)
			if got := b.openInterestDelta(context.Background(), "BTCUSDT"); !floatEquals(got, tt.want) {
				t.Errorf("openInterestDelta = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateSnapshotRejectsNaN(t *testing.T) {
	data := &fakeData{
		candles: map[string][]exchange.Candle{
			"15m": trendCandles(200, 100, 0.5),
		},
	}
	snap, err := testBuilder(data).Build(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	snap.ATR = math.NaN()
	if err := validateSnapshot(snap); !errors.Is(err, ErrBadIndicator) {
		t.Errorf("error = %v, want ErrBadIndicator", err)
	}
}

func TestBuilderMinBars(t *testing.T) {
	b := testBuilder(&fakeData{})
	// Самый длинный индикатор в дефолтной конфигурации - EMA(50)
	if got := b.minBars(); got != 50 {
		t.Errorf("minBars = %d, want 50", got)
	}
}
