package viz

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obexdata/warehouse-copilot/internal/warehouse"
)

type stubGenerator struct {
	calls int
	reply string
	err   error
}

func (s *stubGenerator) Complete(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func testSelector(gen *stubGenerator) *Selector {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSelector(gen, logger)
}

func trendTable(n int) *warehouse.Table {
	tbl := &warehouse.Table{Columns: []string{"trade_date", "volume"}}
	anchor := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// newest first on purpose, the selector must re-sort ascending
		tbl.Rows = append(tbl.Rows, []any{
			anchor.AddDate(0, 0, -i).Format("2006-01-02"),
			float64(100 + i),
		})
	}
	return tbl
}

func TestEmptyResultIsNone(t *testing.T) {
	gen := &stubGenerator{}
	d := testSelector(gen).DetermineFormat(context.Background(), &warehouse.Table{Columns: []string{"a"}}, "SELECT 1", "anything", "data_query")
	assert.Equal(t, "none", d.VisualType)
	assert.Zero(t, gen.calls)
}

func TestSingleRowIsKPI(t *testing.T) {
	gen := &stubGenerator{}
	tbl := &warehouse.Table{
		Columns: []string{"total_volume"},
		Rows:    [][]any{{float64(1234567.89)}},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT SUM(volume) FROM t", "total volume", "data_query")
	assert.Equal(t, "table", d.VisualType)
	assert.Zero(t, gen.calls, "KPI path must not call the generator")
}

func TestTwoColumnTrendIsDeterministic(t *testing.T) {
	gen := &stubGenerator{}
	tbl := &warehouse.Table{
		Columns: []string{"trade_date", "volume"},
		Rows: [][]any{
			{"2026-02-09", float64(300)},
			{"2026-02-07", float64(100)},
			{"2026-02-08", float64(200)},
		},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl,
		"SELECT trade_date, SUM(vol) AS volume FROM trades GROUP BY 1", "volume trend", "data_query")

	require.Equal(t, "chart", d.VisualType)
	require.NotNil(t, d.Chart)
	assert.Zero(t, gen.calls, "two-column time series must not call the generator")
	assert.Equal(t, "bar", d.Chart.ChartType)
	assert.Equal(t, []any{"2026-02-07", "2026-02-08", "2026-02-09"}, d.Chart.X)
	assert.Equal(t, []any{float64(100), float64(200), float64(300)}, d.Chart.Y)
}

func TestChartTypeByRowDensity(t *testing.T) {
	gen := &stubGenerator{}
	sel := testSelector(gen)
	sql := "SELECT d, SUM(v) FROM t GROUP BY 1"

	small := trendTable(10)
	assert.Equal(t, "bar", sel.DetermineFormat(context.Background(), small, sql, "trend", "data_query").Chart.ChartType)

	medium := trendTable(60)
	assert.Equal(t, "line", sel.DetermineFormat(context.Background(), medium, sql, "trend", "data_query").Chart.ChartType)

	large := trendTable(150)
	assert.Equal(t, "area", sel.DetermineFormat(context.Background(), large, sql, "trend", "data_query").Chart.ChartType)
}

func TestIdentifierGridIsATable(t *testing.T) {
	gen := &stubGenerator{}
	tbl := &warehouse.Table{
		Columns: []string{"user_code", "device_id"},
		Rows: [][]any{
			{float64(10000047), float64(900001)},
			{float64(10000048), float64(900002)},
			{float64(10000049), float64(900003)},
		},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT user_code, device_id FROM t GROUP BY 1,2", "list devices", "data_query")
	assert.Equal(t, "table", d.VisualType)
	assert.Zero(t, gen.calls)
}

func TestThreeColumnsDelegateToGenerator(t *testing.T) {
	gen := &stubGenerator{reply: `{"chart_type":"line","x_column":"d","y_column":"buy_vol","color_column":"side","title":"Buy vs Sell"}`}
	tbl := &warehouse.Table{
		Columns: []string{"d", "buy_vol", "sell_vol"},
		Rows: [][]any{
			{"2026-02-08", float64(10), float64(7)},
			{"2026-02-09", float64(12), float64(9)},
		},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT d, b, s FROM t GROUP BY 1", "buy vs sell", "data_query")

	require.Equal(t, "chart", d.VisualType)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "line", d.Chart.ChartType)
	assert.Equal(t, "Buy vs Sell", d.Chart.Title)
}

func TestNumericAxisSortsNumerically(t *testing.T) {
	gen := &stubGenerator{reply: `{"chart_type":"bar","x_column":"hour","y_column":"orders","title":"Orders by Hour"}`}
	tbl := &warehouse.Table{Columns: []string{"hour", "segment", "orders"}}
	for h := 12; h >= 1; h-- {
		tbl.Rows = append(tbl.Rows, []any{float64(h), "spot", float64(h * 10)})
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl,
		"SELECT hour, segment, COUNT(*) AS orders FROM t GROUP BY 1, 2", "orders by hour", "data_query")

	require.Equal(t, "chart", d.VisualType)
	require.NotNil(t, d.Chart)
	// 10 must not sort before 2
	for i, want := 0, 1; want <= 12; i, want = i+1, want+1 {
		assert.Equal(t, float64(want), d.Chart.X[i])
	}
}

func TestGeneratorNamingUnknownColumnFallsBack(t *testing.T) {
	gen := &stubGenerator{reply: `{"chart_type":"bar","x_column":"nope","y_column":"also_nope"}`}
	tbl := &warehouse.Table{
		Columns: []string{"d", "v", "w"},
		Rows:    [][]any{{"2026-02-08", float64(1), float64(2)}, {"2026-02-09", float64(3), float64(4)}},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT d, v, w FROM t GROUP BY 1", "stuff", "data_query")
	assert.Equal(t, "table", d.VisualType)
	assert.Equal(t, 1, gen.calls)
}

func TestFunnelAlwaysDelegates(t *testing.T) {
	gen := &stubGenerator{reply: `{"chart_type":"bar","x_column":"stage","y_column":"users","title":"Signup Funnel"}`}
	tbl := &warehouse.Table{
		Columns: []string{"stage", "users"},
		Rows: [][]any{
			{"registered", float64(1000)},
			{"deposited", float64(400)},
			{"traded", float64(150)},
		},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT ... UNION ALL ...", "signup funnel", "data_query")

	require.Equal(t, "chart", d.VisualType)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "funnel", d.Chart.ChartType, "funnel request overrides the generated type")
}

func TestNonFiniteValuesBecomeNullNotZero(t *testing.T) {
	gen := &stubGenerator{}
	tbl := &warehouse.Table{
		Columns: []string{"trade_date", "pnl"},
		Rows: [][]any{
			{"2026-02-07", math.NaN()},
			{"2026-02-08", float64(5)},
			{"2026-02-09", math.Inf(1)},
		},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT d, SUM(p) FROM t GROUP BY 1", "pnl trend", "data_query")

	require.Equal(t, "chart", d.VisualType)
	assert.Nil(t, d.Chart.Y[0])
	assert.Equal(t, float64(5), d.Chart.Y[1])
	assert.Nil(t, d.Chart.Y[2])
}

func TestGeneratorErrorDegradesToTable(t *testing.T) {
	gen := &stubGenerator{err: assert.AnError}
	tbl := &warehouse.Table{
		Columns: []string{"d", "v", "w"},
		Rows:    [][]any{{"2026-02-08", float64(1), float64(2)}, {"2026-02-09", float64(3), float64(4)}},
	}
	d := testSelector(gen).DetermineFormat(context.Background(), tbl, "SELECT d, v, w FROM t GROUP BY 1", "stuff", "data_query")
	assert.Equal(t, "table", d.VisualType)
}

func TestChartTitleKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("统计最近七天的交易量", 20)
	title := chartTitle(long)
	assert.True(t, utf8.ValidString(title))
	assert.Len(t, []rune(title), 80)

	assert.Equal(t, "比特币交易量", chartTitle("比特币交易量"))
	assert.Equal(t, "Volume trend", chartTitle("volume trend"))
	assert.Equal(t, "Data Visualization", chartTitle("  "))
}
