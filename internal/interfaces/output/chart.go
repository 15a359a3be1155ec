package output

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vicanso/go-charts/v2"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/io"
)

// Sink is anything that accepts a symbol's rows in one batch
type Sink interface {
	Write(ctx context.Context, symbol string, rows []walk.Row) error
}

// ChartSink forwards rows to Next and then renders a <symbol>.png fan chart of the
// 5th, 50th and 95th percentile paths under Dir. Chart failures are logged only.
type ChartSink struct {
	Next Sink
	Dir  string
}

// NewChartSink wraps next
func NewChartSink(next Sink, dir string) *ChartSink {
	return &ChartSink{Next: next, Dir: dir}
}

// Write implements Sink
func (s *ChartSink) Write(ctx context.Context, symbol string, rows []walk.Row) error {
	if err := s.Next.Write(ctx, symbol, rows); err != nil {
		return err
	}

	img, err := RenderFan(symbol, rows)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Fan chart skipped")
		return nil
	}
	path := filepath.Join(s.Dir, symbol+".png")
	if err := io.WriteFileAtomic(path, img); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Fan chart not written")
	}
	return nil
}

// RenderFan draws the percentile bands of rows as a PNG
func RenderFan(symbol string, rows []walk.Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to chart")
	}
	paths := make([][]float64, len(rows))
	for i, r := range rows {
		paths[i] = r.Prices
	}

	bands := walk.Bands(paths, 0.05, 0.5, 0.95)
	values := make([][]float64, len(bands))
	names := make([]string, len(bands))
	for i, b := range bands {
		values[i] = b.Prices
		names[i] = "p" + strconv.Itoa(int(b.Quantile*100+0.5))
	}

	days := make([]string, len(paths[0]))
	for i := range days {
		days[i] = strconv.Itoa(i)
	}

	painter, err := charts.LineRender(values,
		charts.TitleTextOptionFunc(strings.ToUpper(symbol)+" • "+strconv.Itoa(len(rows))+" paths"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: days, BoundaryGap: charts.FalseFlag(), SplitNumber: 12}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return painter.Bytes()
}
