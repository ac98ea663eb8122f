package ensocomp

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 年月ごとの値 value(year, month) から指数テーブルを作成
func makeIndexTable(t *testing.T, firstYear int, lastYear int, value func(y, m int) float64) *IndexTable {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("YR   MON  TOTAL\n")
	for y := firstYear; y <= lastYear; y++ {
		for m := 1; m <= 12; m++ {
			sb.WriteString(fmt.Sprintf("%d %d %v\n", y, m, value(y, m)))
		}
	}
	table, err := ReadIndexTable(strings.NewReader(sb.String()), DefaultIndexColumns())
	require.NoError(t, err)
	return table
}

func Test_DJFMonths(t *testing.T) {
	assert.Equal(t,
		[3]YearMonth{{1997, 12}, {1998, 1}, {1998, 2}},
		DJFMonths(1997),
	)
}

// DJF平均は12月・翌年1月・翌年2月の3か月の平均
func Test_ComputeDJFSeries(t *testing.T) {
	table := makeIndexTable(t, 1979, 1983, func(y, m int) float64 {
		return float64(y*100 + m)
	})

	s, err := ComputeDJFSeries(table, 1979, 1982)
	require.NoError(t, err)

	assert.Equal(t, []int{1979, 1980, 1981, 1982}, s.Years)
	for i, y := range s.Years {
		want := (float64(y*100+12) + float64((y+1)*100+1) + float64((y+1)*100+2)) / 3
		assert.InDelta(t, want, s.Raw[i], 1e-9)
	}
}

// 翌年の1月・2月がない年は除外
func Test_ComputeDJFSeries_IncompleteWindow(t *testing.T) {
	table := makeIndexTable(t, 1979, 1981, func(y, m int) float64 { return 1 })

	s, err := ComputeDJFSeries(table, 1979, 2008)
	require.NoError(t, err)
	assert.Equal(t, []int{1979, 1980}, s.Years)
}

func Test_ComputeDJFSeries_NoYear(t *testing.T) {
	table := makeIndexTable(t, 1979, 1981, func(y, m int) float64 { return 1 })

	_, err := ComputeDJFSeries(table, 1990, 2000)
	assert.Error(t, err)
}

// 標準化後の母平均は0、母標準偏差は1
func Test_Normalize(t *testing.T) {
	s := &DJFSeries{
		Years: []int{1, 2, 3, 4, 5, 6},
		Raw:   []float64{0.3, -1.2, 2.5, 0.0, -0.7, 1.9},
	}
	require.NoError(t, s.Normalize())

	var mean float64
	for _, z := range s.Normalized {
		mean += z
	}
	mean /= float64(len(s.Normalized))

	var variance float64
	for _, z := range s.Normalized {
		variance += (z - mean) * (z - mean)
	}
	variance /= float64(len(s.Normalized))

	assert.InDelta(t, 0.0, mean, 1e-12)
	assert.InDelta(t, 1.0, math.Sqrt(variance), 1e-12)
}

// 母標準偏差 (N で除す) を使う
func Test_Normalize_Population(t *testing.T) {
	s := &DJFSeries{Years: []int{1, 2}, Raw: []float64{1, 3}}
	require.NoError(t, s.Normalize())

	// 平均2, 母標準偏差1
	assert.InDelta(t, -1.0, s.Normalized[0], 1e-12)
	assert.InDelta(t, 1.0, s.Normalized[1], 1e-12)
}

// 分散が0の系列は NaN になり、すべて中立に分類される
func Test_Normalize_ZeroVariance(t *testing.T) {
	s := &DJFSeries{Years: []int{1, 2, 3}, Raw: []float64{0.5, 0.5, 0.5}}
	require.NoError(t, s.Normalize())

	require.Len(t, s.Normalized, 3)
	for _, z := range s.Normalized {
		assert.True(t, math.IsNaN(z))
	}

	s.Classify(1.0)
	assert.Equal(t, []Phase{Neutral, Neutral, Neutral}, s.Phases)
	assert.Equal(t, []int{}, s.YearsOf(Positive))
	assert.Equal(t, []int{}, s.YearsOf(Negative))
}

// 各年はいずれか1つの位相に分類され、正と負は重ならない
func Test_Classify(t *testing.T) {
	s := &DJFSeries{
		Years:      []int{2000, 2001, 2002, 2003, 2004, 2005},
		Normalized: []float64{1.0, -1.0, 0.99, -0.99, 2.3, -1.7},
	}
	s.Classify(1.0)

	assert.Equal(t, []Phase{Positive, Negative, Neutral, Neutral, Positive, Negative}, s.Phases)
	assert.Equal(t, []int{2000, 2004}, s.YearsOf(Positive))
	assert.Equal(t, []int{2001, 2005}, s.YearsOf(Negative))
	assert.Equal(t, []int{2002, 2003}, s.YearsOf(Neutral))

	pos := map[int]bool{}
	for _, y := range s.YearsOf(Positive) {
		pos[y] = true
	}
	for _, y := range s.YearsOf(Negative) {
		assert.False(t, pos[y])
	}
	assert.Equal(t, len(s.Years),
		len(s.YearsOf(Positive))+len(s.YearsOf(Negative))+len(s.YearsOf(Neutral)))
}

func Test_Phase_String(t *testing.T) {
	assert.Equal(t, "positive", Positive.String())
	assert.Equal(t, "negative", Negative.String())
	assert.Equal(t, "neutral", Neutral.String())
}
