package ensocomp

import (
	"math"

	"github.com/hhkbp2/go-logging"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ENSOの位相
type Phase int

const (
	Neutral Phase = iota
	Positive
	Negative
)

func (p Phase) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "neutral"
	}
}

// 12月を起点とする冬季(DJF)の年系列
type DJFSeries struct {
	Years      []int     //12月の年 (DJFは Years[i]年12月, 翌年1月, 翌年2月)
	Raw        []float64 //DJF平均値
	Normalized []float64 //標準化したDJF平均値
	Phases     []Phase   //位相の分類結果
}

// 12月の年 year に対応する DJF の3か月 (12月, 翌年1月, 翌年2月)
func DJFMonths(year int) [3]YearMonth {
	dec := YearMonth{Year: year, Month: 12}
	jan := dec.Next()
	return [3]YearMonth{dec, jan, jan.Next()}
}

// """指数テーブルから開始年 start から終了年 end までの DJF 平均の年系列を作成します。
// Args:
//
//	t(*IndexTable): 月別の指数テーブル
//	start(int): 12月の開始年
//	end(int): 12月の終了年
//
// Returns:
//
//	*DJFSeries: DJF 平均の年系列 (標準化・分類は未実施)
//
// Notes:
//
//	3か月が揃わない年は除外します。
//
// """
func ComputeDJFSeries(t *IndexTable, start int, end int) (*DJFSeries, error) {
	logger := logging.GetLogger(loggerName)

	decembers, err := t.DecemberYears(start, end)
	if err != nil {
		return nil, err
	}

	s := &DJFSeries{Years: []int{}, Raw: []float64{}}
	var window [3]float64
	for _, year := range decembers {
		complete := true
		for i, ym := range DJFMonths(year) {
			v, ok := t.Value(ym)
			if !ok {
				logger.Warnf("DJF %d: %s の値がないため除外します", year, ym)
				complete = false
				break
			}
			window[i] = v
		}
		if !complete {
			continue
		}
		s.Years = append(s.Years, year)
		s.Raw = append(s.Raw, stat.Mean(window[:], nil))
	}

	if len(s.Years) == 0 {
		return nil, errors.Errorf("no complete DJF window for December %d-%d", start, end)
	}
	logger.Infof("DJF系列 %d年分 (%d-%d)", len(s.Years), s.Years[0], s.Years[len(s.Years)-1])
	return s, nil
}

// 母平均・母標準偏差 (N で除す) で標準化します。
// 分散が0の場合は標準化値をすべて NaN とし、どの年も正・負に分類されません。
func (s *DJFSeries) Normalize() error {
	logger := logging.GetLogger(loggerName)

	data := stats.Float64Data(s.Raw)
	xm, err := stats.Mean(data)
	if err != nil {
		return errors.Wrap(err, "DJF mean")
	}
	std, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return errors.Wrap(err, "DJF standard deviation")
	}
	s.Normalized = make([]float64, len(s.Raw))
	if std == 0 {
		logger.Warnf("DJF系列の分散が0のため標準化値は NaN になります")
		for i := range s.Normalized {
			s.Normalized[i] = math.NaN()
		}
		return nil
	}

	for i, v := range s.Raw {
		s.Normalized[i] = (v - xm) / std
	}
	return nil
}

// 標準化値が threshold 以上を正, -threshold 以下を負, それ以外を中立に分類します。
func (s *DJFSeries) Classify(threshold float64) {
	s.Phases = make([]Phase, len(s.Normalized))
	for i, z := range s.Normalized {
		s.Phases[i] = classify(z, threshold)
	}
}

func classify(z float64, threshold float64) Phase {
	switch {
	case z >= threshold:
		return Positive
	case z <= -threshold:
		return Negative
	default:
		return Neutral
	}
}

// 位相 p に分類された年 (系列の並び順)
func (s *DJFSeries) YearsOf(p Phase) []int {
	years := []int{}
	for i, phase := range s.Phases {
		if phase == p {
			years = append(years, s.Years[i])
		}
	}
	return years
}
