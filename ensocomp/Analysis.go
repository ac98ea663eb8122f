package ensocomp

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// 進捗の通知
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

// 解析結果
type Analysis struct {
	Series *DJFSeries       //DJF系列と位相
	Result *CompositeResult //コンポジットの差と有意確率
}

// """読み込み済みの指数と降水量からコンポジット解析を行います。
// Args:
//
//	index(*IndexTable): Niño 3.4 指数
//	field(*PrecipField): 月別の格子点降水量
//	cfg(Config): 設定 (StartYear, EndYear, Threshold を使用)
//	progress(Progress): 進捗の通知先。nil可
//
// Returns:
//
//	*Analysis: DJF系列とコンポジットの結果
//
// """
func Analyze(index *IndexTable, field *PrecipField, cfg Config, progress Progress) (*Analysis, error) {
	logger := logging.GetLogger(loggerName)

	series, err := ComputeDJFSeries(index, cfg.StartYear, cfg.EndYear)
	if err != nil {
		return nil, err
	}
	if err := series.Normalize(); err != nil {
		return nil, err
	}
	series.Classify(cfg.Threshold)

	posYears := series.YearsOf(Positive)
	negYears := series.YearsOf(Negative)
	if len(posYears) < 2 || len(negYears) < 2 {
		logger.Warnf("構成年が2年未満の位相があるため p値は NaN になります (正:%d 負:%d)", len(posYears), len(negYears))
	}

	season := field.ExtractSeasons(cfg.StartYear, cfg.EndYear)
	checkAnchors(series, season)

	if progress != nil {
		progress.Start(len(posYears) + len(negYears))
		defer progress.Finish()
	}
	var tick func()
	if progress != nil {
		tick = progress.Increment
	}

	pos, err := BuildComposite(season, Positive, posYears, tick)
	if err != nil {
		return nil, err
	}
	neg, err := BuildComposite(season, Negative, negYears, tick)
	if err != nil {
		return nil, err
	}

	res, err := CompareGroups(field.Lat, field.Lon, pos, neg)
	if err != nil {
		return nil, err
	}

	logger.Infof("差の面積加重平均: %g", AreaWeightedMean(res.Diff, res.Lat))
	logger.Infof("有意 (p < %g) な面積の割合: %g", cfg.Map.Alpha, SignificantAreaFraction(res.P, res.Lat, cfg.Map.Alpha))

	return &Analysis{Series: series, Result: res}, nil
}

// 指数と降水量で12月の年が一致しているか確認し、一致しない年を警告します。
func checkAnchors(series *DJFSeries, field *PrecipField) {
	logger := logging.GetLogger(loggerName)
	for _, year := range series.Years {
		for _, ym := range DJFMonths(year) {
			if _, ok := field.StepOf(ym); !ok {
				logger.Warnf("降水量に %s がありません (DJF %d)", ym, year)
				break
			}
		}
	}
}

// 解析の実行
type Runner struct {
	Config   Config
	Stdout   io.Writer //位相の年の出力先
	Progress Progress  //nil可
}

// 指数と降水量を読み込み、解析して地図と指定された出力ファイルを保存します。
func (r *Runner) Run() (*Analysis, error) {
	logger := logging.GetLogger(loggerName)
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	index, err := LoadIndexTable(cfg.IndexPath, cfg.IndexColumns, cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	field, err := LoadPrecipField(cfg.FieldPath, cfg.FieldVariables)
	if err != nil {
		return nil, err
	}
	if cfg.Map.Label == "" {
		cfg.Map.Label = field.Units
	}

	a, err := Analyze(index, field, cfg, r.Progress)
	if err != nil {
		return nil, err
	}
	PrintPhaseYears(stdout, a.Series)

	if err := RenderMap(a.Result, cfg.Map, cfg.Output); err != nil {
		return nil, err
	}
	if err := r.export(a); err != nil {
		return nil, err
	}

	if cfg.Show {
		if err := ShowImage(cfg.Output); err != nil {
			logger.Warnf("地図を表示できません: %v", err)
		}
	}
	return a, nil
}

// 正・負の位相の年を出力します。
func PrintPhaseYears(w io.Writer, s *DJFSeries) {
	fmt.Fprintln(w, "Positive:")
	fmt.Fprintln(w, s.YearsOf(Positive))
	fmt.Fprintln(w, "Negative:")
	fmt.Fprintln(w, s.YearsOf(Negative))
}

func (r *Runner) export(a *Analysis) error {
	logger := logging.GetLogger(loggerName)
	cfg := r.Config

	if cfg.SeriesCSV != "" {
		var buf bytes.Buffer
		a.Series.ToCSV(&buf)
		if err := os.WriteFile(cfg.SeriesCSV, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", cfg.SeriesCSV)
		}
		logger.Infof("CSV保存: %s", cfg.SeriesCSV)
	}
	if cfg.CompositeCSV != "" {
		var buf bytes.Buffer
		a.Result.ToCSV(&buf)
		if err := os.WriteFile(cfg.CompositeCSV, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", cfg.CompositeCSV)
		}
		logger.Infof("CSV保存: %s", cfg.CompositeCSV)
	}

	grids := []struct {
		path  string
		field mat.Matrix
	}{
		{cfg.DiffGrid, a.Result.Diff},
		{cfg.PValueGrid, a.Result.P},
	}
	for _, g := range grids {
		if g.path == "" {
			continue
		}
		var buf bytes.Buffer
		if err := WriteASCIIGrid(&buf, g.field, a.Result.Lat, a.Result.Lon); err != nil {
			return errors.Wrapf(err, "%s", g.path)
		}
		if err := os.WriteFile(g.path, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(err, "write %s", g.path)
		}
		logger.Infof("グリッド保存: %s", g.path)
	}
	return nil
}
