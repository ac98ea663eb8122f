// ENSO composite analysis of DJF precipitation
package main

import (
	"fmt"
	"math"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cheggaaa/pb"
	"github.com/hhkbp2/go-logging"
	"github.com/udawtr/ensocomp-go/ensocomp"
)

// 年の引数が指定されていないことを表す値
const unsetYear = math.MinInt32

func main() {
	// コマンドライン引数の処理
	parser := argparse.NewParser("ensocomp", "ENSO composite difference of DJF precipitation with Welch's t-test")

	config := parser.String("c", "config", &argparse.Options{
		Default: "",
		Help:    "設定ファイル (YAML)"})

	index := parser.String("", "index", &argparse.Options{
		Default: "",
		Help:    "Niño 3.4 指数ファイル (YR MON TOTAL)。http(s) URL も可"})

	field := parser.String("", "field", &argparse.Options{
		Default: "",
		Help:    "月別降水量の NetCDF ファイル (lat, lon, time, precip)"})

	output := parser.String("o", "output", &argparse.Options{
		Default: "",
		Help:    "地図の保存ファイルパス (PNG)"})

	startYear := parser.Int("", "start_year", &argparse.Options{
		Default: unsetYear,
		Help:    "12月の開始年 (既定 1979)"})

	endYear := parser.Int("", "end_year", &argparse.Options{
		Default: unsetYear,
		Help:    "12月の終了年 (既定 2008)"})

	threshold := parser.Float("", "threshold", &argparse.Options{
		Default: math.NaN(),
		Help:    "位相判定のしきい値 (既定 1.0)"})

	alpha := parser.Float("", "alpha", &argparse.Options{
		Default: math.NaN(),
		Help:    "有意水準 (既定 0.05)"})

	vmin := parser.Float("", "vmin", &argparse.Options{
		Default: math.NaN(),
		Help:    "カラースケールの下限 (既定 -10)"})

	vmax := parser.Float("", "vmax", &argparse.Options{
		Default: math.NaN(),
		Help:    "カラースケールの上限 (既定 10)"})

	coastline := parser.String("", "coastline", &argparse.Options{
		Default: "",
		Help:    "海岸線の GeoJSON ファイル (既定は内蔵の Natural Earth 1:110m)"})

	seriesCSV := parser.String("", "series_csv", &argparse.Options{
		Default: "",
		Help:    "DJF系列の保存ファイルパス (CSV)"})

	compositeCSV := parser.String("", "composite_csv", &argparse.Options{
		Default: "",
		Help:    "格子点ごとの結果の保存ファイルパス (CSV)"})

	diffGrid := parser.String("", "diff_grid", &argparse.Options{
		Default: "",
		Help:    "差の保存ファイルパス (ESRI ASCII グリッド)"})

	pvalueGrid := parser.String("", "pvalue_grid", &argparse.Options{
		Default: "",
		Help:    "p値の保存ファイルパス (ESRI ASCII グリッド)"})

	cacheDir := parser.String("", "cache_dir", &argparse.Options{
		Default: "",
		Help:    "ダウンロードした指数ファイルの格納ディレクトリ"})

	noShow := parser.Flag("", "no_show", &argparse.Options{
		Help: "地図を画面に表示しない"})

	progress := parser.Flag("", "progress", &argparse.Options{
		Help: "コンポジットの進捗を表示する"})

	log := parser.Selector("", "log", []string{"DEBUG", "INFO", "WARN", "ERROR", "CRITICAL"}, &argparse.Options{
		Default: "ERROR",
		Help:    "ログレベルの設定"})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	// ログレベル設定
	logger := logging.GetLogger("ensocomp")
	if *log == "DEBUG" {
		logger.SetLevel(logging.LevelDebug)
	} else if *log == "INFO" {
		logger.SetLevel(logging.LevelInfo)
	} else if *log == "WARN" {
		logger.SetLevel(logging.LevelWarn)
	} else if *log == "ERROR" {
		logger.SetLevel(logging.LevelError)
	} else if *log == "CRITICAL" {
		logger.SetLevel(logging.LevelCritical)
	}

	// 設定: 既定値 < 設定ファイル < コマンドライン引数
	cfg := ensocomp.DefaultConfig()
	if *config != "" {
		cfg, err = ensocomp.LoadConfig(*config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	setString(&cfg.IndexPath, *index)
	setString(&cfg.FieldPath, *field)
	setString(&cfg.Output, *output)
	setString(&cfg.Map.Coastline, *coastline)
	setString(&cfg.SeriesCSV, *seriesCSV)
	setString(&cfg.CompositeCSV, *compositeCSV)
	setString(&cfg.DiffGrid, *diffGrid)
	setString(&cfg.PValueGrid, *pvalueGrid)
	setString(&cfg.CacheDir, *cacheDir)
	setInt(&cfg.StartYear, *startYear)
	setInt(&cfg.EndYear, *endYear)
	setFloat(&cfg.Threshold, *threshold)
	setFloat(&cfg.Map.Alpha, *alpha)
	setFloat(&cfg.Map.VMin, *vmin)
	setFloat(&cfg.Map.VMax, *vmax)
	if *noShow {
		cfg.Show = false
	}

	runner := ensocomp.Runner{Config: cfg, Stdout: os.Stdout}
	if *progress {
		runner.Progress = &progressBar{}
	}

	if _, err := runner.Run(); err != nil {
		logger.Errorf("%+v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("計算が終了しました")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != unsetYear {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if !math.IsNaN(v) {
		*dst = v
	}
}

// コンポジットの進捗バー
type progressBar struct {
	bar *pb.ProgressBar
}

func (p *progressBar) Start(total int) {
	p.bar = pb.New(total)
	p.bar.ShowPercent = true
	p.bar.ShowCounters = true
	p.bar.Output = os.Stderr
	p.bar.Start()
}

func (p *progressBar) Increment() {
	p.bar.Increment()
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}
