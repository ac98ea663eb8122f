package ensocomp

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// 解析の設定
type Config struct {
	IndexPath      string         `yaml:"index"`           //Niño 3.4 指数ファイル (パスまたはURL)
	IndexColumns   IndexColumns   `yaml:"index_columns"`   //指数ファイルの列名
	FieldPath      string         `yaml:"field"`           //降水量 NetCDF ファイル
	FieldVariables FieldVariables `yaml:"field_variables"` //NetCDF の変数名
	CacheDir       string         `yaml:"cache_dir"`       //ダウンロードの格納ディレクトリ

	StartYear int     `yaml:"start_year"` //12月の開始年
	EndYear   int     `yaml:"end_year"`   //12月の終了年
	Threshold float64 `yaml:"threshold"`  //位相判定のしきい値 (標準化値)

	Output string     `yaml:"output"` //地図の保存ファイルパス (PNG)
	Map    MapOptions `yaml:"map"`
	Show   bool       `yaml:"show"` //画面があれば地図を表示する

	SeriesCSV    string `yaml:"series_csv"`    //DJF系列のCSV (空なら出力しない)
	CompositeCSV string `yaml:"composite_csv"` //格子点ごとの結果のCSV (空なら出力しない)
	DiffGrid     string `yaml:"diff_grid"`     //差の ESRI ASCII グリッド (空なら出力しない)
	PValueGrid   string `yaml:"pvalue_grid"`   //p値の ESRI ASCII グリッド (空なら出力しない)
}

// 既定値
func DefaultConfig() Config {
	return Config{
		IndexPath:      "/data/zhuowang/a/zhuowang/ATMS491/Data/detrend.nino34.ascii.txt",
		IndexColumns:   DefaultIndexColumns(),
		FieldPath:      "/data/zhuowang/b/zhuowang/Data/GPCP/precip.mon.mean.nc",
		FieldVariables: DefaultFieldVariables(),
		CacheDir:       ".ensocomp_cache",
		StartYear:      1979,
		EndYear:        2008,
		Threshold:      1.0,
		Output:         "precip_comp_diff_DJF.png",
		Map:            DefaultMapOptions(),
		Show:           true,
	}
}

// YAML ファイルを読み込みます。ファイルにない項目は既定値になります。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch {
	case cfg.IndexPath == "":
		return errors.New("index file is not set")
	case cfg.FieldPath == "":
		return errors.New("precipitation file is not set")
	case cfg.Output == "":
		return errors.New("output file is not set")
	case cfg.StartYear > cfg.EndYear:
		return errors.Errorf("start year %d is after end year %d", cfg.StartYear, cfg.EndYear)
	case cfg.Threshold <= 0:
		return errors.Errorf("threshold %g must be positive", cfg.Threshold)
	case cfg.Map.Alpha <= 0 || cfg.Map.Alpha >= 1:
		return errors.Errorf("significance level %g must be in (0, 1)", cfg.Map.Alpha)
	case cfg.Map.VMin >= cfg.Map.VMax:
		return errors.Errorf("color range [%g, %g] is empty", cfg.Map.VMin, cfg.Map.VMax)
	case cfg.Map.Width <= 0 || cfg.Map.Height <= 0 || cfg.Map.DPI <= 0:
		return errors.New("image size must be positive")
	}
	return nil
}
