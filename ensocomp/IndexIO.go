package ensocomp

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
)

const loggerName = "ensocomp"

// 指数テーブルの列名
type IndexColumns struct {
	Year  string `yaml:"year"`  // 年
	Month string `yaml:"month"` // 月 (1-12)
	Value string `yaml:"value"` // 指数値
}

// CPCの detrend.nino34.ascii.txt の列名
func DefaultIndexColumns() IndexColumns {
	return IndexColumns{Year: "YR", Month: "MON", Value: "TOTAL"}
}

// 月別の気候指数 (Niño 3.4 など)
type IndexTable struct {
	df     dataframe.DataFrame
	cols   IndexColumns
	lookup map[YearMonth]float64
}

// """指数テーブルを読み込みます。URLの場合はキャッシュディレクトリにダウンロードします。
// Args:
//
//	src(string): ファイルパスまたは http(s) URL。".gz" は展開して読み込む
//	cols(IndexColumns): 年・月・値の列名
//	cacheDir(string): ダウンロードしたファイルの格納ディレクトリ
//
// Returns:
//
//	*IndexTable: 読み込んだ指数テーブル
//
// """
func LoadIndexTable(src string, cols IndexColumns, cacheDir string) (*IndexTable, error) {
	logger := logging.GetLogger(loggerName)

	localPath := src
	if isURL(src) {
		var err error
		localPath, err = fetchToCache(src, cacheDir)
		if err != nil {
			return nil, err
		}
	}

	logger.Infof("指数ファイル読み込み: %s", localPath)
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "index table %s", localPath)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(localPath, ".gz") {
		gf, gerr := gzip.NewReader(f)
		if gerr != nil {
			return nil, errors.Wrapf(gerr, "index table %s", localPath)
		}
		defer gf.Close()
		r = gf
	}

	t, err := ReadIndexTable(r, cols)
	if err != nil {
		return nil, errors.Wrapf(err, "index table %s (expected whitespace-delimited columns %s %s %s)",
			localPath, cols.Year, cols.Month, cols.Value)
	}
	logger.Infof("指数読み込み完了 %d行", t.Len())
	return t, nil
}

// 空白区切りのテーブルを読み込みます。先頭の空でない行をヘッダーとします。
func ReadIndexTable(r io.Reader, cols IndexColumns) (*IndexTable, error) {
	records := [][]string{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(records) > 0 && len(fields) != len(records[0]) {
			return nil, errors.Errorf("line %d: %d fields, header has %d", lineNo, len(fields), len(records[0]))
		}
		records = append(records, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read")
	}
	if len(records) < 2 {
		return nil, errors.New("no data rows")
	}

	raw := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	).Select([]string{cols.Year, cols.Month, cols.Value})
	if raw.Err != nil {
		return nil, errors.Wrap(raw.Err, "columns")
	}

	n := raw.Nrow()
	years := make([]int, n)
	months := make([]int, n)
	values := make([]float64, n)
	lookup := make(map[YearMonth]float64, n)

	yr := raw.Col(cols.Year).Records()
	mon := raw.Col(cols.Month).Records()
	val := raw.Col(cols.Value).Records()
	for i := 0; i < n; i++ {
		// ヘッダー行の次が1行目
		row := i + 1
		y, err := strconv.Atoi(yr[i])
		if err != nil {
			return nil, errors.Errorf("row %d: %s=%q is not an integer", row, cols.Year, yr[i])
		}
		m, err := strconv.Atoi(mon[i])
		if err != nil {
			return nil, errors.Errorf("row %d: %s=%q is not an integer", row, cols.Month, mon[i])
		}
		if m < 1 || m > 12 {
			return nil, errors.Errorf("row %d: month %d out of range 1-12", row, m)
		}
		v, err := strconv.ParseFloat(val[i], 64)
		if err != nil {
			return nil, errors.Errorf("row %d: %s=%q is not a number", row, cols.Value, val[i])
		}

		key := YearMonth{Year: y, Month: m}
		if _, dup := lookup[key]; dup {
			return nil, errors.Errorf("row %d: duplicated %s", row, key)
		}
		lookup[key] = v
		years[i] = y
		months[i] = m
		values[i] = v
	}

	df := dataframe.New(
		series.New(years, series.Int, cols.Year),
		series.New(months, series.Int, cols.Month),
		series.New(values, series.Float, cols.Value),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "dataframe")
	}

	return &IndexTable{df: df, cols: cols, lookup: lookup}, nil
}

// 行数
func (t *IndexTable) Len() int {
	return t.df.Nrow()
}

// 年月 ym の値
func (t *IndexTable) Value(ym YearMonth) (float64, bool) {
	v, ok := t.lookup[ym]
	return v, ok
}

// 開始年 start から終了年 end までの12月の年をテーブルの並び順で返します。
func (t *IndexTable) DecemberYears(start int, end int) ([]int, error) {
	dec := t.df.
		Filter(dataframe.F{Colname: t.cols.Month, Comparator: series.Eq, Comparando: 12}).
		Filter(dataframe.F{Colname: t.cols.Year, Comparator: series.GreaterEq, Comparando: start}).
		Filter(dataframe.F{Colname: t.cols.Year, Comparator: series.LessEq, Comparando: end})
	if dec.Err != nil {
		return nil, errors.Wrap(dec.Err, "select December rows")
	}
	if dec.Nrow() == 0 {
		return []int{}, nil
	}
	years, err := dec.Col(t.cols.Year).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "column %s", t.cols.Year)
	}
	return years, nil
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// URL src をキャッシュディレクトリ cacheDir に保存してそのパスを返します。
// 既にキャッシュがある場合はダウンロードしません。
func fetchToCache(src string, cacheDir string) (string, error) {
	logger := logging.GetLogger(loggerName)

	if err := os.MkdirAll(cacheDir, os.ModePerm); err != nil {
		return "", errors.Wrapf(err, "cache dir %s", cacheDir)
	}
	save_path := filepath.Join(cacheDir, path.Base(src))
	if fileExists(save_path) {
		logger.Debugf("キャッシュ使用: %s", save_path)
		return save_path, nil
	}

	logger.Infof("ダウンロード %s => %s", src, save_path)
	resp, err := http.Get(src)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", src)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("download %s: %s", src, resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", src)
	}

	// 途中で失敗したファイルをキャッシュとして残さない
	tmp := save_path + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, save_path); err != nil {
		return "", errors.Wrapf(err, "rename %s", tmp)
	}
	return save_path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// 年月
type YearMonth struct {
	Year  int
	Month int
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// 翌月
func (ym YearMonth) Next() YearMonth {
	if ym.Month == 12 {
		return YearMonth{Year: ym.Year + 1, Month: 1}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}
