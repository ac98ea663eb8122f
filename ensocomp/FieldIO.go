package ensocomp

import (
	"math"
	"sort"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/hhkbp2/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// NetCDFファイルの変数名
type FieldVariables struct {
	Lat  string `yaml:"lat"`
	Lon  string `yaml:"lon"`
	Time string `yaml:"time"`
	Data string `yaml:"data"`
}

// GPCP/CMAP precip.mon.mean.nc の変数名
func DefaultFieldVariables() FieldVariables {
	return FieldVariables{Lat: "lat", Lon: "lon", Time: "time", Data: "precip"}
}

// 月別の格子点降水量
type PrecipField struct {
	Lat   []float64    //緯度 (nlat)
	Lon   []float64    //経度 (nlon)
	Times []CFDate     //各時刻の日時 (ntime)
	Steps []*mat.Dense //各時刻の格子 nlat x nlon
	Units string       //降水量の単位 (mm/day 等)

	index map[YearMonth]int
}

// 格子の大きさ
func (f *PrecipField) Dims() (nlat int, nlon int) {
	return len(f.Lat), len(f.Lon)
}

// 年月 ym の時刻番号
func (f *PrecipField) StepOf(ym YearMonth) (int, bool) {
	if f.index == nil {
		f.index = make(map[YearMonth]int, len(f.Times))
		for i, t := range f.Times {
			f.index[t.YearMonth()] = i
		}
	}
	i, ok := f.index[ym]
	return i, ok
}

// 開始年 start の12月から終了年 end の翌年2月までを抜き出して新しい構造体を作成します。
func (f *PrecipField) ExtractSeasons(start int, end int) *PrecipField {
	from := YearMonth{Year: start, Month: 12}
	to := YearMonth{Year: end + 1, Month: 2}
	start_index := sort.Search(len(f.Times), func(i int) bool {
		return !ymBefore(f.Times[i].YearMonth(), from)
	})
	end_index := sort.Search(len(f.Times), func(i int) bool {
		return ymBefore(to, f.Times[i].YearMonth())
	})
	return &PrecipField{
		Lat:   f.Lat,
		Lon:   f.Lon,
		Times: append([]CFDate{}, f.Times[start_index:end_index]...),
		Steps: append([]*mat.Dense{}, f.Steps[start_index:end_index]...),
		Units: f.Units,
	}
}

func ymBefore(a YearMonth, b YearMonth) bool {
	return a.Year < b.Year || (a.Year == b.Year && a.Month < b.Month)
}

// """NetCDFファイルから月別の格子点降水量を読み込みます。
// Args:
//
//	path(string): NetCDFファイルのパス
//	vars(FieldVariables): 緯度・経度・時刻・降水量の変数名
//
// Returns:
//
//	*PrecipField: 降水量 (time, lat, lon) と座標
//
// Notes:
//
//	時刻は time 変数の units と calendar 属性で変換します。
//	_FillValue, missing_value は NaN に置き換えます。
//
// """
func LoadPrecipField(path string, vars FieldVariables) (*PrecipField, error) {
	logger := logging.GetLogger(loggerName)
	logger.Infof("NetCDFファイル読み込み: %s", path)

	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = nc.Close() }()

	lat, err := readCoordVar(nc, vars.Lat)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Lat)
	}
	lon, err := readCoordVar(nc, vars.Lon)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Lon)
	}

	timeVar, err := nc.Var(vars.Time)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Time)
	}
	timeValues, err := readCoordVar(nc, vars.Time)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Time)
	}
	units, ok := readTextAttr(timeVar, "units")
	if !ok {
		return nil, errors.Errorf("%s: variable %q has no units attribute", path, vars.Time)
	}
	calendarName, _ := readTextAttr(timeVar, "calendar")
	times, err := DecodeTimes(timeValues, units, calendarName)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Time)
	}
	for i := 1; i < len(times); i++ {
		if !ymBefore(times[i-1].YearMonth(), times[i].YearMonth()) {
			return nil, errors.Errorf("%s: time axis is not monthly increasing at %s -> %s", path, times[i-1], times[i])
		}
	}

	dataVar, err := nc.Var(vars.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Data)
	}
	nt, nlat, nlon := len(times), len(lat), len(lon)
	if err := checkDims(dataVar, nt, nlat, nlon); err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q (expected %s(time=%d, lat=%d, lon=%d))",
			path, vars.Data, vars.Data, nt, nlat, nlon)
	}

	flat, err := readFloat64s(dataVar, nt*nlat*nlon)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: variable %q", path, vars.Data)
	}
	unpack(dataVar, flat)

	field := &PrecipField{
		Lat:   lat,
		Lon:   lon,
		Times: times,
		Steps: make([]*mat.Dense, nt),
	}
	field.Units, _ = readTextAttr(dataVar, "units")

	size := nlat * nlon
	for t := 0; t < nt; t++ {
		field.Steps[t] = mat.NewDense(nlat, nlon, flat[t*size:(t+1)*size])
	}

	if nt > 0 {
		logger.Infof("降水量読み込み完了 %d x %d x %d (%s - %s)", nt, nlat, nlon, times[0], times[nt-1])
	}
	return field, nil
}

func readCoordVar(nc netcdf.Dataset, name string) ([]float64, error) {
	v, err := nc.Var(name)
	if err != nil {
		return nil, err
	}
	dims, err := v.Dims()
	if err != nil {
		return nil, errors.Wrap(err, "dimensions")
	}
	if len(dims) != 1 {
		return nil, errors.Errorf("expected 1D variable, got %dD", len(dims))
	}
	n, err := dims[0].Len()
	if err != nil {
		return nil, errors.Wrap(err, "dimension length")
	}
	if n == 0 {
		return nil, errors.New("empty coordinate")
	}
	return readFloat64s(v, int(n))
}

func checkDims(v netcdf.Var, nt, nlat, nlon int) error {
	dims, err := v.Dims()
	if err != nil {
		return errors.Wrap(err, "dimensions")
	}
	if len(dims) != 3 {
		return errors.Errorf("expected 3D data, got %dD", len(dims))
	}
	want := [3]int{nt, nlat, nlon}
	for i, d := range dims {
		n, err := d.Len()
		if err != nil {
			return errors.Wrap(err, "dimension length")
		}
		if int(n) != want[i] {
			name, _ := d.Name()
			return errors.Errorf("dimension %d (%s) has length %d", i, name, n)
		}
	}
	return nil
}

// 変数の型に応じて読み込み float64 に変換
func readFloat64s(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, errors.Wrap(err, "type")
	}
	out := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, errors.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

// 欠損値を NaN にし、scale_factor と add_offset を適用
func unpack(v netcdf.Var, data []float64) {
	fills := []float64{}
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := readNumberAttr(v, name); ok {
			fills = append(fills, fv)
		}
	}
	scale, hasScale := readNumberAttr(v, "scale_factor")
	offset, hasOffset := readNumberAttr(v, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}

	for i, val := range data {
		for _, fv := range fills {
			if val == fv {
				val = math.NaN()
				break
			}
		}
		data[i] = val*scale + offset
	}
}

func readNumberAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	bufs := make([]int16, 1)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

func readTextAttr(v netcdf.Var, name string) (string, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return strings.TrimRight(string(buf), "\x00"), true
}
