package ensocomp

import (
	_ "embed"
	"image/color"
	"math"
	"os"
	"os/exec"
	"runtime"
	"sort"

	"github.com/hhkbp2/go-logging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Natural Earth 1:110m の海岸線 (パブリックドメイン)
//
//go:embed data/ne_110m_coastline.geojson
var naturalEarthCoastline []byte

// 地図の描画設定
type MapOptions struct {
	Title     string  `yaml:"title"`
	Label     string  `yaml:"label"`     //カラーバーの見出し
	VMin      float64 `yaml:"vmin"`      //カラースケールの下限
	VMax      float64 `yaml:"vmax"`      //カラースケールの上限
	Alpha     float64 `yaml:"alpha"`     //有意水準の等値線
	Coastline string  `yaml:"coastline"` //海岸線 GeoJSON (空なら内蔵の Natural Earth 1:110m)
	Width     float64 `yaml:"width"`     //インチ
	Height    float64 `yaml:"height"`    //インチ
	DPI       int     `yaml:"dpi"`
}

func DefaultMapOptions() MapOptions {
	return MapOptions{
		Title:  "Composite Difference: CMAP Precip. (DJF)",
		Label:  "mm/day",
		VMin:   -10,
		VMax:   10,
		Alpha:  0.05,
		Width:  10,
		Height: 6,
		DPI:    150,
	}
}

// """コンポジット差の地図を PNG で保存します。
// Args:
//
//	res(*CompositeResult): コンポジット解析の結果
//	opt(MapOptions): 描画設定
//	path(string): 保存ファイルパス
//
// Notes:
//
//	正距円筒図法, 経度 0-360 (中心 180)。
//	差は [VMin, VMax] に丸めて描画しますが、res の値は変更しません。
//	p 値は Alpha の1本の等値線のみ描画します。
//
// """
func RenderMap(res *CompositeResult, opt MapOptions, path string) error {
	logger := logging.GetLogger(loggerName)

	fig, err := newMapFigure(res, opt)
	if err != nil {
		return err
	}
	img := newMapCanvas(opt)
	fig.draw(draw.New(img))

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	logger.Infof("地図保存: %s", path)
	return nil
}

// 地図とカラーバー
type mapFigure struct {
	plot       *plot.Plot
	bar        *plot.Plot
	coastlines int  //海岸線の折れ線の数
	contour    bool //有意水準の等値線の有無
}

// 差のカラースケール (青が多雨)
func mapColorMap(opt MapOptions) palette.ColorMap {
	cm := palette.Reverse(moreland.SmoothBlueRed())
	cm.SetMax(opt.VMax)
	cm.SetMin(opt.VMin)
	return cm
}

func newMapCanvas(opt MapOptions) *vgimg.Canvas {
	w := vg.Length(opt.Width) * vg.Inch
	h := vg.Length(opt.Height) * vg.Inch
	return vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(opt.DPI))
}

func newMapFigure(res *CompositeResult, opt MapOptions) (*mapFigure, error) {
	logger := logging.GetLogger(loggerName)

	if opt.VMin >= opt.VMax {
		return nil, errors.Errorf("color range [%g, %g] is empty", opt.VMin, opt.VMax)
	}
	cm := mapColorMap(opt)
	fig := &mapFigure{plot: plot.New(), bar: plot.New()}

	p := fig.plot
	p.Title.Text = opt.Title

	// 差 (表示用に丸める)
	diff := newMapGrid(res.Lat, res.Lon, res.Diff, func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		return math.Max(opt.VMin, math.Min(opt.VMax, v))
	})
	heat := plotter.NewHeatMap(diff, cm.Palette(255))
	heat.Min = opt.VMin
	heat.Max = opt.VMax
	p.Add(heat)

	// 海岸線
	lines, err := loadCoastlines(opt.Coastline)
	if err != nil {
		return nil, err
	}
	for _, xy := range lines {
		l, err := plotter.NewLine(xy)
		if err != nil {
			return nil, errors.Wrap(err, "coastline")
		}
		l.LineStyle.Color = color.Gray{Y: 0x80}
		l.LineStyle.Width = vg.Points(1.25)
		p.Add(l)
	}
	fig.coastlines = len(lines)

	// 緯線・経線
	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 0x60}
	grid.Horizontal.Color = color.Gray{Y: 0x60}
	grid.Vertical.Dashes = []vg.Length{vg.Points(1), vg.Points(2)}
	grid.Horizontal.Dashes = []vg.Length{vg.Points(1), vg.Points(2)}
	p.Add(grid)

	// 有意水準
	pgrid := newMapGrid(res.Lat, res.Lon, res.P, func(v float64) float64 {
		if math.IsNaN(v) {
			return 1
		}
		return v
	})
	if hasFinite(res.P) {
		c := plotter.NewContour(pgrid, []float64{opt.Alpha}, solidPalette{color.Black})
		c.LineStyles = []draw.LineStyle{{Color: color.Black, Width: vg.Points(1)}}
		p.Add(c)
		fig.contour = true
	} else {
		logger.Warnf("p値がすべてNaNのため有意水準の等値線を描画しません")
	}

	p.X.Min, p.X.Max = 0, 360
	p.Y.Min, p.Y.Max = -90, 90
	p.X.Tick.Marker = plot.ConstantTicks(meridianTicks())
	p.Y.Tick.Marker = plot.ConstantTicks(parallelTicks())

	// カラーバー
	fig.bar.Add(&plotter.ColorBar{ColorMap: cm})
	fig.bar.HideY()
	fig.bar.X.Padding = 0
	fig.bar.X.Label.Text = opt.Label

	return fig, nil
}

// 上部に地図、下部15%にカラーバーを描画し、地図の描画領域を返します。
func (fig *mapFigure) draw(dc draw.Canvas) draw.Canvas {
	w := dc.Max.X - dc.Min.X
	h := dc.Max.Y - dc.Min.Y
	barH := h * 0.15

	top := dc
	top.Min.Y = dc.Min.Y + barH
	bottom := dc
	bottom.Max.Y = dc.Min.Y + barH
	bottom.Min.X = dc.Min.X + w*0.1
	bottom.Max.X = dc.Max.X - w*0.1

	fig.plot.Draw(top)
	fig.bar.Draw(bottom)
	return top
}

// 画面がある場合に画像を表示します。画面がない場合は何もしません。
func ShowImage(path string) error {
	logger := logging.GetLogger(loggerName)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			logger.Debugf("画面がないため表示しません")
			return nil
		}
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "show %s", path)
	}
	return cmd.Process.Release()
}

// 経度 0-360, 緯度昇順に並べ替えた格子 (plotter.GridXYZ)
type mapGrid struct {
	lon  []float64
	lat  []float64
	cols []int
	rows []int
	m    mat.Matrix
	z    func(float64) float64
}

func newMapGrid(lat []float64, lon []float64, m mat.Matrix, z func(float64) float64) *mapGrid {
	g := &mapGrid{
		lon:  make([]float64, len(lon)),
		lat:  make([]float64, len(lat)),
		cols: make([]int, len(lon)),
		rows: make([]int, len(lat)),
		m:    m,
		z:    z,
	}
	for i := range g.cols {
		g.cols[i] = i
	}
	for i := range g.rows {
		g.rows[i] = i
	}
	sort.SliceStable(g.cols, func(a, b int) bool {
		return normalizeLon360(lon[g.cols[a]]) < normalizeLon360(lon[g.cols[b]])
	})
	sort.SliceStable(g.rows, func(a, b int) bool {
		return lat[g.rows[a]] < lat[g.rows[b]]
	})
	for c, j := range g.cols {
		g.lon[c] = normalizeLon360(lon[j])
	}
	for r, i := range g.rows {
		g.lat[r] = lat[i]
	}
	return g
}

func (g *mapGrid) Dims() (c, r int)   { return len(g.cols), len(g.rows) }
func (g *mapGrid) Z(c, r int) float64 { return g.z(g.m.At(g.rows[r], g.cols[c])) }
func (g *mapGrid) X(c int) float64    { return g.lon[c] }
func (g *mapGrid) Y(r int) float64    { return g.lat[r] }

type solidPalette struct {
	c color.Color
}

func (p solidPalette) Colors() []color.Color {
	return []color.Color{p.c}
}

func hasFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// 経線 60度ごと
func meridianTicks() []plot.Tick {
	ticks := []plot.Tick{}
	for lon := 0.0; lon <= 360; lon += 60 {
		ticks = append(ticks, plot.Tick{Value: lon, Label: lonLabel(lon)})
	}
	return ticks
}

// 緯線 -80度から80度まで20度ごと
func parallelTicks() []plot.Tick {
	ticks := []plot.Tick{}
	for lat := -80.0; lat <= 80; lat += 20 {
		ticks = append(ticks, plot.Tick{Value: lat, Label: latLabel(lat)})
	}
	return ticks
}

// GeoJSON の線・面の境界を経度 0-360 の折れ線に変換します。
// path が空の場合は内蔵の Natural Earth 1:110m を使います。
// 経度 0 度をまたぐ箇所で線を分割します。
func loadCoastlines(path string) ([]plotter.XYs, error) {
	b := naturalEarthCoastline
	name := "Natural Earth 1:110m"
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "coastline %s", path)
		}
		name = path
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, errors.Wrapf(err, "coastline %s (expected GeoJSON FeatureCollection)", name)
	}
	lines := []plotter.XYs{}
	for _, f := range fc.Features {
		lines = appendGeometry(lines, f.Geometry)
	}
	return lines, nil
}

func appendGeometry(lines []plotter.XYs, g orb.Geometry) []plotter.XYs {
	switch g := g.(type) {
	case orb.LineString:
		lines = appendPath(lines, g)
	case orb.MultiLineString:
		for _, ls := range g {
			lines = appendPath(lines, ls)
		}
	case orb.Ring:
		lines = appendPath(lines, orb.LineString(g))
	case orb.Polygon:
		for _, r := range g {
			lines = appendPath(lines, orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			for _, r := range poly {
				lines = appendPath(lines, orb.LineString(r))
			}
		}
	case orb.Collection:
		for _, c := range g {
			lines = appendGeometry(lines, c)
		}
	}
	return lines
}

func appendPath(lines []plotter.XYs, ls orb.LineString) []plotter.XYs {
	seg := plotter.XYs{}
	prev := 0.0
	for _, pt := range ls {
		x := normalizeLon360(pt.Lon())
		if len(seg) > 0 && math.Abs(x-prev) > 180 {
			if len(seg) > 1 {
				lines = append(lines, seg)
			}
			seg = plotter.XYs{}
		}
		seg = append(seg, plotter.XY{X: x, Y: pt.Lat()})
		prev = x
	}
	if len(seg) > 1 {
		lines = append(lines, seg)
	}
	return lines
}
