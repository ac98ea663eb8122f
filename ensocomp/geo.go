package ensocomp

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

//--------------------------------------
// 緯度経度
//--------------------------------------

// 格子の面積重み cos(緯度) による field の平均 (NaN の格子は除外)
func AreaWeightedMean(field mat.Matrix, lat []float64) float64 {
	r, c := field.Dims()
	var sum, wsum float64
	for i := 0; i < r; i++ {
		w := math.Cos(degreeToRad(lat[i]))
		for j := 0; j < c; j++ {
			v := field.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			sum += w * v
			wsum += w
		}
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

// p 値が alpha 未満となる面積の割合 (NaN の格子は分母に含めない)
func SignificantAreaFraction(p mat.Matrix, lat []float64, alpha float64) float64 {
	r, c := p.Dims()
	var sig, total float64
	for i := 0; i < r; i++ {
		w := math.Cos(degreeToRad(lat[i]))
		for j := 0; j < c; j++ {
			v := p.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			total += w
			if v < alpha {
				sig += w
			}
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return sig / total
}

// 任意の経度を [0, 360) に変換
func normalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon
}

// 経度を東経・西経の表記に変換 (0, 60E, 180, 60W)
func lonLabel(lon float64) string {
	lon = normalizeLon360(lon)
	switch {
	case lon == 0 || lon == 180:
		return formatDeg(lon, "")
	case lon < 180:
		return formatDeg(lon, "E")
	default:
		return formatDeg(360-lon, "W")
	}
}

// 緯度を北緯・南緯の表記に変換 (20N, 0, 40S)
func latLabel(lat float64) string {
	switch {
	case lat > 0:
		return formatDeg(lat, "N")
	case lat < 0:
		return formatDeg(-lat, "S")
	default:
		return formatDeg(0, "")
	}
}

func formatDeg(v float64, hemisphere string) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "°" + hemisphere
}

func degreeToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
