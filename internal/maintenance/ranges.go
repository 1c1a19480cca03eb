package maintenance

// Range 读数正常区间（闭区间）
type Range struct {
	Min float64
	Max float64
}

// normalRanges 各读数类型的正常区间，未列出的类型不做检测
var normalRanges = map[string]Range{
	"temperature": {Min: 15, Max: 30},
	"humidity":    {Min: 30, Max: 70},
	"noise_level": {Min: 0, Max: 85},
	"vibration":   {Min: 0, Max: 5},
}

const (
	highSeverityFactor = 1.2
	emergencyFactor    = 1.5
)

// NormalRange 查询读数类型的正常区间
func NormalRange(readingType string) (Range, bool) {
	r, ok := normalRanges[readingType]
	return r, ok
}

// Contains 值是否在区间内
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
