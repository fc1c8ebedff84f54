package netcdf

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

var (
	timeDims = []string{"time", "t"}
	latDims  = []string{"lat", "latitude", "y"}
	lonDims  = []string{"lon", "longitude", "x"}
)

// errUnsupportedCalendar reports a CF calendar without a mapping onto civil time.
var errUnsupportedCalendar = errors.New("unsupported calendar")

// flatten copies a (possibly nested) numeric slice as returned by the netCDF
// reader into a flat float64 slice in row-major order.
func flatten(v any) ([]float64, error) {
	var out []float64
	var walk func(v reflect.Value) error
	walk = func(rv reflect.Value) error {
		switch leaf := rv.Interface().(type) {
		case []float64:
			out = append(out, leaf...)
			return nil
		case []float32:
			for _, x := range leaf {
				out = append(out, float64(x))
			}
			return nil
		}
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, rv.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(rv.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(rv.Uint()))
		default:
			return fmt.Errorf("unsupported value type %s", rv.Type())
		}
		return nil
	}
	if v == nil {
		return nil, errors.New("nil values")
	}
	if err := walk(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	vals, err := flatten(v)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// packing describes the CF attributes that turn stored values into physical ones.
type packing struct {
	fill, missing       float64
	hasFill, hasMissing bool
	scale, offset       float64
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	p.fill, p.hasFill = attrFloat(attrs, "_FillValue")
	p.missing, p.hasMissing = attrFloat(attrs, "missing_value")
	if s, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = s
	}
	if o, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = o
	}
	return p
}

// apply masks fill values as NaN and unpacks the rest in place.
func (p packing) apply(vals []float64) {
	for i, v := range vals {
		if (p.hasFill && v == p.fill) || (p.hasMissing && v == p.missing) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = v*p.scale + p.offset
	}
}

// timeAxis decodes CF time coordinates ("<unit> since <epoch>").
type timeAxis struct {
	unit     time.Duration
	epoch    time.Time
	noLeap   bool
	calendar string
}

func parseTimeAxis(units, calendar string) (timeAxis, error) {
	unitPart, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return timeAxis{}, fmt.Errorf("time units %q: want \"<unit> since <date>\"", units)
	}
	var unit time.Duration
	switch strings.ToLower(strings.TrimSpace(unitPart)) {
	case "days", "day", "d":
		unit = 24 * time.Hour
	case "hours", "hour", "hrs", "hr", "h":
		unit = time.Hour
	case "minutes", "minute", "mins", "min":
		unit = time.Minute
	case "seconds", "second", "secs", "sec", "s":
		unit = time.Second
	default:
		return timeAxis{}, fmt.Errorf("time units %q: unknown unit %q", units, unitPart)
	}
	epoch, err := parseEpoch(since)
	if err != nil {
		return timeAxis{}, fmt.Errorf("time units %q: %w", units, err)
	}

	ax := timeAxis{unit: unit, epoch: epoch, calendar: calendar}
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	case "noleap", "365_day":
		ax.noLeap = true
	default:
		return timeAxis{}, fmt.Errorf("%w %q", errUnsupportedCalendar, calendar)
	}
	return ax, nil
}

var epochLayouts = []string{
	"2006-1-2 15:4:5",
	"2006-1-2T15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
}

func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{" UTC", "Z", "+00:00", "+0:00", " +0000"} {
		s = strings.TrimSuffix(s, suffix)
	}
	for _, layout := range epochLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse reference date %q", s)
}

// decode converts raw offsets into timestamps.
func (ax timeAxis) decode(offsets []float64) ([]time.Time, error) {
	out := make([]time.Time, len(offsets))
	for i, v := range offsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("time value %d is not finite", i)
		}
		if ax.noLeap {
			out[i] = ax.noLeapTime(v)
			continue
		}
		secs := v * ax.unit.Seconds()
		whole := math.Floor(secs)
		frac := time.Duration(math.Round((secs - whole) * float64(time.Second)))
		out[i] = ax.epoch.Add(time.Duration(whole)*time.Second + frac)
	}
	return out, nil
}

// noLeapTime counts days on a 365-day calendar, skipping 29 February.
func (ax timeAxis) noLeapTime(v float64) time.Time {
	days := v * ax.unit.Hours() / 24
	whole := math.Floor(days)
	rest := time.Duration(math.Round((days - whole) * float64(24*time.Hour)))

	e := ax.epoch
	d := noLeapDayOfYear(e.Month(), e.Day()) + int(whole)
	year := e.Year() + floorDiv(d, 365)
	d -= floorDiv(d, 365) * 365

	md := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
	clock := time.Duration(e.Hour())*time.Hour + time.Duration(e.Minute())*time.Minute + time.Duration(e.Second())*time.Second
	return time.Date(year, md.Month(), md.Day(), 0, 0, 0, 0, time.UTC).Add(clock + rest)
}

// noLeapDayOfYear returns the zero-based day of year on a 365-day calendar.
func noLeapDayOfYear(m time.Month, day int) int {
	if m == time.February && day == 29 {
		day = 28
	}
	return time.Date(1900, m, day, 0, 0, 0, 0, time.UTC).YearDay() - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// layout identifies the dimensions of a (time, lat, lon) variable.
type layout struct {
	time, lat, lon string
}

func matchLayout(dims []string) (layout, bool) {
	if len(dims) != 3 {
		return layout{}, false
	}
	l := layout{time: dims[0], lat: dims[1], lon: dims[2]}
	if !slices.Contains(timeDims, strings.ToLower(l.time)) ||
		!slices.Contains(latDims, strings.ToLower(l.lat)) ||
		!slices.Contains(lonDims, strings.ToLower(l.lon)) {
		return layout{}, false
	}
	return l, true
}

// pickVariable returns the requested variable, or the first data variable
// with (time, lat, lon) dimensions when name is empty.
func pickVariable(g api.Group, name string) (string, api.VarGetter, layout, error) {
	if name != "" {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			return "", nil, layout{}, fmt.Errorf("variable %q: %w", name, err)
		}
		l, ok := matchLayout(vg.Dimensions())
		if !ok {
			return "", nil, layout{}, fmt.Errorf("variable %q has dimensions %v, want (time, lat, lon)", name, vg.Dimensions())
		}
		return name, vg, l, nil
	}

	for _, v := range g.ListVariables() {
		vg, err := g.GetVarGetter(v)
		if err != nil {
			continue
		}
		if l, ok := matchLayout(vg.Dimensions()); ok {
			return v, vg, l, nil
		}
	}
	return "", nil, layout{}, errors.New("no (time, lat, lon) data variable found")
}

func readCoord(g api.Group, name string) ([]float64, error) {
	vg, err := g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read coordinate %q: %w", name, err)
	}
	vals, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	packingOf(vg.Attributes()).apply(vals)
	return vals, nil
}

func readTimes(g api.Group, name string) ([]time.Time, error) {
	vg, err := g.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	attrs := vg.Attributes()
	ax, err := parseTimeAxis(attrString(attrs, "units"), attrString(attrs, "calendar"))
	if err != nil {
		return nil, err
	}
	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read coordinate %q: %w", name, err)
	}
	offsets, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	return ax.decode(offsets)
}
