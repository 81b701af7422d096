package report

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

const (
	colorLow    = "#27ae60"
	colorMedium = "#ffe066"
	colorHigh   = "#fd5c63"
)

func barColor(prob float64) string {
	switch {
	case prob > 0.7:
		return colorHigh
	case prob > 0.3:
		return colorMedium
	default:
		return colorLow
	}
}

// polar maps an angle in degrees (0 = east, counter-clockwise) onto SVG coordinates.
func polar(cx, cy, r, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return cx + r*math.Cos(rad), cy - r*math.Sin(rad)
}

func arc(cx, cy, r, from, to float64) string {
	x1, y1 := polar(cx, cy, r, from)
	x2, y2 := polar(cx, cy, r, to)
	return fmt.Sprintf("M %.2f %.2f A %.2f %.2f 0 0 1 %.2f %.2f", x1, y1, r, r, x2, y2)
}

// Gauge renders a half-circle 0-100 gauge with the three risk bands.
func Gauge(prob float64) template.HTML {
	const cx, cy, r = 150.0, 150.0, 110.0
	pct := math.Max(0, math.Min(1, prob)) * 100
	angle := func(v float64) float64 { return 180 - v*1.8 }

	var b strings.Builder
	b.WriteString(`<svg class="chart gauge" viewBox="0 0 300 190" role="img" aria-label="Risk gauge">`)
	bands := []struct {
		from, to float64
		color    string
	}{
		{0, 30, "rgba(39,174,96,0.5)"},
		{30, 70, "rgba(243,156,18,0.5)"},
		{70, 100, "rgba(231,76,60,0.5)"},
	}
	for _, band := range bands {
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="28"/>`,
			arc(cx, cy, r, angle(band.from), angle(band.to)), band.color)
	}
	if pct > 0 {
		fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="10"/>`,
			arc(cx, cy, r, 180, angle(pct)), barColor(prob))
	}
	nx, ny := polar(cx, cy, r-20, angle(pct))
	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#fff" stroke-width="3"/>`, cx, cy, nx, ny)
	for _, tick := range []float64{0, 30, 70, 100} {
		tx, ty := polar(cx, cy, r+22, angle(tick))
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" class="tick" text-anchor="middle">%.0f</text>`, tx, ty, tick)
	}
	fmt.Fprintf(&b, `<text x="%.0f" y="%.0f" class="value" text-anchor="middle">%.1f%%</text>`, cx, cy+32, pct)
	b.WriteString(`<text x="150" y="20" class="title" text-anchor="middle">Risk (%)</text></svg>`)
	return template.HTML(b.String())
}

// Radar renders the normalised vitals of record as a filled polygon.
func Radar(record map[string]float64) (template.HTML, error) {
	values, err := RadarValues(record)
	if err != nil {
		return "", err
	}
	const cx, cy, r = 160.0, 150.0, 110.0
	n := len(values)
	step := 360.0 / float64(n)
	axis := func(i int) float64 { return 90 - float64(i)*step }

	var b strings.Builder
	b.WriteString(`<svg class="chart radar" viewBox="0 0 320 300" role="img" aria-label="Health profile">`)
	for _, level := range []float64{0.25, 0.5, 0.75, 1} {
		points := make([]string, n)
		for i := 0; i < n; i++ {
			x, y := polar(cx, cy, r*level, axis(i))
			points[i] = fmt.Sprintf("%.2f,%.2f", x, y)
		}
		fmt.Fprintf(&b, `<polygon points="%s" class="grid"/>`, strings.Join(points, " "))
	}
	points := make([]string, n)
	for i, v := range values {
		x, y := polar(cx, cy, r*v, axis(i))
		points[i] = fmt.Sprintf("%.2f,%.2f", x, y)

		lx, ly := polar(cx, cy, r+18, axis(i))
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" class="label" text-anchor="middle">%s</text>`,
			lx, ly, template.HTMLEscapeString(RadarFeatures[i].Label))
	}
	fmt.Fprintf(&b, `<polygon points="%s" fill="rgba(102,126,234,0.45)" stroke="#667eea" stroke-width="2"/>`,
		strings.Join(points, " "))
	b.WriteString(`</svg>`)
	return template.HTML(b.String()), nil
}

// AgeComparison renders average risk per age group with the user's group marked.
func AgeComparison(groups AgeGroups, userAge float64) template.HTML {
	const width, height, left, bottom, top = 340.0, 280.0, 40.0, 240.0, 40.0
	user := UserAgeGroup(userAge)
	slot := (width - left - 10) / float64(len(groups))
	scale := bottom - top

	var b strings.Builder
	fmt.Fprintf(&b, `<svg class="chart comparison" viewBox="0 0 %.0f %.0f" role="img" aria-label="Risk by age group">`, width, height)
	b.WriteString(`<text x="170" y="20" class="title" text-anchor="middle">Risk by Age Group</text>`)
	fmt.Fprintf(&b, `<line x1="%.0f" y1="%.0f" x2="%.0f" y2="%.0f" class="axis"/>`, left, bottom, width-10, bottom)
	for _, tick := range []float64{0, 0.5, 1} {
		y := bottom - tick*scale
		fmt.Fprintf(&b, `<text x="%.0f" y="%.2f" class="tick" text-anchor="end">%.1f</text>`, left-6, y+4, tick)
	}
	for i, g := range groups {
		x := left + float64(i)*slot + slot*0.2
		w := slot * 0.6
		h := g.Risk * scale
		if g.HasData {
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="#00e6fe"/>`, x, bottom-h, w, h)
		}
		fmt.Fprintf(&b, `<text x="%.2f" y="%.0f" class="label" text-anchor="middle">%s</text>`, x+w/2, bottom+18, g.Label)
		if g.Label == user {
			fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="8" fill="red" class="you"><title>You</title></circle>`, x+w/2, bottom-h)
		}
	}
	b.WriteString(`</svg>`)
	return template.HTML(b.String())
}
