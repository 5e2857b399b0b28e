package mapview

import (
	"fmt"
	"html"
	"strconv"
)

// ContentBuilder renders the visual content of a marker and returns a
// destructor releasing whatever the content holds on to.
type ContentBuilder func(label, color string) (content string, destructor func())

const clusterColor = "#1f2937"

// DefaultContentBuilder renders a pin-shaped SVG marker with the label below it.
func DefaultContentBuilder(label, color string) (string, func()) {
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="28" height="40" viewBox="0 0 28 40">`+
			`<path d="M14 0C6.3 0 0 6.3 0 14c0 10.5 14 26 14 26s14-15.5 14-26C28 6.3 21.7 0 14 0z" fill="%s"/>`+
			`<text x="14" y="18" text-anchor="middle" font-size="10" fill="#fff">%s</text></svg>`,
		html.EscapeString(color), html.EscapeString(label),
	)
	return svg, func() {}
}

// TrackedContentBuilder wraps build so that track receives +1 for every built
// content and -1 once its destructor runs. The destructor is idempotent.
func TrackedContentBuilder(build ContentBuilder, track func(delta int)) ContentBuilder {
	return func(label, color string) (string, func()) {
		content, destructor := build(label, color)
		track(1)
		done := false
		return content, func() {
			if done {
				return
			}
			done = true
			if destructor != nil {
				destructor()
			}
			track(-1)
		}
	}
}

func clusterLabel(count int) string {
	return strconv.Itoa(count)
}
