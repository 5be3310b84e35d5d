package console

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"
)

var bannerLines = []string{
	"▄▀█ █▀▀ █ ▀█▀ █▀▀ █▀▀ █▀▀ █▄ █",
	"█▀█ █▄█ █  █  ██▄ █▄█ ██▄ █ ▀█",
}

// Banner returns the agitegen logo with a left-to-right colour gradient.
func Banner() string {
	lines := make([]string, len(bannerLines))
	for i, line := range bannerLines {
		lines[i] = gradient(line, colorPrimary, colorSecondary)
	}
	return strings.Join(lines, "\n")
}

// gradient colours each rune of text on a blend from one hex colour to another.
func gradient(text, from, to string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range runes {
		pos := 0.0
		if len(runes) > 1 {
			pos = float64(i) / float64(len(runes)-1)
		}
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(blend(from, to, pos)))
		b.WriteString(style.Render(string(r)))
	}
	return b.String()
}

// blend interpolates two #RRGGBB colours; pos 0 is a, pos 1 is b.
func blend(a, b string, pos float64) string {
	r1, g1, b1 := parseHex(a)
	r2, g2, b2 := parseHex(b)
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x)*(1-pos) + float64(y)*pos)
	}
	return fmt.Sprintf("#%02x%02x%02x", mix(r1, r2), mix(g1, g2), mix(b1, b2))
}

func parseHex(hex string) (r, g, b uint8) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 6 {
		_, _ = fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
	}
	return r, g, b
}
