package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"voicecaption/models"
)

// Glyph advance relative to font size for a single-width cell. Conservative for sans fonts.
const glyphAdvance = 0.6

// CaptionLayout is a caption block fitted to one frame size
type CaptionLayout struct {
	Lines       []string
	FontSize    int
	LineSpacing int
	Margin      int
	BoxBorder   int
}

// Text returns the lines as they are drawn
func (l CaptionLayout) Text() string {
	return strings.Join(l.Lines, "\n")
}

// Height is the pixel height of the whole block
func (l CaptionLayout) Height() int {
	if len(l.Lines) == 0 {
		return 0
	}
	return len(l.Lines)*l.FontSize + (len(l.Lines)-1)*l.LineSpacing
}

// CaptionCues returns the timed cues for text. A caption is a single cue for the whole clip.
func CaptionCues(text string, duration float64) []models.Cue {
	return []models.Cue{{Start: 0, End: duration, Text: text}}
}

// LayoutCaption wraps text to 90% of the frame width and picks the largest font size, starting
// at height*scale, whose block fits in the lower 40% of the frame.
func LayoutCaption(text string, width, height int, scale float64, minFont int) (CaptionLayout, error) {
	if width <= 0 || height <= 0 {
		return CaptionLayout{}, fmt.Errorf("%w: invalid frame size %dx%d", models.ErrCaptionUnrenderable, width, height)
	}
	clean, err := cleanCaption(text)
	if err != nil {
		return CaptionLayout{}, err
	}
	if minFont <= 0 {
		minFont = 12
	}

	margin := height / 20
	if margin < 4 {
		margin = 4
	}
	maxBlock := int(float64(height)*0.4) - margin
	maxLine := float64(width) * 0.9

	fontSize := int(float64(height) * scale)
	if fontSize < minFont {
		fontSize = minFont
	}

	for ; fontSize >= minFont; fontSize-- {
		cols := int(maxLine / (glyphAdvance * float64(fontSize)))
		if cols < 2 {
			continue
		}
		layout := CaptionLayout{
			Lines:       wrapCaption(clean, cols),
			FontSize:    fontSize,
			LineSpacing: fontSize / 4,
			Margin:      margin,
			BoxBorder:   fontSize / 4,
		}
		if layout.Height()+2*layout.BoxBorder <= maxBlock {
			return layout, nil
		}
	}
	return CaptionLayout{}, fmt.Errorf("%w: text does not fit a %dx%d frame at %dpx", models.ErrCaptionUnrenderable, width, height, minFont)
}

// cleanCaption rejects text that drawtext cannot render and collapses whitespace
func cleanCaption(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: invalid UTF-8", models.ErrCaptionUnrenderable)
	}
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return "", fmt.Errorf("%w: control character %U", models.ErrCaptionUnrenderable, r)
		}
	}
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return "", fmt.Errorf("%w: %w", models.ErrCaptionUnrenderable, models.ErrEmptyText)
	}
	return clean, nil
}

// wrapCaption breaks text into lines of at most cols display cells. Words wider than a line
// are split between runes.
func wrapCaption(text string, cols int) []string {
	var lines []string
	line := ""
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		w := runewidth.StringWidth(word)
		if w > cols {
			if line != "" {
				lines = append(lines, line)
				line, lineWidth = "", 0
			}
			pieces := splitWide(word, cols)
			lines = append(lines, pieces[:len(pieces)-1]...)
			line = pieces[len(pieces)-1]
			lineWidth = runewidth.StringWidth(line)
			continue
		}

		if line == "" {
			line, lineWidth = word, w
		} else if lineWidth+1+w <= cols {
			line += " " + word
			lineWidth += 1 + w
		} else {
			lines = append(lines, line)
			line, lineWidth = word, w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func splitWide(word string, cols int) []string {
	var pieces []string
	var b strings.Builder
	width := 0
	for _, r := range word {
		rw := runewidth.RuneWidth(r)
		if width+rw > cols && b.Len() > 0 {
			pieces = append(pieces, b.String())
			b.Reset()
			width = 0
		}
		b.WriteRune(r)
		width += rw
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}
