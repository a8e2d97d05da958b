// Package hocr renders a transcribed page as an hOCR document so it can be
// loaded by viewers and editors that understand line geometry.
package hocr

import (
	"fmt"
	"html"
	"strings"

	"github.com/lehigh-university-libraries/scribe/pkg/lines"
)

// Build renders one ocr_line per region and one ocrx_word per whitespace
// separated token. Words carry their line's bbox. Lines with no text are kept
// so the line count always matches the regions.
func Build(regions []lines.Region, texts []string, width, height int) string {
	var b strings.Builder
	wordIndex := 0
	for i, r := range regions {
		var text string
		if i < len(texts) {
			text = texts[i]
		}
		bbox := fmt.Sprintf("bbox %d %d %d %d", r.XMin, r.YMin, r.XMax, r.YMax)

		fmt.Fprintf(&b, "<span class='ocr_line' id='line_1_%d' title='%s'>", i+1, bbox)
		for j, word := range strings.Fields(text) {
			if j > 0 {
				b.WriteString(" ")
			}
			wordIndex++
			fmt.Fprintf(&b, "<span class='ocrx_word' id='word_1_%d' title='%s'>%s</span>", wordIndex, bbox, html.EscapeString(word))
		}
		b.WriteString("</span>\n")
	}
	return WrapInHOCRDocument(strings.TrimSuffix(b.String(), "\n"), width, height)
}

// WrapInHOCRDocument wraps content in a complete hOCR XHTML document
func WrapInHOCRDocument(content string, width, height int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="en" lang="en">
<head>
<title></title>
<meta http-equiv="Content-Type" content="text/html;charset=utf-8" />
<meta name='ocr-system' content='scribe' />
<meta name='ocr-capabilities' content='ocr_page ocr_line ocrx_word' />
</head>
<body>
<div class='ocr_page' id='page_1' title='bbox 0 0 %d %d'>
%s
</div>
</body>
</html>`, width, height, content)
}
