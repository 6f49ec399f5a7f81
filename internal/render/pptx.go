// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reportforge/cli/internal/table"
)

// Slide geometry in EMU (13.333in x 7.5in).
const (
	slideWidth   int64 = 12192000
	slideHeight  int64 = 6858000
	margin       int64 = 457200
	titleTop     int64 = 304800
	titleHeight  int64 = 762000
	contentTop   int64 = 1219200
	rowsPerSlide       = 15
	maxChartBars       = 24
)

var palette = []string{"4472C4", "ED7D31", "A5A5A5", "FFC000", "5B9BD5", "70AD47"}

// SlideDeckRenderer writes a title slide, paginated table slides, an optional chart
// slide and a closing metadata slide.
type SlideDeckRenderer struct {
	opts Options
}

func NewSlideDeckRenderer(opts Options) *SlideDeckRenderer {
	return &SlideDeckRenderer{opts: opts}
}

func (r *SlideDeckRenderer) Format() Format { return PPTX }

func (r *SlideDeckRenderer) Render(ctx context.Context, t table.Table, layout Layout) (Artifact, error) {
	v, err := project(PPTX, t, layout)
	if err != nil {
		return Artifact{}, err
	}

	title := layout.Title
	if title == "" {
		title = r.opts.Report
	}

	var slides []string
	slides = append(slides, titleSlide(title, len(v.rows)))

	pages := (len(v.rows) + rowsPerSlide - 1) / rowsPerSlide
	if pages == 0 {
		pages = 1
	}
	for p := 0; p < pages; p++ {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		lo := p * rowsPerSlide
		hi := min(lo+rowsPerSlide, len(v.rows))
		heading := title
		if pages > 1 {
			heading = fmt.Sprintf("%s (%d/%d)", title, p+1, pages)
		}
		slides = append(slides, tableSlide(heading, v, v.rows[lo:hi]))
	}
	if v.layout.Chart != nil && len(v.rows) > 0 {
		slides = append(slides, chartSlide(title, v))
	}
	slides = append(slides, metadataSlide(r.opts, r.opts.now()))

	parts := []part{
		{"[Content_Types].xml", []byte(contentTypesXML(len(slides)))},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"docProps/core.xml", []byte(coreXML(title))},
		{"docProps/app.xml", []byte(appXML(len(slides)))},
		{"ppt/presentation.xml", []byte(presentationXML(len(slides)))},
		{"ppt/_rels/presentation.xml.rels", []byte(presentationRelsXML(len(slides)))},
		{"ppt/slideMasters/slideMaster1.xml", []byte(slideMasterXML)},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", []byte(slideMasterRelsXML)},
		{"ppt/slideLayouts/slideLayout1.xml", []byte(slideLayoutXML)},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", []byte(slideLayoutRelsXML)},
		{"ppt/theme/theme1.xml", []byte(themeXML)},
		{"ppt/presProps.xml", []byte(presPropsXML)},
		{"ppt/viewProps.xml", []byte(viewPropsXML)},
		{"ppt/tableStyles.xml", []byte(tableStylesXML)},
	}
	for i, s := range slides {
		parts = append(parts,
			part{fmt.Sprintf("ppt/slides/slide%d.xml", i+1), []byte(s)},
			part{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), []byte(slideRelsXML)},
		)
	}

	content, err := writeZip(parts)
	if err != nil {
		return Artifact{}, renderError(PPTX, "pack deck", err)
	}
	if err := checkSize(PPTX, content, r.opts.MaxBytes); err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Format:       PPTX,
		Content:      content,
		MetadataPart: fmt.Sprintf("ppt/slides/slide%d.xml", len(slides)),
	}, nil
}

// slideXML accumulates the shapes of one slide.
type slideXML struct {
	b      strings.Builder
	nextID int
}

func newSlide() *slideXML { return &slideXML{nextID: 2} }

func (s *slideXML) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func xfrm(tag string, x, y, cx, cy int64) string {
	return fmt.Sprintf(`<%s><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></%s>`, tag, x, y, cx, cy, tag)
}

func run(text string, size int, bold bool, color string) string {
	b := ""
	if bold {
		b = ` b="1"`
	}
	fill := ""
	if color != "" {
		fill = `<a:solidFill><a:srgbClr val="` + color + `"/></a:solidFill>`
	}
	return fmt.Sprintf(`<a:r><a:rPr lang="en-US" sz="%d"%s dirty="0">%s</a:rPr><a:t>%s</a:t></a:r>`, size, b, fill, esc(text))
}

func paragraph(text string, size int, bold bool, align, color string) string {
	pPr := ""
	if align != "" {
		pPr = `<a:pPr algn="` + align + `"/>`
	}
	if text == "" {
		return `<a:p>` + pPr + fmt.Sprintf(`<a:endParaRPr lang="en-US" sz="%d"/>`, size) + `</a:p>`
	}
	return `<a:p>` + pPr + run(text, size, bold, color) + `</a:p>`
}

func (s *slideXML) textBox(x, y, cx, cy int64, size int, bold bool, align string, lines ...string) {
	id := s.id()
	fmt.Fprintf(&s.b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Text %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, id)
	s.b.WriteString(`<p:spPr>` + xfrm("a:xfrm", x, y, cx, cy) + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`)
	s.b.WriteString(`<p:txBody><a:bodyPr wrap="square" rtlCol="0"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	for _, line := range lines {
		s.b.WriteString(paragraph(line, size, bold, align, ""))
	}
	s.b.WriteString(`</p:txBody></p:sp>`)
}

func (s *slideXML) rect(x, y, cx, cy int64, color string) {
	id := s.id()
	fmt.Fprintf(&s.b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Shape %d"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, id, id)
	s.b.WriteString(`<p:spPr>` + xfrm("a:xfrm", x, y, cx, cy) + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`)
	s.b.WriteString(`<a:solidFill><a:srgbClr val="` + color + `"/></a:solidFill><a:ln><a:noFill/></a:ln></p:spPr></p:sp>`)
}

func (s *slideXML) title(text string) {
	s.textBox(margin, titleTop, slideWidth-2*margin, titleHeight, 2800, true, "", text)
}

func (s *slideXML) String() string {
	return xmlHeader + `<p:sld ` + pmlNSAttr + `><p:cSld><p:spTree>` + emptySpTree + s.b.String() +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`
}

func titleSlide(title string, rows int) string {
	s := newSlide()
	s.textBox(margin, 2286000, slideWidth-2*margin, 1143000, 4000, true, "ctr", title)
	noun := "rows"
	if rows == 1 {
		noun = "row"
	}
	s.textBox(margin, 3543300, slideWidth-2*margin, 609600, 1800, false, "ctr", fmt.Sprintf("%d %s", rows, noun))
	return s.String()
}

func tableSlide(heading string, v *view, rows [][]any) string {
	s := newSlide()
	s.title(heading)

	width := slideWidth - 2*margin
	rowHeight := (slideHeight - contentTop - margin) / (rowsPerSlide + 1)
	n := int64(len(v.columns))
	if n == 0 {
		return s.String()
	}
	colWidth := width / n

	id := s.id()
	fmt.Fprintf(&s.b, `<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="Table %d"/>`, id, id)
	s.b.WriteString(`<p:cNvGraphicFramePr><a:graphicFrameLocks noGrp="1"/></p:cNvGraphicFramePr><p:nvPr/></p:nvGraphicFramePr>`)
	s.b.WriteString(xfrm("p:xfrm", margin, contentTop, width, rowHeight*int64(len(rows)+1)))
	s.b.WriteString(`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table">`)
	s.b.WriteString(`<a:tbl><a:tblPr firstRow="1" bandRow="1"/><a:tblGrid>`)
	for i := int64(0); i < n; i++ {
		w := colWidth
		if i == n-1 {
			w = width - colWidth*(n-1)
		}
		fmt.Fprintf(&s.b, `<a:gridCol w="%d"/>`, w)
	}
	s.b.WriteString(`</a:tblGrid>`)

	cell := func(text, align string, header bool) {
		s.b.WriteString(`<a:tc><a:txBody><a:bodyPr/><a:lstStyle/>`)
		color := ""
		if header {
			color = "FFFFFF"
		}
		if text == "" {
			s.b.WriteString(paragraph("", 1100, false, align, ""))
		} else {
			pPr := ""
			if align != "" {
				pPr = `<a:pPr algn="` + align + `"/>`
			}
			s.b.WriteString(`<a:p>` + pPr + run(text, 1100, header, color) + `</a:p>`)
		}
		s.b.WriteString(`</a:txBody>`)
		if header {
			s.b.WriteString(`<a:tcPr><a:solidFill><a:srgbClr val="4472C4"/></a:solidFill></a:tcPr>`)
		} else {
			s.b.WriteString(`<a:tcPr/>`)
		}
		s.b.WriteString(`</a:tc>`)
	}

	fmt.Fprintf(&s.b, `<a:tr h="%d">`, rowHeight)
	for _, c := range v.columns {
		cell(c.Name, "", true)
	}
	s.b.WriteString(`</a:tr>`)
	for _, row := range rows {
		fmt.Fprintf(&s.b, `<a:tr h="%d">`, rowHeight)
		for i, val := range row {
			col := v.columns[i]
			align := ""
			if col.Type == table.Number {
				align = "r"
			}
			cell(formatCell(val, v.layout.NumberFormat[col.Name]), align, false)
		}
		s.b.WriteString(`</a:tr>`)
	}
	s.b.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return s.String()
}

// chartSlide draws grouped bars from shapes, one group per category.
func chartSlide(title string, v *view) string {
	s := newSlide()
	s.title(title)

	rows := v.rows
	if len(rows) > maxChartBars {
		rows = rows[:maxChartBars]
	}

	lo, hi := 0.0, 0.0
	for _, row := range rows {
		for _, p := range v.values {
			if f, ok := row[p].(float64); ok {
				lo = math.Min(lo, f)
				hi = math.Max(hi, f)
			}
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	plotX, plotY := margin+457200, contentTop+304800
	plotW, plotH := slideWidth-2*plotX, slideHeight-plotY-margin-609600
	baseline := plotY + int64(float64(plotH)*hi/(hi-lo))
	groupW := plotW / int64(len(rows))
	barW := groupW * 8 / 10 / int64(len(v.values))
	if barW < 1 {
		barW = 1
	}

	// legend
	for i, p := range v.values {
		x := plotX + int64(i)*1828800
		s.rect(x, contentTop, 152400, 152400, palette[i%len(palette)])
		s.textBox(x+228600, contentTop-76200, 1524000, 304800, 1200, false, "", v.columns[p].Name)
	}

	for g, row := range rows {
		gx := plotX + int64(g)*groupW + groupW/10
		for i, p := range v.values {
			f, ok := row[p].(float64)
			if !ok {
				continue
			}
			h := int64(math.Abs(f) / (hi - lo) * float64(plotH))
			if h == 0 {
				h = 1
			}
			y := baseline - h
			if f < 0 {
				y = baseline
			}
			s.rect(gx+int64(i)*barW, y, barW, h, palette[i%len(palette)])
		}
		s.textBox(plotX+int64(g)*groupW, plotY+plotH+76200, groupW, 457200, 1000, false, "ctr",
			table.FormatValue(row[v.category]))
	}
	// axis
	s.rect(plotX, baseline, plotW, 12700, "595959")

	if len(v.rows) > len(rows) {
		s.textBox(plotX, slideHeight-margin-152400, plotW, 304800, 1000, false, "r",
			fmt.Sprintf("first %d of %d %s", len(rows), len(v.rows), v.columns[v.category].Name))
	}
	return s.String()
}

func metadataSlide(opts Options, generated time.Time) string {
	s := newSlide()
	s.title("Report metadata")
	s.textBox(margin, contentTop, slideWidth-2*margin, 1828800, 1600, false, "",
		"Report: "+opts.Report,
		"Run: "+opts.RunID,
		"Generated at: "+generated.Format(time.RFC3339),
	)
	return s.String()
}

// formatCell renders a value for display, honoring a spreadsheet-style number format.
func formatCell(v any, numFmt string) string {
	switch x := v.(type) {
	case float64:
		if numFmt != "" {
			return formatNumber(x, numFmt)
		}
	case time.Time:
		if numFmt == "" || strings.EqualFold(numFmt, dateFormat) {
			return x.Format("2006-01-02")
		}
	}
	return table.FormatValue(v)
}

// formatNumber supports the common subset of spreadsheet number formats:
// fixed decimals ("0.00"), thousands separators ("#,##0") and percentages ("0.0%").
func formatNumber(x float64, numFmt string) string {
	percent := strings.HasSuffix(numFmt, "%")
	if percent {
		x *= 100
	}
	decimals := 0
	if i := strings.IndexByte(numFmt, '.'); i >= 0 {
		for _, r := range numFmt[i+1:] {
			if r != '0' && r != '#' {
				break
			}
			decimals++
		}
	}
	s := strconv.FormatFloat(x, 'f', decimals, 64)
	if strings.Contains(numFmt, ",") {
		s = groupThousands(s)
	}
	if percent {
		s += "%"
	}
	return s
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
