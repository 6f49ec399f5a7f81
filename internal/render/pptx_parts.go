// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"fmt"
	"strings"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	nsA   = `http://schemas.openxmlformats.org/drawingml/2006/main`
	nsR   = `http://schemas.openxmlformats.org/officeDocument/2006/relationships`
	nsP   = `http://schemas.openxmlformats.org/presentationml/2006/main`
	nsRel = `http://schemas.openxmlformats.org/package/2006/relationships`

	relBase   = `http://schemas.openxmlformats.org/officeDocument/2006/relationships/`
	typeBase  = `application/vnd.openxmlformats-officedocument.presentationml.`
	pmlNSAttr = `xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"`
)

func contentTypesXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	override := func(part, ct string) {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, part, ct)
	}
	override("/ppt/presentation.xml", typeBase+"presentation.main+xml")
	override("/ppt/slideMasters/slideMaster1.xml", typeBase+"slideMaster+xml")
	override("/ppt/slideLayouts/slideLayout1.xml", typeBase+"slideLayout+xml")
	override("/ppt/theme/theme1.xml", "application/vnd.openxmlformats-officedocument.theme+xml")
	override("/ppt/presProps.xml", typeBase+"presProps+xml")
	override("/ppt/viewProps.xml", typeBase+"viewProps+xml")
	override("/ppt/tableStyles.xml", typeBase+"tableStyles+xml")
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	override("/docProps/app.xml", "application/vnd.openxmlformats-officedocument.extended-properties+xml")
	for i := 1; i <= slides; i++ {
		override(fmt.Sprintf("/ppt/slides/slide%d.xml", i), typeBase+"slide+xml")
	}
	b.WriteString(`</Types>`)
	return b.String()
}

const rootRelsXML = xmlHeader +
	`<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `officeDocument" Target="ppt/presentation.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="` + relBase + `extended-properties" Target="docProps/app.xml"/>` +
	`</Relationships>`

func coreXML(title string) string {
	return xmlHeader +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(title) + `</dc:title><dc:creator>reportforge</dc:creator>` +
		`</cp:coreProperties>`
}

func appXML(slides int) string {
	return xmlHeader +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>reportforge</Application>` +
		fmt.Sprintf(`<Slides>%d</Slides>`, slides) +
		`</Properties>`
}

// first slide relationship id; rId1-rId5 are the fixed presentation parts
const firstSlideRel = 6

func presentationXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<p:presentation ` + pmlNSAttr + ` saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	b.WriteString(`<p:sldIdLst>`)
	for i := 0; i < slides; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, firstSlideRel+i)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, slideWidth, slideHeight)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func presentationRelsXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="` + nsRel + `">`)
	b.WriteString(`<Relationship Id="rId1" Type="` + relBase + `slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	b.WriteString(`<Relationship Id="rId2" Type="` + relBase + `presProps" Target="presProps.xml"/>`)
	b.WriteString(`<Relationship Id="rId3" Type="` + relBase + `viewProps" Target="viewProps.xml"/>`)
	b.WriteString(`<Relationship Id="rId4" Type="` + relBase + `theme" Target="theme/theme1.xml"/>`)
	b.WriteString(`<Relationship Id="rId5" Type="` + relBase + `tableStyles" Target="tableStyles.xml"/>`)
	for i := 0; i < slides; i++ {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%sslide" Target="slides/slide%d.xml"/>`, firstSlideRel+i, relBase, i+1)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

const emptySpTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

const slideMasterXML = xmlHeader +
	`<p:sldMaster ` + pmlNSAttr + `>` +
	`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg><p:spTree>` + emptySpTree + `</p:spTree></p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
	`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`<p:txStyles><p:titleStyle/><p:bodyStyle/><p:otherStyle/></p:txStyles>` +
	`</p:sldMaster>`

const slideMasterRelsXML = xmlHeader +
	`<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="` + relBase + `theme" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

const slideLayoutXML = xmlHeader +
	`<p:sldLayout ` + pmlNSAttr + ` type="blank" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + emptySpTree + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
	`</p:sldLayout>`

const slideLayoutRelsXML = xmlHeader +
	`<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideMaster" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

const slideRelsXML = xmlHeader +
	`<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`</Relationships>`

const presPropsXML = xmlHeader + `<p:presentationPr ` + pmlNSAttr + `/>`

const viewPropsXML = xmlHeader + `<p:viewPr ` + pmlNSAttr + `/>`

const tableStylesXML = xmlHeader +
	`<a:tblStyleLst xmlns:a="` + nsA + `" def="{5C22544A-7EE6-4342-B048-85BDC9FD1C3A}"/>`

func schemeColor(name, hex string) string {
	return `<a:` + name + `><a:srgbClr val="` + hex + `"/></a:` + name + `>`
}

func solidStyle(n int) string {
	s := strings.Repeat(`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`, n)
	return s
}

var themeXML = xmlHeader +
	`<a:theme xmlns:a="` + nsA + `" name="Reportforge">` +
	`<a:themeElements>` +
	`<a:clrScheme name="Reportforge">` +
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
	`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
	schemeColor("dk2", "44546A") + schemeColor("lt2", "E7E6E6") +
	schemeColor("accent1", "4472C4") + schemeColor("accent2", "ED7D31") + schemeColor("accent3", "A5A5A5") +
	schemeColor("accent4", "FFC000") + schemeColor("accent5", "5B9BD5") + schemeColor("accent6", "70AD47") +
	schemeColor("hlink", "0563C1") + schemeColor("folHlink", "954F72") +
	`</a:clrScheme>` +
	`<a:fontScheme name="Reportforge">` +
	`<a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Reportforge">` +
	`<a:fillStyleLst>` + solidStyle(3) + `</a:fillStyleLst>` +
	`<a:lnStyleLst>` +
	strings.Repeat(`<a:ln w="6350"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`, 3) +
	`</a:lnStyleLst>` +
	`<a:effectStyleLst>` + strings.Repeat(`<a:effectStyle><a:effectLst/></a:effectStyle>`, 3) + `</a:effectStyleLst>` +
	`<a:bgFillStyleLst>` + solidStyle(3) + `</a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements>` +
	`</a:theme>`
