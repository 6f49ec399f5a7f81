// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"
)

// zipEpoch is stamped on every entry so archives do not depend on the wall clock.
var zipEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type part struct {
	name string
	data []byte
}

// writeZip writes parts in name order with fixed timestamps.
func writeZip(parts []part) ([]byte, error) {
	sorted := make([]part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range sorted {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: zipEpoch})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readZip returns every entry of a zip archive.
func readZip(content []byte) ([]part, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	parts := make([]part, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		parts = append(parts, part{name: f.Name, data: data})
	}
	return parts, nil
}

const contentTypesPart = "[Content_Types].xml"

type contentTypes struct {
	XMLName   xml.Name     `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Defaults  []ctDefault  `xml:"Default"`
	Overrides []ctOverride `xml:"Override"`
}

type ctDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type ctOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// canonicalContentTypes sorts the Default and Override entries. excelize emits the
// image defaults in map order.
func canonicalContentTypes(data []byte) ([]byte, error) {
	var ct contentTypes
	if err := xml.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parse %s: %w", contentTypesPart, err)
	}
	sort.Slice(ct.Defaults, func(i, j int) bool { return ct.Defaults[i].Extension < ct.Defaults[j].Extension })
	sort.Slice(ct.Overrides, func(i, j int) bool { return ct.Overrides[i].PartName < ct.Overrides[j].PartName })
	out, err := xml.Marshal(ct)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// repack rewrites an archive in name order with fixed timestamps and a canonical
// content types part.
func repack(content []byte) ([]byte, error) {
	parts, err := readZip(content)
	if err != nil {
		return nil, err
	}
	for i := range parts {
		if parts[i].name != contentTypesPart {
			continue
		}
		if parts[i].data, err = canonicalContentTypes(parts[i].data); err != nil {
			return nil, err
		}
	}
	return writeZip(parts)
}

// ContentHash hashes every entry of the artifact except its metadata part, in name
// order. Two renders of the same table and layout have the same hash at any clock.
func ContentHash(a Artifact) (string, error) {
	parts, err := readZip(a.Content)
	if err != nil {
		return "", err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].name < parts[j].name })

	h := sha256.New()
	for _, p := range parts {
		if p.name == a.MetadataPart {
			continue
		}
		fmt.Fprintf(h, "%s\x00%d\x00", p.name, len(p.data))
		h.Write(p.data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
