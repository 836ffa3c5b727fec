// Package splitter reads an uploaded EPUB from the object store, emits
// one plain-text file per surviving chapter, and enqueues a chunker job
// for each.
package splitter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// rawItem is one spine document extracted from the container, still
// carrying its raw (markup) bytes.
type rawItem struct {
	name string
	html []byte
}

// container.xml always points at the OPF package document.
type container struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// The OPF package document lists every content document in the manifest
// and the reading order in the spine.
type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Manifest struct {
		Items []struct {
			ID   string `xml:"id,attr"`
			Href string `xml:"href,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// extractItems opens the EPUB archive, resolves the OPF's spine against
// its manifest, and returns each spine document's raw bytes in reading
// order.
func extractItems(epub []byte) ([]rawItem, error) {
	zr, err := zip.NewReader(bytes.NewReader(epub), int64(len(epub)))
	if err != nil {
		return nil, fmt.Errorf("open epub archive: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerFile, ok := files["META-INF/container.xml"]
	if !ok {
		return nil, fmt.Errorf("missing META-INF/container.xml")
	}
	var c container
	if err := decodeXMLFile(containerFile, &c); err != nil {
		return nil, fmt.Errorf("parse container.xml: %w", err)
	}
	if len(c.Rootfiles) == 0 {
		return nil, fmt.Errorf("container.xml lists no rootfile")
	}
	opfPath := c.Rootfiles[0].FullPath

	opfFile, ok := files[opfPath]
	if !ok {
		return nil, fmt.Errorf("missing opf package document %s", opfPath)
	}
	var pkg opfPackage
	if err := decodeXMLFile(opfFile, &pkg); err != nil {
		return nil, fmt.Errorf("parse opf package document: %w", err)
	}

	hrefByID := make(map[string]string, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		hrefByID[item.ID] = item.Href
	}

	opfDir := path.Dir(opfPath)
	items := make([]rawItem, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := hrefByID[ref.IDRef]
		if !ok {
			continue
		}
		itemPath := path.Join(opfDir, href)
		f, ok := files[itemPath]
		if !ok {
			continue
		}
		body, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read spine document %s: %w", itemPath, err)
		}
		items = append(items, rawItem{name: href, html: body})
	}

	return items, nil
}

func decodeXMLFile(f *zip.File, v any) error {
	body, err := readZipFile(f)
	if err != nil {
		return err
	}
	return xml.Unmarshal(body, v)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// deriveTitle turns a manifest href into a display title: basename,
// extension stripped, non-word characters replaced with underscores.
func deriveTitle(href string) string {
	base := path.Base(href)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
