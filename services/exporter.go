package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"pubmed-loader/models"
)

const (
	// ManifestName ist der Eintrag im ZIP, der alle Artikel verlustfrei enthält.
	ManifestName = "manifest.yaml"
	articleDir   = "articles/"
)

// zipEpoch ist der feste Zeitstempel aller ZIP-Einträge, damit gleiche Eingaben gleiche Bytes ergeben.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Manifest ist der Inhalt von manifest.yaml.
type Manifest struct {
	Count    int              `yaml:"count"`
	Articles []models.Article `yaml:"articles"`
}

// ExportArticles erzeugt das JSON-Dokument und das ZIP-Archiv zu einer Artikelliste.
// Die Ausgabe hängt nur von der Eingabe ab; die Reihenfolge der Artikel bleibt erhalten.
func ExportArticles(articles []models.Article) (jsonData, zipData []byte, err error) {
	if articles == nil {
		articles = []models.Article{}
	}

	jsonData, err = json.MarshalIndent(articles, "", "    ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode json: %w", err)
	}

	zipData, err = buildZip(articles)
	if err != nil {
		return nil, nil, err
	}
	return jsonData, zipData, nil
}

func buildZip(articles []models.Article) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest, err := yaml.Marshal(Manifest{Count: len(articles), Articles: articles})
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeZipEntry(zw, ManifestName, manifest); err != nil {
		return nil, err
	}

	for i, a := range articles {
		name := fmt.Sprintf("%s%05d_%s.txt", articleDir, i+1, a.PMID)
		if err := writeZipEntry(zw, name, []byte(articleText(a))); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: zipEpoch,
	})
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

// articleText rendert einen Artikel als lesbare "Key: value"-Datei.
func articleText(a models.Article) string {
	var b strings.Builder
	field := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	field("PMID", a.PMID)
	field("Type", a.Kind)
	field("Title", a.Title)
	field("Authors", strings.Join(a.Authors, "; "))
	field("Journal", a.Journal)
	field("Publication Date", a.PublicationDate)
	field("DOI", a.DOI)
	field("Keywords", strings.Join(a.Keywords, ", "))
	field("Copyright", a.Copyright)
	if a.Abstract != "" {
		b.WriteString("\nAbstract:\n")
		b.WriteString(a.Abstract)
		b.WriteString("\n")
	}
	return b.String()
}
