// Package pubmed enthält die Logik für die Interaktion mit den NCBI E-utilities.
package pubmed

import (
	"encoding/xml"
	"strings"
)

// ESearchResponse repräsentiert die JSON-Antwort von ESearch.
type ESearchResponse struct {
	ESearchResult struct {
		Count    string   `json:"count"`
		RetMax   string   `json:"retmax"`
		RetStart string   `json:"retstart"`
		IdList   []string `json:"idlist"`
		Error    string   `json:"ERROR"`
	} `json:"esearchresult"`
}

// PubmedArticle repräsentiert einen Zeitschriftenartikel in der EFetch-Antwort.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    richText `xml:"ArticleTitle"`
			Abstract Abstract `xml:"Abstract"`
			Authors  []Author `xml:"AuthorList>Author"`
			Journal  struct {
				Title   string  `xml:"Title"`
				PubDate PubDate `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			ELocationID []ELocationID `xml:"ELocationID"`
		} `xml:"Article"`
		KeywordLists []KeywordList `xml:"KeywordList"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

// PubmedBookArticle repräsentiert ein Buch oder Buchkapitel in der EFetch-Antwort.
type PubmedBookArticle struct {
	BookDocument struct {
		PMID         string   `xml:"PMID"`
		ArticleTitle richText `xml:"ArticleTitle"`
		Book         struct {
			Publisher struct {
				Name string `xml:"PublisherName"`
			} `xml:"Publisher"`
			Title   richText `xml:"BookTitle"`
			PubDate PubDate  `xml:"PubDate"`
			Authors []Author `xml:"AuthorList>Author"`
		} `xml:"Book"`
		Authors      []Author      `xml:"AuthorList>Author"`
		Abstract     Abstract      `xml:"Abstract"`
		KeywordLists []KeywordList `xml:"KeywordList"`
		ELocationID  []ELocationID `xml:"ELocationID"`
		ArticleIDs   []ArticleID   `xml:"ArticleIdList>ArticleId"`
	} `xml:"BookDocument"`
}

// Abstract enthält die (ggf. gegliederten) Abschnitte der Zusammenfassung.
type Abstract struct {
	Texts     []AbstractText `xml:"AbstractText"`
	Copyright string         `xml:"CopyrightInformation"`
}

// AbstractText ist ein Abschnitt der Zusammenfassung, optional mit Label (z.B. "METHODS").
type AbstractText struct {
	Label string
	Text  string
}

// UnmarshalXML sammelt den Text inklusive verschachtelter Formatierung (<i>, <sup>, ...).
func (a *AbstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = strings.TrimSpace(attr.Value)
		}
	}
	text, err := innerText(d)
	a.Text = text
	return err
}

// Author ist ein Eintrag der AuthorList; Gruppen tragen nur CollectiveName.
type Author struct {
	LastName       string   `xml:"LastName"`
	ForeName       string   `xml:"ForeName"`
	Initials       string   `xml:"Initials"`
	CollectiveName richText `xml:"CollectiveName"`
}

// PubDate ist ein oft unvollständiges Publikationsdatum.
type PubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// KeywordList enthält die Schlagwörter eines Datensatzes.
type KeywordList struct {
	Keywords []richText `xml:"Keyword"`
}

// ELocationID ist eine elektronische Fundstelle, z.B. eine DOI.
type ELocationID struct {
	IDType  string `xml:"EIdType,attr"`
	ValidYN string `xml:"ValidYN,attr"`
	Value   string `xml:",chardata"`
}

// ArticleID ist ein Eintrag der ArticleIdList (pubmed, doi, pmc, ...).
type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// richText ist ein Element, dessen Text Formatierungs-Tags enthalten darf.
type richText string

func (t *richText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	text, err := innerText(d)
	*t = richText(text)
	return err
}

// innerText liest bis zum schließenden Tag des aktuellen Elements und verbindet alle Textknoten.
func innerText(d *xml.Decoder) (string, error) {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		switch v := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(v)
		}
	}
	return b.String(), nil
}
