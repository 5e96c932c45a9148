package pubmed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"pubmed-loader/models"
	"pubmed-loader/providers"
)

var medlineYear = regexp.MustCompile(`^\d{4}`)

// Record ist ein Rohdatensatz aus EFetch, entweder Artikel oder Buchartikel.
type Record struct {
	article *PubmedArticle
	book    *PubmedBookArticle
}

// PMID liefert die ID des Rohdatensatzes, leer wenn keine vorhanden ist.
func (r Record) PMID() string {
	switch {
	case r.article != nil:
		return strings.TrimSpace(r.article.MedlineCitation.PMID)
	case r.book != nil:
		return strings.TrimSpace(r.book.BookDocument.PMID)
	}
	return ""
}

// Assemble wandelt den Rohdatensatz in einen Article um. Fehlende optionale Felder
// bleiben leer; nur eine fehlende PMID führt zu providers.ErrMissingIdentifier.
func (r Record) Assemble() (models.Article, error) {
	pmid := r.PMID()
	if pmid == "" {
		return models.Article{}, fmt.Errorf("assemble pubmed record: %w", providers.ErrMissingIdentifier)
	}
	if r.book != nil {
		return assembleBook(pmid, r.book), nil
	}
	return assembleArticle(pmid, r.article), nil
}

func assembleArticle(pmid string, a *PubmedArticle) models.Article {
	art := a.MedlineCitation.Article
	abstract, sections := renderAbstract(art.Abstract.Texts)
	return models.Article{
		PMID:            pmid,
		Kind:            models.KindJournalArticle,
		Title:           cleanText(string(art.Title)),
		Abstract:        abstract,
		Authors:         authorNames(art.Authors),
		PublicationDate: formatPubDate(art.Journal.PubDate),
		Keywords:        keywords(a.MedlineCitation.KeywordLists),
		Journal:         cleanText(art.Journal.Title),
		DOI:             findDOI(art.ELocationID, a.PubmedData.ArticleIDs),
		Copyright:       cleanText(art.Abstract.Copyright),
		Sections:        sections,
	}
}

func assembleBook(pmid string, b *PubmedBookArticle) models.Article {
	doc := b.BookDocument
	title := cleanText(string(doc.ArticleTitle))
	if title == "" {
		title = cleanText(string(doc.Book.Title))
	}
	authors := doc.Authors
	if len(authors) == 0 {
		authors = doc.Book.Authors
	}
	abstract, sections := renderAbstract(doc.Abstract.Texts)
	return models.Article{
		PMID:            pmid,
		Kind:            models.KindBookArticle,
		Title:           title,
		Abstract:        abstract,
		Authors:         authorNames(authors),
		PublicationDate: formatPubDate(doc.Book.PubDate),
		Keywords:        keywords(doc.KeywordLists),
		Journal:         cleanText(doc.Book.Publisher.Name),
		DOI:             findDOI(doc.ELocationID, doc.ArticleIDs),
		Copyright:       cleanText(doc.Abstract.Copyright),
		Sections:        sections,
	}
}

// renderAbstract setzt gegliederte Abschnitte als "LABEL: Text"-Zeilen zusammen.
// Identische Abschnitte kommen in manchen Datensätzen doppelt vor und werden nur einmal übernommen.
func renderAbstract(texts []AbstractText) (string, map[string]string) {
	var lines []string
	seen := make(map[string]struct{}, len(texts))
	sections := make(map[string]string)
	for _, t := range texts {
		text := cleanText(t.Text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		if t.Label != "" {
			lines = append(lines, t.Label+": "+text)
			sections[t.Label] = text
		} else {
			lines = append(lines, text)
		}
	}
	if len(sections) == 0 {
		sections = nil
	}
	return strings.Join(lines, "\n"), sections
}

func authorNames(list []Author) []string {
	names := make([]string, 0, len(list))
	for _, a := range list {
		if name := cleanText(string(a.CollectiveName)); name != "" {
			names = append(names, name)
			continue
		}
		if name := cleanText(a.ForeName + " " + a.LastName); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func keywords(lists []KeywordList) []string {
	out := []string{}
	for _, l := range lists {
		for _, k := range l.Keywords {
			if kw := cleanText(string(k)); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

func findDOI(locations []ELocationID, ids []ArticleID) string {
	for _, loc := range locations {
		if strings.EqualFold(loc.IDType, "doi") && loc.ValidYN != "N" {
			if v := strings.TrimSpace(loc.Value); v != "" {
				return v
			}
		}
	}
	for _, id := range ids {
		if strings.EqualFold(id.IDType, "doi") {
			if v := strings.TrimSpace(id.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

// formatPubDate liefert "JJJJ-MM-TT", "JJJJ-MM" oder "JJJJ", je nachdem was vorhanden ist.
// Ohne Jahr wird das Jahr aus MedlineDate ("1998 Dec-1999 Jan") übernommen.
func formatPubDate(d PubDate) string {
	year := strings.TrimSpace(d.Year)
	if year == "" {
		return medlineYear.FindString(strings.TrimSpace(d.MedlineDate))
	}
	month := strings.TrimSpace(d.Month)
	if month == "" {
		return year
	}
	month = monthNumber(month)
	day := strings.TrimSpace(d.Day)
	if day == "" {
		return year + "-" + month
	}
	if n, err := strconv.Atoi(day); err == nil {
		day = fmt.Sprintf("%02d", n)
	}
	return year + "-" + month + "-" + day
}

// monthNumber wandelt "Mar", "March" oder "3" in "03" um; Unbekanntes bleibt unverändert.
func monthNumber(m string) string {
	if n, err := strconv.Atoi(m); err == nil {
		if n >= 1 && n <= 12 {
			return fmt.Sprintf("%02d", n)
		}
		return m
	}
	if len(m) >= 3 {
		if t, err := time.Parse("Jan", m[:3]); err == nil {
			return fmt.Sprintf("%02d", int(t.Month()))
		}
	}
	return m
}

// cleanText normalisiert auf NFC und fasst Leerraum zusammen.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
