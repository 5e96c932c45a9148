package models

// Article ist die normalisierte Form eines PubMed-Datensatzes.
type Article struct {
	PMID            string            `json:"pmid" yaml:"pmid"`
	Kind            string            `json:"kind" yaml:"kind"`
	Title           string            `json:"title" yaml:"title"`
	Abstract        string            `json:"abstract" yaml:"abstract"`
	Authors         []string          `json:"authors" yaml:"authors"`
	PublicationDate string            `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	Keywords        []string          `json:"keywords" yaml:"keywords"`
	Journal         string            `json:"journal,omitempty" yaml:"journal,omitempty"`
	DOI             string            `json:"doi,omitempty" yaml:"doi,omitempty"`
	Copyright       string            `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	Sections        map[string]string `json:"sections,omitempty" yaml:"sections,omitempty"`
}

const (
	KindJournalArticle = "article"
	KindBookArticle    = "book"
)
