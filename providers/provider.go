package providers

import (
	"context"
	"errors"

	"pubmed-loader/models"
)

// ErrMissingIdentifier wird von Record.Assemble geliefert, wenn ein Datensatz keine ID trägt.
// Solche Datensätze werden übersprungen und gezählt, der Job läuft weiter.
var ErrMissingIdentifier = errors.New("record has no identifier")

// SearchRequest beschreibt eine Suche bei einem Provider.
type SearchRequest struct {
	Term string
	// Contact wird an den Dienst als Kontaktadresse weitergegeben.
	Contact string
	// MaxResults begrenzt die Trefferliste; 0 bedeutet alle Treffer.
	MaxResults int
}

// SearchResult enthält die geordneten IDs einer Suche.
type SearchResult struct {
	IDs []string
	// Count ist die Gesamtzahl der Treffer laut Dienst, unabhängig von MaxResults.
	Count int
}

// Record ist ein Rohdatensatz, wie ihn der Provider geliefert hat.
type Record interface {
	Assemble() (models.Article, error)
}

// Provider ist das Interface, das jede Literaturdatenbank implementieren muss.
type Provider interface {
	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string

	// Search liefert alle (ggf. begrenzten) Treffer-IDs in der Reihenfolge des Dienstes.
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)

	// FetchBatch holt die Rohdatensätze zu höchstens BatchSize() IDs mit einer Anfrage.
	FetchBatch(ctx context.Context, ids []string, contact string) ([]Record, error)

	// BatchSize ist die Anzahl IDs pro FetchBatch-Aufruf.
	BatchSize() int
}
