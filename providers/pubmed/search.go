package pubmed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pubmed-loader/providers"
)

// searchWindowLimit ist die Obergrenze, bis zu der ESearch IDs einer Anfrage ausliefert.
// Als var deklariert, damit Tests die Fensterteilung mit kleinen Datenmengen prüfen können.
var searchWindowLimit = 9999

// earliestPublication ist der Beginn des ersten Datumsfensters.
var earliestPublication = time.Date(1700, time.January, 1, 0, 0, 0, 0, time.UTC)

const pdatLayout = "2006/01/02"

// Search ermittelt die Trefferzahl und sammelt die PMIDs.
//
// Passt die Trefferliste unter die ESearch-Grenze und ist keine Begrenzung aktiv,
// wird direkt geblättert. Andernfalls werden Publikationsdatumsfenster vom ältesten
// an durchlaufen. Ein Fenster wird halbiert, solange es über der ESearch-Grenze oder
// über der verbleibenden Begrenzung liegt. Eine Begrenzung liefert so die ältesten Treffer.
func (f *Fetcher) Search(ctx context.Context, req providers.SearchRequest) (*providers.SearchResult, error) {
	log := f.Logger.With(zap.String("term", req.Term))
	log.Info("Starte PubMed ESearch.")

	count, _, err := f.esearch(ctx, req.Term, req.Contact, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("esearch count: %w", err)
	}

	want := count
	if req.MaxResults > 0 && req.MaxResults < want {
		want = req.MaxResults
	}
	if want == 0 {
		log.Info("PubMed ESearch ohne Treffer.")
		return &providers.SearchResult{IDs: []string{}, Count: count}, nil
	}

	var ids []string
	if want == count && count <= searchWindowLimit {
		ids, err = f.collectIDs(ctx, req.Term, req.Contact, want)
	} else {
		now := time.Now().UTC()
		full := dateWindow{
			start: earliestPublication,
			end:   time.Date(now.Year()+1, time.December, 31, 0, 0, 0, 0, time.UTC),
		}
		ids, err = f.collectWindow(ctx, req, full, want)
	}
	if err != nil {
		return nil, err
	}

	ids = dedupe(ids)
	if len(ids) > want {
		ids = ids[:want]
	}
	log.Info("PubMed ESearch abgeschlossen", zap.Int("count", count), zap.Int("ids", len(ids)))
	return &providers.SearchResult{IDs: ids, Count: count}, nil
}

// collectWindow sammelt bis zu remaining IDs aus einem Datumsfenster.
func (f *Fetcher) collectWindow(ctx context.Context, req providers.SearchRequest, w dateWindow, remaining int) ([]string, error) {
	term := w.query(req.Term)
	n, _, err := f.esearch(ctx, term, req.Contact, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("esearch count for %s: %w", w, err)
	}
	if n == 0 {
		return nil, nil
	}

	// ESearch sortiert innerhalb eines Fensters die neuesten zuerst; ein Fenster mit
	// mehr Treffern als noch benötigt wird daher weiter geteilt.
	if (n <= searchWindowLimit && n <= remaining) || w.singleDay() {
		if n > searchWindowLimit {
			f.Logger.Warn("Datumsfenster überschreitet die ESearch-Grenze und lässt sich nicht weiter teilen",
				zap.String("window", w.String()), zap.Int("count", n), zap.Int("limit", searchWindowLimit))
			n = searchWindowLimit
		}
		return f.collectIDs(ctx, term, req.Contact, min(n, remaining))
	}

	first, second := w.split()
	f.Logger.Debug("Teile Datumsfenster", zap.String("window", w.String()), zap.Int("count", n))
	ids, err := f.collectWindow(ctx, req, first, remaining)
	if err != nil {
		return nil, err
	}
	if len(ids) >= remaining {
		return ids[:remaining], nil
	}
	more, err := f.collectWindow(ctx, req, second, remaining-len(ids))
	if err != nil {
		return nil, err
	}
	return append(ids, more...), nil
}

// collectIDs blättert ESearch-Seiten durch, bis want IDs gesammelt sind.
func (f *Fetcher) collectIDs(ctx context.Context, term, contact string, want int) ([]string, error) {
	pageSize := f.Config.PubMedSearchPageSize
	ids := make([]string, 0, want)
	for len(ids) < want {
		retmax := min(pageSize, want-len(ids))
		_, page, err := f.esearch(ctx, term, contact, len(ids), retmax)
		if err != nil {
			return nil, fmt.Errorf("esearch page at %d: %w", len(ids), err)
		}
		if len(page) == 0 {
			break
		}
		ids = append(ids, page...)
	}
	return ids, nil
}

// dateWindow ist ein geschlossenes Intervall von Publikationstagen.
type dateWindow struct {
	start, end time.Time
}

func (w dateWindow) String() string {
	return w.start.Format(pdatLayout) + "-" + w.end.Format(pdatLayout)
}

func (w dateWindow) query(term string) string {
	return fmt.Sprintf(`(%s) AND ("%s"[PDAT] : "%s"[PDAT])`, term, w.start.Format(pdatLayout), w.end.Format(pdatLayout))
}

func (w dateWindow) singleDay() bool {
	return !w.end.After(w.start)
}

// split halbiert das Fenster; die erste Hälfte enthält den Mitteltag.
func (w dateWindow) split() (dateWindow, dateWindow) {
	// Über Unix-Sekunden, da time.Duration nur ~292 Jahre fasst.
	mid := time.Unix((w.start.Unix()+w.end.Unix())/2, 0).UTC()
	mid = time.Date(mid.Year(), mid.Month(), mid.Day(), 0, 0, 0, 0, time.UTC)
	return dateWindow{start: w.start, end: mid}, dateWindow{start: mid.AddDate(0, 0, 1), end: w.end}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
