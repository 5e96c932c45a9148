package pubmed

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pubmed-loader/config"
	"pubmed-loader/providers"
)

// ErrMalformedResponse markiert eine Antwort, die sich nicht parsen ließ. Sie wird wiederholt.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError ist eine Antwort mit unerwartetem HTTP-Status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Retryable meldet, ob der Status auf ein vorübergehendes Problem hindeutet.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pubmed_requests_total",
		Help: "E-utilities requests by endpoint and outcome.",
	},
	[]string{"endpoint", "outcome"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
}

// Fetcher kapselt die Interaktion mit ESearch und EFetch.
// Ein Fetcher wird von allen Jobs geteilt, damit das Rate-Limit prozessweit gilt.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		client:  &http.Client{Timeout: cfg.PubMedRequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond()), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// BatchSize gibt die Anzahl PMIDs pro EFetch-Anfrage zurück.
func (f *Fetcher) BatchSize() int {
	return f.Config.PubMedBatchSize
}

// FetchBatch holt die vollständigen Datensätze zu den PMIDs mit einer EFetch-Anfrage.
// Transportfehler, 429/5xx und unlesbare Antworten werden mit Backoff wiederholt.
func (f *Fetcher) FetchBatch(ctx context.Context, ids []string, contact string) ([]providers.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	log := f.Logger.With(zap.Int("batch_size", len(ids)), zap.String("first_pmid", ids[0]))

	params := f.baseParams(contact)
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	var records []providers.Record
	err := f.withRetry(ctx, "efetch", func() error {
		body, err := f.request(ctx, "efetch", params, true)
		if err != nil {
			return err
		}
		parsed, err := parseArticleSet(body)
		if err != nil {
			requestsTotal.WithLabelValues("efetch", "malformed").Inc()
			return err
		}
		records = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("efetch for %d ids: %w", len(ids), err)
	}
	log.Debug("EFetch-Batch erhalten", zap.Int("records", len(records)))
	return records, nil
}

// esearch führt eine einzelne ESearch-Anfrage aus.
func (f *Fetcher) esearch(ctx context.Context, term, contact string, retstart, retmax int) (count int, ids []string, err error) {
	params := f.baseParams(contact)
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retstart", strconv.Itoa(retstart))
	params.Set("retmax", strconv.Itoa(retmax))

	err = f.withRetry(ctx, "esearch", func() error {
		body, err := f.request(ctx, "esearch", params, false)
		if err != nil {
			return err
		}
		var resp ESearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			requestsTotal.WithLabelValues("esearch", "malformed").Inc()
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if resp.ESearchResult.Error != "" {
			return backoff.Permanent(fmt.Errorf("esearch rejected query: %s", resp.ESearchResult.Error))
		}
		n, err := strconv.Atoi(resp.ESearchResult.Count)
		if err != nil {
			requestsTotal.WithLabelValues("esearch", "malformed").Inc()
			return fmt.Errorf("%w: count %q", ErrMalformedResponse, resp.ESearchResult.Count)
		}
		count, ids = n, resp.ESearchResult.IdList
		return nil
	})
	return count, ids, err
}

// request schickt eine Anfrage an einen E-utilities-Endpunkt und liefert den Body.
// Fehler, die nicht wiederholt werden sollen, sind mit backoff.Permanent markiert.
func (f *Fetcher) request(ctx context.Context, endpoint string, params url.Values, post bool) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	endpointURL := fmt.Sprintf("%s/%s.fcgi", strings.TrimRight(f.Config.PubMedBaseURL, "/"), endpoint)
	var req *http.Request
	var err error
	if post {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpointURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	f.Logger.Debug("Rufe E-utilities auf", zap.String("endpoint", endpoint), zap.String("url", endpointURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		serr := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: truncate(string(body), 200)}
		if serr.Retryable() {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}
	requestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

// withRetry wiederholt fn mit exponentiellem Backoff, höchstens PubMedMaxRetries Mal.
func (f *Fetcher) withRetry(ctx context.Context, endpoint string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.Config.PubMedRetryBaseDelay
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.Config.PubMedMaxRetries)), ctx)
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, policy, func(err error, wait time.Duration) {
		f.Logger.Warn("E-utilities-Anfrage fehlgeschlagen, neuer Versuch",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

func (f *Fetcher) baseParams(contact string) url.Values {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("tool", f.Config.PubMedTool)
	if contact != "" {
		params.Set("email", contact)
	}
	if f.Config.PubMedAPIKey != "" {
		params.Set("api_key", f.Config.PubMedAPIKey)
	}
	return params
}

// parseArticleSet liest ein PubmedArticleSet-Dokument und behält die Reihenfolge
// von Artikeln und Buchartikeln bei.
func parseArticleSet(body []byte) ([]providers.Record, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	records := []providers.Record{}
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "PubmedArticleSet":
			sawRoot = true
		case "PubmedArticle":
			var a PubmedArticle
			if err := dec.DecodeElement(&a, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			records = append(records, Record{article: &a})
		case "PubmedBookArticle":
			var b PubmedBookArticle
			if err := dec.DecodeElement(&b, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			records = append(records, Record{book: &b})
		case "ERROR":
			msg, _ := innerText(dec)
			return nil, fmt.Errorf("%w: efetch error: %s", ErrMalformedResponse, strings.TrimSpace(msg))
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: no PubmedArticleSet element", ErrMalformedResponse)
	}
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
