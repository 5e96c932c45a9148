package pubmed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-loader/config"
	"pubmed-loader/providers"
)

var pdatRange = regexp.MustCompile(`"(\d{4}/\d{2}/\d{2})"\[PDAT\] : "(\d{4}/\d{2}/\d{2})"\[PDAT\]`)

type fakeRecord struct {
	pmid string
	date time.Time
}

// fakeEutils answers esearch and efetch the way NCBI does, over an in-memory record list.
type fakeEutils struct {
	records []fakeRecord

	efetchFailures int32
	efetchStatus   int
	efetchBody     string
	esearchError   string

	esearchCalls atomic.Int32
	efetchCalls  atomic.Int32
	lastContact  atomic.Value
}

func (f *fakeEutils) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
		f.esearchCalls.Add(1)
		f.lastContact.Store(r.URL.Query().Get("email"))
		f.esearch(w, r)
	case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
		n := f.efetchCalls.Add(1)
		if n <= f.efetchFailures {
			status := f.efetchStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			if f.efetchBody != "" {
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, f.efetchBody)
				return
			}
			w.WriteHeader(status)
			return
		}
		_ = r.ParseForm()
		writeArticleSet(w, strings.Split(r.PostForm.Get("id"), ","))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeEutils) esearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if f.esearchError != "" {
		fmt.Fprintf(w, `{"esearchresult":{"ERROR":%q}}`, f.esearchError)
		return
	}

	matches := f.records
	if m := pdatRange.FindStringSubmatch(q.Get("term")); m != nil {
		from, _ := time.Parse(pdatLayout, m[1])
		to, _ := time.Parse(pdatLayout, m[2])
		matches = nil
		for _, rec := range f.records {
			if !rec.date.Before(from) && !rec.date.After(to) {
				matches = append(matches, rec)
			}
		}
	}

	retstart, _ := strconv.Atoi(q.Get("retstart"))
	retmax, _ := strconv.Atoi(q.Get("retmax"))
	ids := []string{}
	for i := retstart; i < len(matches) && i < retstart+retmax; i++ {
		ids = append(ids, matches[i].pmid)
	}

	var resp ESearchResponse
	resp.ESearchResult.Count = strconv.Itoa(len(matches))
	resp.ESearchResult.IdList = ids
	_ = json.NewEncoder(w).Encode(resp)
}

func writeArticleSet(w http.ResponseWriter, ids []string) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" ?><PubmedArticleSet>`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<PubmedArticle><MedlineCitation><PMID Version="1">%s</PMID><Article><ArticleTitle>Title %s</ArticleTitle></Article></MedlineCitation></PubmedArticle>`, id, id)
	}
	b.WriteString(`</PubmedArticleSet>`)
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprint(w, b.String())
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		PubMedBaseURL:           baseURL,
		PubMedTool:              "test",
		PubMedRequestsPerSecond: 1000,
		PubMedSearchPageSize:    2,
		PubMedBatchSize:         3,
		PubMedMaxRetries:        2,
		PubMedRetryBaseDelay:    time.Millisecond,
		PubMedRequestTimeout:    5 * time.Second,
	}
}

func newTestFetcher(t *testing.T, fake *fakeEutils) *Fetcher {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	return NewFetcher(testConfig(ts.URL), zap.NewNop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newestFirst mirrors PubMed's default "most recent" ordering. The four oldest
// records sit decades away from the two newest so no date window mixes them.
func newestFirst() []fakeRecord {
	return []fakeRecord{
		{"6", day(2022, time.December, 12)},
		{"5", day(2020, time.October, 10)},
		{"4", day(1956, time.July, 7)},
		{"3", day(1954, time.March, 3)},
		{"2", day(1952, time.June, 15)},
		{"1", day(1950, time.January, 1)},
	}
}

func TestSearch_PagesThroughResults(t *testing.T) {
	fake := &fakeEutils{records: newestFirst()[:5]}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "brain", Contact: "a@b.com"})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Count)
	assert.Equal(t, []string{"6", "5", "4", "3", "2"}, res.IDs)
	// one count request plus three pages of two
	assert.Equal(t, int32(4), fake.esearchCalls.Load())
	assert.Equal(t, "a@b.com", fake.lastContact.Load())
}

func TestSearch_NoMatches(t *testing.T) {
	fake := &fakeEutils{}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "nothing", Contact: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Empty(t, res.IDs)
}

func TestSearch_CapWalksDateWindowsOldestFirst(t *testing.T) {
	old := searchWindowLimit
	searchWindowLimit = 3
	defer func() { searchWindowLimit = old }()

	fake := &fakeEutils{records: newestFirst()}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "brain", Contact: "a@b.com", MaxResults: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Count)
	assert.Len(t, res.IDs, 4)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4"}, res.IDs)
}

func TestSearch_CapReturnsOldestMatches(t *testing.T) {
	fake := &fakeEutils{records: newestFirst()}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "brain", Contact: "a@b.com", MaxResults: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Count)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4"}, res.IDs)
}

func TestSearch_CapSplitsWindowsBelowLimit(t *testing.T) {
	old := searchWindowLimit
	searchWindowLimit = 4
	defer func() { searchWindowLimit = old }()

	fake := &fakeEutils{records: newestFirst()}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "brain", Contact: "a@b.com", MaxResults: 2})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "2"}, res.IDs)
}

func TestSearch_SplitsWindowsAboveLimit(t *testing.T) {
	old := searchWindowLimit
	searchWindowLimit = 3
	defer func() { searchWindowLimit = old }()

	fake := &fakeEutils{records: newestFirst()}
	f := newTestFetcher(t, fake)

	res, err := f.Search(context.Background(), providers.SearchRequest{Term: "brain", Contact: "a@b.com"})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Count)
	assert.ElementsMatch(t, []string{"1", "2", "3", "4", "5", "6"}, res.IDs)
}

func TestSearch_RejectedQueryIsNotRetried(t *testing.T) {
	fake := &fakeEutils{esearchError: "Invalid query"}
	f := newTestFetcher(t, fake)

	_, err := f.Search(context.Background(), providers.SearchRequest{Term: "((", Contact: "a@b.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid query")
	assert.Equal(t, int32(1), fake.esearchCalls.Load())
}

func TestFetchBatch_ReturnsRecordsInOrder(t *testing.T) {
	fake := &fakeEutils{}
	f := newTestFetcher(t, fake)

	records, err := f.FetchBatch(context.Background(), []string{"10", "11", "12"}, "a@b.com")
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, want := range []string{"10", "11", "12"} {
		art, err := records[i].Assemble()
		require.NoError(t, err)
		assert.Equal(t, want, art.PMID)
		assert.Equal(t, "Title "+want, art.Title)
	}
}

func TestFetchBatch_RetriesTransientFailures(t *testing.T) {
	fake := &fakeEutils{efetchFailures: 2}
	f := newTestFetcher(t, fake)

	records, err := f.FetchBatch(context.Background(), []string{"10"}, "a@b.com")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), fake.efetchCalls.Load())
}

func TestFetchBatch_RetriesMalformedPayload(t *testing.T) {
	fake := &fakeEutils{efetchFailures: 1, efetchBody: "<html>Service unavailable"}
	f := newTestFetcher(t, fake)

	records, err := f.FetchBatch(context.Background(), []string{"10"}, "a@b.com")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(2), fake.efetchCalls.Load())
}

func TestFetchBatch_ExhaustsRetries(t *testing.T) {
	fake := &fakeEutils{efetchFailures: 100, efetchStatus: http.StatusServiceUnavailable}
	f := newTestFetcher(t, fake)

	_, err := f.FetchBatch(context.Background(), []string{"10"}, "a@b.com")
	require.Error(t, err)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
	// 1 initial + 2 retries
	assert.Equal(t, int32(3), fake.efetchCalls.Load())
}

func TestFetchBatch_ClientErrorIsNotRetried(t *testing.T) {
	fake := &fakeEutils{efetchFailures: 100, efetchStatus: http.StatusBadRequest}
	f := newTestFetcher(t, fake)

	_, err := f.FetchBatch(context.Background(), []string{"10"}, "a@b.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.efetchCalls.Load())
}

func TestFetchBatch_ContextCancelled(t *testing.T) {
	fake := &fakeEutils{}
	f := newTestFetcher(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchBatch(ctx, []string{"10"}, "a@b.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseArticleSet_RejectsNonArticleSet(t *testing.T) {
	_, err := parseArticleSet([]byte(`<eFetchResult><ERROR>Unable to obtain query</ERROR></eFetchResult>`))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = parseArticleSet([]byte(`{"not":"xml"}`))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDateWindowSplit(t *testing.T) {
	w := dateWindow{start: day(2000, time.January, 1), end: day(2000, time.January, 2)}
	first, second := w.split()
	assert.True(t, first.singleDay())
	assert.Equal(t, day(2000, time.January, 1), first.start)
	assert.Equal(t, day(2000, time.January, 2), second.start)
	assert.True(t, second.singleDay())

	q := first.query("brain")
	assert.Equal(t, `(brain) AND ("2000/01/01"[PDAT] : "2000/01/01"[PDAT])`, q)
}
