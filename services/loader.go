package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pubmed-loader/models"
	"pubmed-loader/providers"
)

// ArtifactKind wählt eines der beiden Artefakte eines Jobs.
type ArtifactKind string

const (
	ArtifactJSON ArtifactKind = "json"
	ArtifactZIP  ArtifactKind = "zip"
)

// FileName gibt den Dateinamen zurück, unter dem das Artefakt ausgeliefert wird.
func (k ArtifactKind) FileName() string {
	return "articles." + string(k)
}

// ArtifactArchive spiegelt fertige Artefakte in einen externen Speicher.
type ArtifactArchive interface {
	Put(ctx context.Context, jobID, name string, data []byte) (string, error)
}

// HistoryRecorder schreibt beendete Jobs in die Suchhistorie.
type HistoryRecorder interface {
	Record(ctx context.Context, job models.Job) error
}

// Loader nimmt Suchen entgegen und führt jede als eigenen Job im Hintergrund aus.
// Fortschritt und Ergebnis werden ausschließlich über den JobStore veröffentlicht.
type Loader struct {
	Store    *JobStore
	Provider providers.Provider
	Logger   *zap.Logger

	// Export erzeugt die Artefakte; Standard ist ExportArticles.
	Export func([]models.Article) ([]byte, []byte, error)
	// Archive und History sind optional.
	Archive ArtifactArchive
	History HistoryRecorder

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewLoader erstellt einen Loader, der Jobs im übergebenen Store verwaltet.
func NewLoader(store *JobStore, provider providers.Provider, logger *zap.Logger) *Loader {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Loader{
		Store:    store,
		Provider: provider,
		Logger:   logger,
		Export:   ExportArticles,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create prüft die Anfrage und legt einen Job im Zustand Pending an, ohne ihn zu starten.
// Ungültige Anfragen liefern einen *models.ValidationError und erzeugen keinen Job.
func (l *Loader) Create(q models.SearchQuery) (string, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return "", err
	}
	id := l.Store.Create(q)
	jobsSubmitted.Inc()
	l.Logger.Info("Job angelegt", zap.String("job_id", id), zap.String("term", q.Term), zap.Int("max_results", q.MaxResults))
	return id, nil
}

// Submit legt einen Job an und startet ihn im Hintergrund. Der Aufruf kehrt sofort zurück.
func (l *Loader) Submit(q models.SearchQuery) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return "", ErrShuttingDown
	}

	id, err := l.Create(q)
	if err != nil {
		return "", err
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Run(l.ctx, id)
	}()
	return id, nil
}

// Status liefert den aktuellen Zustand eines Jobs.
func (l *Loader) Status(id string) (models.Job, error) {
	return l.Store.Get(id)
}

// Artifact liefert ein Artefakt eines abgeschlossenen Jobs.
func (l *Loader) Artifact(id string, kind ArtifactKind) ([]byte, error) {
	job, err := l.Store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusCompleted || job.Result == nil {
		return nil, ErrNotReady
	}
	switch kind {
	case ArtifactJSON:
		return job.Result.JSON, nil
	case ArtifactZIP:
		return job.Result.ZIP, nil
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
}

// Shutdown nimmt keine neuen Jobs mehr an und wartet auf laufende Jobs.
// Läuft ctx vorher ab, werden die verbleibenden Jobs abgebrochen und enden als Failed.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.cancel(ErrShuttingDown)
		return nil
	case <-ctx.Done():
		l.Logger.Warn("Laufende Jobs werden abgebrochen")
		l.cancel(ErrShuttingDown)
		<-done
		return ctx.Err()
	}
}

// Run führt einen angelegten Job vollständig aus und gibt den Endzustand zurück.
// Fehler landen im Job selbst; nur ein unbekannter Job liefert einen Fehler.
func (l *Loader) Run(ctx context.Context, id string) (models.Job, error) {
	job, err := l.Store.Get(id)
	if err != nil {
		return models.Job{}, err
	}
	log := l.Logger.With(zap.String("job_id", id), zap.String("provider", l.Provider.Name()))

	jobsRunning.Inc()
	defer jobsRunning.Dec()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic im Job", zap.Any("panic", r), zap.Stack("stack"))
				l.fail(ctx, log, id, fmt.Errorf("internal error: %v", r))
			}
		}()
		if err := l.execute(ctx, log, id, job.Query); err != nil {
			l.fail(ctx, log, id, err)
		}
	}()

	return l.Store.Get(id)
}

func (l *Loader) execute(ctx context.Context, log *zap.Logger, id string, q models.SearchQuery) error {
	started := time.Now().UTC()
	if _, err := l.Store.Update(id, func(j *models.Job) {
		j.Status = models.StatusRunning
		j.Phase = models.PhaseSearching
		j.StartedAt = &started
	}); err != nil {
		return err
	}
	log.Info("Job gestartet")

	res, err := l.Provider.Search(ctx, providers.SearchRequest{Term: q.Term, Contact: q.Email, MaxResults: q.MaxResults})
	if err != nil {
		return &RemoteServiceError{Op: "search", Err: err}
	}
	ids := res.IDs
	if q.MaxResults > 0 && len(ids) > q.MaxResults {
		ids = ids[:q.MaxResults]
	}
	total := len(ids)
	if _, err := l.Store.Update(id, func(j *models.Job) {
		j.Total = total
		j.Phase = models.PhaseFetching
	}); err != nil {
		return err
	}
	log.Info("Suche abgeschlossen", zap.Int("matches", res.Count), zap.Int("total", total))

	articles, err := l.fetchAll(ctx, log, id, ids, q.Email)
	if err != nil {
		return err
	}

	if _, err := l.Store.Update(id, func(j *models.Job) { j.Phase = models.PhaseExporting }); err != nil {
		return err
	}
	jsonData, zipData, err := l.Export(articles)
	if err != nil {
		return &ExportError{Err: err}
	}
	result := &models.ResultSet{JSON: jsonData, ZIP: zipData, Articles: len(articles)}
	l.mirror(ctx, log, id, result)

	l.finish(log, id, func(j *models.Job) {
		j.Status = models.StatusCompleted
		j.Result = result
	})
	return nil
}

// fetchAll lädt die IDs in Batches und veröffentlicht nach jedem Batch den Fortschritt.
// Progress zählt verarbeitete IDs; fehlende oder unbrauchbare Datensätze zählen zusätzlich als Skipped.
func (l *Loader) fetchAll(ctx context.Context, log *zap.Logger, id string, ids []string, contact string) ([]models.Article, error) {
	batchSize := l.Provider.BatchSize()
	if batchSize <= 0 {
		batchSize = len(ids)
	}

	articles := make([]models.Article, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(ids))
		batch := ids[start:end]

		records, err := l.Provider.FetchBatch(ctx, batch, contact)
		if err != nil {
			return nil, &RemoteServiceError{Op: fmt.Sprintf("fetch records %d-%d", start+1, end), Err: err}
		}

		added := 0
		for _, rec := range records {
			art, err := rec.Assemble()
			if err != nil {
				log.Warn("Datensatz übersprungen", zap.Error(err))
				continue
			}
			if _, dup := seen[art.PMID]; dup {
				continue
			}
			seen[art.PMID] = struct{}{}
			articles = append(articles, art)
			added++
		}
		skipped := max(len(batch)-added, 0)
		if skipped > 0 {
			log.Warn("Batch unvollständig", zap.Int("requested", len(batch)), zap.Int("assembled", added))
		}
		recordsFetched.Add(float64(added))
		recordsSkipped.Add(float64(skipped))

		if _, err := l.Store.Update(id, func(j *models.Job) {
			j.Progress += len(batch)
			j.Skipped += skipped
		}); err != nil {
			return nil, err
		}
		log.Debug("Batch verarbeitet", zap.Int("progress", end), zap.Int("total", len(ids)))
	}
	return articles, nil
}

// mirror lädt die Artefakte in das Archiv hoch. Fehler werden nur protokolliert,
// die Artefakte im Speicher bleiben maßgeblich.
func (l *Loader) mirror(ctx context.Context, log *zap.Logger, id string, result *models.ResultSet) {
	if l.Archive == nil {
		return
	}
	for _, a := range []struct {
		kind ArtifactKind
		data []byte
		link *string
	}{
		{ArtifactJSON, result.JSON, &result.JSONLink},
		{ArtifactZIP, result.ZIP, &result.ZIPLink},
	} {
		link, err := l.Archive.Put(ctx, id, a.kind.FileName(), a.data)
		if err != nil {
			log.Warn("Artefakt konnte nicht gespiegelt werden", zap.String("artifact", string(a.kind)), zap.Error(err))
			continue
		}
		*a.link = link
	}
}

func (l *Loader) fail(ctx context.Context, log *zap.Logger, id string, err error) {
	if ctx.Err() != nil {
		err = fmt.Errorf("job aborted: %w", context.Cause(ctx))
	}
	log.Error("Job fehlgeschlagen", zap.Error(err))
	l.finish(log, id, func(j *models.Job) {
		j.Status = models.StatusFailed
		j.Error = err.Error()
		j.Result = nil
	})
}

// finish setzt den Endzustand und schreibt den Job in die Historie.
func (l *Loader) finish(log *zap.Logger, id string, mutate func(*models.Job)) {
	finished := time.Now().UTC()
	job, err := l.Store.Update(id, func(j *models.Job) {
		mutate(j)
		j.Phase = ""
		j.FinishedAt = &finished
	})
	if err != nil {
		if !errors.Is(err, ErrJobFinished) {
			log.Error("Endzustand konnte nicht gesetzt werden", zap.Error(err))
		}
		return
	}
	jobsFinished.WithLabelValues(string(job.Status)).Inc()
	log.Info("Job beendet", zap.String("status", string(job.Status)), zap.Int("progress", job.Progress),
		zap.Int("total", job.Total), zap.Int("skipped", job.Skipped))

	if l.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.History.Record(ctx, job); err != nil {
		log.Warn("Suchhistorie konnte nicht geschrieben werden", zap.Error(err))
	}
}
