// Package advisor produces irrigation recommendations from the forecast log
// and answers chat questions from observers.
package advisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/irrigation-assistant/internal/advice"
	"github.com/i474232898/irrigation-assistant/internal/apperr"
	"github.com/i474232898/irrigation-assistant/internal/store"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

// Recommendation is one generated piece of advice.
type Recommendation struct {
	Text      string    `json:"recommendation"`
	Timestamp time.Time `json:"timestamp"`
}

// Ingestion fetches and persists forecast batches. *weather.Service implements it.
type Ingestion interface {
	CheckCredentials() error
	FetchBatch(ctx context.Context, loc weather.Location) (weather.Batch, error)
	Append(ctx context.Context, batch weather.Batch) error
}

// RecommendationStore keeps the latest recommendation text.
type RecommendationStore interface {
	Save(text string) error
	Load() (string, time.Time, error)
}

type credentialChecker interface {
	CheckCredentials() error
}

// Options wires an Orchestrator.
type Options struct {
	Ingestion       Ingestion
	Log             weather.ForecastLog
	Generator       advice.Generator
	Recommendations RecommendationStore
	Horizon         time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
	Metrics         *Metrics
}

// Orchestrator runs fetch, append, select, window, generate and persist.
type Orchestrator struct {
	ingest    Ingestion
	log       weather.ForecastLog
	generator advice.Generator
	recs      RecommendationStore
	horizon   time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

func New(opts Options) *Orchestrator {
	if opts.Horizon <= 0 {
		opts.Horizon = weather.DefaultHorizon
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		ingest:    opts.Ingestion,
		log:       opts.Log,
		generator: opts.Generator,
		recs:      opts.Recommendations,
		horizon:   opts.Horizon,
		now:       opts.Now,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

const (
	outcomeOK          = "ok"
	outcomeCredential  = "credential_missing"
	outcomeWeather     = "weather_error"
	outcomeNoForecast  = "no_forecast"
	outcomeAdvice      = "advice_error"
	outcomeStoreErrors = "store_error"
)

// Run fetches a fresh batch for loc and turns its upcoming records into a
// persisted recommendation. A failed append is logged and the run continues
// with the fetched batch.
func (o *Orchestrator) Run(ctx context.Context, loc weather.Location) (Recommendation, error) {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID, "location", loc.Key())

	if err := o.checkCredentials(); err != nil {
		o.metrics.run(outcomeCredential)
		return Recommendation{}, err
	}

	batch, err := o.ingest.FetchBatch(ctx, loc)
	if err != nil {
		logger.ErrorContext(ctx, "forecast fetch failed", "error", err)
		o.metrics.run(outcomeWeather)
		return Recommendation{}, weatherError(err)
	}

	appendErr := o.ingest.Append(ctx, batch)
	o.metrics.Append(appendErr)
	if appendErr != nil {
		logger.WarnContext(ctx, "forecast log append failed, continuing with fetched batch", "error", appendErr)
	}

	records := o.recordsWith(ctx, batch, appendErr == nil)
	window, err := weather.LatestWindow(records, o.now(), o.horizon)
	if err != nil || window.Len() == 0 {
		o.metrics.run(outcomeNoForecast)
		return Recommendation{}, noUpcoming(err)
	}

	return o.advise(ctx, logger, window)
}

// Analyze generates a recommendation from what the log already holds.
func (o *Orchestrator) Analyze(ctx context.Context) (Recommendation, error) {
	logger := o.logger.With("run_id", uuid.NewString())

	if err := o.checkAdviceCredentials(); err != nil {
		o.metrics.run(outcomeCredential)
		return Recommendation{}, err
	}

	window, err := o.Upcoming(ctx, o.horizon)
	if err != nil {
		if apperr.Is(err, apperr.CodeNoUpcomingForecast) {
			o.metrics.run(outcomeNoForecast)
		} else {
			o.metrics.run(outcomeStoreErrors)
		}
		return Recommendation{}, err
	}
	return o.advise(ctx, logger, window)
}

// Upcoming returns the latest logged batch restricted to (now, now+horizon].
func (o *Orchestrator) Upcoming(ctx context.Context, horizon time.Duration) (weather.Batch, error) {
	if horizon <= 0 {
		horizon = o.horizon
	}
	records, err := o.log.ReadAll(ctx)
	if err != nil {
		return weather.Batch{}, storeError(err)
	}
	window, err := weather.LatestWindow(records, o.now(), horizon)
	if err != nil || window.Len() == 0 {
		return weather.Batch{}, noUpcoming(err)
	}
	return window, nil
}

// Latest returns the last persisted recommendation.
func (o *Orchestrator) Latest() (Recommendation, error) {
	text, ts, err := o.recs.Load()
	if err != nil {
		if errors.Is(err, store.ErrNoRecommendation) {
			return Recommendation{}, apperr.New(apperr.CodeStoreMissing,
				"Aucune recommandation enregistrée.",
				"Appelez /get-recommendation pour en générer une", err)
		}
		return Recommendation{}, apperr.As(err)
	}
	return Recommendation{Text: text, Timestamp: ts}, nil
}

func (o *Orchestrator) advise(ctx context.Context, logger *slog.Logger, window weather.Batch) (Recommendation, error) {
	text, err := o.generator.Generate(ctx, advice.Request{
		System:      recommendationSystem,
		User:        recommendationPrompt(weather.FormatTable(window.Records)),
		Temperature: recommendationTemperature,
		MaxTokens:   recommendationMaxTokens,
	})
	if err != nil {
		logger.ErrorContext(ctx, "advice generation failed", "error", err)
		if errors.Is(err, advice.ErrCredentialMissing) {
			o.metrics.run(outcomeCredential)
			return Recommendation{}, adviceCredentialError(err)
		}
		o.metrics.run(outcomeAdvice)
		return Recommendation{}, apperr.New(apperr.CodeUpstreamAdvice,
			"L'IA n'a pas renvoyé de recommandation.",
			"Vérifiez la validité de OPENAI_API_KEY et réessayez", err)
	}

	rec := Recommendation{Text: text, Timestamp: o.now().UTC()}
	if err := o.recs.Save(text); err != nil {
		logger.WarnContext(ctx, "saving recommendation failed", "error", err)
	}

	o.metrics.run(outcomeOK)
	logger.InfoContext(ctx, "recommendation generated",
		"fetched_at", window.FetchedAt,
		"records", window.Len(),
	)
	return rec, nil
}

// recordsWith returns the log contents for selection. When the batch could
// not be appended, or the log cannot be read back, batch is merged in so the
// run still sees it.
func (o *Orchestrator) recordsWith(ctx context.Context, batch weather.Batch, appended bool) []weather.ForecastRecord {
	existing, err := o.log.ReadAll(ctx)
	if err != nil {
		return batch.Records
	}
	if appended {
		return existing
	}
	return append(existing, batch.Records...)
}

func (o *Orchestrator) checkCredentials() error {
	if err := o.ingest.CheckCredentials(); err != nil {
		return apperr.New(apperr.CodeCredentialMissing,
			"Clé d'API météo non définie sur le serveur.",
			"Créez un fichier .env avec OPENWEATHERMAP_API_KEY=votre_cle", err)
	}
	return o.checkAdviceCredentials()
}

func (o *Orchestrator) checkAdviceCredentials() error {
	if o.generator == nil {
		return adviceCredentialError(advice.ErrCredentialMissing)
	}
	if cc, ok := o.generator.(credentialChecker); ok {
		if err := cc.CheckCredentials(); err != nil {
			return adviceCredentialError(err)
		}
	}
	return nil
}

func adviceCredentialError(err error) error {
	return apperr.New(apperr.CodeCredentialMissing,
		"OPENAI_API_KEY non défini sur le serveur.",
		"Créez un fichier .env avec OPENAI_API_KEY=votre_cle", err)
}

func weatherError(err error) error {
	if errors.Is(err, weather.ErrCredentialMissing) {
		return apperr.New(apperr.CodeCredentialMissing,
			"Clé d'API météo non définie sur le serveur.",
			"Créez un fichier .env avec OPENWEATHERMAP_API_KEY=votre_cle", err)
	}
	return apperr.New(apperr.CodeUpstreamWeather,
		"Impossible de récupérer les données météo.",
		"Vérifiez votre connexion et la validité de OPENWEATHERMAP_API_KEY", err)
}

func noUpcoming(err error) error {
	if err == nil {
		err = weather.ErrNoUpcomingForecast
	}
	return apperr.New(apperr.CodeNoUpcomingForecast,
		"Aucune prévision à venir dans l'horizon.",
		"Relancez la collecte des prévisions météo", err)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, weather.ErrStoreMissing):
		return apperr.New(apperr.CodeStoreMissing,
			"Le journal des prévisions n'existe pas.",
			"Lancez d'abord une collecte des prévisions (commande fetch)", err)
	case errors.Is(err, weather.ErrStoreEmpty):
		return apperr.New(apperr.CodeStoreEmpty,
			"Le journal des prévisions est vide.",
			"Lancez d'abord une collecte des prévisions (commande fetch)", err)
	default:
		return apperr.New(apperr.CodeInternal,
			"Lecture du journal des prévisions impossible.",
			"Vérifiez les droits d'accès au fichier de journal", err)
	}
}
