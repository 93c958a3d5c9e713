package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/irrigation-assistant/internal/advisor"
	"github.com/i474232898/irrigation-assistant/internal/apperr"
	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

var defaultLoc = weather.Location{Latitude: 36.8065, Longitude: 10.1815}

type stubAdvisor struct {
	rec      advisor.Recommendation
	err      error
	latest   advisor.Recommendation
	batch    weather.Batch
	gotLoc   weather.Location
	gotHours time.Duration
}

func (s *stubAdvisor) Run(_ context.Context, loc weather.Location) (advisor.Recommendation, error) {
	s.gotLoc = loc
	return s.rec, s.err
}

func (s *stubAdvisor) Latest() (advisor.Recommendation, error) {
	if s.latest.Text == "" {
		return advisor.Recommendation{}, apperr.New(apperr.CodeStoreMissing, "Aucune recommandation enregistrée.", "", nil)
	}
	return s.latest, nil
}

func (s *stubAdvisor) Upcoming(_ context.Context, horizon time.Duration) (weather.Batch, error) {
	s.gotHours = horizon
	if s.batch.Len() == 0 {
		return weather.Batch{}, apperr.New(apperr.CodeNoUpcomingForecast, "none", "", weather.ErrNoUpcomingForecast)
	}
	return s.batch, nil
}

func newTestApp(t *testing.T, adv *stubAdvisor) (*fiber.App, *livestate.Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := livestate.NewHub(livestate.HubOptions{Metrics: livestate.NewMetrics(reg)})
	t.Cleanup(hub.Close)
	state := livestate.NewService(livestate.NewStore(), hub, nil, nil)

	app := NewApp(Deps{
		Advisor:         adv,
		State:           state,
		DefaultLocation: defaultLoc,
		Version:         "1.0.0",
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, []string{"http://localhost:8000", "null"})
	return app, state
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request, out any) *http.Response {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	if out != nil {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp
}

type errorResponse struct {
	Error struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Help     string `json:"help"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})

	var body map[string]string
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/health", nil), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok", "version": "1.0.0"}, body)
}

func TestGetRecommendation(t *testing.T) {
	ts := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	adv := &stubAdvisor{rec: advisor.Recommendation{Text: "Arrosez la menthe.", Timestamp: ts}}
	app, _ := newTestApp(t, adv)

	var body map[string]string
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/get-recommendation?lat=35.5&lon=11", nil), &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Arrosez la menthe.", body["recommendation"])
	assert.Equal(t, "2024-06-01T06:00:00Z", body["timestamp"])
	assert.Equal(t, weather.Location{Latitude: 35.5, Longitude: 11}, adv.gotLoc)

	doJSON(t, app, httptest.NewRequest(http.MethodGet, "/get-recommendation", nil), nil)
	assert.Equal(t, defaultLoc, adv.gotLoc)
}

func TestGetRecommendationValidation(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})

	for _, q := range []string{"lat=91", "lon=-181", "lat=abc"} {
		var body errorResponse
		resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/get-recommendation?"+q, nil), &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, string(apperr.CodeValidation), body.Error.Category, q)
	}
}

func TestGetRecommendationErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{
			name:     "missing credential",
			err:      apperr.New(apperr.CodeCredentialMissing, "OPENAI_API_KEY non défini sur le serveur.", "Créez un fichier .env avec OPENAI_API_KEY=votre_cle", nil),
			status:   http.StatusInternalServerError,
			category: "credential_missing",
		},
		{
			name:     "weather upstream",
			err:      apperr.New(apperr.CodeUpstreamWeather, "Impossible de récupérer les données météo.", "", weather.ErrTransport),
			status:   http.StatusBadGateway,
			category: "upstream_weather_unavailable",
		},
		{
			name:     "advice upstream",
			err:      apperr.New(apperr.CodeUpstreamAdvice, "L'IA n'a pas renvoyé de recommandation.", "", nil),
			status:   http.StatusBadGateway,
			category: "upstream_advice_unavailable",
		},
		{
			name:     "unexpected",
			err:      errors.New("boom"),
			status:   http.StatusInternalServerError,
			category: "internal_unexpected",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, _ := newTestApp(t, &stubAdvisor{err: tc.err})

			var body errorResponse
			resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/get-recommendation", nil), &body)

			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.category, body.Error.Category)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestLatestRecommendation(t *testing.T) {
	adv := &stubAdvisor{}
	app, _ := newTestApp(t, adv)

	var missing errorResponse
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/recommendation", nil), &missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "store_missing", missing.Error.Category)

	adv.latest = advisor.Recommendation{Text: "Pas d'arrosage aujourd'hui.", Timestamp: time.Now()}
	var body map[string]any
	resp = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/recommendation", nil), &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pas d'arrosage aujourd'hui.", body["recommendation"])
}

func TestForecast(t *testing.T) {
	fetched := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	adv := &stubAdvisor{batch: weather.Batch{
		FetchedAt: fetched,
		Records:   []weather.ForecastRecord{{LocationName: "Tunis", ForecastTime: fetched.Add(3 * time.Hour), FetchedAt: fetched}},
	}}
	app, _ := newTestApp(t, adv)

	var body struct {
		FetchedAt time.Time                `json:"fetched_at"`
		Records   []weather.ForecastRecord `json:"records"`
	}
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/forecast?hours=24", nil), &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 24*time.Hour, adv.gotHours)
	assert.True(t, fetched.Equal(body.FetchedAt))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "Tunis", body.Records[0].LocationName)

	resp = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/forecast?hours=500", nil), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	adv.batch = weather.Batch{}
	var empty errorResponse
	resp = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/forecast", nil), &empty)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_upcoming_forecast", empty.Error.Category)
}

func TestState(t *testing.T) {
	app, state := newTestApp(t, &stubAdvisor{})

	var snap livestate.DeviceState
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/state", nil), &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, livestate.DefaultState(), snap)

	req := httptest.NewRequest(http.MethodPost, "/state", strings.NewReader(`{"humidity":30,"bogus":1}`))
	req.Header.Set("Content-Type", "application/json")
	var updated struct {
		Updated map[string]any `json:"updated"`
	}
	resp = doJSON(t, app, req, &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"humidity": 30.0}, updated.Updated)
	assert.Equal(t, livestate.AdviceIrrigate, state.Snapshot().PumpAdvice)

	req = httptest.NewRequest(http.MethodPost, "/state", strings.NewReader(`not json`))
	var bad errorResponse
	resp = doJSON(t, app, req, &bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(apperr.CodeValidation), bad.Error.Category)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestPanicIsRecovered(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})
	app.Get("/boom", func(c *fiber.Ctx) error { panic("kaboom") })

	var body errorResponse
	resp := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/boom", nil), &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_unexpected", body.Error.Category)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "irrigation_observers")
}

func TestCORS(t *testing.T) {
	app, _ := newTestApp(t, &stubAdvisor{})

	for _, origin := range []string{"http://localhost:8000", "null"} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", origin)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, origin, resp.Header.Get("Access-Control-Allow-Origin"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
