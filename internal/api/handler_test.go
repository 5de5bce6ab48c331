package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/internal/illustration"
	"github.com/yegors/co-atis/internal/pipeline"
	"github.com/yegors/co-atis/internal/storage/sqlite"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/internal/weather"
	"github.com/yegors/co-atis/pkg/logger"
)

type fakeProcessor struct {
	result *pipeline.Result
	err    error
	calls  int
	code   string
	status pipeline.Status
}

func (f *fakeProcessor) Process(ctx context.Context, airportCode string) (*pipeline.Result, error) {
	f.calls++
	f.code = airportCode
	return f.result, f.err
}

func (f *fakeProcessor) Status() pipeline.Status {
	return f.status
}

type fakeAirports []frequencies.Frequency

func (f fakeAirports) All() []frequencies.Frequency { return f }

func (f fakeAirports) Resolve(code string) (frequencies.Frequency, error) {
	for _, freq := range f {
		if freq.Airport == code {
			return freq, nil
		}
	}
	return frequencies.Frequency{}, frequencies.ErrUnknownAirport
}

type fakeImages struct {
	records   []*sqlite.ImageRecord
	err       error
	lastLimit int
}

func (f *fakeImages) GetRecentImages(airport string, limit int) ([]*sqlite.ImageRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []*sqlite.ImageRecord
	for _, record := range f.records {
		if record.Airport == airport && len(out) < limit {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeImages) CountImages(airport string) (int, error) {
	count := 0
	for _, record := range f.records {
		if record.Airport == airport {
			count++
		}
	}
	return count, f.err
}

func testResult(withImage bool) *pipeline.Result {
	result := &pipeline.Result{
		SessionID:   "session-1",
		AirportCode: "RCTP",
		AirportName: "Taoyuan International Airport",
		Transcript:  &transcription.Transcript{Text: "TAOYUAN INFORMATION X", Truncated: true},
		Report: &weather.Report{
			InfoCode: weather.Present("X-ray"),
			Runway:   weather.Present("05L"),
		},
		Outcome:    pipeline.OutcomeDegraded,
		StartedAt:  time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 10, 19, 6, 2, 0, 0, time.UTC),
	}
	if withImage {
		result.Outcome = pipeline.OutcomeCompleted
		result.Image = &illustration.ImageRef{URL: "/images/weather_RCTP_1.png"}
	}
	return result
}

func newTestServer(t *testing.T, processor *fakeProcessor, options Options) *httptest.Server {
	t.Helper()
	airports := fakeAirports{
		{Airport: "RCSS", Name: "Taipei Songshan Airport"},
		{Airport: "RCTP", Name: "Taoyuan International Airport"},
	}
	server := httptest.NewServer(NewRouter(processor, airports, options, logger.NewNop()).Routes())
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestProcessATISSuccess(t *testing.T) {
	processor := &fakeProcessor{result: testResult(true)}
	server := newTestServer(t, processor, Options{})

	for _, path := range []string{"/api/process_atis", "/api/v1/atis"} {
		t.Run(path, func(t *testing.T) {
			resp, body := post(t, server.URL+path, `{"airport_code": "rctp"}`)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, "RCTP", processor.code)

			assert.Equal(t, "success", body["status"])
			assert.Equal(t, "RCTP", body["airport_code"])
			assert.Equal(t, "Taoyuan International Airport", body["airport_name"])
			assert.Equal(t, "TAOYUAN INFORMATION X", body["original_text"])
			assert.Equal(t, "/images/weather_RCTP_1.png", body["image_url"])
			assert.Equal(t, true, body["truncated"])
			assert.Equal(t, "2026-10-19T06:02:00Z", body["timestamp"])

			translation, ok := body["translation"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "05L", translation["runway"])
			assert.Contains(t, translation, "wind")
			assert.Nil(t, translation["wind"])
		})
	}
}

func TestProcessATISMissingImageIsNull(t *testing.T) {
	processor := &fakeProcessor{result: testResult(false)}
	server := newTestServer(t, processor, Options{})

	resp, body := post(t, server.URL+"/api/process_atis", `{"airport_code": "RCTP"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Contains(t, body, "image_url")
	assert.Nil(t, body["image_url"])
	assert.Equal(t, "degraded", body["outcome"])
}

func TestProcessATISBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"not json", `airport=RCTP`, "Invalid request body"},
		{"missing code", `{}`, "airport_code is required"},
		{"malformed code", `{"airport_code": "RC-1"}`, "Unsupported airport code: RC-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{}
			server := newTestServer(t, processor, Options{})

			resp, body := post(t, server.URL+"/api/process_atis", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.message, body["message"])
			assert.Zero(t, processor.calls)
		})
	}
}

func TestProcessATISErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown airport", &pipeline.Error{Kind: pipeline.KindCaller, Message: "Unsupported airport code", Err: frequencies.ErrUnknownAirport}, http.StatusBadRequest},
		{"busy", &pipeline.Error{Kind: pipeline.KindCaller, Message: "busy", Err: pipeline.ErrBusy}, http.StatusConflict},
		{"upstream", &pipeline.Error{Kind: pipeline.KindUpstream, Message: "upstream"}, http.StatusBadGateway},
		{"timeout", &pipeline.Error{Kind: pipeline.KindTimeout, Message: "timeout"}, http.StatusGatewayTimeout},
		{"content", &pipeline.Error{Kind: pipeline.KindContent, Message: "content"}, http.StatusInternalServerError},
		{"internal", &pipeline.Error{Kind: pipeline.KindInternal, Message: "internal"}, http.StatusInternalServerError},
		{"unclassified", fmt.Errorf("raw failure with secrets"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &fakeProcessor{err: tt.err}
			server := newTestServer(t, processor, Options{})

			resp, body := post(t, server.URL+"/api/process_atis", `{"airport_code": "ZZZZ"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["message"])
			assert.NotContains(t, body["message"], "secrets")
		})
	}
}

func TestUnknownAirportMessageNamesCode(t *testing.T) {
	processor := &fakeProcessor{err: &pipeline.Error{Kind: pipeline.KindCaller, Message: "Unsupported airport code", Err: frequencies.ErrUnknownAirport}}
	server := newTestServer(t, processor, Options{})

	_, body := post(t, server.URL+"/api/process_atis", `{"airport_code": "ZZZZ"}`)
	assert.Equal(t, "Unsupported airport code: ZZZZ", body["message"])
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t, &fakeProcessor{}, Options{AIConfigured: true})

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.AIConfigured)
	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestGetAirports(t *testing.T) {
	server := newTestServer(t, &fakeProcessor{}, Options{})

	resp, err := http.Get(server.URL + "/api/airports")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Airports []AirportResponse `json:"airports"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []AirportResponse{
		{Code: "RCSS", Name: "Taipei Songshan Airport"},
		{Code: "RCTP", Name: "Taoyuan International Airport"},
	}, body.Airports)
}

func TestGetStatus(t *testing.T) {
	processor := &fakeProcessor{status: pipeline.Status{
		Busy:    true,
		Current: &pipeline.Session{ID: "s1", Airport: "RCKH", Stage: pipeline.StageTranscribing},
	}}
	server := newTestServer(t, processor, Options{})

	resp, err := http.Get(server.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body pipeline.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Busy)
	require.NotNil(t, body.Current)
	assert.Equal(t, pipeline.StageTranscribing, body.Current.Stage)
	assert.Equal(t, "RCKH", body.Current.Airport)
}

func TestStaticAndImageRoutes(t *testing.T) {
	staticDir := t.TempDir()
	imagesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>co-atis</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "weather_RCTP_1.png"), []byte("png"), 0o644))

	server := newTestServer(t, &fakeProcessor{}, Options{
		StaticFilesDir:  staticDir,
		ImagesDir:       imagesDir,
		ImagesURLPrefix: "/images",
	})

	get := func(path string) (int, string) {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(data)
	}

	status, body := get("/images/weather_RCTP_1.png")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "png", body)

	status, _ = get("/images/missing.png")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get("/images/")
	assert.Equal(t, http.StatusNotFound, status, "no directory listing")

	status, body = get("/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "co-atis")

	status, body = get("/some/front-end/route")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "co-atis")
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, &fakeProcessor{}, Options{CORSAllowedOrigins: []string{"https://atis.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/process_atis", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://atis.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://atis.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestGetImages(t *testing.T) {
	created := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	images := &fakeImages{records: []*sqlite.ImageRecord{
		{ID: 3, Airport: "RCTP", FileName: "weather_RCTP_3.png", SizeBytes: 300, CreatedAt: created},
		{ID: 2, Airport: "RCTP", FileName: "weather_RCTP_2.png", SizeBytes: 200, CreatedAt: created},
		{ID: 1, Airport: "RCSS", FileName: "weather_RCSS_1.png", SizeBytes: 100, CreatedAt: created},
	}}
	server := newTestServer(t, &fakeProcessor{}, Options{ImagesURLPrefix: "/images", Images: images})

	getJSON := func(path string, out any) int {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
		return resp.StatusCode
	}

	var body ImageListResponse
	assert.Equal(t, http.StatusOK, getJSON("/api/images/rctp?limit=1", &body))
	assert.Equal(t, "RCTP", body.AirportCode)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Images, 1)
	assert.Equal(t, "/images/weather_RCTP_3.png", body.Images[0].URL)
	assert.Equal(t, "2026-10-19T06:00:00Z", body.Images[0].CreatedAt)

	assert.Equal(t, http.StatusOK, getJSON("/api/v1/images/RCTP?limit=500", &body))
	assert.Equal(t, maxImageLimit, images.lastLimit)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON("/api/images/ZZZZ", &errBody))
	assert.Equal(t, "Unsupported airport code: ZZZZ", errBody.Message)

	assert.Equal(t, http.StatusBadRequest, getJSON("/api/images/RCTP?limit=0", &errBody))

	images.err = errors.New("database is locked")
	assert.Equal(t, http.StatusInternalServerError, getJSON("/api/images/RCTP", &errBody))
	assert.NotContains(t, errBody.Message, "locked")
}

func TestImageListingDisabledWithoutRegistry(t *testing.T) {
	server := newTestServer(t, &fakeProcessor{}, Options{})

	resp, err := http.Get(server.URL + "/api/images/RCTP")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
