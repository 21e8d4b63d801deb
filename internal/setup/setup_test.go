package setup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"assistanthub/internal/config"
	"assistanthub/internal/service/huggingface"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func fullEnv() map[string]string {
	env := make(map[string]string)
	for _, k := range config.DefaultRequiredEnv {
		env[k] = "set"
	}
	return env
}

func TestCheckComplete(t *testing.T) {
	res := Check(mapLookup(fullEnv()), config.DefaultRequiredEnv)
	if !res.IsSetupComplete || len(res.MissingKeys) != 0 {
		t.Fatalf("expected complete setup, got %+v", res)
	}
}

func TestCheckReportsMissingAndBlank(t *testing.T) {
	env := fullEnv()
	delete(env, "HF_API_KEY")
	env["APP_URL"] = "  "
	res := Check(mapLookup(env), config.DefaultRequiredEnv)
	if res.IsSetupComplete {
		t.Fatalf("setup should be incomplete")
	}
	if len(res.MissingKeys) != 2 || res.MissingKeys[0] != "HF_API_KEY" || res.MissingKeys[1] != "APP_URL" {
		t.Fatalf("unexpected missing keys %v", res.MissingKeys)
	}
	body, _ := json.Marshal(Check(mapLookup(fullEnv()), config.DefaultRequiredEnv))
	if string(body) != `{"isSetupComplete":true,"missingKeys":[]}` {
		t.Fatalf("unexpected json %s", body)
	}
}

func TestRequireSetupMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	env := fullEnv()
	router.GET("/x", RequireSetup(mapLookup(env), config.DefaultRequiredEnv), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}

	delete(env, "PINECONE_API_KEY")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCheckModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/Vishal3041/falcon_finetuned_llm" {
			w.Write([]byte(`{"loaded":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Model not found"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	checker := NewModelChecker(cfg, huggingface.NewClient(srv.URL, "k", time.Second))
	checker.chatProbe = func(ctx context.Context) error { return errors.New("no key") }

	got := checker.CheckModels(context.Background())
	if got["youtube"].Status != StatusAvailable {
		t.Fatalf("youtube should be available: %+v", got["youtube"])
	}
	if got["chrome"].Status != StatusUnavailable {
		t.Fatalf("chrome should be unavailable: %+v", got["chrome"])
	}
	if detail, ok := got["chrome"].Error.(json.RawMessage); !ok || string(detail) != `{"error":"Model not found"}` {
		t.Fatalf("expected json error detail, got %#v", got["chrome"].Error)
	}
	if got["openai"].Status != StatusError || got["openai"].Error != "no key" {
		t.Fatalf("unexpected chat status %+v", got["openai"])
	}
}
