package main

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nasa-jpl/scopesync/engine"
	"github.com/nasa-jpl/scopesync/pv"
)

func TestDefaultConfigIsValid(t *testing.T) {
	ec, err := DefaultConfig().EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if ec.ByteOrder != binary.LittleEndian || ec.Channels != 4 {
		t.Errorf("unexpected engine config %+v", ec)
	}
}

func TestParseByteOrder(t *testing.T) {
	if o, err := ParseByteOrder("BIG"); err != nil || o != binary.BigEndian {
		t.Errorf("expected big endian, got %v (%v)", o, err)
	}
	if _, err := ParseByteOrder("middle"); err == nil {
		t.Error("expected an error for an unknown byte order")
	}
}

func TestEngineConfigRejectsNonsense(t *testing.T) {
	c := DefaultConfig()
	c.Channels = 0
	if _, err := c.EngineConfig(); err == nil {
		t.Error("expected an error for zero channels")
	}
	c = DefaultConfig()
	c.ReadyAttempts = 0
	if _, err := c.EngineConfig(); err == nil {
		t.Error("expected an error for zero ready attempts")
	}
	c = DefaultConfig()
	c.WaitingStates = append(c.WaitingStates, "STOP")
	if _, err := c.EngineConfig(); err == nil {
		t.Error("expected an error for a status in two sets")
	}
}

func TestYAMLOverridesDefaults(t *testing.T) {
	kk := koanf.New(".")
	if err := kk.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		t.Fatal(err)
	}
	doc := []byte(`
Resource: 192.168.1.20:5025
Channels: 2
PollInterval: 250ms
WaitingStates: [RUN, ARM]
`)
	if err := kk.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
		t.Fatal(err)
	}
	c := Config{}
	if err := kk.Unmarshal("", &c); err != nil {
		t.Fatal(err)
	}
	if c.Resource != "192.168.1.20:5025" || c.Channels != 2 || c.PollInterval != 250*time.Millisecond {
		t.Errorf("unexpected config %+v", c)
	}
	if diff := cmp.Diff([]string{"RUN", "ARM"}, c.WaitingStates); diff != "" {
		t.Error(diff)
	}
	if c.Addr != ":8000" || c.ByteOrder != "little" {
		t.Errorf("defaults must survive a partial file, got %+v", c)
	}
}

func TestEnvKey(t *testing.T) {
	f := envKey([]string{"PollInterval", "Resource"})
	if got := f("SCOPESYNC_POLLINTERVAL"); got != "PollInterval" {
		t.Errorf("expected PollInterval, got %s", got)
	}
	if got := f("SCOPESYNC_OTHER"); got != "other" {
		t.Errorf("unknown keys pass through lowercased, got %s", got)
	}
}

func TestBuildMux(t *testing.T) {
	store := pv.NewStore()
	store.Publish("status", "Idle", time.Now(), false)
	reg := prometheus.NewRegistry()
	engine.NewMetrics(reg)
	mux := BuildMux(DefaultConfig(), store, reg)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scope/pv/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scope/metrics", nil))
	if !strings.Contains(w.Body.String(), "scopesync_") {
		t.Error("expected engine metrics to be exposed")
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scope/lock", strings.NewReader(`{"bool": true}`)))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scope/pv/status", strings.NewReader(`{"value": "x"}`)))
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	endpoints := []string{}
	if err := json.NewDecoder(w.Body).Decode(&endpoints); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range endpoints {
		if e == "POST /scope/pv/{name}" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected POST /scope/pv/{name} in %v", endpoints)
	}
}
