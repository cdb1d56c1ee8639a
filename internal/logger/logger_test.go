package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupTo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	log := SetupTo(&buf, "warn", "json")

	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	log.Warn().Str("nis", "12345").Msg("shown")
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %v (%s)", err, buf.String())
	}
	if line["service"] != Service || line["nis"] != "12345" || line["message"] != "shown" {
		t.Errorf("line = %v", line)
	}
}

func TestSetupTo_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	SetupTo(&bytes.Buffer{}, "loud", "json")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("global level = %v", zerolog.GlobalLevel())
	}
}
