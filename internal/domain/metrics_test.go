package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPipelineMetrics_MarshalsDurationsAsMilliseconds(t *testing.T) {
	pm := PipelineMetrics{
		Retrieval: Millis(1500 * time.Millisecond),
		Total:     Millis(2 * time.Second),
		LLMCalls:  3,
	}

	raw, err := json.Marshal(pm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := string(raw)
	if !strings.Contains(got, `"retrieval_ms":1500`) {
		t.Errorf("retrieval_ms must carry milliseconds, got %s", got)
	}
	if !strings.Contains(got, `"total_ms":2000`) {
		t.Errorf("total_ms must carry milliseconds, got %s", got)
	}
	if !strings.Contains(got, `"llm_calls":3`) {
		t.Errorf("llm_calls missing, got %s", got)
	}
}

func TestMillis_SubMillisecondTruncatesToZero(t *testing.T) {
	raw, err := json.Marshal(Millis(400 * time.Microsecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != "0" {
		t.Errorf("got %s, want 0", raw)
	}
}
