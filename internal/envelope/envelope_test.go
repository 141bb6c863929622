package envelope

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	cmeerrors "cme/internal/errors"
)

func TestNew(t *testing.T) {
	resp := New().Build()

	if resp.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", resp.SchemaVersion, CurrentSchemaVersion)
	}
	if resp.Error != nil {
		t.Error("fresh envelope should have no error")
	}
}

func TestBuilder_Data(t *testing.T) {
	data := map[string]interface{}{"applied": 2}

	resp := New().Data(data).Build()

	got, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Data = %T, want map", resp.Data)
	}
	if got["applied"] != 2 {
		t.Errorf("Data[applied] = %v, want 2", got["applied"])
	}
}

func TestBuilder_ConfidenceTiers(t *testing.T) {
	tests := []struct {
		name       string
		build      func() *Response
		wantTier   ConfidenceTier
		wantScore  float64
		wantReason string
	}{
		{"validated", func() *Response { return New().Validated().Build() }, TierHigh, 1.0, ""},
		{"healed", func() *Response { return New().Healed().Build() }, TierMedium, 0.7, "auto-healed"},
		{"fallback", func() *Response { return New().Fallback().Build() }, TierLow, 0.4, "no-grammar-fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.build()

			if resp.Meta == nil || resp.Meta.Confidence == nil {
				t.Fatal("confidence should be set")
			}
			c := resp.Meta.Confidence
			if c.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v", c.Tier, tt.wantTier)
			}
			if c.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", c.Score, tt.wantScore)
			}
			if tt.wantReason != "" {
				found := false
				for _, r := range c.Reasons {
					if r == tt.wantReason {
						found = true
					}
				}
				if !found {
					t.Errorf("Reasons = %v, want to include %q", c.Reasons, tt.wantReason)
				}
			}
		})
	}
}

func TestBuilder_Error(t *testing.T) {
	t.Run("cme error keeps code and fixes", func(t *testing.T) {
		err := cmeerrors.New(cmeerrors.AmbiguousTarget, "'run' matches 2 nodes", nil)

		resp := New().Data(nil).Error(err).Build()

		if resp.Error == nil {
			t.Fatal("Error should be set")
		}
		if resp.Error.Code != "AMBIGUOUS_TARGET" {
			t.Errorf("Code = %q, want AMBIGUOUS_TARGET", resp.Error.Code)
		}
		if resp.Error.Message != "'run' matches 2 nodes" {
			t.Errorf("Message = %q", resp.Error.Message)
		}
		if len(resp.Error.SuggestedFixes) == 0 {
			t.Error("SuggestedFixes should carry over from the error code")
		}
	})

	t.Run("plain error maps to internal", func(t *testing.T) {
		resp := New().Error(errors.New("boom")).Build()

		if resp.Error == nil {
			t.Fatal("Error should be set")
		}
		if resp.Error.Code != "INTERNAL_ERROR" {
			t.Errorf("Code = %q, want INTERNAL_ERROR", resp.Error.Code)
		}
	})

	t.Run("nil error leaves field empty", func(t *testing.T) {
		resp := New().Error(nil).Build()

		if resp.Error != nil {
			t.Error("nil error should not set the field")
		}
	})
}

func TestBuilder_Warnings(t *testing.T) {
	resp := New().
		Warning("log tail truncated").
		WarningWithCode("FALLBACK_MODE", "no grammar for .zig").
		Build()

	if len(resp.Warnings) != 2 {
		t.Fatalf("len(Warnings) = %d, want 2", len(resp.Warnings))
	}
	if resp.Warnings[0].Message != "log tail truncated" {
		t.Errorf("Warnings[0].Message = %q", resp.Warnings[0].Message)
	}
	if resp.Warnings[1].Code != "FALLBACK_MODE" {
		t.Errorf("Warnings[1].Code = %q, want FALLBACK_MODE", resp.Warnings[1].Code)
	}
}

func TestBuilder_SuggestCall(t *testing.T) {
	resp := New().
		Data(map[string]interface{}{"jobId": "abc"}).
		SuggestCall("checkJob", map[string]interface{}{"jobId": "abc"}, "Poll for completion").
		Build()

	if len(resp.SuggestedNextCalls) != 1 {
		t.Fatalf("len(SuggestedNextCalls) = %d, want 1", len(resp.SuggestedNextCalls))
	}
	call := resp.SuggestedNextCalls[0]
	if call.Tool != "checkJob" {
		t.Errorf("Tool = %q, want checkJob", call.Tool)
	}
	if call.Params["jobId"] != "abc" {
		t.Errorf("Params[jobId] = %v, want abc", call.Params["jobId"])
	}
}

func TestOperational(t *testing.T) {
	resp := Operational(map[string]string{"status": "killed"})

	if resp.Meta == nil || resp.Meta.Confidence == nil {
		t.Fatal("operational envelope should carry confidence")
	}
	if resp.Meta.Confidence.Tier != TierHigh {
		t.Errorf("Tier = %v, want high", resp.Meta.Confidence.Tier)
	}
	if resp.Meta.Confidence.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", resp.Meta.Confidence.Score)
	}
}

func TestResponse_JSONShape(t *testing.T) {
	resp := New().
		Data(map[string]interface{}{"healed": true}).
		Healed().
		Build()

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	s := string(raw)
	for _, want := range []string{`"schemaVersion":"1.0"`, `"healed":true`, `"tier":"medium"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON missing %s: %s", want, s)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("successful envelope should omit error field: %s", s)
	}
}

func TestNewErrorInfo_WrappedError(t *testing.T) {
	inner := cmeerrors.New(cmeerrors.JobNotFound, "no record for id", nil)
	wrapped := &wrapError{inner: inner}

	info := NewErrorInfo(wrapped)
	if info.Code != "JOB_NOT_FOUND" {
		t.Errorf("Code = %q, want JOB_NOT_FOUND", info.Code)
	}
}

type wrapError struct {
	inner error
}

func (w *wrapError) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapError) Unwrap() error { return w.inner }
