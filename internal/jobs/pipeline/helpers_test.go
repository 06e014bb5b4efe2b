package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domjobs "github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/jobs/orchestrator"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

func jcWith(tb testing.TB, refID string, payload map[string]any) *runtime.Context {
	tb.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("marshal payload: %v", err)
	}
	run := &domjobs.JobRun{
		ID:      uuid.New(),
		Kind:    "test",
		RefID:   refID,
		Status:  domjobs.StatusRunning,
		Payload: datatypes.JSON(raw),
	}
	return runtime.NewContext(context.Background(), nil, run, nil)
}

func TestRefLoadIDPrefersPayload(t *testing.T) {
	t.Parallel()
	want := uuid.New()
	other := uuid.New()

	got, err := refLoadID(jcWith(t, other.String(), map[string]any{"load_id": want.String()}))
	if err != nil || got != want {
		t.Fatalf("payload: got=%s err=%v", got, err)
	}

	got, err = refLoadID(jcWith(t, other.String(), map[string]any{}))
	if err != nil || got != other {
		t.Fatalf("ref fallback: got=%s err=%v", got, err)
	}

	if _, err := refLoadID(jcWith(t, "not-a-uuid", nil)); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("garbage ref: err=%v", err)
	}
}

func TestRefTaxonomyIDPrefersPayload(t *testing.T) {
	t.Parallel()

	got, err := refTaxonomyID(jcWith(t, "99", map[string]any{"taxonomy_id": 7}))
	if err != nil || got != 7 {
		t.Fatalf("payload: got=%d err=%v", got, err)
	}

	got, err = refTaxonomyID(jcWith(t, "-1", map[string]any{}))
	if err != nil || got != -1 {
		t.Fatalf("ref fallback: got=%d err=%v", got, err)
	}

	if _, err := refTaxonomyID(jcWith(t, "acme", nil)); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("garbage ref: err=%v", err)
	}
}

func TestScalePct(t *testing.T) {
	t.Parallel()
	cases := []struct {
		done, total, lo, hi, want int
	}{
		{0, 10, 5, 70, 5},
		{5, 10, 5, 70, 37},
		{10, 10, 5, 70, 70},
		{12, 10, 5, 70, 70},
		{3, 0, 5, 70, 5},
	}
	for _, c := range cases {
		if got := scalePct(c.done, c.total, c.lo, c.hi); got != c.want {
			t.Fatalf("scalePct(%d,%d,%d,%d)=%d want %d", c.done, c.total, c.lo, c.hi, got, c.want)
		}
	}
}

// Stage outputs survive a crash only through the persisted JSON snapshot, so
// the readers must cope with the types json.Unmarshal hands back.
func TestStageOutSurvivesJSONRoundTrip(t *testing.T) {
	t.Parallel()
	st := &orchestrator.State{
		Version: 1,
		Stages: map[string]*orchestrator.StageState{
			"finalize": {
				Name:   "finalize",
				Status: orchestrator.StageSucceeded,
				Outputs: map[string]any{
					"version_id":     uuid.New().String(),
					"remapping_flag": true,
					"completed":      int64(12),
				},
			},
		},
	}
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back orchestrator.State
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := stageOutString(&back, "finalize", "version_id"); got != st.Stages["finalize"].Outputs["version_id"] {
		t.Fatalf("version_id: %q", got)
	}
	if !stageOutBool(&back, "finalize", "remapping_flag") {
		t.Fatal("remapping_flag lost in round trip")
	}
	if stageOutBool(&back, "finalize", "missing") {
		t.Fatal("missing key read as true")
	}
	if got := stageOutString(&back, "absent_stage", "version_id"); got != "" {
		t.Fatalf("absent stage: %q", got)
	}
}

func TestRetryableLoadClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want bool
	}{
		{pkgerrors.ErrTaxonomyBusy, true},
		{pkgerrors.ErrVersionLockTimeout, true},
		{fmt.Errorf("wrap: %w", pkgerrors.ErrTaxonomyBusy), true},
		{pkgerrors.ErrNotFound, false},
		{pkgerrors.ErrInvalidArgument, false},
		{pkgerrors.ErrLoadInvalid, false},
		{errors.New("connection reset"), true},
	}
	for _, c := range cases {
		if got := retryableLoad(c.err); got != c.want {
			t.Fatalf("retryableLoad(%v)=%v want %v", c.err, got, c.want)
		}
	}
}
