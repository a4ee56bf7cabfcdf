package arb

import (
	"encoding/json"
	"fmt"

	"github.com/you/arb-exec/internal/profit"
	"github.com/you/arb-exec/internal/types"
)

type runState struct {
	Status   types.Status       `json:"status"`
	Buy      Leg                `json:"buy"`
	Sell     Leg                `json:"sell"`
	Failures int                `json:"cumulative_failures"`
	LastEval *profit.Evaluation `json:"last_evaluation,omitempty"`
}

// Snapshot captures the mutable run state as JSON. Nothing persists it by
// default; it exists so a reconstructed run can resume stepping from the
// same point.
func (r *Run) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(runState{
		Status:   r.status,
		Buy:      r.buy,
		Sell:     r.sell,
		Failures: r.failures,
		LastEval: r.lastEval,
	})
}

// Restore loads a snapshot into a freshly constructed run. It must be called
// before stepping resumes.
func (r *Run) Restore(data []byte) error {
	var st runState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("restore run: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = st.Status
	r.buy = st.Buy
	r.sell = st.Sell
	r.failures = st.Failures
	r.lastEval = st.LastEval
	return nil
}
