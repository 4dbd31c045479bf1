package execution

import "github.com/doeshing/multiprompt/internal/domain"

// Outcome classifies a finished submission.
type Outcome string

const (
	OutcomeAllSucceeded Outcome = "all_succeeded"
	OutcomePartial      Outcome = "partial"
	OutcomeAllFailed    Outcome = "all_failed"
	OutcomeCancelled    Outcome = "cancelled"
)

// LegFailure describes one failed leg.
type LegFailure struct {
	Target  domain.Target        `json:"target"`
	Code    domain.ErrorCode     `json:"code"`
	Message string               `json:"message"`
	Bucket  domain.FailureBucket `json:"bucket"`
}

// Summary is reported once every leg of a submission has settled.
type Summary struct {
	EntryID   string                       `json:"entry_id"`
	Outcome   Outcome                      `json:"outcome"`
	Succeeded int                          `json:"succeeded"`
	Failed    int                          `json:"failed"`
	Cancelled int                          `json:"cancelled"`
	Failures  []LegFailure                 `json:"failures,omitempty"`
	Buckets   map[domain.FailureBucket]int `json:"buckets,omitempty"`
}

// Hints returns one remediation line per failure bucket present.
func (s Summary) Hints() []string {
	var hints []string
	for _, bucket := range []domain.FailureBucket{domain.BucketCredential, domain.BucketNetwork, domain.BucketRateLimit, domain.BucketOther} {
		if s.Buckets[bucket] > 0 {
			hints = append(hints, bucket.Hint())
		}
	}
	return hints
}

type legOutcome struct {
	target domain.Target
	status domain.ResponseStatus
	err    *domain.AdapterError
}

func summarize(entryID string, outcomes []legOutcome) Summary {
	summary := Summary{EntryID: entryID}
	for _, o := range outcomes {
		switch o.status {
		case domain.ResponseSuccess:
			summary.Succeeded++
		case domain.ResponseError:
			summary.Failed++
			failure := LegFailure{Target: o.target, Code: domain.ErrCodeUnknown, Bucket: domain.BucketOther}
			if o.err != nil {
				failure.Code = o.err.Code
				failure.Message = o.err.Message
				failure.Bucket = o.err.Bucket()
			}
			if summary.Buckets == nil {
				summary.Buckets = make(map[domain.FailureBucket]int)
			}
			summary.Buckets[failure.Bucket]++
			summary.Failures = append(summary.Failures, failure)
		default:
			summary.Cancelled++
		}
	}

	total := len(outcomes)
	switch {
	case summary.Succeeded == total:
		summary.Outcome = OutcomeAllSucceeded
	case summary.Succeeded > 0:
		summary.Outcome = OutcomePartial
	case summary.Failed > 0:
		summary.Outcome = OutcomeAllFailed
	default:
		summary.Outcome = OutcomeCancelled
	}
	return summary
}
