package nonce

import "context"

// Attempt is the result of sending one transaction.
type Attempt struct {
	Accepted bool
	Error    string
	// Replayed marks an answer served without reaching the ledger, such as
	// a deduplicated request. The nonce is not consumed.
	Replayed bool
}

// SendFunc builds, signs and submits a transaction at nonce. retry is true on
// the single attempt made after a resync.
type SendFunc func(ctx context.Context, nonce uint64, retry bool) Attempt

type Outcome struct {
	Accepted bool
	Error    string
	// Nonce is the nonce of the last attempt.
	Nonce    uint64
	Resynced bool
}

// Submit sends at the current nonce under the account lock. On a nonce
// rejection it resyncs once and retries once; any further failure is
// returned as is.
func (s *Sequencer) Submit(ctx context.Context, account string, send SendFunc) (Outcome, error) {
	var out Outcome
	err := s.WithLock(ctx, account, func(n uint64) error {
		out = Outcome{Nonce: n}
		a := send(ctx, n, false)
		if a.Accepted {
			if !a.Replayed {
				s.SetCurrentNonce(account, n+1)
			}
			out.Accepted = true
			return nil
		}
		out.Error = a.Error
		if !s.HandleRejection(account, a.Error) {
			return nil
		}
		if _, ok := s.SyncFromBackend(ctx, account); !ok {
			return nil
		}
		n, _ = s.Current(account)
		out.Nonce, out.Resynced = n, true
		a = send(ctx, n, true)
		if a.Accepted {
			s.SetCurrentNonce(account, n+1)
			out.Accepted, out.Error = true, ""
			return nil
		}
		out.Error = a.Error
		s.HandleRejection(account, a.Error)
		return nil
	})
	return out, err
}
