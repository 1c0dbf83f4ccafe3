/*
dedupe.go - Batch-level duplicate classification

PURPOSE:
  Splits an incoming batch of statement rows into net-new rows and
  duplicates. A row is a duplicate if its identity digest is already
  persisted, or if an earlier row in the same batch carries the same
  digest (first occurrence in batch order wins).

  Pure classification, no persistence: the caller persists the accepted
  rows together with their digests atomically, so the next batch's
  existing-digest lookup observes this batch's inserts. The store's
  uniqueness constraint on the digest column is the correctness backstop;
  this pre-check is the fast path.
*/
package ingest

// DigestSet is a lookup of already-persisted identity digests.
type DigestSet map[IdentityDigest]struct{}

func (s DigestSet) Has(d IdentityDigest) bool {
	_, ok := s[d]
	return ok
}

func (s DigestSet) Add(d IdentityDigest) {
	s[d] = struct{}{}
}

// Dedupe classifies batch rows against the persisted digest set.
// Accepted rows come back in original batch order (downstream row
// numbering and audit depend on it), paired index-for-index with their
// digests. The duplicate count covers both persisted and in-batch
// duplicates; duplicates never fail a batch, they are an observability
// number.
func Dedupe(batch []StatementRecord, period PeriodKey, existing DigestSet) (accepted []StatementRecord, digests []IdentityDigest, duplicates int) {
	seen := make(DigestSet, len(batch))
	for _, r := range batch {
		d := Digest(r, period)
		if existing.Has(d) || seen.Has(d) {
			duplicates++
			continue
		}
		seen.Add(d)
		accepted = append(accepted, r)
		digests = append(digests, d)
	}
	return accepted, digests, duplicates
}
