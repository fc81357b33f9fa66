package contractdigest

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// overflowBudget is the number of requirement bullets, across the whole
// corpus, that the digest retains once the plain per-contract extraction
// would exceed the digest's token budget.
const overflowBudget = 60

// RankOverflow re-ranks a Digest's requirement bullets by relevance to a
// task description when the corpus is large enough that keeping every
// contract's first three bullets would blow the token budget. It embeds
// every requirement bullet across every contract into a throw-away in-memory
// chromem-go collection, queries it with the task description, and keeps
// only the highest-ranked bullets per contract.
//
// For corpora within budget this path is never exercised; Summarize's plain
// per-contract truncation is the steady-state behavior.
func RankOverflow(ctx context.Context, digest Digest, taskDescription string) (Digest, error) {
	total := 0
	for _, e := range digest.Entries {
		total += len(e.Requirements)
	}
	if total <= overflowBudget {
		return digest, nil
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("requirements", nil, nil)
	if err != nil {
		return Digest{}, fmt.Errorf("contractdigest: creating chromem collection: %w", err)
	}

	var docs []chromem.Document
	for ei, e := range digest.Entries {
		for ri, r := range e.Requirements {
			docs = append(docs, chromem.Document{
				ID:      fmt.Sprintf("%d-%d", ei, ri),
				Content: r,
				Metadata: map[string]string{
					"entry": fmt.Sprintf("%d", ei),
				},
			})
		}
	}
	if len(docs) == 0 {
		return digest, nil
	}
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return Digest{}, fmt.Errorf("contractdigest: embedding requirements: %w", err)
	}

	n := overflowBudget
	if n > len(docs) {
		n = len(docs)
	}
	results, err := collection.Query(ctx, taskDescription, n, nil, nil)
	if err != nil {
		return Digest{}, fmt.Errorf("contractdigest: querying requirements: %w", err)
	}

	kept := make(map[string][]string) // entry index -> kept bullets, in rank order
	order := make([]string, 0, len(results))
	for _, r := range results {
		entry := r.Metadata["entry"]
		if _, seen := kept[entry]; !seen {
			order = append(order, entry)
		}
		kept[entry] = append(kept[entry], r.Content)
	}

	out := Digest{Entries: make([]ContractEntry, len(digest.Entries))}
	copy(out.Entries, digest.Entries)
	for i := range out.Entries {
		out.Entries[i].Requirements = nil
	}
	for _, idxStr := range order {
		var idx int
		fmt.Sscanf(idxStr, "%d", &idx)
		if idx >= 0 && idx < len(out.Entries) {
			out.Entries[idx].Requirements = kept[idxStr]
		}
	}
	return out, nil
}
