package tags

import (
	"context"
	"fmt"
	"sort"
)

// Counter keeps the denormalised number of todos carrying each tag.
type Counter interface {
	Increment(ctx context.Context, tagID string) error
	Decrement(ctx context.Context, tagID string) error
}

// Changes returns the tag ids added to and removed from a tag list. Both
// lists are treated as sets; results are sorted.
func Changes(oldIDs, newIDs []string) (added, removed []string) {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	for id := range newSet {
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range oldSet {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Diff calls onAdded once for every added id and onRemoved once for every
// removed id, one call at a time. Ids in both lists trigger neither.
func Diff(oldIDs, newIDs []string, onAdded, onRemoved func(string)) {
	added, removed := Changes(oldIDs, newIDs)
	for _, id := range added {
		onAdded(id)
	}
	for _, id := range removed {
		onRemoved(id)
	}
}

// Reconcile moves the counters of a todo whose tags changed from oldIDs to
// newIDs. Every changed id is validated before any counter moves; after that
// it stops at the first failure.
func Reconcile(ctx context.Context, counter Counter, oldIDs, newIDs []string) error {
	added, removed := Changes(oldIDs, newIDs)

	for _, ids := range [][]string{added, removed} {
		for _, id := range ids {
			if err := validateTag(id); err != nil {
				return fmt.Errorf("tag %q: %w", id, err)
			}
		}
	}

	for _, id := range added {
		if err := counter.Increment(ctx, id); err != nil {
			return fmt.Errorf("increment tag %s: %w", id, err)
		}
	}
	for _, id := range removed {
		if err := counter.Decrement(ctx, id); err != nil {
			return fmt.Errorf("decrement tag %s: %w", id, err)
		}
	}
	return nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
