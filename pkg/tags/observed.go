package tags

import "context"

// Tally is a Counter that can also report the current count of a tag.
type Tally interface {
	Counter
	Count(ctx context.Context, tagID string) (int64, error)
}

// CountObserver is told about every successful counter update.
type CountObserver interface {
	ObserveTagCount(increment bool)
}

// ObservedCounter reports counter updates to an observer.
type ObservedCounter struct {
	tally    Tally
	observer CountObserver
}

// NewObservedCounter wraps tally. A nil observer returns tally unchanged.
func NewObservedCounter(tally Tally, observer CountObserver) Tally {
	if observer == nil {
		return tally
	}
	return &ObservedCounter{tally: tally, observer: observer}
}

func (c *ObservedCounter) Increment(ctx context.Context, tagID string) error {
	if err := c.tally.Increment(ctx, tagID); err != nil {
		return err
	}
	c.observer.ObserveTagCount(true)
	return nil
}

func (c *ObservedCounter) Decrement(ctx context.Context, tagID string) error {
	if err := c.tally.Decrement(ctx, tagID); err != nil {
		return err
	}
	c.observer.ObserveTagCount(false)
	return nil
}

func (c *ObservedCounter) Count(ctx context.Context, tagID string) (int64, error) {
	return c.tally.Count(ctx, tagID)
}
