package dedupe

import "context"

// General contract deduping (in-memory, redis)
type Deduper interface {
	// if alreadySeen=true -> duplicate inside the window, notification can be skipped;
	// alreadySeen=false -> key is recorded now and expires after the window
	Seen(ctx context.Context, key string) (alreadySeen bool, err error)
}
