package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/runnerr0/historyview/internal/storage"
)

// bucket is one (day-of-week, hour-of-day) cell in local time.
type bucket struct {
	Day       int // 0 = Sunday
	Hour      int
	Total     int
	PerDomain map[string]int
}

func (b *bucket) fileStem() string {
	return fmt.Sprintf("level1-%d-%02d", b.Day, b.Hour)
}

// Level0Entry is one element of level0.json.
type Level0Entry struct {
	Day   int `json:"day"`
	Hour  int `json:"hour"`
	Value int `json:"value"`
	Size  int `json:"size"`
}

// collectBuckets scans every visit and returns the non-empty buckets sorted
// by (day, hour) along with the number of visits seen.
func collectBuckets(ctx context.Context, store Store, loc *time.Location) ([]*bucket, int, error) {
	byKey := make(map[[2]int]*bucket)
	visits := 0

	err := store.EachVisit(ctx, func(v storage.Visit) error {
		local := v.Timestamp.In(loc)
		key := [2]int{int(local.Weekday()), local.Hour()}
		b, ok := byKey[key]
		if !ok {
			b = &bucket{Day: key[0], Hour: key[1], PerDomain: make(map[string]int)}
			byKey[key] = b
		}
		b.Total++
		b.PerDomain[v.Domain]++
		visits++
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scanning visits: %w", err)
	}

	out := make([]*bucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Hour < out[j].Hour
	})
	return out, visits, nil
}

// buildLevel0 scales each bucket linearly against the busiest one. Any
// non-empty bucket gets at least size 1 so it stays visible.
func buildLevel0(buckets []*bucket) []Level0Entry {
	entries := make([]Level0Entry, 0, len(buckets))
	peak := 0
	for _, b := range buckets {
		peak = max(peak, b.Total)
	}
	for _, b := range buckets {
		entries = append(entries, Level0Entry{
			Day:   b.Day,
			Hour:  b.Hour,
			Value: b.Total,
			Size:  scaleSize(b.Total, peak),
		})
	}
	return entries
}

func scaleSize(value, peak int) int {
	if value <= 0 || peak <= 0 {
		return 0
	}
	size := int(math.Round(100 * float64(value) / float64(peak)))
	return max(size, 1)
}
