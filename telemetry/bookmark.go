package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkRecruitmentSurge    BookmarkType = "recruitment_surge"
	BookmarkHarvestBreakthrough BookmarkType = "harvest_breakthrough"
	BookmarkFlowerDepletion     BookmarkType = "flower_depletion"
	BookmarkSteadyHarvest       BookmarkType = "steady_harvest"
)

// Bookmark marks a notable moment in a run.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Timestep    int          `csv:"timestep"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"timestep", b.Timestep,
		"description", b.Description,
	)
}

// record is what the detector keeps per stats record.
type record struct {
	followers int
	harvest   float64 // nectar collected since the previous record
}

// BookmarkDetector detects notable moments from successive stats records.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []record
	historySize int
	historyIdx  int
	historyFull bool

	lastTotal     float64
	depleted      bool // depletion bookmark armed until flowers recover
	steadyRecords int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady harvest detection
	}
	return &BookmarkDetector{
		history:     make([]record, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
// flowers is the total flower count.
func (bd *BookmarkDetector) Check(stats StepStats, flowers int) []Bookmark {
	var bookmarks []Bookmark
	cur := record{followers: stats.Follower, harvest: stats.TotalNectar - bd.lastTotal}
	bd.lastTotal = stats.TotalNectar

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkRecruitmentSurge(stats, cur); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkHarvestBreakthrough(stats, cur); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkSteadyHarvest(stats, cur); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}
	if b := bd.checkDepletion(stats, flowers); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(cur)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(r record) {
	bd.history[bd.historyIdx] = r
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []record {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkRecruitmentSurge(stats StepStats, cur record) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.followers
	}
	avg := float64(total) / float64(len(history))
	if avg == 0 {
		return nil
	}

	if float64(cur.followers) > avg*2.0 && cur.followers >= 10 {
		return &Bookmark{
			Type:        BookmarkRecruitmentSurge,
			Timestep:    stats.Timestep,
			Description: fmt.Sprintf("%d followers is %.1fx average (%.1f)", cur.followers, float64(cur.followers)/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkHarvestBreakthrough(stats StepStats, cur record) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.harvest
	}
	avg := total / float64(len(history))
	if avg <= 0 {
		return nil
	}

	if cur.harvest > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkHarvestBreakthrough,
			Timestep:    stats.Timestep,
			Description: fmt.Sprintf("Harvest %.2f is %.1fx average (%.2f)", cur.harvest, cur.harvest/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDepletion(stats StepStats, flowers int) *Bookmark {
	if flowers == 0 {
		return nil
	}
	share := float64(stats.DepletedFlowers) / float64(flowers)
	switch {
	case !bd.depleted && share > 0.5:
		bd.depleted = true
		return &Bookmark{
			Type:        BookmarkFlowerDepletion,
			Timestep:    stats.Timestep,
			Description: fmt.Sprintf("%d of %d flowers empty", stats.DepletedFlowers, flowers),
		}
	case bd.depleted && share < 0.25:
		bd.depleted = false
	}
	return nil
}

func (bd *BookmarkDetector) checkSteadyHarvest(stats StepStats, cur record) *Bookmark {
	if cur.harvest <= 0 {
		bd.steadyRecords = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	// Low variance over the last four records
	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.harvest
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.harvest - mean
		variance += d * d
	}
	variance /= 4

	if mean > 0 && variance/(mean*mean) < 0.04 { // CV^2 < 0.04 means CV < 0.2
		bd.steadyRecords++
	} else {
		bd.steadyRecords = 0
	}

	if bd.steadyRecords == 5 { // trigger exactly once at 5 records
		return &Bookmark{
			Type:        BookmarkSteadyHarvest,
			Timestep:    stats.Timestep,
			Description: fmt.Sprintf("Steady harvest of %.2f per record over 5+ records", mean),
		}
	}
	return nil
}
