package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_RecruitmentSurge(t *testing.T) {
	bd := NewBookmarkDetector(10)

	// Add some history with few followers
	for i := 0; i < 5; i++ {
		bd.Check(StepStats{Timestep: i * 100, Follower: 8}, 100)
	}

	bookmarks := bd.Check(StepStats{Timestep: 500, Follower: 40}, 100)
	if !hasBookmark(bookmarks, BookmarkRecruitmentSurge) {
		t.Error("expected recruitment_surge bookmark")
	}
}

func TestBookmarkDetector_HarvestBreakthrough(t *testing.T) {
	bd := NewBookmarkDetector(10)

	total := 0.0
	for i := 0; i < 5; i++ {
		total += 10
		bd.Check(StepStats{Timestep: i * 100, TotalNectar: total}, 100)
	}

	bookmarks := bd.Check(StepStats{Timestep: 500, TotalNectar: total + 50}, 100)
	if !hasBookmark(bookmarks, BookmarkHarvestBreakthrough) {
		t.Error("expected harvest_breakthrough bookmark")
	}
}

func TestBookmarkDetector_FlowerDepletion(t *testing.T) {
	bd := NewBookmarkDetector(10)

	tests := []struct {
		depleted int
		want     bool
	}{
		{10, false},
		{60, true},
		{70, false}, // already reported
		{20, false}, // recovered, rearmed
		{55, true},
	}
	for i, tt := range tests {
		got := hasBookmark(bd.Check(StepStats{Timestep: i, DepletedFlowers: tt.depleted}, 100), BookmarkFlowerDepletion)
		if got != tt.want {
			t.Errorf("record %d (%d depleted): bookmark = %v, want %v", i, tt.depleted, got, tt.want)
		}
	}
}

func TestBookmarkDetector_SteadyHarvest(t *testing.T) {
	bd := NewBookmarkDetector(10)

	total := 0.0
	fired := 0
	for i := 0; i < 12; i++ {
		total += 5
		if hasBookmark(bd.Check(StepStats{Timestep: i * 100, TotalNectar: total}, 100), BookmarkSteadyHarvest) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("steady_harvest fired %d times, want 1", fired)
	}
}

func TestBookmarkDetector_NoHistory(t *testing.T) {
	bd := NewBookmarkDetector(3)
	if got := bd.Check(StepStats{Follower: 1000, TotalNectar: 1000}, 100); len(got) != 0 {
		t.Errorf("first record produced bookmarks %v", got)
	}
}
