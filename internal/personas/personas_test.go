package personas

import (
	"errors"
	"testing"

	"everkind/internal/models"
)

func TestGet(t *testing.T) {
	p, err := Get(Sage)
	if err != nil {
		t.Fatalf("Get(Sage) failed: %v", err)
	}
	if p.Name != "Sage" {
		t.Errorf("Expected name Sage, got %q", p.Name)
	}
	if p.PromptFragment == "" {
		t.Error("Expected non-empty prompt fragment")
	}
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("wizard")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 personas, got %d", len(all))
	}
	seen := map[ID]bool{}
	for _, p := range all {
		if seen[p.ID] {
			t.Errorf("Duplicate persona id %q", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestSuggest(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  ID
	}{
		{
			name:  "declining mood wins over everything",
			state: State{MoodTrend: models.MoodDeclining, StreakBroken: false, DaysInJourney: 40},
			want:  Sage,
		},
		{
			name:  "recent struggle wins over broken streak",
			state: State{MoodTrend: models.MoodStable, StreakBroken: true, RecentStruggle: true, DaysInJourney: 40},
			want:  Sage,
		},
		{
			name:  "broken streak gets accountability",
			state: State{MoodTrend: models.MoodStable, StreakBroken: true, DaysInJourney: 40},
			want:  Coach,
		},
		{
			name:  "first week is relationship building",
			state: State{MoodTrend: models.MoodStable, DaysInJourney: 5},
			want:  Sage,
		},
		{
			name:  "first month improving gets accountability",
			state: State{MoodTrend: models.MoodImproving, DaysInJourney: 20},
			want:  Coach,
		},
		{
			name:  "first month stable stays supportive",
			state: State{MoodTrend: models.MoodStable, DaysInJourney: 20},
			want:  Sage,
		},
		{
			name:  "established journey defaults to accountability",
			state: State{MoodTrend: models.MoodStable, DaysInJourney: 60},
			want:  Coach,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Suggest(tc.state); got != tc.want {
				t.Errorf("Suggest(%+v) = %q, want %q", tc.state, got, tc.want)
			}
		})
	}
}

// Suggest must resolve every input combination to a valid persona.
func TestSuggest_Total(t *testing.T) {
	trends := []models.MoodTrend{models.MoodImproving, models.MoodDeclining, models.MoodStable}
	bools := []bool{false, true}
	days := []int{1, 7, 8, 30, 31, 90}

	for _, trend := range trends {
		for _, broken := range bools {
			for _, struggle := range bools {
				for _, d := range days {
					got := Suggest(State{MoodTrend: trend, StreakBroken: broken, RecentStruggle: struggle, DaysInJourney: d})
					if _, err := Get(got); err != nil {
						t.Fatalf("Suggest returned unknown persona %q", got)
					}
				}
			}
		}
	}
}
