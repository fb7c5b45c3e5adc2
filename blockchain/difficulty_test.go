package blockchain

import "testing"

func TestDifficultyExceptionWindow(t *testing.T) {
	if d, ok := DifficultyException(difficultyExceptionStart); !ok || d != difficultyExceptionValue {
		t.Errorf("DifficultyException(start): got (%d, %v), want (%d, true)", d, ok, difficultyExceptionValue)
	}
	if d, ok := DifficultyException(difficultyExceptionEnd); !ok || d != difficultyExceptionValue {
		t.Errorf("DifficultyException(end): got (%d, %v), want (%d, true)", d, ok, difficultyExceptionValue)
	}
	if _, ok := DifficultyException(difficultyExceptionStart - 1); ok {
		t.Errorf("DifficultyException: expected id just below the window to be unexempt")
	}
	if _, ok := DifficultyException(difficultyExceptionEnd + 1); ok {
		t.Errorf("DifficultyException: expected id just above the window to be unexempt")
	}
}

func TestShouldRetarget(t *testing.T) {
	cases := []struct {
		height uint64
		want   bool
	}{
		{0, false},
		{DifficultyLookback, false},
		{2 * DifficultyLookback, false},
		{3 * DifficultyLookback, true},
		{3*DifficultyLookback + 1, false},
	}
	for _, c := range cases {
		if got := ShouldRetarget(c.height); got != c.want {
			t.Errorf("ShouldRetarget(%d): got %v, want %v", c.height, got, c.want)
		}
	}
}

func TestRetargetHoldsAtTarget(t *testing.T) {
	got := Retarget(targetWindow, 20)
	if got != 20 {
		t.Errorf("Retarget(at target): got %d, want unchanged 20", got)
	}
}

func TestRetargetDecreasesWhenSlow(t *testing.T) {
	got := Retarget(targetWindow*4, 20)
	if got >= 20 {
		t.Errorf("Retarget(slow blocks): got %d, want less than 20", got)
	}
	if got < MinDifficulty {
		t.Errorf("Retarget: got %d, want >= MinDifficulty(%d)", got, MinDifficulty)
	}
}

func TestRetargetIncreasesWhenFast(t *testing.T) {
	got := Retarget(targetWindow/4, 20)
	if got <= 20 {
		t.Errorf("Retarget(fast blocks): got %d, want greater than 20", got)
	}
	if got > MaxDifficultyValue {
		t.Errorf("Retarget: got %d, want <= MaxDifficultyValue(%d)", got, MaxDifficultyValue)
	}
}

func TestRetargetClampsAtMinDifficulty(t *testing.T) {
	got := Retarget(targetWindow*1000, MinDifficulty)
	if got != MinDifficulty {
		t.Errorf("Retarget: got %d, want floor of MinDifficulty(%d)", got, MinDifficulty)
	}
}
