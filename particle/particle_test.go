package particle

import "testing"

type intModel struct{}

func (intModel) NumActions() int          { return 2 }
func (intModel) TerminalObs() uint64      { return 999 }
func (intModel) IsTerminal(s int) bool    { return s < 0 }
func (intModel) Allocate() int            { return 0 }
func (intModel) Copy(s int) int           { return s }
func (intModel) Free(int)                 {}
func (intModel) Step(s *int, u float64, a int) (float64, uint64) {
	*s = *s + a
	if *s < 0 {
		return -1, 999
	}
	return 1, uint64(*s)
}

func TestTotalWeight(t *testing.T) {
	b := BeliefSet[int]{
		{State: 1, ID: 0, Weight: 0.25},
		{State: 2, ID: 1, Weight: 0.75},
	}
	if got := b.TotalWeight(); got != 1.0 {
		t.Fatalf("expected total weight 1.0, got %f", got)
	}
}

func TestAllTerminal(t *testing.T) {
	m := intModel{}
	b := BeliefSet[int]{
		{State: -1, ID: 0, Weight: 0.5},
		{State: -2, ID: 1, Weight: 0.5},
	}
	if !b.AllTerminal(m) {
		t.Fatal("expected all particles to be terminal")
	}

	b = append(b, Particle[int]{State: 3, ID: 2, Weight: 0.1})
	if b.AllTerminal(m) {
		t.Fatal("expected not all particles to be terminal")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	m := intModel{}
	b := BeliefSet[int]{{State: 5, ID: 0, Weight: 1}}
	c := b.Copy(m)
	c[0].State = 10
	if b[0].State == 10 {
		t.Fatal("copy should not alias original belief set")
	}
}
