package core

import (
	"math"
	"testing"
)

// closedForm evaluates gain*100*(1+S) with exact angles, before truncation.
func closedForm(gain, i, n int, phase float64, m1, m3 float64, harmonic bool) float64 {
	x := 2 * math.Pi * float64(i) / float64(n)
	s := math.Sin(x + phase)
	if harmonic {
		s = m3*math.Sin(3*x) + m1*math.Sin(x+phase)
	}
	return float64(gain*100) * (1 + s)
}

func checkTruncated(t *testing.T, label string, i, got int, want float64) {
	t.Helper()
	const eps = 1e-6
	if float64(got) > want+eps || float64(got) < want-1-eps {
		t.Errorf("%s[%d]: expected floor(%f), got %d", label, i, want, got)
	}
}

func TestFundamentalTablesMatchClosedForm(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 60, 111, 360} {
		tables, err := BuildTables(n, 2, Fundamental{})
		if err != nil {
			t.Fatalf("BuildTables(%d) failed: %v", n, err)
		}
		if tables.Len() != n {
			t.Errorf("Expected %d samples, got %d", n, tables.Len())
		}
		for i := 0; i < n; i++ {
			checkTruncated(t, "A", i, tables.A.At(i), closedForm(2, i, n, 0, 0, 0, false))
			checkTruncated(t, "B", i, tables.B.At(i), closedForm(2, i, n, -2*math.Pi/3, 0, 0, false))
			checkTruncated(t, "C", i, tables.C.At(i), closedForm(2, i, n, 2*math.Pi/3, 0, 0, false))
		}
	}
}

func TestThirdHarmonicTablesMatchClosedForm(t *testing.T) {
	strategy := ThirdHarmonic{M1: DefaultFundamentalWeight, M3: DefaultHarmonicWeight}
	n := 111
	tables, err := BuildTables(n, 2, strategy)
	if err != nil {
		t.Fatalf("BuildTables failed: %v", err)
	}
	if tables.Strategy != ModeThirdHarmonic {
		t.Errorf("Expected strategy %q, got %q", ModeThirdHarmonic, tables.Strategy)
	}
	for i := 0; i < n; i++ {
		checkTruncated(t, "A", i, tables.A.At(i), closedForm(2, i, n, 0, strategy.M1, strategy.M3, true))
		checkTruncated(t, "B", i, tables.B.At(i), closedForm(2, i, n, -2*math.Pi/3, strategy.M1, strategy.M3, true))
		checkTruncated(t, "C", i, tables.C.At(i), closedForm(2, i, n, 2*math.Pi/3, strategy.M1, strategy.M3, true))
	}

	// The blend stays inside [0, 2*gain*100] for the default weights
	for p := 0; p < PhaseCount; p++ {
		for _, v := range tables.Phase(p).Samples() {
			if v < 0 || v > 400 {
				t.Errorf("Phase %d sample %d outside [0, 400]", p, v)
			}
		}
	}
}

func TestReferenceTableValues(t *testing.T) {
	tables, err := BuildTables(111, 2, Fundamental{})
	if err != nil {
		t.Fatalf("BuildTables failed: %v", err)
	}

	if got := tables.A.At(0); got != 200 {
		t.Errorf("Expected A[0] = 200, got %d", got)
	}
	// Sample 28 is about 90 degrees, where sin is close to 1
	if got := tables.A.At(28); got < 399 || got > 400 {
		t.Errorf("Expected A[28] near 400, got %d", got)
	}
	// Peak exceeds a small carrier's half period and is clipped later
	if Clamp(tables.A.At(28), 300) != 300 {
		t.Errorf("Expected A[28] to clamp to 300")
	}
}

func TestPhaseRelationship(t *testing.T) {
	strategies := []TableStrategy{
		Fundamental{},
		ThirdHarmonic{M1: DefaultFundamentalWeight, M3: DefaultHarmonicWeight},
	}
	for _, strategy := range strategies {
		for _, n := range []int{3, 111, 360} {
			tables, err := BuildTables(n, 2, strategy)
			if err != nil {
				t.Fatalf("BuildTables(%d) failed: %v", n, err)
			}
			// The third harmonic is common to all phases, so the shift holds in both modes
			third := n / 3
			for i := 0; i < n; i++ {
				a := tables.A.At(((i-third)%n + n) % n)
				if d := tables.B.At(i) - a; d < -1 || d > 1 {
					t.Errorf("%s n=%d: B[%d]=%d differs from A[%d]=%d", strategy.Name(), n, i, tables.B.At(i), (i-third+n)%n, a)
				}
				a = tables.A.At((i + third) % n)
				if d := tables.C.At(i) - a; d < -1 || d > 1 {
					t.Errorf("%s n=%d: C[%d]=%d differs from A[%d]=%d", strategy.Name(), n, i, tables.C.At(i), (i+third)%n, a)
				}
			}
		}
	}
}

func TestTableWrapSlotAliasesFirstSample(t *testing.T) {
	tables, err := BuildTables(111, 2, Fundamental{})
	if err != nil {
		t.Fatalf("BuildTables failed: %v", err)
	}
	for p := 0; p < PhaseCount; p++ {
		table := tables.Phase(p)
		if table.At(table.Len()) != table.At(0) {
			t.Errorf("Phase %d: slot N = %d, slot 0 = %d", p, table.At(table.Len()), table.At(0))
		}
		if len(table.Samples()) != 111 {
			t.Errorf("Phase %d: expected 111 samples, got %d", p, len(table.Samples()))
		}
	}
}

func TestBuildTablesRejectsEmpty(t *testing.T) {
	if _, err := BuildTables(0, 2, Fundamental{}); err != ErrInvalidSampleCount {
		t.Errorf("Expected ErrInvalidSampleCount, got %v", err)
	}
	if _, err := BuildTables(-3, 2, nil); err != ErrInvalidSampleCount {
		t.Errorf("Expected ErrInvalidSampleCount, got %v", err)
	}
}

func TestStrategyFor(t *testing.T) {
	cfg := DefaultConfig()
	s, err := StrategyFor(cfg)
	if err != nil || s.Name() != ModeFundamental {
		t.Errorf("Expected fundamental strategy, got %v (%v)", s, err)
	}

	cfg.Mode = ModeThirdHarmonic
	s, err = StrategyFor(cfg)
	if err != nil {
		t.Fatalf("StrategyFor failed: %v", err)
	}
	h, ok := s.(ThirdHarmonic)
	if !ok {
		t.Fatalf("Expected ThirdHarmonic, got %T", s)
	}
	if h.M1 != 1.15 || h.M3 != 0.22 {
		t.Errorf("Expected weights 1.15/0.22, got %v/%v", h.M1, h.M3)
	}

	cfg.Mode = "space-vector"
	if _, err := StrategyFor(cfg); err == nil {
		t.Error("Expected error for unknown mode")
	}
}
