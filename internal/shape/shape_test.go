package shape

import (
	"errors"
	"strings"
	"testing"
)

var referenceFixtures = map[Topology][]string{
	Biped: {
		"ssss-ssss-s..s", "ssss-ssss-r..s", "ssss-ssss-r..r", "ssss-rsss-r..r", "ssss-rssr-r..r",
		"rsss-rssr-r..r", "rssr-rssr-r..r", "rrsr-rssr-r..r", "rrrr-rssr-r..r", "rrrr-rrsr-r..r",
		"rrrr-rrrr-r..r",
	},
	Worm: {
		"sssss-sssss", "rssss-sssss", "rssss-srsss", "rsrss-srsss", "rsrss-srsrs",
		"rsrsr-srsrs", "rrrsr-srsrs", "rrrsr-srrrs",
	},
	T: {
		".ss.-.ss.-.ss.-.ss.-ssss", ".rs.-.ss.-.ss.-.ss.-ssss", ".rs.-.sr.-.ss.-.ss.-ssss",
		".rs.-.sr.-.rs.-.ss.-ssss", ".rs.-.sr.-.rs.-.sr.-ssss", ".rs.-.sr.-.rs.-.sr.-srss",
		".rr.-.sr.-.rs.-.sr.-srss", ".rr.-.rr.-.rs.-.sr.-srss", ".rr.-.rr.-.rr.-.sr.-srss",
		".rr.-.rr.-.rr.-.rr.-srss", ".rr.-.rr.-.rr.-.rr.-srrs", ".rr.-.rr.-.rr.-.rr.-rrrs",
	},
	Plus: {
		"..ss..-..ss..-ssssss-ssssss-..ss..-..ss..",
		"..rs..-..ss..-ssssss-ssssss-..ss..-..ss..",
		"..rs..-..sr..-ssssss-ssssss-..ss..-..ss..",
		"..rs..-..sr..-ssrsss-ssssss-..ss..-..ss..",
		"..rs..-..sr..-ssrsss-sssrss-..ss..-..ss..",
		"..rs..-..sr..-ssrsss-sssrss-..rs..-..ss..",
		"..rs..-..sr..-ssrsss-sssrss-..rs..-..sr..",
		"..rs..-..sr..-rsrsss-sssrss-..rs..-..sr..",
		"..rs..-..sr..-rsrsss-srsrss-..rs..-..sr..",
		"..rs..-..sr..-rsrssr-srsrss-..rs..-..sr..",
		"..rs..-..sr..-rsrssr-srsrrs-..rs..-..sr..",
		"..rr..-..sr..-rsrssr-srsrrs-..rs..-..sr..",
		"..rr..-..rr..-rsrssr-srsrrs-..rs..-..sr..",
		"..rr..-..rr..-rsrssr-rrsrrs-..rs..-..sr..",
		"..rr..-..rr..-rrrssr-rrsrrs-..rs..-..sr..",
		"..rr..-..rr..-rrrssr-rrsrrr-..rs..-..sr..",
		"..rr..-..rr..-rrrsrr-rrsrrr-..rs..-..sr..",
		"..rr..-..rr..-rrrsrr-rrsrrr-..rs..-..rr..",
		"..rr..-..rr..-rrrsrr-rrsrrr-..rr..-..rr..",
	},
}

func TestEncodeMatchesReferenceFixtures(t *testing.T) {
	for _, topology := range Topologies() {
		fixtures, ok := referenceFixtures[topology]
		if !ok {
			t.Fatalf("missing fixtures for %s", topology)
		}
		for n, want := range fixtures {
			got, err := Encode(topology, n)
			if err != nil {
				t.Fatalf("encode %s/%d: %v", topology, n, err)
			}
			if got != want {
				t.Fatalf("encode %s/%d: got %q want %q", topology, n, got, want)
			}
		}
	}
}

func TestEncodeBaselineIsAllSoft(t *testing.T) {
	for _, topology := range Topologies() {
		got := MustEncode(topology, 0)
		if CountRigid(got) != 0 {
			t.Fatalf("%s baseline has rigid cells: %q", topology, got)
		}
		if strings.Trim(strings.ReplaceAll(got, RowSeparator, ""), ".s") != "" {
			t.Fatalf("%s baseline has unexpected symbols: %q", topology, got)
		}
	}
}

func TestEncodeIsPure(t *testing.T) {
	for _, topology := range Topologies() {
		max, _ := MaxRigid(topology)
		for n := 0; n <= max+2; n++ {
			first := MustEncode(topology, n)
			for i := 0; i < 3; i++ {
				if again := MustEncode(topology, n); again != first {
					t.Fatalf("%s/%d not deterministic: %q vs %q", topology, n, first, again)
				}
			}
		}
	}
}

func TestEncodeRigidCountMonotoneAndSaturates(t *testing.T) {
	for _, topology := range Topologies() {
		max, err := MaxRigid(topology)
		if err != nil {
			t.Fatalf("max rigid %s: %v", topology, err)
		}
		prev := -1
		for n := 0; n <= max+5; n++ {
			got := CountRigid(MustEncode(topology, n))
			if got < prev {
				t.Fatalf("%s: rigid count decreased at n=%d (%d < %d)", topology, n, got, prev)
			}
			want := n
			if want > max {
				want = max
			}
			if got != want {
				t.Fatalf("%s/%d: rigid cells=%d want %d", topology, n, got, want)
			}
			prev = got
		}
	}
}

func TestEncodeKeepsGridGeometry(t *testing.T) {
	for _, topology := range Topologies() {
		base := Rows(MustEncode(topology, 0))
		max, _ := MaxRigid(topology)
		for n := 1; n <= max+1; n++ {
			rows := Rows(MustEncode(topology, n))
			if len(rows) != len(base) {
				t.Fatalf("%s/%d: row count %d want %d", topology, n, len(rows), len(base))
			}
			for i := range rows {
				if len(rows[i]) != len(base[i]) {
					t.Fatalf("%s/%d: row %d length %d want %d", topology, n, i, len(rows[i]), len(base[i]))
				}
				for j := range rows[i] {
					if (rows[i][j] == Filler) != (base[i][j] == Filler) {
						t.Fatalf("%s/%d: filler changed at (%d,%d)", topology, n, i, j)
					}
				}
			}
		}
	}
}

func TestOrderCellsAreDistinctBodyCells(t *testing.T) {
	for _, topology := range Topologies() {
		order, err := Order(topology)
		if err != nil {
			t.Fatalf("order %s: %v", topology, err)
		}
		rows := Rows(MustEncode(topology, 0))
		seen := make(map[Cell]bool, len(order))
		for _, c := range order {
			if seen[c] {
				t.Fatalf("%s: duplicate cell %+v", topology, c)
			}
			seen[c] = true
			if rows[c.Row][c.Col] == Filler {
				t.Fatalf("%s: cell %+v is filler", topology, c)
			}
		}
	}
}

func TestEncodeRejectsUnknownTopologyAndNegativeCount(t *testing.T) {
	if _, err := Encode(Topology("snake"), 1); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("expected ErrUnknownTopology, got %v", err)
	}
	if _, err := Encode(Worm, -1); !errors.Is(err, ErrNegativeRigidity) {
		t.Fatalf("expected ErrNegativeRigidity, got %v", err)
	}
	if _, err := MaxRigid(Topology("")); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("expected ErrUnknownTopology, got %v", err)
	}
}

func TestParseTopology(t *testing.T) {
	got, err := ParseTopology("  PLUS ")
	if err != nil || got != Plus {
		t.Fatalf("parse plus: got %q err=%v", got, err)
	}
	if _, err := ParseTopology("hexapod"); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("expected ErrUnknownTopology, got %v", err)
	}
}
