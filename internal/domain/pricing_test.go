package domain

import (
	"math"
	"testing"
)

func charms(n, withClasp int) []CharmRef {
	refs := make([]CharmRef, n)
	for i := range refs {
		refs[i] = CharmRef{CharmID: "charm-" + string(rune('a'+i))}
		if i < withClasp {
			refs[i].WithClasp = true
		}
	}
	return refs
}

func TestLinePriceTiers(t *testing.T) {
	cases := []struct {
		name      string
		charms    int
		withClasp int
		want      float64
	}{
		{name: "bare model", charms: 0, withClasp: 0, want: 9.90},
		{name: "three charms", charms: 3, withClasp: 0, want: 21.90},
		{name: "six charms crosses tier", charms: 6, withClasp: 0, want: 32.40},
		{name: "six charms two clasps", charms: 6, withClasp: 2, want: 34.80},
		{name: "five charms at tier edge", charms: 5, withClasp: 0, want: 29.90},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := CartLine{ModelID: "m-1", ModelKind: ItemKindBracelet, Charms: charms(tc.charms, tc.withClasp)}
			got := LinePrice(line)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("expected %.2f, got %.4f", tc.want, got)
			}
		})
	}
}

func TestSubtotalDoesNotRoundMidCalculation(t *testing.T) {
	lines := []CartLine{
		{ModelID: "m-1", ModelKind: ItemKindBracelet, Charms: charms(1, 1)},
		{ModelID: "m-2", ModelKind: ItemKindNecklace, Charms: charms(1, 1)},
		{ModelID: "m-3", ModelKind: ItemKindAnklet, Charms: charms(1, 1)},
	}
	got := Subtotal(lines)
	want := 3 * (9.90 + 4.00 + 1.20)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %.4f, got %.4f", want, got)
	}
}

func TestRoundMonetary(t *testing.T) {
	if got := RoundMonetary(10.005); got != 10.01 {
		t.Fatalf("expected 10.01, got %v", got)
	}
	if got := RoundMonetary(32.404999); got != 32.40 {
		t.Fatalf("expected 32.40, got %v", got)
	}
}

func TestCreatorPointsFloors(t *testing.T) {
	// 21.90 * 0.05 * 10 = 10.95 -> 10 points.
	if got := CreatorPoints(21.90); got != 10 {
		t.Fatalf("expected 10 points, got %d", got)
	}
	if got := CreatorPoints(0); got != 0 {
		t.Fatalf("expected 0 points, got %d", got)
	}
}
