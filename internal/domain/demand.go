package domain

import "sort"

// AggregateDemand walks every cart line and every attached charm and folds the
// per-item deduction counts into a single map keyed by (kind, id). Repeated
// models or charms across lines accumulate into one entry, so the checkout
// transaction reads and writes each stock key exactly once.
func AggregateDemand(lines []CartLine) map[ItemKey]int {
	demand := make(map[ItemKey]int)
	for _, line := range lines {
		if line.ModelID != "" {
			demand[ItemKey{Kind: line.ModelKind, ID: line.ModelID}]++
		}
		for _, charm := range line.Charms {
			if charm.CharmID == "" {
				continue
			}
			demand[ItemKey{Kind: ItemKindCharm, ID: charm.CharmID}]++
		}
	}
	return demand
}

// DemandFromItems rebuilds the aggregated demand of a committed order from its
// item snapshots. Cancellation restores stock with exactly these counts.
func DemandFromItems(items []OrderItem) map[ItemKey]int {
	lines := make([]CartLine, len(items))
	for i, item := range items {
		lines[i] = CartLine{
			ModelID:   item.ModelID,
			ModelKind: item.ModelKind,
			Charms:    item.Charms,
		}
	}
	return AggregateDemand(lines)
}

// SortedKeys returns the demand keys in a stable order. The transaction reads
// stocks in this order so re-executions under store retry behave identically.
func SortedKeys(demand map[ItemKey]int) []ItemKey {
	keys := make([]ItemKey, 0, len(demand))
	for key := range demand {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// AccrueCreatorAwards aggregates the loyalty points owed to third-party
// creators across an order's items: one award per creator, however many of
// that creator's designs were purchased. Items without a creator reference
// earn nothing. The result is sorted by creator id for deterministic
// application inside the checkout transaction.
func AccrueCreatorAwards(items []OrderItem) []CreatorAward {
	byCreator := make(map[string]*CreatorAward)
	order := make([]string, 0)
	for _, item := range items {
		if item.CreatorID == "" {
			continue
		}
		points := CreatorPoints(item.Price)
		if points <= 0 {
			continue
		}
		award, ok := byCreator[item.CreatorID]
		if !ok {
			award = &CreatorAward{CreatorID: item.CreatorID}
			byCreator[item.CreatorID] = award
			order = append(order, item.CreatorID)
		}
		award.Points += points
		if item.CreationName != "" {
			award.CreationNames = append(award.CreationNames, item.CreationName)
		}
	}

	sort.Strings(order)
	awards := make([]CreatorAward, 0, len(order))
	for _, id := range order {
		awards = append(awards, *byCreator[id])
	}
	return awards
}
