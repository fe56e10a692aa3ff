package reconcile

import (
	"sort"

	"corsair/internal/domain"
)

// Claimed normalizes a resolution into per-attempt mission records by
// joining each notification with the staged group that produced its job.
func Claimed(res Resolution) []domain.ClaimedMission {
	out := make([]domain.ClaimedMission, 0, len(res.Successes)+len(res.Failures))
	for _, n := range res.Successes {
		out = append(out, claimedFrom(n, res.Groups, domain.OutcomeSuccess))
	}
	for _, n := range res.Failures {
		out = append(out, claimedFrom(n, res.Groups, domain.OutcomeFailure))
	}
	return out
}

func claimedFrom(n domain.Notification, groups map[string]domain.ActiveMission, outcome string) domain.ClaimedMission {
	cm := domain.ClaimedMission{
		Outcome:           outcome,
		OutcomeEffect:     n.Data.Effect,
		OutcomeMultiplier: n.Data.Multiplier,
		Gems:              n.Data.Gems,
		Treasure:          n.Data.Treasure,
	}
	if g, ok := groups[n.Data.ID]; ok {
		cm.MissionName = g.MissionName
		if cm.MissionName == "" {
			cm.MissionName = g.MissionPath
		}
		cm.NFTIDs = append(cm.NFTIDs, g.NFTIDs...)
	}
	return cm
}

// Group aggregates claimed missions by name for display. Failed attempts
// are excluded, asset-id lists are unioned with set semantics, rewards are
// summed, and the group multiplier is the best multiplier among its
// attempts. Groups sort by multiplier descending; ties keep first-seen
// order.
func Group(claims []domain.ClaimedMission) []domain.MissionGroup {
	byName := make(map[string]*domain.MissionGroup)
	var order []string
	for _, cm := range claims {
		if cm.Outcome == domain.OutcomeFailure {
			continue
		}
		g, ok := byName[cm.MissionName]
		if !ok {
			g = &domain.MissionGroup{MissionName: cm.MissionName}
			byName[cm.MissionName] = g
			order = append(order, cm.MissionName)
		}
		g.Attempts++
		g.NFTIDs = unionAppend(g.NFTIDs, cm.NFTIDs)
		g.LoadedNFTIDs = unionAppend(g.LoadedNFTIDs, cm.LoadedNFTIDs)
		g.Gems += cm.Gems
		g.Treasure += cm.Treasure
		if cm.OutcomeMultiplier > g.OutcomeMultiplier {
			g.OutcomeMultiplier = cm.OutcomeMultiplier
		}
	}
	out := make([]domain.MissionGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OutcomeMultiplier > out[j].OutcomeMultiplier
	})
	return out
}

func unionAppend(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, id := range dst {
		seen[id] = true
	}
	for _, id := range src {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		dst = append(dst, id)
	}
	return dst
}
