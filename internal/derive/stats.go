package derive

import "github.com/ernie/heistwatch/internal/domain"

// Aggregate summarizes an already-filtered view. Robberies and
// mansions count open/in-progress by status; airdrops additionally
// bucket by difficulty color.
func Aggregate(feed domain.Feed, events []domain.Event) domain.Stats {
	s := domain.Stats{Total: len(events)}
	for _, e := range events {
		switch e.Status {
		case domain.StatusOpen:
			s.Open++
		case domain.StatusInProgress:
			s.InProgress++
		}
		if feed == domain.FeedAirdrop {
			switch ColorSeverity(e.Color) {
			case 1:
				s.Easy++
			case 2:
				s.Medium++
			case 3:
				s.Hard++
			}
		}
	}
	return s
}

// AggregateCombos summarizes power-combo mode: a combo is atomically
// open or not, so total and open both equal the result count.
func AggregateCombos(results []domain.ComboResult) domain.Stats {
	n := len(results)
	return domain.Stats{Total: n, Open: n}
}
