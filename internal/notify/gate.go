// Package notify decides which stock transitions get announced, and
// to whom, and carries the sinks that deliver them.
package notify

import (
	"fmt"
	"log"
	"strings"
	"time"

	"sqdc-watcher/internal/formatter"
	"sqdc-watcher/internal/models"
)

// DefaultCooldown is the minimum time since a product's last in-stock
// event before it may be broadcast again.
const DefaultCooldown = 12 * time.Hour

// Sink delivers rendered notifications. ChatID is a delivery hint for
// sinks that cannot route by username alone.
type Sink interface {
	Broadcast(text string) error
	DirectMessage(username string, chatID int64, text string) error
}

// Store is the persistence slice the gate needs.
type Store interface {
	ListAllRules() (map[string][]models.NotificationRule, error)
	MarkNotified(products []models.Product) error
}

// CooldownChecker reports whether a product was recently in stock,
// backed by the history log.
type CooldownChecker interface {
	WasRecentlyInStock(p *models.Product, cooldown time.Duration, now time.Time) (bool, error)
}

// Gate applies the two independent notification layers: per-user
// keyword rules (no cooldown) and the channel broadcast (first-scan,
// category and cooldown guarded).
type Gate struct {
	store Store
	sink  Sink

	Cooldown        time.Duration
	PrimaryCategory string
	Now             func() time.Time
}

// NewGate wires a gate to its store and sink.
func NewGate(store Store, sink Sink, primaryCategory string) *Gate {
	return &Gate{
		store:           store,
		sink:            sink,
		Cooldown:        DefaultCooldown,
		PrimaryCategory: primaryCategory,
		Now:             time.Now,
	}
}

// ApplyRules sends one aggregated direct message per user whose
// keywords match the strain of at least one transitioned product.
// Rule notifications deliberately ignore the broadcast cooldown.
func (g *Gate) ApplyRules(becameInStock []models.Product) error {
	allRules, err := g.store.ListAllRules()
	if err != nil {
		return fmt.Errorf("loading notification rules: %w", err)
	}

	for username, rules := range allRules {
		var matched []models.Product
		seen := make(map[string]bool)
		var chatID int64
		for i := range becameInStock {
			p := &becameInStock[i]
			strain, _ := p.Specification(models.SpecStrain)
			for _, rule := range rules {
				if rule.ChatID != 0 {
					chatID = rule.ChatID
				}
				if !matchesKeyword(strain, rule.Keyword) || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				matched = append(matched, *p)
			}
		}
		if len(matched) == 0 {
			continue
		}

		var msg strings.Builder
		msg.WriteString("------------\n")
		fmt.Fprintf(&msg, "*%d new available products are matching your notification alerts:*\n", len(matched))
		for i := range matched {
			fmt.Fprintf(&msg, "   - %s\n", formatter.FormatProduct(&matched[i]))
		}
		msg.WriteString("------------")

		if err := g.sink.DirectMessage(username, chatID, msg.String()); err != nil {
			log.Printf("Failed to notify @%s: %v", username, err)
		}
	}
	return nil
}

// BroadcastEligible reports whether one product passes the channel
// gating: primary category only, and not in stock again within the
// cooldown window.
func (g *Gate) BroadcastEligible(checker CooldownChecker, p *models.Product) (bool, error) {
	if !strings.EqualFold(p.Category, g.PrimaryCategory) {
		return false, nil
	}
	recent, err := checker.WasRecentlyInStock(p, g.Cooldown, g.Now())
	if err != nil {
		return false, err
	}
	return !recent, nil
}

// Announce broadcasts the eligible subset of becameInStock to the
// shared channel. Products are marked notified before dispatch is
// attempted; a failed mark still dispatches, trading a possible
// duplicate for a never-lost announcement.
func (g *Gate) Announce(checker CooldownChecker, hadPreviousSnapshot bool, becameInStock []models.Product) error {
	if !hadPreviousSnapshot {
		log.Println("First run - not posting new products to the channel.")
		return nil
	}

	var eligible []models.Product
	for i := range becameInStock {
		ok, err := g.BroadcastEligible(checker, &becameInStock[i])
		if err != nil {
			return err
		}
		if ok {
			eligible = append(eligible, becameInStock[i])
		}
	}
	if suppressed := len(becameInStock) - len(eligible); suppressed > 0 {
		log.Printf("%d products became in stock but were filtered - they won't be posted to the channel.", suppressed)
	}
	if len(eligible) == 0 {
		return nil
	}

	if err := g.store.MarkNotified(eligible); err != nil {
		log.Printf("Failed to mark %d products as notified: %v", len(eligible), err)
	}

	lines := make([]string, 0, len(eligible))
	for i := range eligible {
		lines = append(lines, "- "+formatter.FormatProduct(&eligible[i]))
	}
	log.Printf("Posting channel notification (%d products)", len(eligible))
	return g.sink.Broadcast(strings.Join(lines, "\n"))
}

func matchesKeyword(strain, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(strain), strings.ToLower(keyword))
}
