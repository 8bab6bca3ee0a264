package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/razihadjamor/mangeo-backend/internal/dispatch"
	"github.com/razihadjamor/mangeo-backend/internal/events"
)

// promptModerator asks the operator to accept or refuse each order on the
// terminal. One order is reviewed at a time, so the consume loop blocks on
// the prompt and later submissions queue behind it. That is intentional: a
// single operator handles one decision at a time. Timers keep firing while
// the prompt waits, and the conditional status write settles any race with
// an expiring offer.
type promptModerator struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPromptModerator(in io.Reader, out io.Writer) *promptModerator {
	return &promptModerator{in: bufio.NewReader(in), out: out}
}

func (m *promptModerator) Review(ctx context.Context, order events.OrderSubmitted) (dispatch.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintf(m.out, "\norder %s from %s, total %s\n", order.OrderID, order.RestaurantName, order.Total.StringFixed(2))
	for _, line := range order.LineItems {
		fmt.Fprintf(m.out, "  %d x %s @ %s\n", line.Quantity, line.Name, line.UnitPrice.StringFixed(2))
	}

	for {
		if err := ctx.Err(); err != nil {
			return dispatch.Decision{}, err
		}
		fmt.Fprint(m.out, "accept? [y/n]: ")
		answer, err := m.in.ReadString('\n')
		if err != nil {
			return dispatch.Decision{}, fmt.Errorf("reading moderation answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes", "o", "oui":
			return dispatch.Decision{Approved: true}, nil
		case "n", "no", "non":
			return dispatch.Decision{Approved: false, Reason: "refused by moderator"}, nil
		}
	}
}
