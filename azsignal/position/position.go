// Package position implements the long/flat state machine driven by the aggregated scores.
package position

import "fmt"

type State string

const (
	Flat State = "FLAT"
	Long State = "LONG"
)

type Action string

const (
	Hold  Action = "HOLD"
	Enter Action = "ENTER"
	Exit  Action = "EXIT"
)

// Decision is the single action emitted for a bar. StopPrice is only set on Enter
// when a stop fraction is configured.
type Decision struct {
	Action    Action
	StopPrice float64
}

func (d Decision) String() string {
	if d.StopPrice > 0 {
		return fmt.Sprintf("%s (stop %.4f)", d.Action, d.StopPrice)
	}
	return string(d.Action)
}

// Machine tracks its own view of the position, it holds no quantity or fill information.
type Machine struct {
	state         State
	buyThreshold  float64
	sellThreshold float64
	stopFraction  float64
}

func NewMachine(buyThreshold, sellThreshold, stopFraction float64) *Machine {
	return &Machine{
		state:         Flat,
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
		stopFraction:  stopFraction,
	}
}

func (m *Machine) State() State { return m.state }

// Next evaluates the exit rule before the entry rule, so a bar never exits and re-enters.
func (m *Machine) Next(buy, sell, close float64) Decision {
	switch {
	case m.state == Long && sell <= m.sellThreshold:
		m.state = Flat
		return Decision{Action: Exit}
	case m.state == Flat && buy >= m.buyThreshold:
		m.state = Long
		decision := Decision{Action: Enter}
		if m.stopFraction > 0 {
			decision.StopPrice = close * (1 - m.stopFraction)
		}
		return decision
	}
	return Decision{Action: Hold}
}

// Sync overrides the tracked state, for instance after the harness filled a protective stop.
func (m *Machine) Sync(state State) {
	m.state = state
}
