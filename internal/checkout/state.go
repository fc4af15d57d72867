package checkout

import "fmt"

type State string

const (
	AwaitingConfirmation State = "AwaitingConfirmation"
	Verifying            State = "Verifying"
	Verified             State = "Verified"
	Writing              State = "Writing"
	Written              State = "Written"
	Clearing             State = "Clearing"
	Complete             State = "Complete"
	Failed               State = "Failed"
)

// Reason is the stable code reported to callers and logs.
type Reason string

const (
	ReasonPaymentRejected    Reason = "PaymentRejected"
	ReasonPaymentMismatch    Reason = "PaymentMismatch"
	ReasonGatewayUnavailable Reason = "PaymentGatewayUnavailable"
	ReasonEmptyCart          Reason = "EmptyCart"
	ReasonAmountMismatch     Reason = "AmountMismatch"
	ReasonStorageError       Reason = "StorageError"
	ReasonDuplicatePayment   Reason = "DuplicatePayment"
	ReasonPartialCleanup     Reason = "PartialCleanup"
	ReasonInvalidRequest     Reason = "InvalidRequest"
	ReasonInProgress         Reason = "CheckoutInProgress"
)

var transitions = map[State][]State{
	// Complete straight from AwaitingConfirmation is the replay of a
	// callback whose order was already written.
	AwaitingConfirmation: {Verifying, Complete, Failed},
	Verifying:            {Verified, Failed},
	Verified:             {Writing, Failed},
	Writing:              {Written, Failed},
	Written:              {Clearing, Failed},
	Clearing:             {Complete, Failed},
}

func (s State) Terminal() bool { return s == Complete || s == Failed }

// CanTransition reports whether the pipeline may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks the current state and every state visited.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: AwaitingConfirmation, history: []State{AwaitingConfirmation}}
}

func (m *machine) advance(to State) {
	if !CanTransition(m.state, to) {
		panic(fmt.Sprintf("checkout: illegal transition %s -> %s", m.state, to))
	}
	m.state = to
	m.history = append(m.history, to)
}
