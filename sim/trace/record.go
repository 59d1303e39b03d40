// Package trace records exchange-level decisions of the dissemination
// protocols. It stores plain data and has no dependency on sim/.
package trace

// ExchangeRecord captures one message handed from sender to receiver.
type ExchangeRecord struct {
	Clock      float64
	Sender     int
	Receiver   int
	Originator int
	Sequence   int
	// Duplicate is true when the receiver already had the message.
	Duplicate bool
	// Feedback is true when the receiver returned its history.
	Feedback bool
	// Cancelled counts the sender's pending sends dropped after merging
	// the feedback.
	Cancelled int
}

// SelectionRecord captures a peer selection that did not lead to an
// exchange.
type SelectionRecord struct {
	Clock  float64
	Node   int
	Reason string
}
