package http

// TransactionStatus marks how far a single exchange has progressed.
// It only moves forward within one exchange.
type TransactionStatus int

const (
	StatusNone TransactionStatus = iota
	StatusHeaderHandlerCalled
	StatusReaderCreated
	StatusBodyReadingInProgress
	StatusBodyReadingFinished
	StatusBodyHandlerCalled // Only used by server.
	StatusReplying          // Only used by server.
	StatusSwitchingProtocol // Only used by server.
	StatusDone
)

func (s TransactionStatus) AtLeast(target TransactionStatus) bool { return s >= target }

func (s TransactionStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusHeaderHandlerCalled:
		return "HeaderHandlerCalled"
	case StatusReaderCreated:
		return "ReaderCreated"
	case StatusBodyReadingInProgress:
		return "BodyReadingInProgress"
	case StatusBodyReadingFinished:
		return "BodyReadingFinished"
	case StatusBodyHandlerCalled:
		return "BodyHandlerCalled"
	case StatusReplying:
		return "Replying"
	case StatusSwitchingProtocol:
		return "SwitchingProtocol"
	case StatusDone:
		return "Done"
	}
	return "Unknown"
}
