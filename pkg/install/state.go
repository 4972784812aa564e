package install

// State tracks how far a run has progressed. States only ever advance; a
// failed step leaves the run in the last state it fully reached.
type State int

const (
	StateStart State = iota
	StateValidated
	StatePartitioned
	StatePoolCreated
	StateDatasetsCreated
	StateBootFsSet
	StateBootstrapped
	StateConfigWritten
	StateReimported
	StateBootEnvCreated
	StateActivated
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateValidated:
		return "validated"
	case StatePartitioned:
		return "partitioned"
	case StatePoolCreated:
		return "pool created"
	case StateDatasetsCreated:
		return "datasets created"
	case StateBootFsSet:
		return "boot fs set"
	case StateBootstrapped:
		return "bootstrapped"
	case StateConfigWritten:
		return "config written"
	case StateReimported:
		return "reimported"
	case StateBootEnvCreated:
		return "boot environment created"
	case StateActivated:
		return "activated"
	case StateDone:
		return "done"
	default:
		panic("unknown installer state")
	}
}
