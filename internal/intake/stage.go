package intake

// Stage is the step of the conversation a session is in.
type Stage string

const (
	StageGreet     Stage = "greet"
	StageCollect   Stage = "collect"
	StageInsurance Stage = "insurance"
	StagePickSlot  Stage = "pick_slot"
	StageDone      Stage = "done"
)

func (s Stage) String() string {
	return string(s)
}
