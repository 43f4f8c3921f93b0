package collect

// Recorder receives engine progress events. A nil Recorder is ignored.
type Recorder interface {
	PageFetched(sequence string, err error)
	RepositoryFinished(outcome string)
	ThrottlePaused()
	InFlight(delta int)
}

// Repository outcomes reported to Recorder.RepositoryFinished.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

type nopRecorder struct{}

func (nopRecorder) PageFetched(string, error) {}
func (nopRecorder) RepositoryFinished(string) {}
func (nopRecorder) ThrottlePaused()           {}
func (nopRecorder) InFlight(int)              {}

func recorderOrNop(recorder Recorder) Recorder {
	if recorder == nil {
		return nopRecorder{}
	}
	return recorder
}

type multiRecorder []Recorder

// MultiRecorder fans every event out to each non-nil recorder.
func MultiRecorder(recorders ...Recorder) Recorder {
	fanout := make(multiRecorder, 0, len(recorders))
	for _, recorder := range recorders {
		if recorder != nil {
			fanout = append(fanout, recorder)
		}
	}
	return fanout
}

func (m multiRecorder) PageFetched(sequence string, err error) {
	for _, recorder := range m {
		recorder.PageFetched(sequence, err)
	}
}

func (m multiRecorder) RepositoryFinished(outcome string) {
	for _, recorder := range m {
		recorder.RepositoryFinished(outcome)
	}
}

func (m multiRecorder) ThrottlePaused() {
	for _, recorder := range m {
		recorder.ThrottlePaused()
	}
}

func (m multiRecorder) InFlight(delta int) {
	for _, recorder := range m {
		recorder.InFlight(delta)
	}
}
