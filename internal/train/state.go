package train

// State is the training accumulator, threaded explicitly through every
// step: each Step call takes the current state and returns the next one.
// There is no hidden mutable counter inside the trainer, so resuming
// from a checkpoint means handing the loop the restored State.
type State struct {
	Epoch       int
	Step        int64
	RunningLoss float64 // sum of per-sample losses this epoch
	Seen        int     // samples consumed this epoch
	Correct     int     // correct predictions this epoch
}

// AvgLoss returns the mean per-sample loss for the epoch so far.
func (s State) AvgLoss() float64 {
	if s.Seen == 0 {
		return 0
	}
	return s.RunningLoss / float64(s.Seen)
}

// Accuracy returns the fraction of correct predictions for the epoch so far.
func (s State) Accuracy() float64 {
	if s.Seen == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Seen)
}

// NextEpoch carries the step counter forward and resets the per-epoch
// accumulators.
func (s State) NextEpoch() State {
	return State{
		Epoch: s.Epoch + 1,
		Step:  s.Step,
	}
}

// Metrics is the result of an evaluation pass.
type Metrics struct {
	Loss     float64
	Accuracy float64
	Samples  int
}
