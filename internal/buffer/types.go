package buffer

// Transition is one (state, action, reward, next state, terminal) sample.
type Transition struct {
	Seq       uint64    `json:"seq"`
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	Reward    float64   `json:"reward"`
	NextState []float64 `json:"next_state"`
	Terminal  bool      `json:"terminal"`
}

type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Pushed   uint64 `json:"pushed"`
}
