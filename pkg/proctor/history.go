package proctor

const DefaultGazeWindow = 5

// GazeHistory is a fixed-capacity FIFO of raw gaze labels. It is not safe for concurrent use;
// the stabilizer serializes access per session.
type GazeHistory struct {
	labels []GazeLabel
	start  int
	size   int
}

func NewGazeHistory(capacity int) *GazeHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &GazeHistory{labels: make([]GazeLabel, capacity)}
}

func (h *GazeHistory) Push(label GazeLabel) {
	capacity := len(h.labels)
	if h.size < capacity {
		h.labels[(h.start+h.size)%capacity] = label
		h.size++
		return
	}
	h.labels[h.start] = label
	h.start = (h.start + 1) % capacity
}

func (h *GazeHistory) Len() int {
	return h.size
}

func (h *GazeHistory) Cap() int {
	return len(h.labels)
}

// Labels returns the window oldest first.
func (h *GazeHistory) Labels() []GazeLabel {
	out := make([]GazeLabel, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.labels[(h.start+i)%len(h.labels)]
	}
	return out
}

// Mode returns the most frequent label. Ties go to the label whose first occurrence is
// earliest in the window. An empty window yields center.
func (h *GazeHistory) Mode() GazeLabel {
	window := h.Labels()
	if len(window) == 0 {
		return GazeCenter
	}

	counts := make(map[GazeLabel]int, len(window))
	var order []GazeLabel
	for _, label := range window {
		if counts[label] == 0 {
			order = append(order, label)
		}
		counts[label]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[best] {
			best = label
		}
	}
	return best
}
