package model

// RunOutput is the result of one code execution.
type RunOutput struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RoomState is the ephemeral editor state of one room.
type RoomState struct {
	Code     string     `json:"code"`
	Language string     `json:"language"`
	Output   *RunOutput `json:"output"`
}

// CodeChange is the payload of code-change and language-change events.
type CodeChange struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// OutputUpdate is the payload of output-update events.
type OutputUpdate struct {
	Output *RunOutput `json:"output"`
}

// ProblemChanged announces a new active problem to the non-host party.
type ProblemChanged struct {
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
}

// JoinRoom is the payload of join-room events.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}
