package models

type PIDRequest struct {
	PID uint `json:"pid"`
}

type CreateProcessRequest struct {
	PID        uint `json:"pid"`
	SetupStack bool `json:"setup_stack"`
}

type FaultRequest struct {
	PID        uint   `json:"pid"`
	Address    uint64 `json:"address"`
	User       bool   `json:"user"`
	Write      bool   `json:"write"`
	NotPresent bool   `json:"not_present"`
	RSP        uint64 `json:"rsp"`
}

type ReadRequest struct {
	PID     uint   `json:"pid"`
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
}

type ReadResponse struct {
	Data []byte `json:"data"`
}

type WriteRequest struct {
	PID     uint   `json:"pid"`
	Address uint64 `json:"address"`
	Data    []byte `json:"data"`
}

type MmapRequest struct {
	PID      uint   `json:"pid"`
	Address  uint64 `json:"address"`
	Length   uint64 `json:"length"`
	Writable bool   `json:"writable"`
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
}

type MmapResponse struct {
	Address uint64 `json:"address"`
}

type MunmapRequest struct {
	PID     uint   `json:"pid"`
	Address uint64 `json:"address"`
}

type ForkRequest struct {
	ParentPID uint `json:"parent_pid"`
	ChildPID  uint `json:"child_pid"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Errno string `json:"errno,omitempty"`
}
