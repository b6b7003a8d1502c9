package protocol

// Wire names of outbound commands.
const (
	CmdOpenValve      = "OPEN_VALVE"
	CmdCloseValve     = "CLOSE_VALVE"
	CmdIrrigatePlant  = "IRRIGATE_PLANT"
	CmdStopIrrigation = "STOP_IRRIGATION"
	CmdRestartValve   = "RESTART_VALVE"
)

// Command is an outbound message to the controller.
type Command interface {
	Type() string
}

type OpenValve struct {
	PlantName   string  `json:"plantName"`
	TimeMinutes float64 `json:"timeMinutes"`
}

func (OpenValve) Type() string { return CmdOpenValve }

type CloseValve struct {
	PlantName string `json:"plantName"`
}

func (CloseValve) Type() string { return CmdCloseValve }

type IrrigatePlant struct {
	PlantName string `json:"plantName"`
}

func (IrrigatePlant) Type() string { return CmdIrrigatePlant }

type StopIrrigation struct {
	PlantName string `json:"plantName"`
	PlantID   int64  `json:"plantId,omitempty"`
}

func (StopIrrigation) Type() string { return CmdStopIrrigation }

type RestartValve struct {
	PlantName string `json:"plantName"`
}

func (RestartValve) Type() string { return CmdRestartValve }
