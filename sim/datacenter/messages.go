package datacenter

import (
	"github.com/qos-sim/qos-sim/sim"
	"github.com/qos-sim/qos-sim/sim/cloud"
)

// Characteristics answers TagResourceCharacteristicsRequest.
type Characteristics struct {
	ID           int
	Name         string
	Hosts        int
	PEs          int
	FreePEs      int
	MIPSPerPE    float64 // fastest host
	TransferRate float64 // MB/s, 0 when staging is free
}

// VMAck answers TagVMCreate.
type VMAck struct {
	VM *cloud.VM
	OK bool
}

// MigrationRequest is the payload of TagVMMigrate.
type MigrationRequest struct {
	VMID   int
	HostID int
}

// MigrationAck answers TagVMMigrate.
type MigrationAck struct {
	MigrationRequest
	Result sim.Result
}

// CloudletStatus answers TagCloudletStatus and TagCloudletCancel.
type CloudletStatus struct {
	CloudletID int
	Found      bool
	Status     cloud.Status
}
