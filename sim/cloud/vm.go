package cloud

import "fmt"

// VM is a leased slice of compute capacity.
type VM struct {
	ID           int     `json:"id"`
	OwnerID      int     `json:"owner_id"`
	MIPS         float64 `json:"mips"`
	PEs          int     `json:"pes"`
	CostPerSec   float64 `json:"cost_per_sec"`
	HostID       int     `json:"host_id"`
	DatacenterID int     `json:"datacenter_id"`
}

// NewVM creates a VM that is not yet placed on a host.
func NewVM(id int, mips float64, pes int, costPerSec float64) *VM {
	return &VM{
		ID:           id,
		OwnerID:      -1,
		MIPS:         mips,
		PEs:          pes,
		CostPerSec:   costPerSec,
		HostID:       -1,
		DatacenterID: -1,
	}
}

func (v *VM) String() string {
	return fmt.Sprintf("VM{id=%d mips=%.0f pes=%d cost=%.6f/s}", v.ID, v.MIPS, v.PEs, v.CostPerSec)
}

// FindVM returns the VM with the given id.
func FindVM(vms []*VM, id int) (*VM, bool) {
	for _, v := range vms {
		if v.ID == id {
			return v, true
		}
	}
	return nil, false
}

// Host is a physical machine inside a datacenter.
type Host struct {
	ID   int     `json:"id"`
	MIPS float64 `json:"mips"` // per PE
	PEs  int     `json:"pes"`
}
