// Package cloud defines the workload and resource types shared by the broker,
// the placement policies, and the datacenters.
package cloud

import "fmt"

// Status is a cloudlet's lifecycle state.
type Status int

const (
	StatusCreated Status = iota
	StatusQueued
	StatusInExec
	StatusSuccess
	StatusFailed
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusCreated:  "created",
	StatusQueued:   "queued",
	StatusInExec:   "in_exec",
	StatusSuccess:  "success",
	StatusFailed:   "failed",
	StatusCanceled: "canceled",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Unassigned is the VMID of a cloudlet that has not been placed.
const Unassigned = -1

// Cloudlet is a unit of work with deadline and budget terms.
type Cloudlet struct {
	ID      int `json:"id"`
	OwnerID int `json:"owner_id"`
	VMID    int `json:"vm_id"`

	Length     float64 `json:"length"`      // million instructions
	PEs        int     `json:"pes"`         // processing elements required
	Deadline   float64 `json:"deadline"`    // seconds after SubmitTime
	SubmitTime float64 `json:"submit_time"` // logical time the client submits
	Budget     float64 `json:"budget"`      // money the owner will pay
	FileSize   float64 `json:"file_size"`   // MB staged in before execution

	// Degradation is the deadline-degradation factor fixed when a QoS-aware
	// policy classified the cloudlet. 0 if it never was.
	Degradation float64 `json:"degradation,omitempty"`

	ExecStartTime float64 `json:"exec_start_time"`
	FinishTime    float64 `json:"finish_time"`
	ActualCPUTime float64 `json:"actual_cpu_time"`

	status Status
}

// NewCloudlet creates an unassigned cloudlet.
func NewCloudlet(id int, length float64, pes int, deadline, budget float64) *Cloudlet {
	return &Cloudlet{
		ID:       id,
		OwnerID:  -1,
		VMID:     Unassigned,
		Length:   length,
		PEs:      pes,
		Deadline: deadline,
		Budget:   budget,
		status:   StatusCreated,
	}
}

func (c *Cloudlet) Status() Status { return c.status }

// Bound reports whether the cloudlet has a VM.
func (c *Cloudlet) Bound() bool { return c.VMID != Unassigned }

// Unbind clears the VM assignment.
func (c *Cloudlet) Unbind() { c.VMID = Unassigned }

// AbsoluteDeadline is the latest acceptable finish time.
func (c *Cloudlet) AbsoluteDeadline() float64 { return c.SubmitTime + c.Deadline }

// Done reports whether the cloudlet reached a terminal state.
func (c *Cloudlet) Done() bool {
	return c.status == StatusSuccess || c.status == StatusFailed || c.status == StatusCanceled
}

// Cancel moves the cloudlet to StatusCanceled. Canceling a canceled cloudlet
// is a no-op; finished cloudlets cannot be canceled. Returns true if the
// status changed.
func (c *Cloudlet) Cancel() bool {
	if c.Done() {
		return false
	}
	c.status = StatusCanceled
	return true
}

// Queue marks the cloudlet as waiting on its VM.
func (c *Cloudlet) Queue() error {
	return c.transition(StatusQueued, StatusCreated)
}

// Begin marks the cloudlet as executing from now.
func (c *Cloudlet) Begin(now float64) error {
	if err := c.transition(StatusInExec, StatusCreated, StatusQueued); err != nil {
		return err
	}
	c.ExecStartTime = now
	return nil
}

// Complete marks the cloudlet as finished at now.
func (c *Cloudlet) Complete(now float64) error {
	if err := c.transition(StatusSuccess, StatusInExec); err != nil {
		return err
	}
	c.FinishTime = now
	c.ActualCPUTime = now - c.ExecStartTime
	return nil
}

// Fail marks the cloudlet as failed.
func (c *Cloudlet) Fail() error {
	if c.Done() {
		return fmt.Errorf("cloudlet %d: cannot fail from %s", c.ID, c.status)
	}
	c.status = StatusFailed
	return nil
}

func (c *Cloudlet) transition(to Status, from ...Status) error {
	for _, f := range from {
		if c.status == f {
			c.status = to
			return nil
		}
	}
	return fmt.Errorf("cloudlet %d: cannot move from %s to %s", c.ID, c.status, to)
}

func (c *Cloudlet) String() string {
	return fmt.Sprintf("Cloudlet{id=%d vm=%d len=%.0f deadline=%.0f budget=%.4f %s}", c.ID, c.VMID, c.Length, c.Deadline, c.Budget, c.status)
}

// CloudletState is a serializable copy of a cloudlet, status included.
type CloudletState struct {
	Cloudlet Cloudlet `json:"cloudlet"`
	Status   Status   `json:"status"`
}

// State copies the cloudlet.
func (c *Cloudlet) State() CloudletState {
	return CloudletState{Cloudlet: *c, Status: c.status}
}

// SetState overwrites the cloudlet with st.
func (c *Cloudlet) SetState(st CloudletState) {
	*c = st.Cloudlet
	c.status = st.Status
}

// FindCloudlet returns the cloudlet with the given id.
func FindCloudlet(cloudlets []*Cloudlet, id int) (*Cloudlet, bool) {
	for _, c := range cloudlets {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}
