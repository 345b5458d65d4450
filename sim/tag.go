package sim

import "fmt"

// Tag identifies the semantic type of an event. Values are shared by every
// entity in a simulation; handlers switch on them and log anything unknown.
type Tag int

const (
	TagNone Tag = iota

	// Discovery.
	TagRegisterResource
	TagResourceList
	TagResourceCharacteristicsRequest
	TagResourceCharacteristics

	// VM lifecycle.
	TagVMCreate
	TagVMCreateAck
	TagVMDestroy
	TagVMDestroyAck
	TagVMMigrate
	TagVMMigrateAck

	// Cloudlet lifecycle.
	TagCloudletSubmit
	TagCloudletReturn
	TagCloudletCancel
	TagCloudletStatus
	TagCloudletArrival
	TagCloudletFinish

	TagEndOfSimulation
)

var tagNames = map[Tag]string{
	TagNone:                           "none",
	TagRegisterResource:               "register_resource",
	TagResourceList:                   "resource_list",
	TagResourceCharacteristicsRequest: "resource_characteristics_request",
	TagResourceCharacteristics:        "resource_characteristics",
	TagVMCreate:                       "vm_create",
	TagVMCreateAck:                    "vm_create_ack",
	TagVMDestroy:                      "vm_destroy",
	TagVMDestroyAck:                   "vm_destroy_ack",
	TagVMMigrate:                      "vm_migrate",
	TagVMMigrateAck:                   "vm_migrate_ack",
	TagCloudletSubmit:                 "cloudlet_submit",
	TagCloudletReturn:                 "cloudlet_return",
	TagCloudletCancel:                 "cloudlet_cancel",
	TagCloudletStatus:                 "cloudlet_status",
	TagCloudletArrival:                "cloudlet_arrival",
	TagCloudletFinish:                 "cloudlet_finish",
	TagEndOfSimulation:                "end_of_simulation",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}
