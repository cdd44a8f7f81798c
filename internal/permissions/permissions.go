// Package permissions implements server-level access checks for owners
// and subusers.
package permissions

// Permission identifies a single server-scoped capability a subuser can
// be granted.
type Permission string

// All grants every permission when present in a subuser's set.
const All Permission = "*"

const (
	ControlStart   Permission = "control.start"
	ControlStop    Permission = "control.stop"
	ControlRestart Permission = "control.restart"
	ControlConsole Permission = "control.console"

	BackupCreate   Permission = "backup.create"
	BackupRead     Permission = "backup.read"
	BackupDelete   Permission = "backup.delete"
	BackupDownload Permission = "backup.download"
	BackupRestore  Permission = "backup.restore"

	FirewallRead   Permission = "firewall.read"
	FirewallManage Permission = "firewall.manage"

	ProxyRead   Permission = "proxy.read"
	ProxyManage Permission = "proxy.manage"

	DatabaseCreate Permission = "database.create"
	DatabaseRead   Permission = "database.read"
	DatabaseUpdate Permission = "database.update"
	DatabaseDelete Permission = "database.delete"

	ImportRead   Permission = "import.read"
	ImportManage Permission = "import.manage"

	FastDLRead   Permission = "fastdl.read"
	FastDLManage Permission = "fastdl.manage"

	ScheduleCreate Permission = "schedule.create"
	ScheduleRead   Permission = "schedule.read"
	ScheduleUpdate Permission = "schedule.update"
	ScheduleDelete Permission = "schedule.delete"

	AllocationRead   Permission = "allocation.read"
	AllocationUpdate Permission = "allocation.update"

	ActivityRead Permission = "activity.read"

	WebsocketConnect Permission = "websocket.connect"

	SettingsRename    Permission = "settings.rename"
	SettingsReinstall Permission = "settings.reinstall"
)

// AllPermissions lists every grantable permission, used when expanding
// the wildcard and when issuing daemon tokens for an owner.
var AllPermissions = []Permission{
	ControlStart, ControlStop, ControlRestart, ControlConsole,
	BackupCreate, BackupRead, BackupDelete, BackupDownload, BackupRestore,
	FirewallRead, FirewallManage,
	ProxyRead, ProxyManage,
	DatabaseCreate, DatabaseRead, DatabaseUpdate, DatabaseDelete,
	ImportRead, ImportManage,
	FastDLRead, FastDLManage,
	ScheduleCreate, ScheduleRead, ScheduleUpdate, ScheduleDelete,
	AllocationRead, AllocationUpdate,
	ActivityRead,
	WebsocketConnect,
	SettingsRename, SettingsReinstall,
}

// Strings converts a permission list to plain strings for JWT claims.
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
