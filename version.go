package hotrun

// Version is the current version of the go-hotrun library
const Version = "0.3.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Backends lists the notification backends compiled in
	Backends []Backend
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	return VersionInfo{
		Version:  Version,
		Backends: []Backend{BackendFsnotify, BackendNotify},
	}
}
