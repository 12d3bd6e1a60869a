package sdk

import (
	"github.com/project-ardeck/ardeck-plugin-sdk/manifest"
	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// Version is the SDK release, logged when a session starts.
const Version = "0.1.0"

// helloFor builds the registration frame sent right after connecting.
// The plugin id and version come from the manifest.
func helloFor(m manifest.Manifest, protocolVersion string) protocol.Hello {
	return protocol.Hello{
		PluginVersion:   m.Version,
		ProtocolVersion: protocolVersion,
		PluginID:        m.ID,
	}
}
