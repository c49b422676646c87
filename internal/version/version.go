// ABOUTME: Version information for the Play SDK
// ABOUTME: Reported to directory and game servers during session open
package version

const (
	// Version is the SDK release
	Version = "0.4.0"

	// Product is the name reported to servers
	Product = "play-go"

	// ProtocolVersion is the Play wire protocol revision spoken by pkg/protocol
	ProtocolVersion = "1"
)

// SDKVersion is the value sent as sdkVersion on every handshake.
func SDKVersion() string {
	return Product + "/" + Version
}
