package version

const Version = "0.3.1"

// ProtocolVersion is the MCP protocol revision this server speaks by default.
const ProtocolVersion = "2024-11-05"

var SupportedProtocolVersions = []string{
	"2024-11-05",
	"2025-03-26",
}
