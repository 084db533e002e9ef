package bundle

// Default locations relative to the project root.
const (
	DefaultTempPath   = "Temp/BundleBuildData"
	DefaultOutputPath = "AssetBundles"
)

// BuildSettings selects the target a build is produced for.
type BuildSettings struct {
	TargetPlatform string `json:"target_platform" yaml:"target_platform"`
	TargetGroup    string `json:"target_group" yaml:"target_group"`
	TypeDatabase   string `json:"type_database,omitempty" yaml:"type_database,omitempty"`
}

// targetGroups maps known target platforms to their platform group.
var targetGroups = map[string]string{
	"StandaloneWindows":   "Standalone",
	"StandaloneWindows64": "Standalone",
	"StandaloneOSX":       "Standalone",
	"StandaloneLinux64":   "Standalone",
	"iOS":                 "iOS",
	"tvOS":                "tvOS",
	"Android":             "Android",
	"WebGL":               "WebGL",
	"PS4":                 "PS4",
	"PS5":                 "PS5",
	"XboxOne":             "XboxOne",
	"Switch":              "Switch",
}

// GroupForTarget returns the platform group of target, or "Unknown".
func GroupForTarget(target string) string {
	if group, ok := targetGroups[target]; ok {
		return group
	}
	return "Unknown"
}

// NewSettings builds settings for target. An empty group is derived from the target.
func NewSettings(typeDB, target, group string) BuildSettings {
	if group == "" {
		group = GroupForTarget(target)
	}
	return BuildSettings{
		TargetPlatform: target,
		TargetGroup:    group,
		TypeDatabase:   typeDB,
	}
}
