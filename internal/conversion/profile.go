package conversion

import (
	"fmt"
	"strings"

	"github.com/shoalmedia/shoal/pkg/models"
)

// Profile is an immutable named output recipe: target format, bitrate, and
// the command template used to produce it. The template carries two
// positional slots consumed in order: {0} for the input path and {1} for
// the output path.
type Profile struct {
	Name              string
	OutputFormat      string
	TargetBitrateKbps int
	CommandTemplate   string
	Kind              models.MediaKind // empty means either
	AutoTrigger       bool
}

// CommandArgs materializes the template with both paths substituted. The
// template is tokenized first and the paths are spliced into individual
// argv entries, so shell metacharacters in a path never reach a shell.
func (p Profile) CommandArgs(inputPath, outputPath string) (string, []string, error) {
	fields := strings.Fields(p.CommandTemplate)
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("profile %s has an unusable command template", p.Name)
	}

	args := make([]string, len(fields)-1)
	for i, field := range fields[1:] {
		field = strings.ReplaceAll(field, "{0}", inputPath)
		field = strings.ReplaceAll(field, "{1}", outputPath)
		args[i] = field
	}

	return fields[0], args, nil
}

// Catalog is the static, immutable set of named profiles, built once at
// startup and looked up by name.
type Catalog struct {
	profiles []Profile
	byName   map[string]Profile
}

// NewCatalog builds a catalog from a profile list. Duplicate names are
// rejected.
func NewCatalog(profiles []Profile) (*Catalog, error) {
	byName := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		if _, ok := byName[p.Name]; ok {
			return nil, fmt.Errorf("duplicate profile name %q", p.Name)
		}
		byName[p.Name] = p
	}
	return &Catalog{profiles: profiles, byName: byName}, nil
}

// Find looks up a profile by name.
func (c *Catalog) Find(name string) (Profile, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// AutoProfiles returns the profiles eligible for unsolicited background
// conversion of the given media kind.
func (c *Catalog) AutoProfiles(kind models.MediaKind) []Profile {
	var out []Profile
	for _, p := range c.profiles {
		if !p.AutoTrigger {
			continue
		}
		if p.Kind != "" && p.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	return out
}

// DefaultProfiles returns the built-in profile set.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:              "mp3-128",
			OutputFormat:      "mp3",
			TargetBitrateKbps: 128,
			CommandTemplate:   "ffmpeg -y -hide_banner -loglevel warning -i {0} -vn -c:a libmp3lame -b:a 128k -f mp3 {1}",
			Kind:              models.MediaKindAudio,
		},
		{
			Name:              "mp3-96",
			OutputFormat:      "mp3",
			TargetBitrateKbps: 96,
			CommandTemplate:   "ffmpeg -y -hide_banner -loglevel warning -i {0} -vn -c:a libmp3lame -b:a 96k -f mp3 {1}",
			Kind:              models.MediaKindAudio,
			AutoTrigger:       true,
		},
		{
			Name:              "opus-64",
			OutputFormat:      "opus",
			TargetBitrateKbps: 64,
			CommandTemplate:   "ffmpeg -y -hide_banner -loglevel warning -i {0} -vn -c:a libopus -b:a 64k -f opus {1}",
			Kind:              models.MediaKindAudio,
		},
		{
			Name:              "mp4-720p",
			OutputFormat:      "mp4",
			TargetBitrateKbps: 2800,
			CommandTemplate:   "ffmpeg -y -hide_banner -loglevel warning -i {0} -c:v libx264 -preset medium -vf scale=-2:720 -b:v 2800k -c:a aac -b:a 128k -movflags +faststart -f mp4 {1}",
			Kind:              models.MediaKindVideo,
		},
	}
}
