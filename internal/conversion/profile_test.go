package conversion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoalmedia/shoal/internal/conversion"
	"github.com/shoalmedia/shoal/pkg/models"
)

func TestCommandArgs(t *testing.T) {
	t.Run("substitutes both slots", func(t *testing.T) {
		p := conversion.Profile{
			Name:            "mp3-128",
			CommandTemplate: "ffmpeg -i {0} -b:a 128k {1}",
		}

		name, args, err := p.CommandArgs("/media/in.flac", "/media/out.mp3")
		require.NoError(t, err)
		assert.Equal(t, "ffmpeg", name)
		assert.Equal(t, []string{"-i", "/media/in.flac", "-b:a", "128k", "/media/out.mp3"}, args)
	})

	t.Run("shell metacharacters stay literal", func(t *testing.T) {
		p := conversion.Profile{
			Name:            "mp3-128",
			CommandTemplate: "ffmpeg -i {0} {1}",
		}

		input := "/media/a;rm -rf $(HOME)|b.flac"
		name, args, err := p.CommandArgs(input, "/media/out.mp3")
		require.NoError(t, err)
		assert.Equal(t, "ffmpeg", name)
		assert.Equal(t, []string{"-i", input, "/media/out.mp3"}, args)
	})

	t.Run("rejects empty template", func(t *testing.T) {
		p := conversion.Profile{Name: "broken", CommandTemplate: "  "}

		_, _, err := p.CommandArgs("in", "out")
		assert.Error(t, err)
	})
}

func TestCatalog(t *testing.T) {
	t.Run("find by name", func(t *testing.T) {
		catalog, err := conversion.NewCatalog(conversion.DefaultProfiles())
		require.NoError(t, err)

		p, ok := catalog.Find("mp3-128")
		require.True(t, ok)
		assert.Equal(t, "mp3", p.OutputFormat)
		assert.Equal(t, 128, p.TargetBitrateKbps)

		_, ok = catalog.Find("no-such-profile")
		assert.False(t, ok)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := conversion.NewCatalog([]conversion.Profile{
			{Name: "dup", CommandTemplate: "ffmpeg {0} {1}"},
			{Name: "dup", CommandTemplate: "ffmpeg {0} {1}"},
		})
		assert.Error(t, err)
	})

	t.Run("auto profiles filter by kind", func(t *testing.T) {
		catalog, err := conversion.NewCatalog([]conversion.Profile{
			{Name: "audio-auto", Kind: models.MediaKindAudio, AutoTrigger: true, CommandTemplate: "ffmpeg {0} {1}"},
			{Name: "video-auto", Kind: models.MediaKindVideo, AutoTrigger: true, CommandTemplate: "ffmpeg {0} {1}"},
			{Name: "any-auto", AutoTrigger: true, CommandTemplate: "ffmpeg {0} {1}"},
			{Name: "manual", Kind: models.MediaKindAudio, CommandTemplate: "ffmpeg {0} {1}"},
		})
		require.NoError(t, err)

		names := func(profiles []conversion.Profile) []string {
			var out []string
			for _, p := range profiles {
				out = append(out, p.Name)
			}
			return out
		}

		assert.Equal(t, []string{"audio-auto", "any-auto"}, names(catalog.AutoProfiles(models.MediaKindAudio)))
		assert.Equal(t, []string{"video-auto", "any-auto"}, names(catalog.AutoProfiles(models.MediaKindVideo)))
	})
}
