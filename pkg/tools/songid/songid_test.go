package songid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Test Song", "test-song"},
		{"Gurenge", "gurenge"},
		{"  Gurenge   by  LISA ", "gurenge-by-lisa"},
		{"Pokémon Theme", "pokemon-theme"},
		{"Yoru ni Kakeru / YOASOBI", "yoru-ni-kakeru-yoasobi"},
		{"Don't Stop", "don-t-stop"},
		{"Gurenge v2", "gurenge-v2"},
		{"LiSA", "lisa"},
		{"Unravel (TK from 凛として時雨)", "unravel-tk-from"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := Generate(tt.title)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, idRegexp, got)
		})
	}
}

func TestGenerate_NonLatinTitleIsStable(t *testing.T) {
	a := Generate("紅蓮華")
	b := Generate("紅蓮華")
	c := Generate("夜に駆ける")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^song-[0-9a-f]{12}$`, a)
}

func TestGenerate_IsIdempotent(t *testing.T) {
	for _, title := range []string{
		"紅蓮華",
		"夜に駆ける",
		"Gurenge v2",
		"LiSA",
		"Pokémon Theme",
		"Yoru ni Kakeru / YOASOBI",
		"song-5afd771d248b",
	} {
		id := Generate(title)
		assert.Equal(t, id, Generate(id), title)
	}
}

func TestGenerate_Empty(t *testing.T) {
	assert.Equal(t, "", Generate("   "))
}

func TestTool(t *testing.T) {
	id, err := Tool(Input{Title: "Test Song"})
	require.NoError(t, err)
	assert.Equal(t, "test-song", id)

	_, err = Tool(Input{})
	assert.Error(t, err)
}
