// Package songid derives stable file-system friendly identifiers from song titles.
package songid

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const hashPrefix = "song-"

// idRegexp matches ids Generate produces. Such ids are returned unchanged.
var idRegexp = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Generate returns a lowercase kebab-case ASCII id for title. Accents are
// stripped; titles without any ASCII letter or digit map to a short,
// stable hash so that the same title always yields the same id.
func Generate(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	if idRegexp.MatchString(title) {
		return title
	}

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var sb strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sb.WriteRune(unicode.ToLower(r))
		} else {
			sb.WriteRune(' ')
		}
	}

	if id := strings.Join(strings.Fields(sb.String()), "-"); id != "" {
		return id
	}

	return hashPrefix + strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(title)).String(), "-", "")[:12]
}

type Input struct {
	Title string `json:"title" jsonschema:"description=Song title, optionally with the artist"`
}

// Tool is the generate_song_id tool.
func Tool(in Input) (string, error) {
	id := Generate(in.Title)
	if id == "" {
		return "", errors.New("title cannot be empty")
	}
	return id, nil
}
